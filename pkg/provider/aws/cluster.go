// Copyright 2025 The Kube Resource Orchestrator Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"). You may
// not use this file except in compliance with the License. A copy of the
// License is located at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// or in the "license" file accompanying this file. This file is distributed
// on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either
// express or implied. See the License for the specific language governing
// permissions and limitations under the License.

package aws

import (
	"context"
	"fmt"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"

	"github.com/kro-run/stackgraph/pkg/provider"
)

// DefaultServiceIPv4CIDR is the service CIDR of clusters that don't set
// one.
const DefaultServiceIPv4CIDR = "172.20.0.0/16"

// EKSClient defines the EKS operations for clusters, node groups and
// addons.
type EKSClient interface {
	CreateCluster(ctx context.Context, params *eks.CreateClusterInput, optFns ...func(*eks.Options)) (*eks.CreateClusterOutput, error)
	DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error)
	UpdateClusterVersion(ctx context.Context, params *eks.UpdateClusterVersionInput, optFns ...func(*eks.Options)) (*eks.UpdateClusterVersionOutput, error)
	UpdateClusterConfig(ctx context.Context, params *eks.UpdateClusterConfigInput, optFns ...func(*eks.Options)) (*eks.UpdateClusterConfigOutput, error)
	DeleteCluster(ctx context.Context, params *eks.DeleteClusterInput, optFns ...func(*eks.Options)) (*eks.DeleteClusterOutput, error)
	TagResource(ctx context.Context, params *eks.TagResourceInput, optFns ...func(*eks.Options)) (*eks.TagResourceOutput, error)

	CreateNodegroup(ctx context.Context, params *eks.CreateNodegroupInput, optFns ...func(*eks.Options)) (*eks.CreateNodegroupOutput, error)
	DescribeNodegroup(ctx context.Context, params *eks.DescribeNodegroupInput, optFns ...func(*eks.Options)) (*eks.DescribeNodegroupOutput, error)
	UpdateNodegroupConfig(ctx context.Context, params *eks.UpdateNodegroupConfigInput, optFns ...func(*eks.Options)) (*eks.UpdateNodegroupConfigOutput, error)
	DeleteNodegroup(ctx context.Context, params *eks.DeleteNodegroupInput, optFns ...func(*eks.Options)) (*eks.DeleteNodegroupOutput, error)

	CreateAddon(ctx context.Context, params *eks.CreateAddonInput, optFns ...func(*eks.Options)) (*eks.CreateAddonOutput, error)
	DescribeAddon(ctx context.Context, params *eks.DescribeAddonInput, optFns ...func(*eks.Options)) (*eks.DescribeAddonOutput, error)
	UpdateAddon(ctx context.Context, params *eks.UpdateAddonInput, optFns ...func(*eks.Options)) (*eks.UpdateAddonOutput, error)
	DeleteAddon(ctx context.Context, params *eks.DeleteAddonInput, optFns ...func(*eks.Options)) (*eks.DeleteAddonOutput, error)
}

// createConflict marks a ResourceInUseException returned by a create as
// "already exists".
func createConflict(err error) error {
	if errorCode(err) == "ResourceInUseException" {
		return fmt.Errorf("%w: %w", errAlreadyExists, err)
	}
	return err
}

// clusterDriver manages EKS clusters. The version and the control plane
// logging are updated in place.
type clusterDriver struct {
	client EKSClient
}

func (d *clusterDriver) create(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	name := desiredName(desired)
	input := &eks.CreateClusterInput{
		Name:    awsv2.String(name),
		RoleArn: awsv2.String(stringProp(desired.Parameters, "roleArn")),
		ResourcesVpcConfig: &ekstypes.VpcConfigRequest{
			SubnetIds: stringSliceProp(desired.Parameters, "subnetIds"),
		},
		KubernetesNetworkConfig: &ekstypes.KubernetesNetworkConfigRequest{
			ServiceIpv4Cidr: awsv2.String(stringPropDefault(desired.Parameters, "serviceIpv4Cidr", DefaultServiceIPv4CIDR)),
		},
		Logging: clusterLogging(desired.Parameters),
		Tags:    tags(desired),
	}
	if version := stringProp(desired.Parameters, "version"); version != "" {
		input.Version = awsv2.String(version)
	}

	out, err := d.client.CreateCluster(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("eks: create cluster %q: %w", name, createConflict(err))
	}
	return clusterOutputs(out.Cluster), nil
}

func (d *clusterDriver) update(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	name := desiredName(desired)
	current, err := d.describe(ctx, name)
	if err != nil {
		return nil, err
	}

	version := stringProp(desired.Parameters, "version")
	if version != "" && version != awsv2.ToString(current.Version) {
		_, err := d.client.UpdateClusterVersion(ctx, &eks.UpdateClusterVersionInput{
			Name:    awsv2.String(name),
			Version: awsv2.String(version),
		})
		if err != nil {
			return nil, fmt.Errorf("eks: update cluster version %q: %w", name, err)
		}
	}

	if desired.Previous != nil && changed(desired, "logging") {
		_, err := d.client.UpdateClusterConfig(ctx, &eks.UpdateClusterConfigInput{
			Name:    awsv2.String(name),
			Logging: clusterLogging(desired.Parameters),
		})
		if err != nil {
			return nil, fmt.Errorf("eks: update cluster logging %q: %w", name, err)
		}
	}

	_, err = d.client.TagResource(ctx, &eks.TagResourceInput{
		ResourceArn: current.Arn,
		Tags:        tags(desired),
	})
	if err != nil {
		return nil, fmt.Errorf("eks: tag cluster %q: %w", name, err)
	}

	current, err = d.describe(ctx, name)
	if err != nil {
		return nil, err
	}
	return clusterOutputs(current), nil
}

func (d *clusterDriver) describe(ctx context.Context, name string) (*ekstypes.Cluster, error) {
	out, err := d.client.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: awsv2.String(name)})
	if err != nil {
		return nil, fmt.Errorf("eks: describe cluster %q: %w", name, err)
	}
	return out.Cluster, nil
}

func (d *clusterDriver) read(ctx context.Context, applied provider.Applied) (map[string]interface{}, error) {
	cluster, err := d.describe(ctx, appliedName(applied))
	if err != nil {
		return nil, err
	}
	return clusterOutputs(cluster), nil
}

func (d *clusterDriver) delete(ctx context.Context, applied provider.Applied) error {
	name := appliedName(applied)
	if _, err := d.client.DeleteCluster(ctx, &eks.DeleteClusterInput{Name: awsv2.String(name)}); err != nil {
		return fmt.Errorf("eks: delete cluster %q: %w", name, err)
	}
	return nil
}

// clusterLogging enables the control plane log types listed in the
// logging parameter and disables the others.
func clusterLogging(params map[string]interface{}) *ekstypes.Logging {
	enabled := stringSliceProp(params, "logging")
	var on, off []ekstypes.LogType
	for _, t := range ekstypes.LogType("").Values() {
		if containsFold(enabled, string(t)) {
			on = append(on, t)
		} else {
			off = append(off, t)
		}
	}
	var setups []ekstypes.LogSetup
	if len(on) > 0 {
		setups = append(setups, ekstypes.LogSetup{Enabled: awsv2.Bool(true), Types: on})
	}
	if len(off) > 0 {
		setups = append(setups, ekstypes.LogSetup{Enabled: awsv2.Bool(false), Types: off})
	}
	return &ekstypes.Logging{ClusterLogging: setups}
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func clusterOutputs(cluster *ekstypes.Cluster) map[string]interface{} {
	if cluster == nil {
		return nil
	}
	outputs := map[string]interface{}{
		"name":    awsv2.ToString(cluster.Name),
		"arn":     awsv2.ToString(cluster.Arn),
		"status":  string(cluster.Status),
		"version": awsv2.ToString(cluster.Version),
	}
	if cluster.Endpoint != nil {
		outputs["endpoint"] = *cluster.Endpoint
	}
	if cluster.CertificateAuthority != nil && cluster.CertificateAuthority.Data != nil {
		outputs["certificateAuthority"] = *cluster.CertificateAuthority.Data
	}
	if cluster.ResourcesVpcConfig != nil && cluster.ResourcesVpcConfig.ClusterSecurityGroupId != nil {
		outputs["securityGroupId"] = *cluster.ResourcesVpcConfig.ClusterSecurityGroupId
	}
	if cluster.Identity != nil && cluster.Identity.Oidc != nil && cluster.Identity.Oidc.Issuer != nil {
		issuer := *cluster.Identity.Oidc.Issuer
		outputs["oidcIssuer"] = issuer
		if account := arnAccount(awsv2.ToString(cluster.Arn)); account != "" {
			outputs["openIdConnectProviderArn"] = fmt.Sprintf(
				"arn:aws:iam::%s:oidc-provider/%s", account, strings.TrimPrefix(issuer, "https://"))
		}
	}
	return outputs
}

// arnAccount returns the account field of an ARN,
// arn:partition:service:region:account:resource.
func arnAccount(arn string) string {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) < 6 {
		return ""
	}
	return parts[4]
}
