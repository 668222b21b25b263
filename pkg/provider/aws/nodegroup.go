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

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"

	"github.com/kro-run/stackgraph/pkg/provider"
)

const (
	DefaultInstanceType = "m5.large"
	DefaultMinSize      = 1
	DefaultMaxSize      = 10
)

// nodeGroupDriver manages EKS managed node groups. Only the scaling
// configuration is updated in place.
type nodeGroupDriver struct {
	client EKSClient
}

func (d *nodeGroupDriver) create(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	name := desiredName(desired)
	clusterName := stringProp(desired.Parameters, "clusterName")
	instanceTypes := stringSliceProp(desired.Parameters, "instanceTypes")
	if len(instanceTypes) == 0 {
		instanceTypes = []string{DefaultInstanceType}
	}

	out, err := d.client.CreateNodegroup(ctx, &eks.CreateNodegroupInput{
		ClusterName:   awsv2.String(clusterName),
		NodegroupName: awsv2.String(name),
		NodeRole:      awsv2.String(stringProp(desired.Parameters, "nodeRoleArn")),
		Subnets:       stringSliceProp(desired.Parameters, "subnetIds"),
		InstanceTypes: instanceTypes,
		ScalingConfig: scalingConfig(desired.Parameters),
		Tags:          tags(desired),
	})
	if err != nil {
		return nil, fmt.Errorf("eks: create node group %q: %w", name, createConflict(err))
	}
	return nodeGroupOutputs(out.Nodegroup), nil
}

func (d *nodeGroupDriver) update(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	name := desiredName(desired)
	clusterName := stringProp(desired.Parameters, "clusterName")
	_, err := d.client.UpdateNodegroupConfig(ctx, &eks.UpdateNodegroupConfigInput{
		ClusterName:   awsv2.String(clusterName),
		NodegroupName: awsv2.String(name),
		ScalingConfig: scalingConfig(desired.Parameters),
	})
	if err != nil {
		return nil, fmt.Errorf("eks: update node group %q: %w", name, err)
	}
	return d.describe(ctx, clusterName, name)
}

func (d *nodeGroupDriver) describe(ctx context.Context, clusterName, name string) (map[string]interface{}, error) {
	out, err := d.client.DescribeNodegroup(ctx, &eks.DescribeNodegroupInput{
		ClusterName:   awsv2.String(clusterName),
		NodegroupName: awsv2.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("eks: describe node group %q: %w", name, err)
	}
	return nodeGroupOutputs(out.Nodegroup), nil
}

func (d *nodeGroupDriver) read(ctx context.Context, applied provider.Applied) (map[string]interface{}, error) {
	return d.describe(ctx, stringProp(applied.Entry.Parameters, "clusterName"), appliedName(applied))
}

func (d *nodeGroupDriver) delete(ctx context.Context, applied provider.Applied) error {
	name := appliedName(applied)
	_, err := d.client.DeleteNodegroup(ctx, &eks.DeleteNodegroupInput{
		ClusterName:   awsv2.String(stringProp(applied.Entry.Parameters, "clusterName")),
		NodegroupName: awsv2.String(name),
	})
	if err != nil {
		return fmt.Errorf("eks: delete node group %q: %w", name, err)
	}
	return nil
}

// scalingConfig defaults the desired size to the minimum size.
func scalingConfig(params map[string]interface{}) *ekstypes.NodegroupScalingConfig {
	minSize := intProp(params, "minSize", DefaultMinSize)
	return &ekstypes.NodegroupScalingConfig{
		MinSize:     awsv2.Int32(int32(minSize)),
		MaxSize:     int32Prop(params, "maxSize", DefaultMaxSize),
		DesiredSize: int32Prop(params, "desiredSize", minSize),
	}
}

func nodeGroupOutputs(ng *ekstypes.Nodegroup) map[string]interface{} {
	if ng == nil {
		return nil
	}
	return map[string]interface{}{
		"name":   awsv2.ToString(ng.NodegroupName),
		"arn":    awsv2.ToString(ng.NodegroupArn),
		"status": string(ng.Status),
	}
}
