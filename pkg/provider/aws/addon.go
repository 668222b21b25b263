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

// addonDriver manages EKS addons, e.g aws-efs-csi-driver. Unlike other
// resources, the name of an addon is the addon itself and is never
// derived from the resource id.
type addonDriver struct {
	client EKSClient
}

func addonName(params map[string]interface{}) (string, error) {
	name := stringProp(params, "name")
	if name == "" {
		return "", fmt.Errorf("eks: addon name is required")
	}
	return name, nil
}

func (d *addonDriver) create(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	name, err := addonName(desired.Parameters)
	if err != nil {
		return nil, err
	}
	input := &eks.CreateAddonInput{
		ClusterName:      awsv2.String(stringProp(desired.Parameters, "clusterName")),
		AddonName:        awsv2.String(name),
		ResolveConflicts: ekstypes.ResolveConflictsOverwrite,
		Tags:             tags(desired),
	}
	if version := stringProp(desired.Parameters, "version"); version != "" {
		input.AddonVersion = awsv2.String(version)
	}
	if role := stringProp(desired.Parameters, "serviceAccountRoleArn"); role != "" {
		input.ServiceAccountRoleArn = awsv2.String(role)
	}

	out, err := d.client.CreateAddon(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("eks: create addon %q: %w", name, createConflict(err))
	}
	return addonOutputs(out.Addon), nil
}

func (d *addonDriver) update(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	name, err := addonName(desired.Parameters)
	if err != nil {
		return nil, err
	}
	clusterName := stringProp(desired.Parameters, "clusterName")
	input := &eks.UpdateAddonInput{
		ClusterName:      awsv2.String(clusterName),
		AddonName:        awsv2.String(name),
		ResolveConflicts: ekstypes.ResolveConflictsOverwrite,
	}
	if version := stringProp(desired.Parameters, "version"); version != "" {
		input.AddonVersion = awsv2.String(version)
	}
	if role := stringProp(desired.Parameters, "serviceAccountRoleArn"); role != "" {
		input.ServiceAccountRoleArn = awsv2.String(role)
	}
	if _, err := d.client.UpdateAddon(ctx, input); err != nil {
		return nil, fmt.Errorf("eks: update addon %q: %w", name, err)
	}
	return d.describe(ctx, clusterName, name)
}

func (d *addonDriver) describe(ctx context.Context, clusterName, name string) (map[string]interface{}, error) {
	out, err := d.client.DescribeAddon(ctx, &eks.DescribeAddonInput{
		ClusterName: awsv2.String(clusterName),
		AddonName:   awsv2.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("eks: describe addon %q: %w", name, err)
	}
	return addonOutputs(out.Addon), nil
}

func (d *addonDriver) read(ctx context.Context, applied provider.Applied) (map[string]interface{}, error) {
	name, err := addonName(applied.Entry.Parameters)
	if err != nil {
		return nil, err
	}
	return d.describe(ctx, stringProp(applied.Entry.Parameters, "clusterName"), name)
}

func (d *addonDriver) delete(ctx context.Context, applied provider.Applied) error {
	name, err := addonName(applied.Entry.Parameters)
	if err != nil {
		return err
	}
	_, err = d.client.DeleteAddon(ctx, &eks.DeleteAddonInput{
		ClusterName: awsv2.String(stringProp(applied.Entry.Parameters, "clusterName")),
		AddonName:   awsv2.String(name),
	})
	if err != nil {
		return fmt.Errorf("eks: delete addon %q: %w", name, err)
	}
	return nil
}

func addonOutputs(addon *ekstypes.Addon) map[string]interface{} {
	if addon == nil {
		return nil
	}
	return map[string]interface{}{
		"name":    awsv2.ToString(addon.AddonName),
		"arn":     awsv2.ToString(addon.AddonArn),
		"version": awsv2.ToString(addon.AddonVersion),
		"status":  string(addon.Status),
	}
}
