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
	"errors"
	"fmt"
	"maps"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/kro-run/stackgraph/pkg/provider"
)

// DefaultCIDRBlock is the CIDR block of networks that don't set one.
const DefaultCIDRBlock = "10.0.0.0/16"

// EC2Client defines the EC2 operations for networks and volumes.
type EC2Client interface {
	CreateVpc(ctx context.Context, params *ec2.CreateVpcInput, optFns ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error)
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DeleteVpc(ctx context.Context, params *ec2.DeleteVpcInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error)
	CreateSubnet(ctx context.Context, params *ec2.CreateSubnetInput, optFns ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error)
	DeleteSubnet(ctx context.Context, params *ec2.DeleteSubnetInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	DeleteSecurityGroup(ctx context.Context, params *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error)
}

// networkDriver manages VPCs and their subnets. Networks are never
// updated in place: a changed CIDR block replaces them.
type networkDriver struct {
	client EC2Client
	region string
}

func (d *networkDriver) create(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	name := desiredName(desired)
	resourceTags := tags(desired)
	resourceTags["Name"] = name

	out, err := d.client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         awsv2.String(stringPropDefault(desired.Parameters, "cidrBlock", DefaultCIDRBlock)),
		TagSpecifications: tagSpecifications(ec2types.ResourceTypeVpc, resourceTags),
	})
	if err != nil {
		return nil, fmt.Errorf("vpc: create %q: %w", name, err)
	}
	vpc := out.Vpc

	var subnetIDs []string
	subnets, _ := desired.Parameters["subnets"].([]interface{})
	for i, s := range subnets {
		subnet, _ := s.(map[string]interface{})
		input := &ec2.CreateSubnetInput{
			VpcId:             vpc.VpcId,
			CidrBlock:         awsv2.String(stringProp(subnet, "cidrBlock")),
			TagSpecifications: tagSpecifications(ec2types.ResourceTypeSubnet, withName(resourceTags, fmt.Sprintf("%s-%d", name, i))),
		}
		if az := stringProp(subnet, "availabilityZone"); az != "" {
			input.AvailabilityZone = awsv2.String(az)
		}
		subnetOut, err := d.client.CreateSubnet(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("vpc: create subnet %d of %q: %w", i, name, err)
		}
		subnetIDs = append(subnetIDs, awsv2.ToString(subnetOut.Subnet.SubnetId))
	}
	return d.outputs(name, vpc, subnetIDs), nil
}

// update only refreshes the tags, every other parameter is immutable.
func (d *networkDriver) update(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	if desired.Previous == nil {
		return nil, errors.New("vpc: can't adopt a network, it has no unique name")
	}
	applied := provider.Applied{NodeID: desired.NodeID, Stack: desired.Stack, Entry: desired.Previous}
	vpcID, err := outputID(applied, "vpcId")
	if err != nil {
		return nil, err
	}
	name := desiredName(desired)
	resources := append([]string{vpcID}, stringSliceProp(desired.Previous.Outputs, "subnetIds")...)
	_, err = d.client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: resources,
		Tags:      ec2Tags(withName(tags(desired), name)),
	})
	if err != nil {
		return nil, fmt.Errorf("vpc: tag %q: %w", name, err)
	}
	return d.read(ctx, applied)
}

func (d *networkDriver) read(ctx context.Context, applied provider.Applied) (map[string]interface{}, error) {
	vpcID, err := outputID(applied, "vpcId")
	if err != nil {
		return nil, err
	}
	out, err := d.client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}})
	if err != nil {
		return nil, fmt.Errorf("vpc: describe %q: %w", vpcID, err)
	}
	if len(out.Vpcs) == 0 {
		return nil, fmt.Errorf("vpc: %q not found", vpcID)
	}
	return d.outputs(appliedName(applied), &out.Vpcs[0], stringSliceProp(applied.Entry.Outputs, "subnetIds")), nil
}

// delete removes the subnets first, a VPC can't be deleted while it has
// any.
func (d *networkDriver) delete(ctx context.Context, applied provider.Applied) error {
	vpcID, err := outputID(applied, "vpcId")
	if err != nil {
		return err
	}
	for _, subnetID := range stringSliceProp(applied.Entry.Outputs, "subnetIds") {
		_, err := d.client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: awsv2.String(subnetID)})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("vpc: delete subnet %q: %w", subnetID, err)
		}
	}
	_, err = d.client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: awsv2.String(vpcID)})
	if err != nil {
		return fmt.Errorf("vpc: delete %q: %w", vpcID, err)
	}
	return nil
}

func (d *networkDriver) outputs(name string, vpc *ec2types.Vpc, subnetIDs []string) map[string]interface{} {
	vpcID := awsv2.ToString(vpc.VpcId)
	subnets := make([]interface{}, 0, len(subnetIDs))
	for _, id := range subnetIDs {
		subnets = append(subnets, id)
	}
	return map[string]interface{}{
		"name":      name,
		"vpcId":     vpcID,
		"cidrBlock": awsv2.ToString(vpc.CidrBlock),
		"subnetIds": subnets,
		"state":     string(vpc.State),
		"arn":       fmt.Sprintf("arn:aws:ec2:%s:%s:vpc/%s", d.region, awsv2.ToString(vpc.OwnerId), vpcID),
	}
}

func withName(t map[string]string, name string) map[string]string {
	out := maps.Clone(t)
	if out == nil {
		out = map[string]string{}
	}
	out["Name"] = name
	return out
}

func ec2Tags(t map[string]string) []ec2types.Tag {
	out := make([]ec2types.Tag, 0, len(t))
	for _, k := range sortedKeys(t) {
		out = append(out, ec2types.Tag{Key: awsv2.String(k), Value: awsv2.String(t[k])})
	}
	return out
}

func tagSpecifications(resourceType ec2types.ResourceType, t map[string]string) []ec2types.TagSpecification {
	return []ec2types.TagSpecification{{ResourceType: resourceType, Tags: ec2Tags(t)}}
}
