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
	"slices"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"

	"github.com/kro-run/stackgraph/pkg/provider"
	"github.com/kro-run/stackgraph/pkg/requeue"
)

const (
	// nfsPort is the port mount targets accept NFS traffic on.
	nfsPort = 2049

	DefaultPerformanceMode = efstypes.PerformanceModeGeneralPurpose
	DefaultThroughputMode  = efstypes.ThroughputModeBursting
	DefaultTransitionToIA  = efstypes.TransitionToIARulesAfter14Days
	// DefaultTransitionToPrimary moves files back out of infrequent
	// access on their first read.
	DefaultTransitionToPrimary = efstypes.TransitionToPrimaryStorageClassRulesAfter1Access

	fileSystemPollDelay = 10 * time.Second
)

// EFSClient defines the EFS operations for shared storage volumes.
type EFSClient interface {
	CreateFileSystem(ctx context.Context, params *efs.CreateFileSystemInput, optFns ...func(*efs.Options)) (*efs.CreateFileSystemOutput, error)
	DescribeFileSystems(ctx context.Context, params *efs.DescribeFileSystemsInput, optFns ...func(*efs.Options)) (*efs.DescribeFileSystemsOutput, error)
	UpdateFileSystem(ctx context.Context, params *efs.UpdateFileSystemInput, optFns ...func(*efs.Options)) (*efs.UpdateFileSystemOutput, error)
	DeleteFileSystem(ctx context.Context, params *efs.DeleteFileSystemInput, optFns ...func(*efs.Options)) (*efs.DeleteFileSystemOutput, error)
	PutLifecycleConfiguration(ctx context.Context, params *efs.PutLifecycleConfigurationInput, optFns ...func(*efs.Options)) (*efs.PutLifecycleConfigurationOutput, error)
	PutBackupPolicy(ctx context.Context, params *efs.PutBackupPolicyInput, optFns ...func(*efs.Options)) (*efs.PutBackupPolicyOutput, error)
	CreateMountTarget(ctx context.Context, params *efs.CreateMountTargetInput, optFns ...func(*efs.Options)) (*efs.CreateMountTargetOutput, error)
	DescribeMountTargets(ctx context.Context, params *efs.DescribeMountTargetsInput, optFns ...func(*efs.Options)) (*efs.DescribeMountTargetsOutput, error)
	DeleteMountTarget(ctx context.Context, params *efs.DeleteMountTargetInput, optFns ...func(*efs.Options)) (*efs.DeleteMountTargetOutput, error)
	TagResource(ctx context.Context, params *efs.TagResourceInput, optFns ...func(*efs.Options)) (*efs.TagResourceOutput, error)
}

// volumeDriver manages shared EFS file systems: an NFS security group,
// the file system with its lifecycle and backup policies, and one mount
// target per subnet.
//
//	parameters:
//	  vpcId: ${Vpc.vpcId}
//	  subnetIds: ${Vpc.subnetIds}
//	  ingressCidrs: ["${Vpc.cidrBlock}", "172.20.0.0/16"]
//
// Every step looks up what already exists first, so an apply that was
// interrupted, e.g while the file system was still creating, resumes
// where it stopped when it is retried.
type volumeDriver struct {
	ec2 EC2Client
	efs EFSClient
}

func (d *volumeDriver) create(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	return d.ensure(ctx, desired)
}

func (d *volumeDriver) update(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	outputs, err := d.ensure(ctx, desired)
	if err != nil {
		return nil, err
	}
	fsID, _ := outputs["fileSystemId"].(string)

	if desired.Previous != nil && changed(desired, "throughputMode") {
		_, err := d.efs.UpdateFileSystem(ctx, &efs.UpdateFileSystemInput{
			FileSystemId:   awsv2.String(fsID),
			ThroughputMode: throughputMode(desired.Parameters),
		})
		if err != nil {
			return nil, fmt.Errorf("efs: update %q: %w", fsID, err)
		}
	}

	// Mount targets of subnets that were removed.
	wanted := stringSliceProp(desired.Parameters, "subnetIds")
	targets, err := d.mountTargets(ctx, fsID)
	if err != nil {
		return nil, err
	}
	ids := make([]interface{}, 0, len(targets))
	for _, mt := range targets {
		if slices.Contains(wanted, awsv2.ToString(mt.SubnetId)) {
			ids = append(ids, awsv2.ToString(mt.MountTargetId))
			continue
		}
		if err := d.deleteMountTarget(ctx, mt); err != nil {
			return nil, err
		}
	}
	outputs["mountTargetIds"] = ids
	return outputs, nil
}

// ensure converges the security group, the file system, its policies and
// its mount targets, creating what is missing.
func (d *volumeDriver) ensure(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	name := desiredName(desired)
	vpcID := stringProp(desired.Parameters, "vpcId")
	if vpcID == "" {
		return nil, fmt.Errorf("efs: %q: vpcId is required", name)
	}
	resourceTags := withName(tags(desired), name)

	groupID, err := d.ensureSecurityGroup(ctx, name, vpcID, resourceTags)
	if err != nil {
		return nil, err
	}
	if err := d.allowNFS(ctx, groupID, stringSliceProp(desired.Parameters, "ingressCidrs")); err != nil {
		return nil, err
	}

	fs, err := d.ensureFileSystem(ctx, name, desired.Parameters, resourceTags)
	if err != nil {
		return nil, err
	}
	fsID := awsv2.ToString(fs.FileSystemId)

	if err := d.putPolicies(ctx, fsID, desired.Parameters); err != nil {
		return nil, err
	}

	subnets := stringSliceProp(desired.Parameters, "subnetIds")
	if len(subnets) > 0 && fs.LifeCycleState != efstypes.LifeCycleStateAvailable {
		// Mount targets can only be added to an available file system.
		return nil, requeue.NeededAfter(
			fmt.Errorf("efs: file system %q is %s", fsID, fs.LifeCycleState), fileSystemPollDelay)
	}
	targets, err := d.mountTargets(ctx, fsID)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(targets))
	for _, mt := range targets {
		existing[awsv2.ToString(mt.SubnetId)] = true
	}
	for _, subnetID := range subnets {
		if existing[subnetID] {
			continue
		}
		_, err := d.efs.CreateMountTarget(ctx, &efs.CreateMountTargetInput{
			FileSystemId:   awsv2.String(fsID),
			SubnetId:       awsv2.String(subnetID),
			SecurityGroups: []string{groupID},
		})
		if err != nil {
			return nil, fmt.Errorf("efs: create mount target of %q in %q: %w", fsID, subnetID, err)
		}
	}

	targets, err = d.mountTargets(ctx, fsID)
	if err != nil {
		return nil, err
	}
	return volumeOutputs(name, fs, groupID, targets), nil
}

func (d *volumeDriver) ensureSecurityGroup(ctx context.Context, name, vpcID string, t map[string]string) (string, error) {
	groupName := name + "-nfs"
	out, err := d.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: awsv2.String("group-name"), Values: []string{groupName}},
			{Name: awsv2.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("efs: describe security group %q: %w", groupName, err)
	}
	if len(out.SecurityGroups) > 0 {
		return awsv2.ToString(out.SecurityGroups[0].GroupId), nil
	}

	created, err := d.ec2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         awsv2.String(groupName),
		Description:       awsv2.String("NFS access to the " + name + " file system"),
		VpcId:             awsv2.String(vpcID),
		TagSpecifications: tagSpecifications(ec2types.ResourceTypeSecurityGroup, withName(t, groupName)),
	})
	if err != nil {
		return "", fmt.Errorf("efs: create security group %q: %w", groupName, err)
	}
	return awsv2.ToString(created.GroupId), nil
}

// allowNFS opens the NFS port to each CIDR. Rules that are already there
// are left alone.
func (d *volumeDriver) allowNFS(ctx context.Context, groupID string, cidrs []string) error {
	for _, cidr := range cidrs {
		_, err := d.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId: awsv2.String(groupID),
			IpPermissions: []ec2types.IpPermission{{
				IpProtocol: awsv2.String("tcp"),
				FromPort:   awsv2.Int32(nfsPort),
				ToPort:     awsv2.Int32(nfsPort),
				IpRanges: []ec2types.IpRange{{
					CidrIp:      awsv2.String(cidr),
					Description: awsv2.String("NFS from " + cidr),
				}},
			}},
		})
		if err != nil && errorCode(err) != "InvalidPermission.Duplicate" {
			return fmt.Errorf("efs: allow NFS from %s in %q: %w", cidr, groupID, err)
		}
	}
	return nil
}

// ensureFileSystem finds the file system by its creation token, the
// resource name, and creates it when there is none.
func (d *volumeDriver) ensureFileSystem(ctx context.Context, name string, params map[string]interface{}, t map[string]string) (*efstypes.FileSystemDescription, error) {
	out, err := d.efs.DescribeFileSystems(ctx, &efs.DescribeFileSystemsInput{CreationToken: awsv2.String(name)})
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("efs: describe %q: %w", name, err)
	}
	if out != nil && len(out.FileSystems) > 0 {
		return &out.FileSystems[0], nil
	}

	created, err := d.efs.CreateFileSystem(ctx, &efs.CreateFileSystemInput{
		CreationToken:   awsv2.String(name),
		Encrypted:       awsv2.Bool(boolProp(params, "encrypted", true)),
		PerformanceMode: efstypes.PerformanceMode(stringPropDefault(params, "performanceMode", string(DefaultPerformanceMode))),
		ThroughputMode:  throughputMode(params),
		Backup:          awsv2.Bool(boolProp(params, "automaticBackups", false)),
		Tags:            efsTags(t),
	})
	if err != nil {
		return nil, fmt.Errorf("efs: create %q: %w", name, err)
	}
	return &efstypes.FileSystemDescription{
		FileSystemId:   created.FileSystemId,
		FileSystemArn:  created.FileSystemArn,
		CreationToken:  created.CreationToken,
		LifeCycleState: created.LifeCycleState,
		Name:           created.Name,
	}, nil
}

// putPolicies sets the lifecycle policy, which moves idle files to
// infrequent access and back on access, and the backup policy.
func (d *volumeDriver) putPolicies(ctx context.Context, fsID string, params map[string]interface{}) error {
	_, err := d.efs.PutLifecycleConfiguration(ctx, &efs.PutLifecycleConfigurationInput{
		FileSystemId: awsv2.String(fsID),
		LifecyclePolicies: []efstypes.LifecyclePolicy{
			{TransitionToIA: efstypes.TransitionToIARules(
				stringPropDefault(params, "transitionToIA", string(DefaultTransitionToIA)))},
			{TransitionToPrimaryStorageClass: efstypes.TransitionToPrimaryStorageClassRules(
				stringPropDefault(params, "transitionToPrimaryStorageClass", string(DefaultTransitionToPrimary)))},
		},
	})
	if err != nil {
		return fmt.Errorf("efs: put lifecycle configuration of %q: %w", fsID, err)
	}

	status := efstypes.StatusDisabled
	if boolProp(params, "automaticBackups", false) {
		status = efstypes.StatusEnabled
	}
	_, err = d.efs.PutBackupPolicy(ctx, &efs.PutBackupPolicyInput{
		FileSystemId: awsv2.String(fsID),
		BackupPolicy: &efstypes.BackupPolicy{Status: status},
	})
	if err != nil {
		return fmt.Errorf("efs: put backup policy of %q: %w", fsID, err)
	}
	return nil
}

func (d *volumeDriver) mountTargets(ctx context.Context, fsID string) ([]efstypes.MountTargetDescription, error) {
	out, err := d.efs.DescribeMountTargets(ctx, &efs.DescribeMountTargetsInput{FileSystemId: awsv2.String(fsID)})
	if err != nil {
		return nil, fmt.Errorf("efs: describe mount targets of %q: %w", fsID, err)
	}
	return out.MountTargets, nil
}

func (d *volumeDriver) deleteMountTarget(ctx context.Context, mt efstypes.MountTargetDescription) error {
	_, err := d.efs.DeleteMountTarget(ctx, &efs.DeleteMountTargetInput{MountTargetId: mt.MountTargetId})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("efs: delete mount target %q: %w", awsv2.ToString(mt.MountTargetId), err)
	}
	return nil
}

func (d *volumeDriver) read(ctx context.Context, applied provider.Applied) (map[string]interface{}, error) {
	fsID, err := outputID(applied, "fileSystemId")
	if err != nil {
		return nil, err
	}
	out, err := d.efs.DescribeFileSystems(ctx, &efs.DescribeFileSystemsInput{FileSystemId: awsv2.String(fsID)})
	if err != nil {
		return nil, fmt.Errorf("efs: describe %q: %w", fsID, err)
	}
	if len(out.FileSystems) == 0 {
		return nil, fmt.Errorf("efs: %q not found", fsID)
	}
	targets, err := d.mountTargets(ctx, fsID)
	if err != nil {
		return nil, err
	}
	return volumeOutputs(appliedName(applied), &out.FileSystems[0], stringProp(applied.Entry.Outputs, "securityGroupId"), targets), nil
}

// delete removes the mount targets, then the file system and its security
// group. Both refuse to go while mount targets are still being deleted;
// those errors are retried.
func (d *volumeDriver) delete(ctx context.Context, applied provider.Applied) error {
	fsID, err := outputID(applied, "fileSystemId")
	if err != nil {
		return err
	}
	targets, err := d.mountTargets(ctx, fsID)
	if err != nil && !isNotFound(err) {
		return err
	}
	for _, mt := range targets {
		if err := d.deleteMountTarget(ctx, mt); err != nil {
			return err
		}
	}

	_, err = d.efs.DeleteFileSystem(ctx, &efs.DeleteFileSystemInput{FileSystemId: awsv2.String(fsID)})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("efs: delete %q: %w", fsID, err)
	}

	if groupID := stringProp(applied.Entry.Outputs, "securityGroupId"); groupID != "" {
		_, err := d.ec2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: awsv2.String(groupID)})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("efs: delete security group %q: %w", groupID, err)
		}
	}
	return nil
}

func throughputMode(params map[string]interface{}) efstypes.ThroughputMode {
	return efstypes.ThroughputMode(stringPropDefault(params, "throughputMode", string(DefaultThroughputMode)))
}

func efsTags(t map[string]string) []efstypes.Tag {
	out := make([]efstypes.Tag, 0, len(t))
	for _, k := range sortedKeys(t) {
		out = append(out, efstypes.Tag{Key: awsv2.String(k), Value: awsv2.String(t[k])})
	}
	return out
}

func volumeOutputs(name string, fs *efstypes.FileSystemDescription, groupID string, targets []efstypes.MountTargetDescription) map[string]interface{} {
	ids := make([]interface{}, 0, len(targets))
	for _, mt := range targets {
		ids = append(ids, awsv2.ToString(mt.MountTargetId))
	}
	return map[string]interface{}{
		"name":            name,
		"fileSystemId":    awsv2.ToString(fs.FileSystemId),
		"arn":             awsv2.ToString(fs.FileSystemArn),
		"state":           string(fs.LifeCycleState),
		"securityGroupId": groupID,
		"mountTargetIds":  ids,
	}
}
