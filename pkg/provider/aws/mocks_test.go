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
	"maps"
	"slices"
	"strings"
	"sync"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// recorder records the operations called on a mock client.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type mockEC2Client struct {
	recorder
	createVpcInput *ec2.CreateVpcInput
	subnets        int
	deleteVpcErr   error
	// securityGroup is the id of an existing security group.
	securityGroup string
	ingress       []string
}

func (m *mockEC2Client) CreateVpc(_ context.Context, params *ec2.CreateVpcInput, _ ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error) {
	m.record("CreateVpc")
	m.createVpcInput = params
	return &ec2.CreateVpcOutput{Vpc: &ec2types.Vpc{
		VpcId:     awsv2.String("vpc-123"),
		CidrBlock: params.CidrBlock,
		OwnerId:   awsv2.String("123456789012"),
		State:     ec2types.VpcStatePending,
	}}, nil
}

func (m *mockEC2Client) DescribeVpcs(_ context.Context, params *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	m.record("DescribeVpcs")
	return &ec2.DescribeVpcsOutput{Vpcs: []ec2types.Vpc{{
		VpcId:     awsv2.String(params.VpcIds[0]),
		CidrBlock: awsv2.String("10.0.0.0/16"),
		OwnerId:   awsv2.String("123456789012"),
		State:     ec2types.VpcStateAvailable,
	}}}, nil
}

func (m *mockEC2Client) DeleteVpc(_ context.Context, params *ec2.DeleteVpcInput, _ ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	m.record("DeleteVpc " + awsv2.ToString(params.VpcId))
	return &ec2.DeleteVpcOutput{}, m.deleteVpcErr
}

func (m *mockEC2Client) CreateSubnet(_ context.Context, params *ec2.CreateSubnetInput, _ ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error) {
	m.record("CreateSubnet " + awsv2.ToString(params.CidrBlock))
	m.subnets++
	return &ec2.CreateSubnetOutput{Subnet: &ec2types.Subnet{
		SubnetId: awsv2.String(fmt.Sprintf("subnet-%d", m.subnets)),
	}}, nil
}

func (m *mockEC2Client) DeleteSubnet(_ context.Context, params *ec2.DeleteSubnetInput, _ ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error) {
	m.record("DeleteSubnet " + awsv2.ToString(params.SubnetId))
	return &ec2.DeleteSubnetOutput{}, nil
}

func (m *mockEC2Client) CreateTags(_ context.Context, _ *ec2.CreateTagsInput, _ ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	m.record("CreateTags")
	return &ec2.CreateTagsOutput{}, nil
}

func (m *mockEC2Client) CreateSecurityGroup(_ context.Context, params *ec2.CreateSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	m.record("CreateSecurityGroup " + awsv2.ToString(params.GroupName))
	m.securityGroup = "sg-nfs"
	return &ec2.CreateSecurityGroupOutput{GroupId: awsv2.String(m.securityGroup)}, nil
}

func (m *mockEC2Client) DescribeSecurityGroups(_ context.Context, _ *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	m.record("DescribeSecurityGroups")
	out := &ec2.DescribeSecurityGroupsOutput{}
	if m.securityGroup != "" {
		out.SecurityGroups = []ec2types.SecurityGroup{{GroupId: awsv2.String(m.securityGroup)}}
	}
	return out, nil
}

func (m *mockEC2Client) AuthorizeSecurityGroupIngress(_ context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	perm := params.IpPermissions[0]
	rule := fmt.Sprintf("%s/%d %s", awsv2.ToString(perm.IpProtocol), awsv2.ToInt32(perm.FromPort), awsv2.ToString(perm.IpRanges[0].CidrIp))
	m.record("AuthorizeSecurityGroupIngress")
	if slices.Contains(m.ingress, rule) {
		return nil, &smithy.GenericAPIError{Code: "InvalidPermission.Duplicate", Message: "rule exists"}
	}
	m.ingress = append(m.ingress, rule)
	return &ec2.AuthorizeSecurityGroupIngressOutput{}, nil
}

func (m *mockEC2Client) DeleteSecurityGroup(_ context.Context, params *ec2.DeleteSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error) {
	m.record("DeleteSecurityGroup " + awsv2.ToString(params.GroupId))
	return &ec2.DeleteSecurityGroupOutput{}, nil
}

type mockEFSClient struct {
	recorder
	createInput  *efs.CreateFileSystemInput
	updateInput  *efs.UpdateFileSystemInput
	lifecycle    *efs.PutLifecycleConfigurationInput
	backup       *efs.PutBackupPolicyInput
	fileSystem   *efstypes.FileSystemDescription
	mountTargets []efstypes.MountTargetDescription
	// creating leaves new file systems in the creating state.
	creating bool
}

func (m *mockEFSClient) CreateFileSystem(_ context.Context, params *efs.CreateFileSystemInput, _ ...func(*efs.Options)) (*efs.CreateFileSystemOutput, error) {
	m.record("CreateFileSystem")
	m.createInput = params
	state := efstypes.LifeCycleStateAvailable
	if m.creating {
		state = efstypes.LifeCycleStateCreating
	}
	m.fileSystem = &efstypes.FileSystemDescription{
		FileSystemId:   awsv2.String("fs-123"),
		FileSystemArn:  awsv2.String("arn:aws:elasticfilesystem:us-west-2:123456789012:file-system/fs-123"),
		CreationToken:  params.CreationToken,
		LifeCycleState: state,
		ThroughputMode: params.ThroughputMode,
	}
	return &efs.CreateFileSystemOutput{
		FileSystemId:   m.fileSystem.FileSystemId,
		FileSystemArn:  m.fileSystem.FileSystemArn,
		CreationToken:  m.fileSystem.CreationToken,
		LifeCycleState: m.fileSystem.LifeCycleState,
		ThroughputMode: m.fileSystem.ThroughputMode,
	}, nil
}

func (m *mockEFSClient) DescribeFileSystems(_ context.Context, params *efs.DescribeFileSystemsInput, _ ...func(*efs.Options)) (*efs.DescribeFileSystemsOutput, error) {
	m.record("DescribeFileSystems")
	out := &efs.DescribeFileSystemsOutput{}
	if m.fileSystem != nil {
		out.FileSystems = []efstypes.FileSystemDescription{*m.fileSystem}
	} else if params.FileSystemId != nil {
		return nil, &smithy.GenericAPIError{Code: "FileSystemNotFound", Message: "gone"}
	}
	return out, nil
}

func (m *mockEFSClient) UpdateFileSystem(_ context.Context, params *efs.UpdateFileSystemInput, _ ...func(*efs.Options)) (*efs.UpdateFileSystemOutput, error) {
	m.record("UpdateFileSystem " + string(params.ThroughputMode))
	m.updateInput = params
	return &efs.UpdateFileSystemOutput{}, nil
}

func (m *mockEFSClient) DeleteFileSystem(_ context.Context, params *efs.DeleteFileSystemInput, _ ...func(*efs.Options)) (*efs.DeleteFileSystemOutput, error) {
	m.record("DeleteFileSystem " + awsv2.ToString(params.FileSystemId))
	if len(m.mountTargets) > 0 {
		return nil, &smithy.GenericAPIError{Code: "FileSystemInUse", Message: "mount targets remain"}
	}
	m.fileSystem = nil
	return &efs.DeleteFileSystemOutput{}, nil
}

func (m *mockEFSClient) PutLifecycleConfiguration(_ context.Context, params *efs.PutLifecycleConfigurationInput, _ ...func(*efs.Options)) (*efs.PutLifecycleConfigurationOutput, error) {
	m.record("PutLifecycleConfiguration")
	m.lifecycle = params
	return &efs.PutLifecycleConfigurationOutput{LifecyclePolicies: params.LifecyclePolicies}, nil
}

func (m *mockEFSClient) PutBackupPolicy(_ context.Context, params *efs.PutBackupPolicyInput, _ ...func(*efs.Options)) (*efs.PutBackupPolicyOutput, error) {
	m.record("PutBackupPolicy")
	m.backup = params
	return &efs.PutBackupPolicyOutput{BackupPolicy: params.BackupPolicy}, nil
}

func (m *mockEFSClient) CreateMountTarget(_ context.Context, params *efs.CreateMountTargetInput, _ ...func(*efs.Options)) (*efs.CreateMountTargetOutput, error) {
	subnetID := awsv2.ToString(params.SubnetId)
	m.record("CreateMountTarget " + subnetID + " " + strings.Join(params.SecurityGroups, ","))
	mt := efstypes.MountTargetDescription{
		MountTargetId:  awsv2.String("fsmt-" + strings.TrimPrefix(subnetID, "subnet-")),
		FileSystemId:   params.FileSystemId,
		SubnetId:       params.SubnetId,
		LifeCycleState: efstypes.LifeCycleStateCreating,
	}
	m.mountTargets = append(m.mountTargets, mt)
	return &efs.CreateMountTargetOutput{MountTargetId: mt.MountTargetId, SubnetId: mt.SubnetId}, nil
}

func (m *mockEFSClient) DescribeMountTargets(_ context.Context, _ *efs.DescribeMountTargetsInput, _ ...func(*efs.Options)) (*efs.DescribeMountTargetsOutput, error) {
	m.record("DescribeMountTargets")
	if m.fileSystem == nil {
		return nil, &smithy.GenericAPIError{Code: "FileSystemNotFound", Message: "gone"}
	}
	return &efs.DescribeMountTargetsOutput{MountTargets: slices.Clone(m.mountTargets)}, nil
}

func (m *mockEFSClient) DeleteMountTarget(_ context.Context, params *efs.DeleteMountTargetInput, _ ...func(*efs.Options)) (*efs.DeleteMountTargetOutput, error) {
	id := awsv2.ToString(params.MountTargetId)
	m.record("DeleteMountTarget " + id)
	m.mountTargets = slices.DeleteFunc(m.mountTargets, func(mt efstypes.MountTargetDescription) bool {
		return awsv2.ToString(mt.MountTargetId) == id
	})
	return &efs.DeleteMountTargetOutput{}, nil
}

func (m *mockEFSClient) TagResource(_ context.Context, _ *efs.TagResourceInput, _ ...func(*efs.Options)) (*efs.TagResourceOutput, error) {
	m.record("TagResource")
	return &efs.TagResourceOutput{}, nil
}

type mockEKSClient struct {
	recorder
	createClusterErr   error
	createClusterInput *eks.CreateClusterInput
	nodegroupInput     *eks.CreateNodegroupInput
	addonInput         *eks.CreateAddonInput
	version            string
}

func (m *mockEKSClient) cluster(name string) *ekstypes.Cluster {
	version := m.version
	if version == "" {
		version = "1.31"
	}
	return &ekstypes.Cluster{
		Name:     awsv2.String(name),
		Arn:      awsv2.String("arn:aws:eks:us-west-2:123456789012:cluster/" + name),
		Version:  awsv2.String(version),
		Status:   ekstypes.ClusterStatusActive,
		Endpoint: awsv2.String("https://ABC.gr7.us-west-2.eks.amazonaws.com"),
		Identity: &ekstypes.Identity{Oidc: &ekstypes.OIDC{
			Issuer: awsv2.String("https://oidc.eks.us-west-2.amazonaws.com/id/ABC"),
		}},
		CertificateAuthority: &ekstypes.Certificate{Data: awsv2.String("LS0t")},
		ResourcesVpcConfig:   &ekstypes.VpcConfigResponse{ClusterSecurityGroupId: awsv2.String("sg-123")},
	}
}

func (m *mockEKSClient) CreateCluster(_ context.Context, params *eks.CreateClusterInput, _ ...func(*eks.Options)) (*eks.CreateClusterOutput, error) {
	m.record("CreateCluster")
	m.createClusterInput = params
	if m.createClusterErr != nil {
		return nil, m.createClusterErr
	}
	c := m.cluster(awsv2.ToString(params.Name))
	c.Status = ekstypes.ClusterStatusCreating
	return &eks.CreateClusterOutput{Cluster: c}, nil
}

func (m *mockEKSClient) DescribeCluster(_ context.Context, params *eks.DescribeClusterInput, _ ...func(*eks.Options)) (*eks.DescribeClusterOutput, error) {
	m.record("DescribeCluster")
	return &eks.DescribeClusterOutput{Cluster: m.cluster(awsv2.ToString(params.Name))}, nil
}

func (m *mockEKSClient) UpdateClusterVersion(_ context.Context, params *eks.UpdateClusterVersionInput, _ ...func(*eks.Options)) (*eks.UpdateClusterVersionOutput, error) {
	m.record("UpdateClusterVersion " + awsv2.ToString(params.Version))
	m.version = awsv2.ToString(params.Version)
	return &eks.UpdateClusterVersionOutput{}, nil
}

func (m *mockEKSClient) UpdateClusterConfig(_ context.Context, _ *eks.UpdateClusterConfigInput, _ ...func(*eks.Options)) (*eks.UpdateClusterConfigOutput, error) {
	m.record("UpdateClusterConfig")
	return &eks.UpdateClusterConfigOutput{}, nil
}

func (m *mockEKSClient) DeleteCluster(_ context.Context, params *eks.DeleteClusterInput, _ ...func(*eks.Options)) (*eks.DeleteClusterOutput, error) {
	m.record("DeleteCluster " + awsv2.ToString(params.Name))
	return &eks.DeleteClusterOutput{}, nil
}

func (m *mockEKSClient) TagResource(_ context.Context, _ *eks.TagResourceInput, _ ...func(*eks.Options)) (*eks.TagResourceOutput, error) {
	m.record("TagResource")
	return &eks.TagResourceOutput{}, nil
}

func (m *mockEKSClient) CreateNodegroup(_ context.Context, params *eks.CreateNodegroupInput, _ ...func(*eks.Options)) (*eks.CreateNodegroupOutput, error) {
	m.record("CreateNodegroup")
	m.nodegroupInput = params
	return &eks.CreateNodegroupOutput{Nodegroup: &ekstypes.Nodegroup{
		NodegroupName: params.NodegroupName,
		NodegroupArn:  awsv2.String("arn:aws:eks:us-west-2:123456789012:nodegroup/prod/" + awsv2.ToString(params.NodegroupName)),
		Status:        ekstypes.NodegroupStatusCreating,
	}}, nil
}

func (m *mockEKSClient) DescribeNodegroup(_ context.Context, params *eks.DescribeNodegroupInput, _ ...func(*eks.Options)) (*eks.DescribeNodegroupOutput, error) {
	m.record("DescribeNodegroup")
	return &eks.DescribeNodegroupOutput{Nodegroup: &ekstypes.Nodegroup{
		NodegroupName: params.NodegroupName,
		Status:        ekstypes.NodegroupStatusActive,
	}}, nil
}

func (m *mockEKSClient) UpdateNodegroupConfig(_ context.Context, _ *eks.UpdateNodegroupConfigInput, _ ...func(*eks.Options)) (*eks.UpdateNodegroupConfigOutput, error) {
	m.record("UpdateNodegroupConfig")
	return &eks.UpdateNodegroupConfigOutput{}, nil
}

func (m *mockEKSClient) DeleteNodegroup(_ context.Context, _ *eks.DeleteNodegroupInput, _ ...func(*eks.Options)) (*eks.DeleteNodegroupOutput, error) {
	m.record("DeleteNodegroup")
	return &eks.DeleteNodegroupOutput{}, nil
}

func (m *mockEKSClient) CreateAddon(_ context.Context, params *eks.CreateAddonInput, _ ...func(*eks.Options)) (*eks.CreateAddonOutput, error) {
	m.record("CreateAddon")
	m.addonInput = params
	return &eks.CreateAddonOutput{Addon: &ekstypes.Addon{
		AddonName:    params.AddonName,
		AddonArn:     awsv2.String("arn:aws:eks:us-west-2:123456789012:addon/prod/" + awsv2.ToString(params.AddonName)),
		AddonVersion: awsv2.String("v2.1.0-eksbuild.1"),
		Status:       ekstypes.AddonStatusCreating,
	}}, nil
}

func (m *mockEKSClient) DescribeAddon(_ context.Context, params *eks.DescribeAddonInput, _ ...func(*eks.Options)) (*eks.DescribeAddonOutput, error) {
	m.record("DescribeAddon")
	return &eks.DescribeAddonOutput{Addon: &ekstypes.Addon{
		AddonName: params.AddonName,
		Status:    ekstypes.AddonStatusActive,
	}}, nil
}

func (m *mockEKSClient) UpdateAddon(_ context.Context, _ *eks.UpdateAddonInput, _ ...func(*eks.Options)) (*eks.UpdateAddonOutput, error) {
	m.record("UpdateAddon")
	return &eks.UpdateAddonOutput{}, nil
}

func (m *mockEKSClient) DeleteAddon(_ context.Context, params *eks.DeleteAddonInput, _ ...func(*eks.Options)) (*eks.DeleteAddonOutput, error) {
	m.record("DeleteAddon " + awsv2.ToString(params.AddonName))
	return &eks.DeleteAddonOutput{}, nil
}

type mockIAMClient struct {
	recorder
	createRoleInput *iam.CreateRoleInput
	trustPolicy     string
	attached        []string
	inline          map[string]string
	deleteRoleErr   error
}

func (m *mockIAMClient) role(name string) *iamtypes.Role {
	return &iamtypes.Role{
		RoleName: awsv2.String(name),
		Arn:      awsv2.String("arn:aws:iam::123456789012:role/" + name),
	}
}

func (m *mockIAMClient) CreateRole(_ context.Context, params *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	m.record("CreateRole")
	m.createRoleInput = params
	m.trustPolicy = awsv2.ToString(params.AssumeRolePolicyDocument)
	return &iam.CreateRoleOutput{Role: m.role(awsv2.ToString(params.RoleName))}, nil
}

func (m *mockIAMClient) GetRole(_ context.Context, params *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	m.record("GetRole")
	return &iam.GetRoleOutput{Role: m.role(awsv2.ToString(params.RoleName))}, nil
}

func (m *mockIAMClient) UpdateAssumeRolePolicy(_ context.Context, params *iam.UpdateAssumeRolePolicyInput, _ ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error) {
	m.record("UpdateAssumeRolePolicy")
	m.trustPolicy = awsv2.ToString(params.PolicyDocument)
	return &iam.UpdateAssumeRolePolicyOutput{}, nil
}

func (m *mockIAMClient) TagRole(_ context.Context, _ *iam.TagRoleInput, _ ...func(*iam.Options)) (*iam.TagRoleOutput, error) {
	m.record("TagRole")
	return &iam.TagRoleOutput{}, nil
}

func (m *mockIAMClient) DeleteRole(_ context.Context, _ *iam.DeleteRoleInput, _ ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	m.record("DeleteRole")
	return &iam.DeleteRoleOutput{}, m.deleteRoleErr
}

func (m *mockIAMClient) AttachRolePolicy(_ context.Context, params *iam.AttachRolePolicyInput, _ ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	m.record("AttachRolePolicy " + awsv2.ToString(params.PolicyArn))
	m.attached = append(m.attached, awsv2.ToString(params.PolicyArn))
	return &iam.AttachRolePolicyOutput{}, nil
}

func (m *mockIAMClient) DetachRolePolicy(_ context.Context, params *iam.DetachRolePolicyInput, _ ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	m.record("DetachRolePolicy " + awsv2.ToString(params.PolicyArn))
	return &iam.DetachRolePolicyOutput{}, nil
}

func (m *mockIAMClient) ListAttachedRolePolicies(_ context.Context, _ *iam.ListAttachedRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error) {
	m.record("ListAttachedRolePolicies")
	out := &iam.ListAttachedRolePoliciesOutput{}
	for _, arn := range m.attached {
		out.AttachedPolicies = append(out.AttachedPolicies, iamtypes.AttachedPolicy{PolicyArn: awsv2.String(arn)})
	}
	return out, nil
}

func (m *mockIAMClient) PutRolePolicy(_ context.Context, params *iam.PutRolePolicyInput, _ ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	m.record("PutRolePolicy " + awsv2.ToString(params.PolicyName))
	if m.inline == nil {
		m.inline = make(map[string]string)
	}
	m.inline[awsv2.ToString(params.PolicyName)] = awsv2.ToString(params.PolicyDocument)
	return &iam.PutRolePolicyOutput{}, nil
}

func (m *mockIAMClient) DeleteRolePolicy(_ context.Context, params *iam.DeleteRolePolicyInput, _ ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error) {
	m.record("DeleteRolePolicy " + awsv2.ToString(params.PolicyName))
	delete(m.inline, awsv2.ToString(params.PolicyName))
	return &iam.DeleteRolePolicyOutput{}, nil
}

func (m *mockIAMClient) ListRolePolicies(_ context.Context, _ *iam.ListRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error) {
	m.record("ListRolePolicies")
	names := slices.Sorted(maps.Keys(m.inline))
	return &iam.ListRolePoliciesOutput{PolicyNames: names}, nil
}

type mockSTSClient struct {
	recorder
}

func (m *mockSTSClient) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	m.record("GetCallerIdentity")
	return &sts.GetCallerIdentityOutput{Account: awsv2.String("123456789012")}, nil
}

type mockRDSClient struct {
	recorder
	createInput *rds.CreateDBInstanceInput
	deleteInput *rds.DeleteDBInstanceInput
}

func (m *mockRDSClient) instance(id string) *rdstypes.DBInstance {
	return &rdstypes.DBInstance{
		DBInstanceIdentifier: awsv2.String(id),
		DBInstanceArn:        awsv2.String("arn:aws:rds:us-west-2:123456789012:db:" + id),
		DBInstanceStatus:     awsv2.String("available"),
		Endpoint: &rdstypes.Endpoint{
			Address: awsv2.String(id + ".abc.us-west-2.rds.amazonaws.com"),
			Port:    awsv2.Int32(5432),
		},
		MasterUserSecret: &rdstypes.MasterUserSecret{
			SecretArn: awsv2.String("arn:aws:secretsmanager:us-west-2:123456789012:secret:rds!db-abc"),
		},
	}
}

func (m *mockRDSClient) CreateDBInstance(_ context.Context, params *rds.CreateDBInstanceInput, _ ...func(*rds.Options)) (*rds.CreateDBInstanceOutput, error) {
	m.record("CreateDBInstance")
	m.createInput = params
	return &rds.CreateDBInstanceOutput{DBInstance: m.instance(awsv2.ToString(params.DBInstanceIdentifier))}, nil
}

func (m *mockRDSClient) DescribeDBInstances(_ context.Context, params *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	m.record("DescribeDBInstances")
	return &rds.DescribeDBInstancesOutput{DBInstances: []rdstypes.DBInstance{*m.instance(awsv2.ToString(params.DBInstanceIdentifier))}}, nil
}

func (m *mockRDSClient) ModifyDBInstance(_ context.Context, params *rds.ModifyDBInstanceInput, _ ...func(*rds.Options)) (*rds.ModifyDBInstanceOutput, error) {
	m.record("ModifyDBInstance")
	return &rds.ModifyDBInstanceOutput{DBInstance: m.instance(awsv2.ToString(params.DBInstanceIdentifier))}, nil
}

func (m *mockRDSClient) DeleteDBInstance(_ context.Context, params *rds.DeleteDBInstanceInput, _ ...func(*rds.Options)) (*rds.DeleteDBInstanceOutput, error) {
	m.record("DeleteDBInstance")
	m.deleteInput = params
	return &rds.DeleteDBInstanceOutput{}, nil
}

type mocks struct {
	ec2 *mockEC2Client
	efs *mockEFSClient
	eks *mockEKSClient
	iam *mockIAMClient
	sts *mockSTSClient
	rds *mockRDSClient
}

func newMocks() *mocks {
	return &mocks{
		ec2: &mockEC2Client{},
		efs: &mockEFSClient{},
		eks: &mockEKSClient{},
		iam: &mockIAMClient{},
		sts: &mockSTSClient{},
		rds: &mockRDSClient{},
	}
}

func (m *mocks) clients() Clients {
	return Clients{EC2: m.ec2, EFS: m.efs, EKS: m.eks, IAM: m.iam, STS: m.sts, RDS: m.rds}
}
