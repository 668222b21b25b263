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
	"encoding/json"
	"fmt"
	"slices"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/kro-run/stackgraph/pkg/provider"
)

// IAMClient defines the IAM operations for trust roles.
type IAMClient interface {
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	UpdateAssumeRolePolicy(ctx context.Context, params *iam.UpdateAssumeRolePolicyInput, optFns ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error)
	TagRole(ctx context.Context, params *iam.TagRoleInput, optFns ...func(*iam.Options)) (*iam.TagRoleOutput, error)
	DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error)
	AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
	DetachRolePolicy(ctx context.Context, params *iam.DetachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error)
	ListAttachedRolePolicies(ctx context.Context, params *iam.ListAttachedRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error)
	PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error)
	DeleteRolePolicy(ctx context.Context, params *iam.DeleteRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error)
	ListRolePolicies(ctx context.Context, params *iam.ListRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error)
}

// STSClient defines the STS operations used to find the account id.
type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// roleDriver manages IAM roles. The trust policy, the managed policy
// attachments and the inline policy are updated in place.
type roleDriver struct {
	client  IAMClient
	account func(context.Context) (string, error)
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect    string                 `json:"Effect"`
	Principal map[string]interface{} `json:"Principal"`
	Action    string                 `json:"Action"`
	Condition map[string]interface{} `json:"Condition,omitempty"`
}

// inlinePolicyName names the inline policy built from policyStatements.
const inlinePolicyName = "stackgraph-inline"

type permissionDocument struct {
	Version   string                `json:"Version"`
	Statement []permissionStatement `json:"Statement"`
}

type permissionStatement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

// inlinePolicy builds the inline policy of a role from its statements,
// e.g to let it reach the API of a cluster:
//
//	policyStatements:
//	  - actions: ["eks:AccessKubernetesApi", "eks:Describe*", "eks:List*"]
//	    resources: ["${Cluster.arn}"]
//
// Effect defaults to Allow and resources to every resource. It returns an
// empty document when there are no statements.
func inlinePolicy(params map[string]interface{}) (string, error) {
	raw, _ := params["policyStatements"].([]interface{})
	if len(raw) == 0 {
		return "", nil
	}
	statements := make([]permissionStatement, 0, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("iam: policyStatements[%d] is not an object", i)
		}
		actions := stringSliceProp(m, "actions")
		if len(actions) == 0 {
			return "", fmt.Errorf("iam: policyStatements[%d] has no actions", i)
		}
		resources := stringSliceProp(m, "resources")
		if len(resources) == 0 {
			resources = []string{"*"}
		}
		statements = append(statements, permissionStatement{
			Effect:   stringPropDefault(m, "effect", "Allow"),
			Action:   actions,
			Resource: resources,
		})
	}
	doc, err := json.Marshal(permissionDocument{Version: "2012-10-17", Statement: statements})
	if err != nil {
		return "", fmt.Errorf("iam: encode inline policy: %w", err)
	}
	return string(doc), nil
}

// trustPolicy builds the assume role policy of a role. Roles trusting a
// federated principal, e.g the OIDC provider of a cluster, are assumed
// with a web identity under the given conditions:
//
//	federatedPrincipal: ${Cluster.openIdConnectProviderArn}
//	conditions:
//	  StringLike:
//	    "${Cluster.oidcIssuer.replace('https://', '')}:sub": system:serviceaccount:kube-system:efs-csi-*
func (d *roleDriver) trustPolicy(ctx context.Context, params map[string]interface{}) (string, error) {
	var statements []policyStatement
	if principal := stringProp(params, "federatedPrincipal"); principal != "" {
		conditions, _ := params["conditions"].(map[string]interface{})
		statements = append(statements, policyStatement{
			Effect:    "Allow",
			Principal: map[string]interface{}{"Federated": principal},
			Action:    "sts:AssumeRoleWithWebIdentity",
			Condition: conditions,
		})
	}
	if boolProp(params, "trustAccountRoot", false) {
		account, err := d.account(ctx)
		if err != nil {
			return "", err
		}
		statements = append(statements, policyStatement{
			Effect:    "Allow",
			Principal: map[string]interface{}{"AWS": fmt.Sprintf("arn:aws:iam::%s:root", account)},
			Action:    "sts:AssumeRole",
		})
	}
	if services := stringSliceProp(params, "servicePrincipals"); len(services) > 0 {
		statements = append(statements, policyStatement{
			Effect:    "Allow",
			Principal: map[string]interface{}{"Service": services},
			Action:    "sts:AssumeRole",
		})
	}
	if len(statements) == 0 {
		return "", fmt.Errorf("iam: a role must trust a federatedPrincipal, the account root or a service principal")
	}

	doc, err := json.Marshal(policyDocument{Version: "2012-10-17", Statement: statements})
	if err != nil {
		return "", fmt.Errorf("iam: encode trust policy: %w", err)
	}
	return string(doc), nil
}

func (d *roleDriver) create(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	name := desiredName(desired)
	policy, err := d.trustPolicy(ctx, desired.Parameters)
	if err != nil {
		return nil, err
	}
	inline, err := inlinePolicy(desired.Parameters)
	if err != nil {
		return nil, err
	}
	out, err := d.client.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 awsv2.String(name),
		AssumeRolePolicyDocument: awsv2.String(policy),
		Tags:                     iamTags(tags(desired)),
	})
	if err != nil {
		return nil, fmt.Errorf("iam: create role %q: %w", name, err)
	}
	for _, arn := range stringSliceProp(desired.Parameters, "managedPolicyArns") {
		if err := d.attach(ctx, name, arn); err != nil {
			return nil, err
		}
	}
	if inline != "" {
		if err := d.putInline(ctx, name, inline); err != nil {
			return nil, err
		}
	}
	return roleOutputs(out.Role), nil
}

func (d *roleDriver) update(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	name := desiredName(desired)
	policy, err := d.trustPolicy(ctx, desired.Parameters)
	if err != nil {
		return nil, err
	}
	_, err = d.client.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
		RoleName:       awsv2.String(name),
		PolicyDocument: awsv2.String(policy),
	})
	if err != nil {
		return nil, fmt.Errorf("iam: update trust policy of %q: %w", name, err)
	}
	_, err = d.client.TagRole(ctx, &iam.TagRoleInput{
		RoleName: awsv2.String(name),
		Tags:     iamTags(tags(desired)),
	})
	if err != nil {
		return nil, fmt.Errorf("iam: tag role %q: %w", name, err)
	}

	attached, err := d.attached(ctx, name)
	if err != nil {
		return nil, err
	}
	wanted := stringSliceProp(desired.Parameters, "managedPolicyArns")
	for _, arn := range wanted {
		if !slices.Contains(attached, arn) {
			if err := d.attach(ctx, name, arn); err != nil {
				return nil, err
			}
		}
	}
	for _, arn := range attached {
		if !slices.Contains(wanted, arn) {
			if err := d.detach(ctx, name, arn); err != nil {
				return nil, err
			}
		}
	}
	if err := d.syncInline(ctx, name, desired.Parameters); err != nil {
		return nil, err
	}
	return d.get(ctx, name)
}

func (d *roleDriver) get(ctx context.Context, name string) (map[string]interface{}, error) {
	out, err := d.client.GetRole(ctx, &iam.GetRoleInput{RoleName: awsv2.String(name)})
	if err != nil {
		return nil, fmt.Errorf("iam: get role %q: %w", name, err)
	}
	return roleOutputs(out.Role), nil
}

func (d *roleDriver) read(ctx context.Context, applied provider.Applied) (map[string]interface{}, error) {
	return d.get(ctx, appliedName(applied))
}

// delete detaches the managed policies and removes the inline ones first,
// IAM refuses to delete a role that still has any.
func (d *roleDriver) delete(ctx context.Context, applied provider.Applied) error {
	name := appliedName(applied)
	attached, err := d.attached(ctx, name)
	if err != nil {
		return err
	}
	for _, arn := range attached {
		if err := d.detach(ctx, name, arn); err != nil {
			return err
		}
	}
	inline, err := d.inline(ctx, name)
	if err != nil {
		return err
	}
	for _, policy := range inline {
		if err := d.deleteInline(ctx, name, policy); err != nil {
			return err
		}
	}
	if _, err := d.client.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: awsv2.String(name)}); err != nil {
		return fmt.Errorf("iam: delete role %q: %w", name, err)
	}
	return nil
}

func (d *roleDriver) attached(ctx context.Context, name string) ([]string, error) {
	out, err := d.client.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
		RoleName: awsv2.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("iam: list policies of %q: %w", name, err)
	}
	arns := make([]string, 0, len(out.AttachedPolicies))
	for _, p := range out.AttachedPolicies {
		arns = append(arns, awsv2.ToString(p.PolicyArn))
	}
	return arns, nil
}

func (d *roleDriver) attach(ctx context.Context, name, policyARN string) error {
	_, err := d.client.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  awsv2.String(name),
		PolicyArn: awsv2.String(policyARN),
	})
	if err != nil {
		return fmt.Errorf("iam: attach %q to %q: %w", policyARN, name, err)
	}
	return nil
}

func (d *roleDriver) detach(ctx context.Context, name, policyARN string) error {
	_, err := d.client.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  awsv2.String(name),
		PolicyArn: awsv2.String(policyARN),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("iam: detach %q from %q: %w", policyARN, name, err)
	}
	return nil
}

// syncInline puts the inline policy of the role, or removes it once the
// role has no policyStatements left.
func (d *roleDriver) syncInline(ctx context.Context, name string, params map[string]interface{}) error {
	doc, err := inlinePolicy(params)
	if err != nil {
		return err
	}
	if doc != "" {
		return d.putInline(ctx, name, doc)
	}
	inline, err := d.inline(ctx, name)
	if err != nil {
		return err
	}
	if slices.Contains(inline, inlinePolicyName) {
		return d.deleteInline(ctx, name, inlinePolicyName)
	}
	return nil
}

func (d *roleDriver) putInline(ctx context.Context, name, doc string) error {
	_, err := d.client.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       awsv2.String(name),
		PolicyName:     awsv2.String(inlinePolicyName),
		PolicyDocument: awsv2.String(doc),
	})
	if err != nil {
		return fmt.Errorf("iam: put inline policy of %q: %w", name, err)
	}
	return nil
}

func (d *roleDriver) inline(ctx context.Context, name string) ([]string, error) {
	out, err := d.client.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{RoleName: awsv2.String(name)})
	if err != nil {
		return nil, fmt.Errorf("iam: list inline policies of %q: %w", name, err)
	}
	return out.PolicyNames, nil
}

func (d *roleDriver) deleteInline(ctx context.Context, name, policy string) error {
	_, err := d.client.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
		RoleName:   awsv2.String(name),
		PolicyName: awsv2.String(policy),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("iam: delete inline policy %q of %q: %w", policy, name, err)
	}
	return nil
}

func iamTags(t map[string]string) []iamtypes.Tag {
	out := make([]iamtypes.Tag, 0, len(t))
	for _, k := range sortedKeys(t) {
		out = append(out, iamtypes.Tag{Key: awsv2.String(k), Value: awsv2.String(t[k])})
	}
	return out
}

func roleOutputs(role *iamtypes.Role) map[string]interface{} {
	if role == nil {
		return nil
	}
	return map[string]interface{}{
		"name": awsv2.ToString(role.RoleName),
		"arn":  awsv2.ToString(role.Arn),
	}
}
