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

package schema

import (
	"k8s.io/kube-openapi/pkg/validation/spec"

	"github.com/kro-run/stackgraph/api/v1alpha1"
)

func defaultSchemas() []*Schema {
	return []*Schema{
		{
			Kind:            v1alpha1.KindNetwork,
			Outputs:         []string{"vpcId", "cidrBlock", "subnetIds", "arn"},
			ImmutableFields: []string{"cidrBlock", "subnets"},
			// VPCs are replaced, never updated.
			UpdateInPlace: false,
			Parameters: objectSchema(nil, map[string]spec.Schema{
				"cidrBlock": *spec.StringProperty(),
				"subnets":   *spec.ArrayProperty(objectSchema([]string{"cidrBlock"}, nil)),
				"tags":      *spec.MapProperty(spec.StringProperty()),
			}),
		},
		{
			Kind: v1alpha1.KindCluster,
			Outputs: []string{
				"name", "arn", "endpoint", "status", "version", "oidcIssuer",
				"openIdConnectProviderArn", "certificateAuthority", "securityGroupId",
			},
			ImmutableFields: []string{"name", "subnetIds", "serviceIpv4Cidr", "roleArn"},
			UpdateInPlace:   true,
			Parameters: objectSchema(nil, map[string]spec.Schema{
				"name":            *spec.StringProperty(),
				"version":         *spec.StringProperty(),
				"roleArn":         *spec.StringProperty(),
				"subnetIds":       *spec.ArrayProperty(spec.StringProperty()),
				"serviceIpv4Cidr": *spec.StringProperty(),
				"logging":         *spec.ArrayProperty(spec.StringProperty()),
				"tags":            *spec.MapProperty(spec.StringProperty()),
			}),
		},
		{
			Kind:            v1alpha1.KindNodeGroup,
			Outputs:         []string{"name", "arn", "status"},
			ImmutableFields: []string{"name", "clusterName", "nodeRoleArn", "subnetIds", "instanceTypes"},
			UpdateInPlace:   true,
			Parameters: objectSchema(nil, map[string]spec.Schema{
				"name":          *spec.StringProperty(),
				"clusterName":   *spec.StringProperty(),
				"nodeRoleArn":   *spec.StringProperty(),
				"subnetIds":     *spec.ArrayProperty(spec.StringProperty()),
				"instanceTypes": *spec.ArrayProperty(spec.StringProperty()),
				"minSize":       *spec.Int64Property(),
				"maxSize":       *spec.Int64Property(),
				"desiredSize":   *spec.Int64Property(),
			}),
		},
		{
			Kind:            v1alpha1.KindStorageVolume,
			Outputs:         []string{"name", "fileSystemId", "arn", "state", "securityGroupId", "mountTargetIds"},
			ImmutableFields: []string{"name", "vpcId", "encrypted", "performanceMode"},
			UpdateInPlace:   true,
			Parameters: objectSchema(nil, map[string]spec.Schema{
				"name":                            *spec.StringProperty(),
				"vpcId":                           *spec.StringProperty(),
				"subnetIds":                       *spec.ArrayProperty(spec.StringProperty()),
				"ingressCidrs":                    *spec.ArrayProperty(spec.StringProperty()),
				"encrypted":                       *spec.BoolProperty(),
				"performanceMode":                 *spec.StringProperty(),
				"throughputMode":                  *spec.StringProperty(),
				"transitionToIA":                  *spec.StringProperty(),
				"transitionToPrimaryStorageClass": *spec.StringProperty(),
				"automaticBackups":                *spec.BoolProperty(),
				"tags":                            *spec.MapProperty(spec.StringProperty()),
			}),
		},
		{
			Kind:            v1alpha1.KindDatabase,
			Outputs:         []string{"endpoint", "port", "arn", "secretArn"},
			ImmutableFields: []string{"identifier", "engine", "databaseName", "username"},
			UpdateInPlace:   true,
			Parameters: objectSchema(nil, map[string]spec.Schema{
				"identifier":       *spec.StringProperty(),
				"engine":           *spec.StringProperty(),
				"engineVersion":    *spec.StringProperty(),
				"instanceClass":    *spec.StringProperty(),
				"databaseName":     *spec.StringProperty(),
				"username":         *spec.StringProperty(),
				"allocatedStorage": *spec.Int64Property(),
				"subnetGroupName":  *spec.StringProperty(),
			}),
		},
		{
			Kind:            v1alpha1.KindTrustRole,
			Outputs:         []string{"arn", "name"},
			ImmutableFields: []string{"name"},
			UpdateInPlace:   true,
			Parameters: objectSchema(nil, map[string]spec.Schema{
				"name":               *spec.StringProperty(),
				"federatedPrincipal": *spec.StringProperty(),
				"trustAccountRoot":   *spec.BoolProperty(),
				"servicePrincipals":  *spec.ArrayProperty(spec.StringProperty()),
				"managedPolicyArns":  *spec.ArrayProperty(spec.StringProperty()),
				"conditions":         *spec.MapProperty(spec.MapProperty(nil)),
				"policyStatements": *spec.ArrayProperty(objectSchema([]string{"actions"}, map[string]spec.Schema{
					"effect":    *spec.StringProperty(),
					"actions":   *spec.ArrayProperty(spec.StringProperty()),
					"resources": *spec.ArrayProperty(spec.StringProperty()),
				})),
			}),
		},
		{
			Kind:            v1alpha1.KindAddon,
			Outputs:         []string{"name", "arn", "version"},
			ImmutableFields: []string{"name", "clusterName"},
			UpdateInPlace:   true,
			Parameters: objectSchema(nil, map[string]spec.Schema{
				"name":                  *spec.StringProperty(),
				"clusterName":           *spec.StringProperty(),
				"version":               *spec.StringProperty(),
				"serviceAccountRoleArn": *spec.StringProperty(),
			}),
		},
		{
			Kind:    v1alpha1.KindManifest,
			Outputs: []string{"name", "namespace", "uid", "apiVersion", "kind", "status"},
			ImmutableFields: []string{
				"manifest.apiVersion", "manifest.kind",
				"manifest.metadata.name", "manifest.metadata.namespace",
			},
			UpdateInPlace: true,
			Parameters: objectSchema([]string{"manifest"}, map[string]spec.Schema{
				"manifest": *objectSchema([]string{"apiVersion", "kind", "metadata"}, nil),
			}),
		},
		{
			Kind:            v1alpha1.KindRelease,
			Outputs:         []string{"name", "namespace", "chart", "version"},
			ImmutableFields: []string{"name", "namespace"},
			UpdateInPlace:   true,
			Parameters: objectSchema([]string{"chart"}, map[string]spec.Schema{
				"name":            *spec.StringProperty(),
				"namespace":       *spec.StringProperty(),
				"chart":           *spec.StringProperty(),
				"repo":            *spec.StringProperty(),
				"version":         *spec.StringProperty(),
				"targetNamespace": *spec.StringProperty(),
			}),
		},
	}
}

// objectSchema returns an object schema with the given required fields.
// Properties that aren't listed are accepted.
func objectSchema(required []string, properties map[string]spec.Schema) *spec.Schema {
	return &spec.Schema{
		SchemaProps: spec.SchemaProps{
			Type:       []string{"object"},
			Required:   required,
			Properties: properties,
		},
	}
}
