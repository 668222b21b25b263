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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Kind is the kind of a deployable unit. Kinds are opaque to the
// orchestrator, they only select a provider and a schema.
type Kind string

const (
	KindNetwork       Kind = "Network"
	KindCluster       Kind = "Cluster"
	KindNodeGroup     Kind = "NodeGroup"
	KindStorageVolume Kind = "StorageVolume"
	KindDatabase      Kind = "Database"
	KindTrustRole     Kind = "TrustRole"
	KindAddon         Kind = "Addon"
	KindManifest      Kind = "Manifest"
	KindRelease       Kind = "Release"
)

// Kinds lists every supported kind.
var Kinds = []Kind{
	KindNetwork,
	KindCluster,
	KindNodeGroup,
	KindStorageVolume,
	KindDatabase,
	KindTrustRole,
	KindAddon,
	KindManifest,
	KindRelease,
}

// IsValid returns true if k is one of the supported kinds.
func (k Kind) IsValid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// RemovalPolicy governs what teardown does with the underlying object.
type RemovalPolicy string

const (
	// RemovalPolicyDestroy deletes the object on teardown.
	RemovalPolicyDestroy RemovalPolicy = "Destroy"
	// RemovalPolicyRetain leaves the object in place. The resource is only
	// forgotten by the orchestrator.
	RemovalPolicyRetain RemovalPolicy = "Retain"
)

// IsValid returns true for the known policies and for the empty policy,
// which means "use the stack default".
func (p RemovalPolicy) IsValid() bool {
	return p == "" || p == RemovalPolicyDestroy || p == RemovalPolicyRetain
}

// Stack is the top level declaration of a deployment.
type Stack struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec StackSpec `json:"spec,omitempty"`
}

// StackSpec defines the resources of a stack and the per-run configuration
// they can refer to.
type StackSpec struct {
	// Defaults are applied to every resource that doesn't set the
	// corresponding field.
	//
	// +kubebuilder:validation:Optional
	Defaults StackDefaults `json:"defaults,omitempty"`
	// Variables are per-run configuration values. Expressions refer to them
	// as ${vars.<name>}.
	//
	// +kubebuilder:validation:Optional
	// +kubebuilder:pruning:PreserveUnknownFields
	Variables map[string]interface{} `json:"variables,omitempty"`
	// Schema declares the types of the variables, in the simple schema
	// notation: `name: type | marker=value ...`. Declared defaults are
	// applied and the variables are validated before anything is planned.
	//
	// +kubebuilder:validation:Optional
	// +kubebuilder:pruning:PreserveUnknownFields
	Schema map[string]interface{} `json:"schema,omitempty"`
	// Resources are the deployable units of the stack.
	//
	// +kubebuilder:validation:Required
	Resources []*Resource `json:"resources,omitempty"`
	// Outputs are values computed from the resources once the stack is
	// applied, e.g "https://${Cluster.endpoint}". A value made of a single
	// ${...} expression keeps the type of the expression.
	//
	// +kubebuilder:validation:Optional
	Outputs map[string]string `json:"outputs,omitempty"`
}

// StackDefaults holds stack wide defaults.
type StackDefaults struct {
	// +kubebuilder:validation:Optional
	// +kubebuilder:default="Destroy"
	RemovalPolicy RemovalPolicy `json:"removalPolicy,omitempty"`
	// Tags are stamped on every cloud resource and, as labels, on every
	// Kubernetes object of the stack.
	//
	// +kubebuilder:validation:Optional
	Tags map[string]string `json:"tags,omitempty"`
}

// Resource is a single deployable unit.
type Resource struct {
	// ID is the logical name of the resource, unique within a stack. It is
	// also the name expressions use to refer to the resource outputs.
	//
	// +kubebuilder:validation:Required
	ID string `json:"id"`
	// +kubebuilder:validation:Required
	Kind Kind `json:"kind"`
	// Parameters are the inputs handed to the provider of the kind. String
	// values may contain ${...} expressions referring to other resources.
	//
	// +kubebuilder:validation:Optional
	// +kubebuilder:pruning:PreserveUnknownFields
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	// DependsOn lists resources that must be ready before this one, on top
	// of the ones implied by expressions.
	//
	// +kubebuilder:validation:Optional
	DependsOn []string `json:"dependsOn,omitempty"`
	// +kubebuilder:validation:Optional
	RemovalPolicy RemovalPolicy `json:"removalPolicy,omitempty"`
	// ReadyWhen expressions must all evaluate to true, over the resource own
	// outputs, before dependents are allowed to start.
	//
	// +kubebuilder:validation:Optional
	ReadyWhen []string `json:"readyWhen,omitempty"`
	// IncludeWhen expressions, over the stack variables, decide whether the
	// resource is part of the run at all.
	//
	// +kubebuilder:validation:Optional
	IncludeWhen []string `json:"includeWhen,omitempty"`
	// Outputs declares output keys on top of the ones known for the kind.
	//
	// +kubebuilder:validation:Optional
	Outputs []string `json:"outputs,omitempty"`
	// Template is the configuration document of a Release.
	//
	// +kubebuilder:validation:Optional
	Template *ConfigTemplate `json:"template,omitempty"`
}

// ConfigTemplate is a configuration document (e.g helm values) with
// placeholder slots.
type ConfigTemplate struct {
	// +kubebuilder:validation:Optional
	Name string `json:"name,omitempty"`
	// +kubebuilder:validation:Optional
	// +kubebuilder:pruning:PreserveUnknownFields
	Values map[string]interface{} `json:"values,omitempty"`
	// ValuesFrom is a path, relative to the stack file, of a YAML document
	// used as values. It is read by the loader and merged under Values.
	//
	// +kubebuilder:validation:Optional
	ValuesFrom string `json:"valuesFrom,omitempty"`
}

// DeepCopy returns a deep copy of the resource. Parameter values that are
// neither maps nor slices are shared.
func (r *Resource) DeepCopy() *Resource {
	if r == nil {
		return nil
	}
	out := *r
	out.Parameters = DeepCopyValues(r.Parameters)
	out.DependsOn = append([]string(nil), r.DependsOn...)
	out.ReadyWhen = append([]string(nil), r.ReadyWhen...)
	out.IncludeWhen = append([]string(nil), r.IncludeWhen...)
	out.Outputs = append([]string(nil), r.Outputs...)
	if r.Template != nil {
		t := *r.Template
		t.Values = DeepCopyValues(r.Template.Values)
		out.Template = &t
	}
	return &out
}

// DeepCopyValues copies a schemaless value tree.
func DeepCopyValues(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	return deepCopyValue(in).(map[string]interface{})
}

func deepCopyValue(in interface{}) interface{} {
	switch v := in.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = deepCopyValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = deepCopyValue(val)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}
