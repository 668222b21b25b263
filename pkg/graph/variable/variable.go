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

package variable

import (
	"fmt"
	"slices"
)

// VariablesID is the identifier expressions use to refer to the per-run
// stack variables, e.g ${vars.clusterVersion}. It can't be used as a
// resource id.
const VariablesID = "vars"

// Reference points to an output of another resource. It resolves to a
// concrete value only once the producer is Ready.
//
// A Reference can be used directly as a parameter value; it is equivalent
// to the string "${Producer.Output}".
type Reference struct {
	// Producer is the id of the resource producing the value.
	Producer string `json:"producer"`
	// Output is the output key read from the producer.
	Output string `json:"output"`
}

// Ref returns a reference to the output of producer.
func Ref(producer, output string) Reference {
	return Reference{Producer: producer, Output: output}
}

// Expression returns the CEL expression selecting the referenced output.
func (r Reference) Expression() string {
	return r.Producer + "." + r.Output
}

func (r Reference) String() string {
	return fmt.Sprintf("${%s}", r.Expression())
}

// IsVariable returns true if the reference points to a stack variable
// rather than to a resource output.
func (r Reference) IsVariable() bool {
	return r.Producer == VariablesID
}

// FieldDescriptor represents a field that contains CEL expressions in it. It
// contains the path of the field in the parameters and the CEL expressions.
// The field may contain multiple expressions.
type FieldDescriptor struct {
	// Path is the path of the field in the parameters (JSONPath-like)
	// example: subnets[0].cidr
	Path string
	// Expressions is a list of CEL expressions in the field.
	Expressions []string
	// StandaloneExpression is true if the field contains a single CEL expression
	// that is not part of a larger string. example: "${foo}" is a standalone expression
	// but not "hello-${foo}" or "${foo}${bar}"
	StandaloneExpression bool
	// KeyExpression is true if the expressions are in a map key rather than
	// in the value stored at Path. The resolved key replaces the original
	// one.
	KeyExpression bool
}

// ResourceField is a field of a resource holding expressions, with the
// references found in them.
type ResourceField struct {
	FieldDescriptor
	// Kind is the kind of the variable (static or dynamic).
	Kind ResourceVariableKind
	// References lists every (producer, output) pair read by the
	// expressions, in order of appearance and without duplicates.
	References []Reference
	// Dependencies is a list of resources this variable depends on. We need
	// this information to wait for the dependencies to be ready before
	// evaluating the variable.
	Dependencies []string
}

// AddDependencies adds dependencies to the ResourceField.
func (rv *ResourceField) AddDependencies(dep ...string) {
	for _, d := range dep {
		if !slices.Contains(rv.Dependencies, d) {
			rv.Dependencies = append(rv.Dependencies, d)
		}
	}
}

// AddReferences records references, ignoring duplicates. Producers other
// than the stack variables are added as dependencies.
func (rv *ResourceField) AddReferences(refs ...Reference) {
	for _, ref := range refs {
		if !slices.Contains(rv.References, ref) {
			rv.References = append(rv.References, ref)
		}
		if !ref.IsVariable() {
			rv.AddDependencies(ref.Producer)
		}
	}
}

// ResourceVariableKind represents the kind of a resource variable.
type ResourceVariableKind string

const (
	// ResourceVariableKindStatic represents a static variable. Static variables
	// only read stack variables and are resolved before anything is applied.
	//
	// For example:
	//   parameters:
	//      version: ${vars.clusterVersion}
	ResourceVariableKindStatic ResourceVariableKind = "static"
	// ResourceVariableKindDynamic represents a dynamic variable. Dynamic
	// variables read outputs of other resources and are resolved once those
	// resources are Ready.
	//
	// For example:
	//   parameters:
	//	    vpcId: ${Vpc.vpcId}
	ResourceVariableKindDynamic ResourceVariableKind = "dynamic"
	// ResourceVariableKindReadyWhen represents readyWhen expressions. They
	// are evaluated over the resource own outputs after it is applied.
	//
	// For example:
	//   id: Cluster
	//   readyWhen:
	//   - ${Cluster.status == "ACTIVE"}
	ResourceVariableKindReadyWhen ResourceVariableKind = "readyWhen"
	// ResourceVariableKindIncludeWhen represents an includeWhen expression.
	// They only read stack variables and decide whether the resource is part
	// of the run.
	//
	// For example:
	//   id: Database
	//   includeWhen:
	//   - ${vars.withDatabase}
	ResourceVariableKindIncludeWhen ResourceVariableKind = "includeWhen"
)

// String returns the string representation of a ResourceVariableKind.
func (r ResourceVariableKind) String() string {
	return string(r)
}

// IsStatic returns true if the ResourceVariableKind is static
func (r ResourceVariableKind) IsStatic() bool {
	return r == ResourceVariableKindStatic
}

// IsDynamic returns true if the ResourceVariableKind is dynamic
func (r ResourceVariableKind) IsDynamic() bool {
	return r == ResourceVariableKindDynamic
}

// IsIncludeWhen returns true if the ResourceVariableKind is includeWhen
func (r ResourceVariableKind) IsIncludeWhen() bool {
	return r == ResourceVariableKindIncludeWhen
}
