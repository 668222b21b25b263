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
	"fmt"
	"slices"
	"strings"
	"sync"

	"k8s.io/kube-openapi/pkg/validation/spec"
	"k8s.io/kube-openapi/pkg/validation/strfmt"
	"k8s.io/kube-openapi/pkg/validation/validate"

	"github.com/kro-run/stackgraph/api/v1alpha1"
)

// Schema describes what the orchestrator knows about a kind: the outputs
// its provider reports, the parameters that can't change once applied, and
// whether the provider can update an applied resource in place.
type Schema struct {
	// Kind is the kind described by this schema.
	Kind v1alpha1.Kind
	// Outputs are the output keys reported by the provider once the
	// resource is applied.
	Outputs []string
	// ImmutableFields are parameter paths (fieldpath syntax) that can't be
	// changed in place. A change below one of them counts as a change of the
	// field itself.
	ImmutableFields []string
	// UpdateInPlace is true if the provider supports in-place updates.
	UpdateInPlace bool
	// Parameters is the OpenAPI schema of the resolved parameters. A nil
	// schema accepts anything.
	Parameters *spec.Schema
}

// HasOutput returns true if key is one of the schema outputs.
func (s *Schema) HasOutput(key string) bool {
	return slices.Contains(s.Outputs, key)
}

// ImmutableChanges returns the immutable fields touched by the given
// changed paths, sorted and without duplicates.
func (s *Schema) ImmutableChanges(changedPaths []string) []string {
	var touched []string
	for _, immutable := range s.ImmutableFields {
		for _, path := range changedPaths {
			if isUnder(path, immutable) || isUnder(immutable, path) {
				touched = append(touched, immutable)
				break
			}
		}
	}
	slices.Sort(touched)
	return slices.Compact(touched)
}

// isUnder returns true if path is prefix or a descendant of prefix.
func isUnder(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	next := path[len(prefix)]
	return next == '.' || next == '['
}

// ValidateParameters validates resolved parameters against the parameters
// schema.
func (s *Schema) ValidateParameters(parameters map[string]interface{}) error {
	if s.Parameters == nil {
		return nil
	}
	validator := validate.NewSchemaValidator(s.Parameters, nil, "", strfmt.Default)
	if err := validator.Validate(parameters).AsError(); err != nil {
		return fmt.Errorf("invalid %s parameters: %w", s.Kind, err)
	}
	return nil
}

// DeepCopy returns a copy of the schema. The parameters schema is shared.
func (s *Schema) DeepCopy() *Schema {
	out := *s
	out.Outputs = slices.Clone(s.Outputs)
	out.ImmutableFields = slices.Clone(s.ImmutableFields)
	return &out
}

// Registry holds the schema of each kind. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemas map[v1alpha1.Kind]*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[v1alpha1.Kind]*Schema)}
}

// DefaultRegistry returns a registry holding the built-in schemas of every
// supported kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range defaultSchemas() {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the schema of s.Kind.
func (r *Registry) Register(s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Kind] = s
}

// Get returns the schema of kind.
func (r *Registry) Get(kind v1alpha1.Kind) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[kind]
	return s, ok
}
