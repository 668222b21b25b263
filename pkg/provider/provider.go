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

// Package provider defines how the executor drives the systems that own
// the deployable units: a provider per kind applies and deletes them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/metadata"
	"github.com/kro-run/stackgraph/pkg/state"
)

// ErrNoProvider is returned when no provider is registered for a kind.
var ErrNoProvider = errors.New("no provider registered")

// Desired is what a provider is asked to converge a resource to.
type Desired struct {
	NodeID string
	Kind   v1alpha1.Kind
	Stack  string
	// Parameters are the resolved parameters of the resource.
	Parameters map[string]interface{}
	// Config is the materialized configuration of a Release, nil for
	// other kinds.
	Config map[string]interface{}
	// Labels identify the objects created for the resource. Cloud
	// providers use them as tags.
	Labels metadata.GenericLabeler
	// Tags are the stack tags.
	Tags map[string]string
	// Previous is what was last applied, nil when the resource is
	// created.
	Previous *state.Entry
}

// Applied identifies a resource that was applied before.
type Applied struct {
	NodeID string
	Stack  string
	Entry  *state.Entry
}

// Provider creates, updates and deletes the resources of a kind.
//
// Implementations must be safe for concurrent use: the executor runs the
// operations of independent resources in parallel.
type Provider interface {
	// Apply creates the resource, or updates it when Previous is set, and
	// returns its outputs. Apply must be idempotent.
	Apply(ctx context.Context, desired Desired) (map[string]interface{}, error)
	// Delete deletes an applied resource. Deleting a resource that is
	// already gone is not an error.
	Delete(ctx context.Context, applied Applied) error
}

// Observer is implemented by providers that can read the current outputs
// of a resource. The executor polls it until the readyWhen expressions of
// the resource hold.
type Observer interface {
	Observe(ctx context.Context, applied Applied) (map[string]interface{}, error)
}

// Registry maps kinds to providers. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[v1alpha1.Kind]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[v1alpha1.Kind]Provider)}
}

// Register sets the provider of the given kinds.
func (r *Registry) Register(p Provider, kinds ...v1alpha1.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kind := range kinds {
		r.providers[kind] = p
	}
}

// Get returns the provider of a kind.
func (r *Registry) Get(kind v1alpha1.Kind) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("%w for kind %s", ErrNoProvider, kind)
	}
	return p, nil
}
