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

package state

import (
	"cmp"
	"slices"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kro-run/stackgraph/api/v1alpha1"
)

// Entry records what was last applied for a resource.
type Entry struct {
	Kind v1alpha1.Kind `json:"kind"`
	// Parameters are the resolved parameters handed to the provider.
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	// Config is the materialized configuration of a Release.
	Config map[string]interface{} `json:"config,omitempty"`
	// Outputs are the outputs reported by the provider.
	Outputs   map[string]interface{} `json:"outputs,omitempty"`
	DependsOn []string               `json:"dependsOn,omitempty"`
	// +kubebuilder:default="Destroy"
	RemovalPolicy v1alpha1.RemovalPolicy `json:"removalPolicy,omitempty"`
	AppliedAt     metav1.Time            `json:"appliedAt,omitempty"`
}

// DeepCopy returns a deep copy of the entry.
func (e *Entry) DeepCopy() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	out.Parameters = v1alpha1.DeepCopyValues(e.Parameters)
	out.Config = v1alpha1.DeepCopyValues(e.Config)
	out.Outputs = v1alpha1.DeepCopyValues(e.Outputs)
	out.DependsOn = slices.Clone(e.DependsOn)
	return &out
}

// Snapshot is the persisted record of a stack: for every resource, what
// was last applied and what it reported.
//
// A Snapshot is safe for concurrent use.
type Snapshot struct {
	Stack string `json:"stack"`
	// Generation is incremented by every save.
	Generation int64       `json:"generation"`
	UpdatedAt  metav1.Time `json:"updatedAt,omitempty"`

	mu        sync.RWMutex
	Resources map[string]*Entry `json:"resources,omitempty"`
}

// NewSnapshot returns an empty snapshot for stack.
func NewSnapshot(stack string) *Snapshot {
	return &Snapshot{
		Stack:     stack,
		Resources: make(map[string]*Entry),
	}
}

// Get returns a copy of the entry of a resource.
func (s *Snapshot) Get(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.Resources[id]
	if !ok {
		return nil, false
	}
	return entry.DeepCopy(), true
}

// Record stores the entry of a resource.
func (s *Snapshot) Record(id string, entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Resources == nil {
		s.Resources = make(map[string]*Entry)
	}
	s.Resources[id] = entry.DeepCopy()
}

// Forget removes the entry of a resource.
func (s *Snapshot) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Resources, id)
}

// IDs returns the ids of the recorded resources, sorted.
func (s *Snapshot) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.Resources))
	for id := range s.Resources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// IsEmpty returns true if no resource is recorded.
func (s *Snapshot) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Resources) == 0
}

// Outputs returns the recorded outputs, keyed by resource id.
func (s *Snapshot) Outputs() map[string]map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	outputs := make(map[string]map[string]interface{}, len(s.Resources))
	for id, entry := range s.Resources {
		outputs[id] = v1alpha1.DeepCopyValues(entry.Outputs)
	}
	return outputs
}

// Declarations rebuilds the declarations of the recorded resources, so a
// stack can be torn down from its snapshot alone. Parameters are the
// resolved ones, the declarations hold no expressions.
func (s *Snapshot) Declarations() []*v1alpha1.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resources := make([]*v1alpha1.Resource, 0, len(s.Resources))
	for id, entry := range s.Resources {
		var dependsOn []string
		for _, dep := range entry.DependsOn {
			// Producers that are gone were already torn down.
			if _, ok := s.Resources[dep]; ok {
				dependsOn = append(dependsOn, dep)
			}
		}
		resources = append(resources, &v1alpha1.Resource{
			ID:            id,
			Kind:          entry.Kind,
			Parameters:    v1alpha1.DeepCopyValues(entry.Parameters),
			DependsOn:     dependsOn,
			RemovalPolicy: entry.RemovalPolicy,
			Outputs:       outputKeys(entry.Outputs),
		})
	}
	slices.SortFunc(resources, func(a, b *v1alpha1.Resource) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return resources
}

// DeepCopy returns a deep copy of the snapshot.
func (s *Snapshot) DeepCopy() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := &Snapshot{
		Stack:      s.Stack,
		Generation: s.Generation,
		UpdatedAt:  s.UpdatedAt,
		Resources:  make(map[string]*Entry, len(s.Resources)),
	}
	for id, entry := range s.Resources {
		out.Resources[id] = entry.DeepCopy()
	}
	return out
}

func outputKeys(outputs map[string]interface{}) []string {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
