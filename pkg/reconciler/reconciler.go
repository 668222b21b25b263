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

// Package reconciler decides what has to happen to a resource by comparing
// its desired state with what was last applied.
package reconciler

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/graph/schema"
	"github.com/kro-run/stackgraph/pkg/reconciler/delta"
	"github.com/kro-run/stackgraph/pkg/state"
)

// Operation is what is done to a resource during a run.
type Operation string

const (
	OperationCreate Operation = "Create"
	OperationUpdate Operation = "Update"
	OperationNoop   Operation = "Noop"
	OperationDelete Operation = "Delete"
)

func (o Operation) String() string {
	return string(o)
}

// Symbol returns the one character marker of the operation used in plan
// listings.
func (o Operation) Symbol() string {
	switch o {
	case OperationCreate:
		return "+"
	case OperationUpdate:
		return "~"
	case OperationDelete:
		return "-"
	default:
		return "="
	}
}

// templatePath prefixes the differences found in the materialized
// configuration of a resource.
const templatePath = "template"

// ImmutableFieldChangedError is returned when a change can't be applied in
// place and no replacement was requested.
type ImmutableFieldChangedError struct {
	NodeID string
	Fields []string
}

func (e *ImmutableFieldChangedError) Error() string {
	return fmt.Sprintf("resource %q: immutable fields changed: %s (request a replacement to recreate it)",
		e.NodeID, strings.Join(e.Fields, ", "))
}

// Desired is the desired state of a resource, with every expression
// resolved.
type Desired struct {
	NodeID     string
	Kind       v1alpha1.Kind
	Parameters map[string]interface{}
	Config     map[string]interface{}
}

// Decision is the outcome of Decide.
type Decision struct {
	Operation   Operation
	Differences []delta.Difference
	// Replace is true when the resource must be deleted before being
	// created again.
	Replace bool
}

// Reconciler decides the lifecycle operation of resources.
type Reconciler struct {
	replace sets.Set[string]
}

// NewReconciler returns a reconciler. Immutable changes of the resources
// listed in replace are planned as a delete followed by a create.
func NewReconciler(replace ...string) *Reconciler {
	return &Reconciler{replace: sets.New(replace...)}
}

// Decide compares the desired state of a resource with the last applied
// one:
//
//   - no last applied entry: Create
//   - nothing changed: Noop
//   - changes the kind can apply in place: Update
//   - anything else fails with an ImmutableFieldChangedError, unless a
//     replacement was requested for the resource.
func (r *Reconciler) Decide(desired Desired, lastApplied *state.Entry, s *schema.Schema) (Decision, error) {
	if lastApplied == nil {
		return Decision{Operation: OperationCreate}, nil
	}

	differences := delta.Compare(desired.Parameters, lastApplied.Parameters)
	immutable := s.ImmutableChanges(delta.Paths(differences))
	if !s.UpdateInPlace {
		immutable = delta.Paths(differences)
	}
	if lastApplied.Kind != "" && lastApplied.Kind != desired.Kind {
		immutable = append([]string{"kind"}, immutable...)
		differences = append([]delta.Difference{{
			Path:     "kind",
			Desired:  string(desired.Kind),
			Observed: string(lastApplied.Kind),
		}}, differences...)
	}

	configDifferences := delta.Compare(
		map[string]interface{}{templatePath: desired.Config},
		map[string]interface{}{templatePath: lastApplied.Config},
	)
	differences = append(differences, configDifferences...)

	if len(differences) == 0 {
		return Decision{Operation: OperationNoop}, nil
	}
	if len(immutable) == 0 {
		return Decision{Operation: OperationUpdate, Differences: differences}, nil
	}
	if r.replace.Has(desired.NodeID) {
		return Decision{Operation: OperationCreate, Differences: differences, Replace: true}, nil
	}
	return Decision{}, &ImmutableFieldChangedError{NodeID: desired.NodeID, Fields: immutable}
}
