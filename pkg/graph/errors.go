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

package graph

import (
	"fmt"

	"github.com/kro-run/stackgraph/pkg/graph/dag"
)

// DuplicateResourceError is returned when two resources of a stack share
// the same id.
type DuplicateResourceError struct {
	ID string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("duplicate resource id %q", e.ID)
}

// CyclicDependencyError is returned when the dependencies between resources
// form a cycle. Cycle starts and ends with the same id.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency: %s", dag.FormatCycle(e.Cycle))
}

// DanglingReferenceError is returned when a resource refers to, or depends
// on, a resource that isn't declared.
type DanglingReferenceError struct {
	// NodeID is the resource holding the reference.
	NodeID string
	// Producer is the undeclared resource.
	Producer string
	// Expression is the expression holding the reference. It is empty for
	// dependsOn entries.
	Expression string
}

func (e *DanglingReferenceError) Error() string {
	if e.Expression == "" {
		return fmt.Sprintf("resource %q depends on undeclared resource %q", e.NodeID, e.Producer)
	}
	return fmt.Sprintf("resource %q refers to undeclared resource %q in expression %q",
		e.NodeID, e.Producer, e.Expression)
}

// InvalidTransitionError is returned when a node is moved to a state that
// can't follow its current state.
type InvalidTransitionError struct {
	NodeID   string
	From, To State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("resource %q: invalid transition from %s to %s", e.NodeID, e.From, e.To)
}
