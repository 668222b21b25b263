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

package executor

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/exp/maps"

	"github.com/kro-run/stackgraph/pkg/graph"
	"github.com/kro-run/stackgraph/pkg/reconciler"
)

// OperationFailedError wraps the failure of a provider call.
type OperationFailedError struct {
	NodeID    string
	Operation reconciler.Operation
	Err       error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("failed to %s resource %q: %v", strings.ToLower(e.Operation.String()), e.NodeID, e.Err)
}

func (e *OperationFailedError) Unwrap() error {
	return e.Err
}

// NotReadyError is returned when a resource was applied but its readyWhen
// expressions didn't hold in time.
type NotReadyError struct {
	NodeID string
	Reason string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("resource %q did not become ready: %s", e.NodeID, e.Reason)
}

// BlockedError is the reason a step didn't start: another resource it
// waits on didn't reach the expected state.
type BlockedError struct {
	NodeID string
	// By is the resource the step waits on.
	By string
	// State is the state By was left in.
	State graph.State
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("resource %q is blocked by %q, which is %s", e.NodeID, e.By, e.State)
}

// AggregateRunError collects every resource of a run that failed or never
// started.
type AggregateRunError struct {
	// Failed maps the failed resources to their error.
	Failed map[string]error
	// Blocked maps the resources left untouched to the reason they didn't
	// start.
	Blocked map[string]error
}

// FailedIDs returns the ids of the failed resources, sorted.
func (e *AggregateRunError) FailedIDs() []string {
	return sortedKeys(e.Failed)
}

// BlockedIDs returns the ids of the blocked resources, sorted.
func (e *AggregateRunError) BlockedIDs() []string {
	return sortedKeys(e.Blocked)
}

func (e *AggregateRunError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run failed: %d failed, %d blocked", len(e.Failed), len(e.Blocked))
	for _, id := range e.FailedIDs() {
		fmt.Fprintf(&b, "\n  %s: %v", id, e.Failed[id])
	}
	for _, id := range e.BlockedIDs() {
		fmt.Fprintf(&b, "\n  %s (blocked): %v", id, e.Blocked[id])
	}
	return b.String()
}

// Unwrap returns the failures followed by the blocking reasons.
func (e *AggregateRunError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed)+len(e.Blocked))
	for _, id := range e.FailedIDs() {
		errs = append(errs, e.Failed[id])
	}
	for _, id := range e.BlockedIDs() {
		errs = append(errs, e.Blocked[id])
	}
	return errs
}

func sortedKeys(m map[string]error) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
