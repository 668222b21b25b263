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

package runtime

import (
	"fmt"
	"strings"

	"github.com/kro-run/stackgraph/pkg/graph"
)

// UnresolvedProducerError is returned when an expression refers to a
// resource that is not declared, or whose outputs are not available yet.
type UnresolvedProducerError struct {
	Producer string
	// State is the state of the producer, empty if it isn't declared.
	State graph.State
}

func (e *UnresolvedProducerError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("unresolved producer %q: no such resource", e.Producer)
	}
	return fmt.Sprintf("unresolved producer %q: outputs are not available in state %s", e.Producer, e.State)
}

// UnknownOutputError is returned when a reference selects an output the
// producer doesn't declare or didn't report.
type UnknownOutputError struct {
	Producer string
	Output   string
	// Declared lists the outputs of the producer. It is empty when the
	// output is declared but was not reported.
	Declared []string
}

func (e *UnknownOutputError) Error() string {
	if len(e.Declared) == 0 {
		return fmt.Sprintf("output %q was not reported by %q", e.Output, e.Producer)
	}
	return fmt.Sprintf("unknown output %q of %q, declared outputs: %s",
		e.Output, e.Producer, strings.Join(e.Declared, ", "))
}

// TemplateSubstitutionError is returned when a placeholder can't be
// replaced by a value.
type TemplateSubstitutionError struct {
	Placeholder string
	// Path is the field holding the placeholder, if known.
	Path string
	Err  error
}

func (e *TemplateSubstitutionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to substitute %s: %v", e.Placeholder, e.Err)
	}
	return fmt.Sprintf("failed to substitute %s at %s: %v", e.Placeholder, e.Path, e.Err)
}

func (e *TemplateSubstitutionError) Unwrap() error {
	return e.Err
}
