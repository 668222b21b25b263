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
	"maps"
	"slices"
	"sync"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/graph/parser"
	"github.com/kro-run/stackgraph/pkg/graph/schema"
	"github.com/kro-run/stackgraph/pkg/graph/variable"
)

// State is the lifecycle state of a node during a run.
type State string

const (
	StatePending       State = "Pending"
	StateMaterializing State = "Materializing"
	StateReady         State = "Ready"
	StateFailed        State = "Failed"
	StateTearingDown   State = "TearingDown"
	StateDeleted       State = "Deleted"
)

func (s State) String() string {
	return string(s)
}

// transitions lists the states that can follow each state.
var transitions = map[State][]State{
	// Ready straight from Pending adopts an unchanged resource.
	StatePending:       {StateMaterializing, StateReady, StateDeleted},
	StateMaterializing: {StateReady, StateFailed},
	// Deleted straight from Ready forgets a retained resource.
	StateReady:       {StateTearingDown, StateDeleted},
	StateTearingDown: {StateDeleted, StateFailed},
	// Only retries leave Failed.
	StateFailed:  {StatePending},
	StateDeleted: {},
}

// CanTransition returns true if a node in state from can move to state to.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Template is the parsed configuration document of a Release node.
type Template struct {
	// Name of the document.
	Name string
	// Values is the document as declared, placeholders included.
	Values map[string]interface{}
	// Fields are the fields of Values holding placeholders.
	Fields []*variable.ResourceField
}

// NewTemplate extracts the placeholders of a configuration template.
func NewTemplate(tmpl *v1alpha1.ConfigTemplate) (*Template, error) {
	fieldDescriptors, err := parser.ParseParameters(tmpl.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to extract expressions from template: %w", err)
	}
	template := &Template{
		Name:   tmpl.Name,
		Values: v1alpha1.DeepCopyValues(tmpl.Values),
	}
	for _, fieldDescriptor := range fieldDescriptors {
		template.Fields = append(template.Fields, &variable.ResourceField{
			Kind:            variable.ResourceVariableKindStatic,
			FieldDescriptor: fieldDescriptor,
		})
	}
	return template, nil
}

// FieldDescriptors returns the descriptors of the template fields.
func (t *Template) FieldDescriptors() []variable.FieldDescriptor {
	descriptors := make([]variable.FieldDescriptor, 0, len(t.Fields))
	for _, field := range t.Fields {
		descriptors = append(descriptors, field.FieldDescriptor)
	}
	return descriptors
}

// DeepCopy returns a deep copy of the template.
func (t *Template) DeepCopy() *Template {
	if t == nil {
		return nil
	}
	return &Template{
		Name:   t.Name,
		Values: v1alpha1.DeepCopyValues(t.Values),
		Fields: slices.Clone(t.Fields),
	}
}

// Node is a resource of a stack, as processed by the Builder.
//
// Everything but the run-time state is immutable once the graph is built.
// The state is guarded by a lock so concurrent workers and readers only
// observe settled states, and outputs are published together with the Ready
// transition.
type Node struct {
	// id is the unique identifier of the resource within the stack.
	id            string
	kind          v1alpha1.Kind
	removalPolicy v1alpha1.RemovalPolicy
	schema        *schema.Schema
	// parameters are the declared parameters, expressions included.
	parameters map[string]interface{}
	// variables are the fields of parameters holding expressions.
	variables []*variable.ResourceField
	template  *Template
	// explicitDependencies are the dependsOn entries.
	explicitDependencies []string
	// dependencies are explicit and implied dependencies.
	dependencies []string
	// readyWhenExpressions must all be true, over the node outputs, before
	// the node is Ready.
	readyWhenExpressions []string
	// includeWhenExpressions decide, over the stack variables, whether the
	// node is part of the run.
	includeWhenExpressions []string
	outputs                []string

	mu       sync.RWMutex
	state    State
	observed map[string]interface{}
	err      error
}

// ID returns the id of the node.
func (n *Node) ID() string {
	return n.id
}

// Kind returns the kind of the node.
func (n *Node) Kind() v1alpha1.Kind {
	return n.kind
}

// RemovalPolicy returns the effective removal policy of the node.
func (n *Node) RemovalPolicy() v1alpha1.RemovalPolicy {
	return n.removalPolicy
}

// IsRetained returns true if teardown must leave the underlying object in
// place.
func (n *Node) IsRetained() bool {
	return n.removalPolicy == v1alpha1.RemovalPolicyRetain
}

// Schema returns the schema of the node kind.
func (n *Node) Schema() *schema.Schema {
	return n.schema
}

// Parameters returns a deep copy of the declared parameters.
func (n *Node) Parameters() map[string]interface{} {
	return v1alpha1.DeepCopyValues(n.parameters)
}

// Variables returns the parameter fields holding expressions.
func (n *Node) Variables() []*variable.ResourceField {
	return n.variables
}

// FieldDescriptors returns the descriptors of the parameter fields holding
// expressions.
func (n *Node) FieldDescriptors() []variable.FieldDescriptor {
	descriptors := make([]variable.FieldDescriptor, 0, len(n.variables))
	for _, field := range n.variables {
		descriptors = append(descriptors, field.FieldDescriptor)
	}
	return descriptors
}

// Template returns the parsed configuration template, nil for nodes that
// don't carry one.
func (n *Node) Template() *Template {
	return n.template
}

// GetDependencies returns the dependencies of the node, explicit and
// implied, in the order they were found.
func (n *Node) GetDependencies() []string {
	return n.dependencies
}

// ExplicitDependencies returns the dependsOn entries of the node.
func (n *Node) ExplicitDependencies() []string {
	return n.explicitDependencies
}

// HasDependency checks if the node depends on dep.
func (n *Node) HasDependency(dep string) bool {
	return slices.Contains(n.dependencies, dep)
}

func (n *Node) addDependencies(deps ...string) {
	for _, dep := range deps {
		if !n.HasDependency(dep) {
			n.dependencies = append(n.dependencies, dep)
		}
	}
}

// GetReadyWhenExpressions returns the readyWhen expressions of the node.
func (n *Node) GetReadyWhenExpressions() []string {
	return n.readyWhenExpressions
}

// GetIncludeWhenExpressions returns the includeWhen expressions of the node.
func (n *Node) GetIncludeWhenExpressions() []string {
	return n.includeWhenExpressions
}

// Outputs returns the output keys the node is known to report.
func (n *Node) Outputs() []string {
	return n.outputs
}

// HasOutput returns true if key is a declared output of the node.
func (n *Node) HasOutput(key string) bool {
	return slices.Contains(n.outputs, key)
}

// State returns the current state of the node.
func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Err returns the error that moved the node to Failed, if any.
func (n *Node) Err() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.err
}

// ObservedOutputs returns a copy of the outputs reported for the node. The
// second value is false unless the node is Ready.
func (n *Node) ObservedOutputs() (map[string]interface{}, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.state != StateReady {
		return nil, false
	}
	return maps.Clone(n.observed), true
}

// Transition moves the node to state to.
func (n *Node) Transition(to State) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.transitionLocked(to)
}

func (n *Node) transitionLocked(to State) error {
	if !CanTransition(n.state, to) {
		return &InvalidTransitionError{NodeID: n.id, From: n.state, To: to}
	}
	n.state = to
	if to != StateFailed {
		n.err = nil
	}
	return nil
}

// MarkReady moves the node to Ready and publishes its outputs in the same
// critical section.
func (n *Node) MarkReady(outputs map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.transitionLocked(StateReady); err != nil {
		return err
	}
	n.observed = maps.Clone(outputs)
	return nil
}

// MarkFailed moves the node to Failed and records the cause.
func (n *Node) MarkFailed(cause error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.transitionLocked(StateFailed); err != nil {
		return err
	}
	n.err = cause
	return nil
}

// Reset moves the node back to Pending, dropping outputs and errors. It is
// meant to reuse a graph for another run.
func (n *Node) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = StatePending
	n.observed = nil
	n.err = nil
}

// DeepCopy returns a copy of the node, in Pending state.
func (n *Node) DeepCopy() *Node {
	return &Node{
		id:                     n.id,
		kind:                   n.kind,
		removalPolicy:          n.removalPolicy,
		schema:                 n.schema,
		parameters:             v1alpha1.DeepCopyValues(n.parameters),
		variables:              slices.Clone(n.variables),
		template:               n.template.DeepCopy(),
		explicitDependencies:   slices.Clone(n.explicitDependencies),
		dependencies:           slices.Clone(n.dependencies),
		readyWhenExpressions:   slices.Clone(n.readyWhenExpressions),
		includeWhenExpressions: slices.Clone(n.includeWhenExpressions),
		outputs:                slices.Clone(n.outputs),
		state:                  StatePending,
	}
}
