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
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	krocel "github.com/kro-run/stackgraph/pkg/cel"
	"github.com/kro-run/stackgraph/pkg/cel/ast"
	"github.com/kro-run/stackgraph/pkg/graph"
	"github.com/kro-run/stackgraph/pkg/graph/parser"
	"github.com/kro-run/stackgraph/pkg/graph/variable"
	"github.com/kro-run/stackgraph/pkg/runtime/resolver"
)

// Runtime resolves references and evaluates expressions against the
// outputs of the resources of a graph.
//
// A Runtime is safe for concurrent use. Resolved references and compiled
// programs are cached for the lifetime of the Runtime, so a new Runtime
// must be created for every run.
type Runtime struct {
	graph  *graph.Graph
	source OutputSource
	env    *cel.Env
	ids    []string

	mu       sync.Mutex
	resolved map[variable.Reference]interface{}
	programs map[string]cel.Program
}

// NewRuntime returns a Runtime over the resources of g, reading their
// outputs from source.
func NewRuntime(g *graph.Graph, source OutputSource) (*Runtime, error) {
	ids := append(g.NodeIDs(), variable.VariablesID)
	env, err := krocel.DefaultEnvironment(krocel.WithResourceIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Runtime{
		graph:    g,
		source:   source,
		env:      env,
		ids:      ids,
		resolved: make(map[variable.Reference]interface{}),
		programs: make(map[string]cel.Program),
	}, nil
}

// Graph returns the graph the runtime resolves against.
func (rt *Runtime) Graph() *graph.Graph {
	return rt.graph
}

// Resolve returns the value of a reference. It fails with an
// UnresolvedProducerError when the producer is unknown or not Ready, and
// with an UnknownOutputError when the producer has no such output.
func (rt *Runtime) Resolve(ref variable.Reference) (interface{}, error) {
	rt.mu.Lock()
	value, ok := rt.resolved[ref]
	rt.mu.Unlock()
	if ok {
		return value, nil
	}

	value, err := rt.resolve(ref)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	rt.resolved[ref] = value
	rt.mu.Unlock()
	return value, nil
}

func (rt *Runtime) resolve(ref variable.Reference) (interface{}, error) {
	if ref.IsVariable() {
		value, ok := rt.graph.Variables[ref.Output]
		if !ok {
			return nil, &UnknownOutputError{
				Producer: variable.VariablesID,
				Output:   ref.Output,
				Declared: sortedKeys(rt.graph.Variables),
			}
		}
		return value, nil
	}

	node, ok := rt.graph.Node(ref.Producer)
	if !ok {
		return nil, &UnresolvedProducerError{Producer: ref.Producer}
	}
	if !node.HasOutput(ref.Output) {
		return nil, &UnknownOutputError{Producer: ref.Producer, Output: ref.Output, Declared: node.Outputs()}
	}
	outputs, ok := rt.source.Outputs(ref.Producer)
	if !ok {
		return nil, &UnresolvedProducerError{Producer: ref.Producer, State: node.State()}
	}
	value, ok := outputs[ref.Output]
	if !ok {
		return nil, &UnknownOutputError{Producer: ref.Producer, Output: ref.Output}
	}
	return value, nil
}

// References returns the references read by an expression. Identifiers
// that are not resources of the graph are returned as well, resolving
// them reports the unknown producer.
func (rt *Runtime) References(expression string) ([]variable.Reference, error) {
	inspector := ast.NewInspectorWithEnv(rt.env, rt.ids)
	inspection, err := inspector.Inspect(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect expression %q: %w", expression, err)
	}
	if len(inspection.UnknownFunctions) > 0 {
		return nil, fmt.Errorf("unknown functions in expression %q: %v", expression, inspection.UnknownFunctions)
	}

	var refs []variable.Reference
	add := func(id, output string) error {
		if output == "" {
			return fmt.Errorf("expression %q must select an output of %s", expression, id)
		}
		ref := variable.Ref(id, output)
		if !slices.Contains(refs, ref) {
			refs = append(refs, ref)
		}
		return nil
	}
	for _, dep := range inspection.UnknownResources {
		if err := add(dep.ID, dep.Output); err != nil {
			return nil, err
		}
	}
	for _, dep := range inspection.ResourceDependencies {
		if err := add(dep.ID, dep.Output); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

// Evaluate resolves the references of an expression and evaluates it.
// The result is a Go native value.
func (rt *Runtime) Evaluate(expression string) (interface{}, error) {
	refs, err := rt.References(expression)
	if err != nil {
		return nil, err
	}
	// Unknown producers are reported before compiling, the environment
	// doesn't declare them.
	activation := make(map[string]interface{}, len(refs))
	for _, ref := range refs {
		value, err := rt.Resolve(ref)
		if err != nil {
			return nil, err
		}
		outputs, ok := activation[ref.Producer].(map[string]interface{})
		if !ok {
			outputs = make(map[string]interface{})
			activation[ref.Producer] = outputs
		}
		outputs[ref.Output] = value
	}
	return rt.evaluate(expression, activation)
}

func (rt *Runtime) evaluate(expression string, activation map[string]interface{}) (interface{}, error) {
	program, err := rt.program(expression)
	if err != nil {
		return nil, err
	}
	val, _, err := program.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("failed evaluating expression %s: %w", expression, err)
	}
	return krocel.GoNativeType(val)
}

func (rt *Runtime) program(expression string) (cel.Program, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if program, ok := rt.programs[expression]; ok {
		return program, nil
	}

	checked, issues := rt.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed compiling expression %s: %w", expression, issues.Err())
	}
	program, err := rt.env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("failed programming expression %s: %w", expression, err)
	}
	rt.programs[expression] = program
	return program, nil
}

// Substitute replaces every placeholder of str by the string form of its
// value. Any placeholder that can't be resolved fails the substitution
// with a TemplateSubstitutionError.
func (rt *Runtime) Substitute(str string) (string, error) {
	return parser.Interpolate(str, func(expression string) (string, error) {
		value, err := rt.Evaluate(expression)
		if err != nil {
			return "", &TemplateSubstitutionError{Placeholder: "${" + expression + "}", Err: err}
		}
		s, err := resolver.StringValue(value)
		if err != nil {
			return "", &TemplateSubstitutionError{Placeholder: "${" + expression + "}", Err: err}
		}
		return s, nil
	})
}

// ResolveFields returns a copy of values where every field is replaced by
// its resolved value. All failures are returned, one per placeholder.
func (rt *Runtime) ResolveFields(values map[string]interface{}, fields []variable.FieldDescriptor) (map[string]interface{}, []error) {
	data := make(map[string]interface{})
	var errs []error
	for _, field := range fields {
		for _, expression := range field.Expressions {
			if _, done := data[expression]; done {
				continue
			}
			value, err := rt.Evaluate(expression)
			if err != nil {
				errs = append(errs, &TemplateSubstitutionError{
					Placeholder: "${" + expression + "}",
					Path:        field.Path,
					Err:         err,
				})
				continue
			}
			data[expression] = value
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	resolved := v1alpha1.DeepCopyValues(values)
	if resolved == nil {
		resolved = map[string]interface{}{}
	}
	summary := resolver.NewResolver(resolved, data).Resolve(fields)
	if len(summary.Errors) > 0 {
		return nil, summary.Errors
	}
	return resolved, nil
}

// ResolveParameters returns the parameters of a node with every
// expression resolved.
func (rt *Runtime) ResolveParameters(nodeID string) (map[string]interface{}, error) {
	node, ok := rt.graph.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("resource %q not found", nodeID)
	}
	params, errs := rt.ResolveFields(node.Parameters(), node.FieldDescriptors())
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to resolve parameters of %q: %w", nodeID, errors.Join(errs...))
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return params, nil
}

// Validate checks that every reference of the graph selects a declared
// output. It doesn't need any output to be available.
func (rt *Runtime) Validate() error {
	var errs []error
	check := func(nodeID string, ref variable.Reference) {
		if ref.IsVariable() {
			if _, ok := rt.graph.Variables[ref.Output]; !ok {
				errs = append(errs, fmt.Errorf("resource %q: %w", nodeID, &UnknownOutputError{
					Producer: variable.VariablesID,
					Output:   ref.Output,
					Declared: sortedKeys(rt.graph.Variables),
				}))
			}
			return
		}
		producer, ok := rt.graph.Node(ref.Producer)
		if !ok {
			errs = append(errs, fmt.Errorf("resource %q: %w", nodeID, &UnresolvedProducerError{Producer: ref.Producer}))
			return
		}
		if !producer.HasOutput(ref.Output) {
			errs = append(errs, fmt.Errorf("resource %q: %w", nodeID, &UnknownOutputError{
				Producer: ref.Producer,
				Output:   ref.Output,
				Declared: producer.Outputs(),
			}))
		}
	}

	for _, id := range rt.graph.TopologicalOrder {
		node := rt.graph.Nodes[id]
		fields := slices.Clone(node.Variables())
		if node.Template() != nil {
			fields = append(fields, node.Template().Fields...)
		}
		for _, field := range fields {
			for _, ref := range field.References {
				check(id, ref)
			}
		}

		conditions := slices.Concat(node.GetReadyWhenExpressions(), node.GetIncludeWhenExpressions())
		for _, expression := range conditions {
			refs, err := rt.References(expression)
			if err != nil {
				errs = append(errs, fmt.Errorf("resource %q: %w", id, err))
				continue
			}
			for _, ref := range refs {
				check(id, ref)
			}
		}
	}
	if rt.graph.Outputs != nil {
		for _, field := range rt.graph.Outputs.Fields {
			for _, ref := range field.References {
				check("outputs."+field.Path, ref)
			}
		}
	}
	return errors.Join(errs...)
}

// ResolveOutputs returns the stack outputs with every expression
// resolved. A stack without outputs resolves to an empty map.
func (rt *Runtime) ResolveOutputs() (map[string]interface{}, error) {
	outputs := rt.graph.Outputs
	if outputs == nil {
		return map[string]interface{}{}, nil
	}
	resolved, errs := rt.ResolveFields(outputs.Values, outputs.FieldDescriptors())
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to resolve stack outputs: %w", errors.Join(errs...))
	}
	return resolved, nil
}

// IsReady evaluates the readyWhen expressions of a node over the outputs
// it reported. A node without readyWhen expressions is ready as soon as it
// is applied. When not ready, the returned reason names the first
// expression that evaluated to false.
func (rt *Runtime) IsReady(nodeID string, outputs map[string]interface{}) (bool, string, error) {
	node, ok := rt.graph.Node(nodeID)
	if !ok {
		return false, "", fmt.Errorf("resource %q not found", nodeID)
	}
	expressions := node.GetReadyWhenExpressions()
	if len(expressions) == 0 {
		return true, "", nil
	}

	activation := map[string]interface{}{
		nodeID: outputs,
	}
	for _, expression := range expressions {
		out, err := rt.evaluate(expression, activation)
		if err != nil {
			return false, "", err
		}
		ready, err := krocel.AsBool(expression, out)
		if err != nil {
			return false, "", err
		}
		// returning a reason here to point out which expression is not ready yet
		if !ready {
			return false, fmt.Sprintf("expression %s evaluated to false", expression), nil
		}
	}
	return true, "", nil
}

// WantToCreate evaluates the includeWhen expressions of a node over the
// stack variables. It only looks at the node itself, excluding the
// dependents of an excluded node is left to the caller.
func (rt *Runtime) WantToCreate(nodeID string) (bool, error) {
	node, ok := rt.graph.Node(nodeID)
	if !ok {
		return false, fmt.Errorf("resource %q not found", nodeID)
	}
	conditions := node.GetIncludeWhenExpressions()
	if len(conditions) == 0 {
		return true, nil
	}

	activation := map[string]interface{}{
		variable.VariablesID: rt.graph.Variables,
	}
	for _, condition := range conditions {
		out, err := rt.evaluate(condition, activation)
		if err != nil {
			return false, err
		}
		include, err := krocel.AsBool(condition, out)
		if err != nil {
			return false, err
		}
		if !include {
			return false, nil
		}
	}
	return true, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
