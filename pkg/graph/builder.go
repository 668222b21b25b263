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
	"slices"

	"github.com/google/cel-go/cel"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	krocel "github.com/kro-run/stackgraph/pkg/cel"
	"github.com/kro-run/stackgraph/pkg/cel/ast"
	"github.com/kro-run/stackgraph/pkg/graph/dag"
	"github.com/kro-run/stackgraph/pkg/graph/parser"
	"github.com/kro-run/stackgraph/pkg/graph/schema"
	"github.com/kro-run/stackgraph/pkg/graph/variable"
	"github.com/kro-run/stackgraph/pkg/simpleschema"
)

// NewBuilder creates a new Builder. A nil registry means the built-in kind
// schemas.
func NewBuilder(schemas *schema.Registry) *Builder {
	if schemas == nil {
		schemas = schema.DefaultRegistry()
	}
	return &Builder{schemas: schemas}
}

// Builder is responsible of transforming the resources of a stack into a
// Graph that can be planned and executed.
//
// The Builder performs several key functions:
//
//  1. It validates the resource declarations and their naming conventions.
//  2. Extracts the expressions from the parameters, the configuration
//     templates and the readyWhen/includeWhen conditions.
//  3. Builds the dependency graph between the resources, by inspecting the
//     expressions and the explicit dependsOn entries.
//  4. Computes the topological order, failing on cycles.
//
// If any of the above steps fail, the Builder will return an error and no
// provider is ever called.
type Builder struct {
	// schemas holds the schema of each kind, used to know the outputs a
	// resource declares.
	schemas *schema.Registry
}

// BuildStack builds the graph of a stack. Stack defaults are applied to the
// resources before building.
func (b *Builder) BuildStack(stack *v1alpha1.Stack) (*Graph, error) {
	resources := make([]*v1alpha1.Resource, 0, len(stack.Spec.Resources))
	for _, res := range stack.Spec.Resources {
		res = res.DeepCopy()
		if res != nil && res.RemovalPolicy == "" {
			res.RemovalPolicy = stack.Spec.Defaults.RemovalPolicy
		}
		resources = append(resources, res)
	}

	g, err := b.build(resources)
	if err != nil {
		return nil, fmt.Errorf("failed to build stack %q: %w", stack.Name, err)
	}
	g.Name = stack.Name
	g.Variables, err = stackVariables(stack)
	if err != nil {
		return nil, fmt.Errorf("failed to build stack %q: %w", stack.Name, err)
	}
	g.Tags = stack.Spec.Defaults.Tags
	g.Outputs, err = buildOutputs(stack.Spec.Outputs, g.NodeIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to build stack %q: %w", stack.Name, err)
	}
	return g, nil
}

// buildOutputs parses the stack outputs and extracts the references of
// their expressions.
func buildOutputs(outputs map[string]string, ids []string) (*StackOutputs, error) {
	if len(outputs) == 0 {
		return nil, nil
	}
	values := make(map[string]interface{}, len(outputs))
	for name, value := range outputs {
		values[name] = value
	}
	descriptors, err := parser.ParseParameters(values)
	if err != nil {
		return nil, fmt.Errorf("failed to extract expressions from outputs: %w", err)
	}

	knownIDs := append(slices.Clone(ids), variable.VariablesID)
	env, err := krocel.DefaultEnvironment(krocel.WithResourceIDs(knownIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	fields := make([]*variable.ResourceField, 0, len(descriptors))
	for _, descriptor := range descriptors {
		field := &variable.ResourceField{
			Kind:            variable.ResourceVariableKindStatic,
			FieldDescriptor: descriptor,
		}
		for _, expression := range descriptor.Expressions {
			refs, err := extractReferences(env, knownIDs, "outputs."+descriptor.Path, expression)
			if err != nil {
				return nil, err
			}
			field.AddReferences(refs...)
		}
		if len(field.Dependencies) > 0 {
			field.Kind = variable.ResourceVariableKindDynamic
		}
		fields = append(fields, field)
	}
	return &StackOutputs{Values: values, Fields: fields}, nil
}

// stackVariables returns the variables of a stack, defaulted and
// validated against the stack schema when it declares one.
func stackVariables(stack *v1alpha1.Stack) (map[string]interface{}, error) {
	variables := v1alpha1.DeepCopyValues(stack.Spec.Variables)
	if len(stack.Spec.Schema) == 0 {
		if variables == nil {
			variables = map[string]interface{}{}
		}
		return variables, nil
	}
	s, err := simpleschema.Compile(stack.Spec.Schema)
	if err != nil {
		return nil, fmt.Errorf("invalid variables schema: %w", err)
	}
	variables = s.Default(variables)
	if err := s.Validate(variables); err != nil {
		return nil, err
	}
	return variables, nil
}

// Build builds the graph of the given resources. The resources are not
// modified.
func (b *Builder) Build(resources []*v1alpha1.Resource) (*Graph, error) {
	copies := make([]*v1alpha1.Resource, 0, len(resources))
	for _, res := range resources {
		copies = append(copies, res.DeepCopy())
	}
	g, err := b.build(copies)
	if err != nil {
		return nil, err
	}
	g.Variables = map[string]interface{}{}
	return g, nil
}

func (b *Builder) build(resources []*v1alpha1.Resource) (*Graph, error) {
	// Resource ids are CEL variable names, and can't collide.
	if err := validateResources(resources); err != nil {
		return nil, err
	}

	// ids keeps the declaration order, so errors are reported for the first
	// offending resource.
	ids := make([]string, 0, len(resources))
	nodes := make(map[string]*Node, len(resources))
	for _, res := range resources {
		n, err := b.buildNode(res)
		if err != nil {
			return nil, fmt.Errorf("failed to build resource %q: %w", res.ID, err)
		}
		ids = append(ids, res.ID)
		nodes[res.ID] = n
	}

	directedAcyclicGraph, err := b.buildDependencyGraph(ids, nodes)
	if err != nil {
		return nil, err
	}

	layers, err := directedAcyclicGraph.TopologicalLayers()
	if err != nil {
		if cycleErr := dag.AsCycleError[string](err); cycleErr != nil {
			return nil, &CyclicDependencyError{Cycle: cycleErr.Cycle}
		}
		return nil, fmt.Errorf("failed to get topological order: %w", err)
	}
	order := make([]string, 0, len(ids))
	for _, layer := range layers {
		order = append(order, layer...)
	}

	return &Graph{
		DAG:              directedAcyclicGraph,
		Nodes:            nodes,
		TopologicalOrder: order,
		Layers:           layers,
	}, nil
}

// buildNode extracts the expressions of a resource. Dependencies are filled
// in by buildDependencyGraph.
func (b *Builder) buildNode(res *v1alpha1.Resource) (*Node, error) {
	kindSchema, ok := b.schemas.Get(res.Kind)
	if !ok {
		return nil, fmt.Errorf("no schema registered for kind %s", res.Kind)
	}

	fieldDescriptors, err := parser.ParseParameters(res.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to extract expressions from parameters: %w", err)
	}
	variables := make([]*variable.ResourceField, 0, len(fieldDescriptors))
	for _, fieldDescriptor := range fieldDescriptors {
		variables = append(variables, &variable.ResourceField{
			// Assume variables are static, we'll validate them later
			Kind:            variable.ResourceVariableKindStatic,
			FieldDescriptor: fieldDescriptor,
		})
	}

	var template *Template
	if res.Template != nil {
		template, err = NewTemplate(res.Template)
		if err != nil {
			return nil, err
		}
		if template.Name == "" {
			template.Name = res.ID
		}
	}

	readyWhen, err := parser.ParseConditionExpressions(res.ReadyWhen)
	if err != nil {
		return nil, fmt.Errorf("failed to parse readyWhen expressions: %w", err)
	}
	includeWhen, err := parser.ParseConditionExpressions(res.IncludeWhen)
	if err != nil {
		return nil, fmt.Errorf("failed to parse includeWhen expressions: %w", err)
	}

	outputs := slices.Clone(kindSchema.Outputs)
	for _, output := range res.Outputs {
		if !slices.Contains(outputs, output) {
			outputs = append(outputs, output)
		}
	}

	removalPolicy := res.RemovalPolicy
	if removalPolicy == "" {
		removalPolicy = v1alpha1.RemovalPolicyDestroy
	}

	return &Node{
		id:                     res.ID,
		kind:                   res.Kind,
		removalPolicy:          removalPolicy,
		schema:                 kindSchema,
		parameters:             v1alpha1.DeepCopyValues(res.Parameters),
		variables:              variables,
		template:               template,
		explicitDependencies:   slices.Clone(res.DependsOn),
		readyWhenExpressions:   readyWhen,
		includeWhenExpressions: includeWhen,
		outputs:                outputs,
		state:                  StatePending,
	}, nil
}

// buildDependencyGraph inspects the expressions of every node and adds an
// edge producer -> node for each resource they refer to, on top of the
// explicit dependsOn entries.
func (b *Builder) buildDependencyGraph(ids []string, nodes map[string]*Node) (*dag.DirectedAcyclicGraph[string], error) {
	// Expressions may refer to every resource and to the stack variables.
	knownIDs := append(slices.Clone(ids), variable.VariablesID)
	env, err := krocel.DefaultEnvironment(krocel.WithResourceIDs(knownIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	directedAcyclicGraph := dag.NewDirectedAcyclicGraph[string]()
	for _, id := range ids {
		if err := directedAcyclicGraph.AddVertex(id); err != nil {
			return nil, fmt.Errorf("failed to add vertex to graph: %w", err)
		}
	}

	for _, id := range ids {
		node := nodes[id]

		fields := slices.Clone(node.variables)
		if node.template != nil {
			fields = append(fields, node.template.Fields...)
		}
		for _, field := range fields {
			for _, expression := range field.Expressions {
				refs, err := extractReferences(env, knownIDs, node.id, expression)
				if err != nil {
					return nil, err
				}
				field.AddReferences(refs...)
			}
			// Static until proven dynamic.
			if len(field.Dependencies) > 0 {
				field.Kind = variable.ResourceVariableKindDynamic
			}
			if slices.Contains(field.Dependencies, node.id) {
				return nil, &CyclicDependencyError{Cycle: []string{node.id, node.id}}
			}
			node.addDependencies(field.Dependencies...)
		}

		for _, dep := range node.explicitDependencies {
			if _, ok := nodes[dep]; !ok {
				return nil, &DanglingReferenceError{NodeID: node.id, Producer: dep}
			}
			node.addDependencies(dep)
		}

		// readyWhen reads the node own outputs, includeWhen the stack
		// variables. Neither adds dependencies.
		for _, expression := range node.readyWhenExpressions {
			if err := validateConditionContext(env, expression, node.id); err != nil {
				return nil, fmt.Errorf("resource %q: invalid readyWhen expression: %w", node.id, err)
			}
		}
		for _, expression := range node.includeWhenExpressions {
			if err := validateConditionContext(env, expression, variable.VariablesID); err != nil {
				return nil, fmt.Errorf("resource %q: invalid includeWhen expression: %w", node.id, err)
			}
		}

		if err := directedAcyclicGraph.AddDependencies(node.id, node.dependencies); err != nil {
			if cycleErr := dag.AsCycleError[string](err); cycleErr != nil {
				return nil, &CyclicDependencyError{Cycle: cycleErr.Cycle}
			}
			return nil, err
		}
	}

	return directedAcyclicGraph, nil
}

// extractReferences returns the (producer, output) pairs read by an
// expression. Identifiers that aren't declared are reported as a
// DanglingReferenceError.
func extractReferences(env *cel.Env, knownIDs []string, nodeID, expression string) ([]variable.Reference, error) {
	inspector := ast.NewInspectorWithEnv(env, knownIDs)
	inspection, err := inspector.Inspect(expression)
	if err != nil {
		return nil, fmt.Errorf("resource %q: failed to inspect expression %q: %w", nodeID, expression, err)
	}
	if len(inspection.UnknownResources) > 0 {
		return nil, &DanglingReferenceError{
			NodeID:     nodeID,
			Producer:   inspection.UnknownResources[0].ID,
			Expression: expression,
		}
	}
	if len(inspection.UnknownFunctions) > 0 {
		return nil, fmt.Errorf("resource %q: unknown functions in expression %q: %v",
			nodeID, expression, inspection.UnknownFunctions)
	}

	refs := make([]variable.Reference, 0, len(inspection.ResourceDependencies))
	for _, dep := range inspection.ResourceDependencies {
		if dep.Output == "" {
			return nil, fmt.Errorf("resource %q: expression %q must select an output of %s",
				nodeID, expression, dep.ID)
		}
		refs = append(refs, variable.Ref(dep.ID, dep.Output))
	}
	return refs, nil
}

// validateConditionContext checks that a condition expression only refers
// to the allowed identifier.
func validateConditionContext(env *cel.Env, expression, allowed string) error {
	inspector := ast.NewInspectorWithEnv(env, []string{allowed})
	inspection, err := inspector.Inspect(expression)
	if err != nil {
		return err
	}
	if len(inspection.UnknownResources) > 0 {
		return fmt.Errorf("expression %q can only refer to %s, found %s",
			expression, allowed, inspection.UnknownResources[0].ID)
	}
	if len(inspection.UnknownFunctions) > 0 {
		return fmt.Errorf("unknown functions in expression %q: %v", expression, inspection.UnknownFunctions)
	}
	return nil
}
