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
	"strings"

	"golang.org/x/exp/maps"

	"github.com/kro-run/stackgraph/pkg/graph/dag"
	"github.com/kro-run/stackgraph/pkg/graph/variable"
)

// Graph represents a processed stack. It contains the DAG representation
// and everything needed to plan and run the resources of the stack.
type Graph struct {
	// Name is the name of the stack.
	Name string
	// DAG is the directed acyclic graph representation of the stack. An edge
	// producer -> consumer is stored as a dependency of the consumer.
	DAG *dag.DirectedAcyclicGraph[string]
	// Nodes is a map of the processed resources of the stack.
	Nodes map[string]*Node
	// TopologicalOrder is the creation order of the resources.
	TopologicalOrder []string
	// Layers groups TopologicalOrder by depth. Nodes of a layer don't depend
	// on each other.
	Layers [][]string
	// Variables are the stack variables, referenced as ${vars.<key>}.
	Variables map[string]interface{}
	// Tags are the stack default tags.
	Tags map[string]string
	// Outputs are the stack outputs, nil when the stack declares none.
	Outputs *StackOutputs
}

// StackOutputs are the values a stack reports once it is applied. They
// may refer to any resource and to the stack variables, and don't take
// part in the ordering.
type StackOutputs struct {
	// Values holds the declared values, by output name.
	Values map[string]interface{}
	// Fields are the values holding expressions.
	Fields []*variable.ResourceField
}

// FieldDescriptors returns the descriptors of the values holding
// expressions.
func (o *StackOutputs) FieldDescriptors() []variable.FieldDescriptor {
	descriptors := make([]variable.FieldDescriptor, 0, len(o.Fields))
	for _, field := range o.Fields {
		descriptors = append(descriptors, field.FieldDescriptor)
	}
	return descriptors
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// NodeIDs returns the ids of every node, sorted.
func (g *Graph) NodeIDs() []string {
	ids := maps.Keys(g.Nodes)
	slices.Sort(ids)
	return ids
}

// Dependents returns the ids of the nodes depending directly on id.
func (g *Graph) Dependents(id string) []string {
	return g.DAG.Dependents(id)
}

// Reset moves every node back to Pending.
func (g *Graph) Reset() {
	for _, n := range g.Nodes {
		n.Reset()
	}
}

// DeepCopy returns a copy of the graph with every node in Pending state.
func (g *Graph) DeepCopy() *Graph {
	nodes := make(map[string]*Node, len(g.Nodes))
	for id, n := range g.Nodes {
		nodes[id] = n.DeepCopy()
	}
	layers := make([][]string, 0, len(g.Layers))
	for _, layer := range g.Layers {
		layers = append(layers, slices.Clone(layer))
	}
	return &Graph{
		Name:             g.Name,
		DAG:              g.DAG,
		Nodes:            nodes,
		TopologicalOrder: slices.Clone(g.TopologicalOrder),
		Layers:           layers,
		Variables:        g.Variables,
		Tags:             g.Tags,
		Outputs:          g.Outputs,
	}
}

// DOT renders the graph in the graphviz DOT language. Nodes of the same
// layer share a rank.
func (g *Graph) DOT() string {
	var b strings.Builder
	name := g.Name
	if name == "" {
		name = "stack"
	}
	fmt.Fprintf(&b, "digraph %q {\n", name)
	b.WriteString("  rankdir=LR;\n")
	for _, layer := range g.Layers {
		b.WriteString("  { rank=same;")
		for _, id := range layer {
			fmt.Fprintf(&b, " %q;", id)
		}
		b.WriteString(" }\n")
	}
	for _, id := range g.TopologicalOrder {
		n := g.Nodes[id]
		fmt.Fprintf(&b, "  %q [label=%q];\n", id, fmt.Sprintf("%s\n%s", id, n.kind))
	}
	for _, id := range g.TopologicalOrder {
		deps := slices.Clone(g.Nodes[id].dependencies)
		slices.Sort(deps)
		for _, dep := range deps {
			fmt.Fprintf(&b, "  %q -> %q;\n", dep, id)
		}
	}
	b.WriteString("}\n")
	return b.String()
}
