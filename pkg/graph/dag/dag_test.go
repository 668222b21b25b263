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

package dag

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDAGAddNode(t *testing.T) {
	d := NewDirectedAcyclicGraph[string]()

	if err := d.AddVertex("A"); err != nil {
		t.Errorf("Failed to add node: %v", err)
	}

	if err := d.AddVertex("A"); err == nil {
		t.Error("Expected error when adding duplicate node, but got nil")
	}

	if len(d.Vertices) != 1 {
		t.Errorf("Expected 1 node, but got %d", len(d.Vertices))
	}
}

func TestDAGAddEdge(t *testing.T) {
	d := NewDirectedAcyclicGraph[string]()
	require.NoError(t, d.AddVertex("A"))
	require.NoError(t, d.AddVertex("B"))

	if err := d.AddDependencies("A", []string{"B"}); err != nil {
		t.Errorf("Failed to add edge: %v", err)
	}

	if err := d.AddDependencies("A", []string{"C"}); err == nil {
		t.Error("Expected error when adding edge to non-existent node, but got nil")
	}

	err := d.AddDependencies("A", []string{"A"})
	require.Error(t, err)
	cycleErr := AsCycleError[string](err)
	require.NotNil(t, cycleErr)
	assert.Equal(t, []string{"A", "A"}, cycleErr.Cycle)
}

func TestDAGHasCycle(t *testing.T) {
	d := NewDirectedAcyclicGraph[string]()
	require.NoError(t, d.AddVertex("A"))
	require.NoError(t, d.AddVertex("B"))
	require.NoError(t, d.AddVertex("C"))

	require.NoError(t, d.AddDependencies("A", []string{"B"}))
	require.NoError(t, d.AddDependencies("B", []string{"C"}))

	assert.Nil(t, d.findCycle(), "DAG incorrectly reported a cycle")

	require.NoError(t, d.AddDependencies("C", []string{"A"}))
	cycle := d.findCycle()
	assert.Equal(t, []string{"A", "B", "C", "A"}, cycle)

	_, err := d.TopologicalSort()
	require.Error(t, err)
	cycleErr := AsCycleError[string](err)
	require.NotNil(t, cycleErr, "TopologicalSort returned unexpected error: %T %v", err, err)
	assert.Equal(t, "graph contains a cycle: A -> B -> C -> A", cycleErr.Error())
}

func TestDAGCycleIsDeterministic(t *testing.T) {
	for i := 0; i < 20; i++ {
		d := NewDirectedAcyclicGraph[string]()
		for _, id := range []string{"Vpc", "Cluster", "Role", "Addon"} {
			require.NoError(t, d.AddVertex(id))
		}
		require.NoError(t, d.AddDependencies("Role", []string{"Cluster"}))
		require.NoError(t, d.AddDependencies("Cluster", []string{"Role", "Vpc"}))

		_, err := d.TopologicalLayers()
		cycleErr := AsCycleError[string](err)
		require.NotNil(t, cycleErr)
		assert.Equal(t, []string{"Cluster", "Role", "Cluster"}, cycleErr.Cycle)
	}
}

func TestDAGTopologicalSort(t *testing.T) {
	grid := []struct {
		Nodes string
		Edges string
		Want  string
	}{
		{Nodes: "A,B", Want: "A,B"},
		{Nodes: "B,A", Want: "A,B"},
		{Nodes: "A,B", Edges: "A->B", Want: "A,B"},
		{Nodes: "A,B", Edges: "B->A", Want: "B,A"},
		{Nodes: "A,B,C,D,E,F", Want: "A,B,C,D,E,F"},
		{Nodes: "A,B,C,D,E,F", Edges: "C->D", Want: "A,B,C,E,F,D"},
		{Nodes: "A,B,C,D,E,F", Edges: "D->C", Want: "A,B,D,E,F,C"},
		{Nodes: "A,B,C,D,E,F", Edges: "F->A,F->B,B->A", Want: "C,D,E,F,B,A"},
		{Nodes: "A,B,C,D,E,F", Edges: "B->A,C->A,D->B,D->C,F->E,A->E", Want: "D,F,B,C,A,E"},
	}

	for i, g := range grid {
		t.Run(fmt.Sprintf("[%d] nodes=%s,edges=%s", i, g.Nodes, g.Edges), func(t *testing.T) {
			d := buildGraph(t, g.Nodes, g.Edges)

			order, err := d.TopologicalSort()
			require.NoError(t, err)
			assert.Equal(t, g.Want, strings.Join(order, ","))

			checkValidTopologicalOrder(t, d, order)
		})
	}
}

func TestDAGTopologicalLayers(t *testing.T) {
	tests := []struct {
		name  string
		nodes string
		edges string
		want  [][]string
	}{
		{
			name:  "independent vertices share a layer",
			nodes: "C,A,B",
			want:  [][]string{{"A", "B", "C"}},
		},
		{
			name:  "chain",
			nodes: "Vpc,Cluster,Role,Addon",
			edges: "Vpc->Cluster,Cluster->Role,Role->Addon",
			want:  [][]string{{"Vpc"}, {"Cluster"}, {"Role"}, {"Addon"}},
		},
		{
			name:  "diamond",
			nodes: "Vpc,Cluster,Volume,Release",
			edges: "Vpc->Cluster,Vpc->Volume,Cluster->Release,Volume->Release",
			want:  [][]string{{"Vpc"}, {"Cluster", "Volume"}, {"Release"}},
		},
		{
			name:  "vertex waits for its deepest dependency",
			nodes: "A,B,C",
			edges: "A->B,B->C,A->C",
			want:  [][]string{{"A"}, {"B"}, {"C"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := buildGraph(t, tt.nodes, tt.edges)
			layers, err := d.TopologicalLayers()
			require.NoError(t, err)
			assert.Equal(t, tt.want, layers)
		})
	}
}

func TestDAGDependents(t *testing.T) {
	d := buildGraph(t, "Vpc,Cluster,Volume", "Vpc->Volume,Vpc->Cluster")
	assert.Equal(t, []string{"Cluster", "Volume"}, d.Dependents("Vpc"))
	assert.Empty(t, d.Dependents("Cluster"))
}

func buildGraph(t *testing.T, nodes, edges string) *DirectedAcyclicGraph[string] {
	t.Helper()
	d := NewDirectedAcyclicGraph[string]()
	for _, node := range strings.Split(nodes, ",") {
		require.NoError(t, d.AddVertex(node), "adding vertex")
	}
	if edges != "" {
		for _, edge := range strings.Split(edges, ",") {
			tokens := strings.SplitN(edge, "->", 2)
			require.NoError(t, d.AddDependencies(tokens[1], []string{tokens[0]}), "adding edge %q", edge)
		}
	}
	return d
}

func checkValidTopologicalOrder(t *testing.T, d *DirectedAcyclicGraph[string], order []string) {
	pos := make(map[string]int)
	for i, node := range order {
		pos[node] = i
	}

	// Verify that we obey the dependencies
	for _, node := range order {
		for dependency := range d.Vertices[node].DependsOn {
			if pos[node] < pos[dependency] {
				t.Errorf("invalid topological order: %v", order)
			}
		}
	}
}
