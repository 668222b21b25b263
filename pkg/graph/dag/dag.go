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
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
)

// Vertex represents a node/vertex in a directed acyclic graph.
type Vertex[T cmp.Ordered] struct {
	// ID is a unique identifier for the node
	ID T
	// DependsOn stores the IDs of the nodes that this node depends on.
	// If we depend on another vertex, we must appear after that vertex in the topological sort.
	DependsOn map[T]struct{}
}

func (v Vertex[T]) String() string {
	deps := sortedKeys(v.DependsOn)
	parts := make([]string, 0, len(deps))
	for _, dep := range deps {
		parts = append(parts, fmt.Sprintf("%v", dep))
	}
	return fmt.Sprintf("Vertex[ID: %v, DependsOn: %s]", v.ID, strings.Join(parts, ","))
}

// DirectedAcyclicGraph represents a directed acyclic graph
type DirectedAcyclicGraph[T cmp.Ordered] struct {
	// Vertices stores the nodes in the graph
	Vertices map[T]*Vertex[T]
}

// NewDirectedAcyclicGraph creates a new directed acyclic graph.
func NewDirectedAcyclicGraph[T cmp.Ordered]() *DirectedAcyclicGraph[T] {
	return &DirectedAcyclicGraph[T]{
		Vertices: make(map[T]*Vertex[T]),
	}
}

// AddVertex adds a new node to the graph.
func (d *DirectedAcyclicGraph[T]) AddVertex(id T) error {
	if _, exists := d.Vertices[id]; exists {
		return fmt.Errorf("node %v already exists", id)
	}
	d.Vertices[id] = &Vertex[T]{
		ID:        id,
		DependsOn: make(map[T]struct{}),
	}
	return nil
}

type CycleError[T cmp.Ordered] struct {
	Cycle []T
}

func (e *CycleError[T]) Error() string {
	return fmt.Sprintf("graph contains a cycle: %s", FormatCycle(e.Cycle))
}

// FormatCycle renders a cycle as "A -> B -> A".
func FormatCycle[T cmp.Ordered](cycle []T) string {
	parts := make([]string, 0, len(cycle))
	for _, s := range cycle {
		parts = append(parts, fmt.Sprintf("%v", s))
	}
	return strings.Join(parts, " -> ")
}

// AsCycleError returns the (potentially wrapped) CycleError, or nil if it is not a CycleError.
func AsCycleError[T cmp.Ordered](err error) *CycleError[T] {
	cycleError := &CycleError[T]{}
	if errors.As(err, &cycleError) {
		return cycleError
	}
	return nil
}

// AddDependencies adds a set of dependencies to the "from" vertex.
// This indicates that all the vertexes in "dependencies" must occur before "from".
//
// Edges are recorded even when they close a cycle: callers add every edge
// first and then ask for a topological sort, which reports the cycle.
func (d *DirectedAcyclicGraph[T]) AddDependencies(from T, dependencies []T) error {
	fromNode, fromExists := d.Vertices[from]
	if !fromExists {
		return fmt.Errorf("node %v does not exist", from)
	}

	for _, dependency := range dependencies {
		if from == dependency {
			return &CycleError[T]{Cycle: []T{from, from}}
		}
		if _, toExists := d.Vertices[dependency]; !toExists {
			return fmt.Errorf("node %v does not exist", dependency)
		}
		fromNode.DependsOn[dependency] = struct{}{}
	}
	return nil
}

// Dependents returns the ids of the vertices depending directly on id,
// sorted.
func (d *DirectedAcyclicGraph[T]) Dependents(id T) []T {
	var dependents []T
	for _, vertex := range d.Vertices {
		if _, ok := vertex.DependsOn[id]; ok {
			dependents = append(dependents, vertex.ID)
		}
	}
	slices.Sort(dependents)
	return dependents
}

// TopologicalSort returns the vertexes of the graph flattened from
// TopologicalLayers.
func (d *DirectedAcyclicGraph[T]) TopologicalSort() ([]T, error) {
	layers, err := d.TopologicalLayers()
	if err != nil {
		return nil, err
	}
	order := make([]T, 0, len(d.Vertices))
	for _, layer := range layers {
		order = append(order, layer...)
	}
	return order, nil
}

// TopologicalLayers runs a layered Kahn's algorithm. Each layer holds the
// vertices whose dependencies all belong to earlier layers, sorted by ID so
// the result is reproducible. Vertices of the same layer have no dependency
// on each other.
func (d *DirectedAcyclicGraph[T]) TopologicalLayers() ([][]T, error) {
	inDegree := make(map[T]int, len(d.Vertices))
	dependents := make(map[T][]T, len(d.Vertices))
	for id, vertex := range d.Vertices {
		inDegree[id] = len(vertex.DependsOn)
		for dep := range vertex.DependsOn {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var current []T
	for id, degree := range inDegree {
		if degree == 0 {
			current = append(current, id)
		}
	}
	slices.Sort(current)

	var layers [][]T
	visited := 0
	for len(current) > 0 {
		layers = append(layers, current)
		visited += len(current)

		var next []T
		for _, id := range current {
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		slices.Sort(next)
		current = next
	}

	if visited != len(d.Vertices) {
		return nil, &CycleError[T]{Cycle: d.findCycle()}
	}
	return layers, nil
}

// findCycle returns the first cycle met by a depth first search walking
// vertices and dependencies in sorted order, closed by its first vertex.
// It returns nil when the graph is acyclic.
func (d *DirectedAcyclicGraph[T]) findCycle() []T {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[T]int, len(d.Vertices))
	var path []T

	var walk func(T) []T
	walk = func(id T) []T {
		state[id] = onPath
		path = append(path, id)
		for _, dep := range sortedKeys(d.Vertices[id].DependsOn) {
			switch state[dep] {
			case onPath:
				start := slices.Index(path, dep)
				return append(slices.Clone(path[start:]), dep)
			case unvisited:
				if cycle := walk(dep); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for _, id := range sortedKeys(d.Vertices) {
		if state[id] != unvisited {
			continue
		}
		if cycle := walk(id); cycle != nil {
			return cycle
		}
	}
	return nil
}

func sortedKeys[T cmp.Ordered, V any](m map[T]V) []T {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
