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

// Package plan orders the operations of a run into layers of steps that
// can be executed concurrently.
package plan

import (
	"fmt"
	"slices"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/graph"
	"github.com/kro-run/stackgraph/pkg/graph/dag"
	"github.com/kro-run/stackgraph/pkg/reconciler"
	"github.com/kro-run/stackgraph/pkg/reconciler/delta"
)

// Step is the operation planned for a single resource.
type Step struct {
	NodeID    string
	Kind      v1alpha1.Kind
	Operation reconciler.Operation
	// Layer is the index of the layer the step belongs to.
	Layer       int
	Differences []delta.Difference
	// Deferred is true when the step depends on outputs that will only be
	// known during the run. The operation is decided again once they are.
	Deferred bool
	// Replace is true when a Create replaces an existing resource, which
	// is deleted first.
	Replace bool
	// Retain is true for teardown steps of resources that are kept: they
	// are forgotten without calling their provider.
	Retain bool
	// Orphan is true for deletions of resources that are no longer
	// declared. They are not part of the graph.
	Orphan    bool
	DependsOn []string
}

// DeploymentPlan is an ordered set of steps. Steps of the same layer don't
// depend on each other, every step depends only on steps of earlier
// layers.
type DeploymentPlan struct {
	Stack string
	// Teardown is true for plans built by BuildTeardown. Layers are then in
	// teardown order.
	Teardown bool
	Layers   [][]string
	Steps    map[string]*Step
}

// Step returns the step of a resource.
func (p *DeploymentPlan) Step(id string) (*Step, bool) {
	step, ok := p.Steps[id]
	return step, ok
}

// Order returns the ids of the steps in execution order.
func (p *DeploymentPlan) Order() []string {
	order := make([]string, 0, len(p.Steps))
	for _, layer := range p.Layers {
		order = append(order, layer...)
	}
	return order
}

// TeardownOrder returns the ids of the resources a teardown plan deletes,
// in order. Retained resources are left out.
func (p *DeploymentPlan) TeardownOrder() []string {
	var order []string
	for _, id := range p.Order() {
		if !p.Steps[id].Retain {
			order = append(order, id)
		}
	}
	return order
}

// HasChanges returns true if any step is something else than a Noop.
func (p *DeploymentPlan) HasChanges() bool {
	for _, step := range p.Steps {
		if step.Operation != reconciler.OperationNoop {
			return true
		}
	}
	return false
}

// Count returns the number of steps per operation.
func (p *DeploymentPlan) Count() map[reconciler.Operation]int {
	counts := make(map[reconciler.Operation]int)
	for _, step := range p.Steps {
		counts[step.Operation]++
	}
	return counts
}

// Build lays out the steps of the graph nodes found in steps with a
// layered Kahn's algorithm: a layer holds the steps whose dependencies are
// all in earlier layers, sorted by id. Nodes without a step are not
// scheduled, and no scheduled step may depend on them.
//
// Orphans are resources recorded in the snapshot that are no longer part
// of the graph. They are deleted in their own layers, after everything
// else, dependents first.
func Build(g *graph.Graph, steps map[string]*Step, orphans []*v1alpha1.Resource) (*DeploymentPlan, error) {
	p := &DeploymentPlan{
		Stack: g.Name,
		Steps: make(map[string]*Step, len(steps)+len(orphans)),
	}

	d := dag.NewDirectedAcyclicGraph[string]()
	for _, id := range g.TopologicalOrder {
		if _, ok := steps[id]; ok {
			if err := d.AddVertex(id); err != nil {
				return nil, err
			}
		}
	}
	for id, step := range steps {
		node, ok := g.Node(id)
		if !ok {
			return nil, fmt.Errorf("step %q has no resource in the graph", id)
		}
		deps := node.GetDependencies()
		for _, dep := range deps {
			if _, ok := steps[dep]; !ok {
				return nil, fmt.Errorf("resource %q depends on %q, which is not scheduled", id, dep)
			}
		}
		if err := d.AddDependencies(id, deps); err != nil {
			return nil, err
		}
		step.NodeID = id
		step.Kind = node.Kind()
		step.DependsOn = slices.Clone(deps)
		p.Steps[id] = step
	}

	layers, err := d.TopologicalLayers()
	if err != nil {
		return nil, err
	}
	p.Layers = append(p.Layers, layers...)

	orphanLayers, err := orphanLayers(orphans)
	if err != nil {
		return nil, err
	}
	for _, layer := range orphanLayers {
		for _, res := range layer {
			p.Steps[res.ID] = &Step{
				NodeID:    res.ID,
				Kind:      res.Kind,
				Operation: reconciler.OperationDelete,
				Orphan:    true,
				Retain:    res.RemovalPolicy == v1alpha1.RemovalPolicyRetain,
				DependsOn: slices.Clone(res.DependsOn),
			}
		}
		p.Layers = append(p.Layers, resourceIDs(layer))
	}

	for i, layer := range p.Layers {
		for _, id := range layer {
			p.Steps[id].Layer = i
		}
	}
	return p, nil
}

// orphanLayers orders orphans for deletion: a resource is deleted before
// the resources it depended on.
func orphanLayers(orphans []*v1alpha1.Resource) ([][]*v1alpha1.Resource, error) {
	if len(orphans) == 0 {
		return nil, nil
	}
	byID := make(map[string]*v1alpha1.Resource, len(orphans))
	d := dag.NewDirectedAcyclicGraph[string]()
	for _, res := range orphans {
		byID[res.ID] = res
		if err := d.AddVertex(res.ID); err != nil {
			return nil, err
		}
	}
	for _, res := range orphans {
		// Dependencies on resources that are still declared don't
		// constrain the orphans, those resources aren't deleted.
		var deps []string
		for _, dep := range res.DependsOn {
			if _, ok := byID[dep]; ok {
				deps = append(deps, dep)
			}
		}
		if err := d.AddDependencies(res.ID, deps); err != nil {
			return nil, err
		}
	}
	layers, err := d.TopologicalLayers()
	if err != nil {
		return nil, err
	}
	slices.Reverse(layers)

	out := make([][]*v1alpha1.Resource, 0, len(layers))
	for _, layer := range layers {
		resources := make([]*v1alpha1.Resource, 0, len(layer))
		for _, id := range slices.Backward(layer) {
			resources = append(resources, byID[id])
		}
		out = append(out, resources)
	}
	return out, nil
}

// BuildTeardown returns the plan deleting every resource of the graph in
// the exact reverse of the creation order, so a resource is deleted
// before the resources it depends on. Retained resources keep a step, marked Retain,
// so they are forgotten at the right time.
func BuildTeardown(g *graph.Graph) *DeploymentPlan {
	p := &DeploymentPlan{
		Stack:    g.Name,
		Teardown: true,
		Steps:    make(map[string]*Step, len(g.Nodes)),
	}
	layers := slices.Clone(g.Layers)
	slices.Reverse(layers)
	for i, layer := range layers {
		layer = slices.Clone(layer)
		slices.Reverse(layer)
		p.Layers = append(p.Layers, layer)
		for _, id := range layer {
			node := g.Nodes[id]
			p.Steps[id] = &Step{
				NodeID:    id,
				Kind:      node.Kind(),
				Operation: reconciler.OperationDelete,
				Layer:     i,
				Retain:    node.IsRetained(),
				DependsOn: dependents(g, id),
			}
		}
	}
	return p
}

// dependents returns the resources that must be gone before id is
// deleted.
func dependents(g *graph.Graph, id string) []string {
	return sets.List(sets.New(g.Dependents(id)...))
}

func resourceIDs(resources []*v1alpha1.Resource) []string {
	ids := make([]string, 0, len(resources))
	for _, res := range resources {
		ids = append(ids, res.ID)
	}
	return ids
}
