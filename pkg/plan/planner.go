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

package plan

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/graph"
	"github.com/kro-run/stackgraph/pkg/materializer"
	"github.com/kro-run/stackgraph/pkg/reconciler"
	"github.com/kro-run/stackgraph/pkg/runtime"
	"github.com/kro-run/stackgraph/pkg/state"
)

// Planner computes the deployment plan of a stack against its snapshot.
type Planner struct {
	reconciler *reconciler.Reconciler
	log        logr.Logger
}

// NewPlanner returns a planner deciding operations with r.
func NewPlanner(r *reconciler.Reconciler, log logr.Logger) *Planner {
	return &Planner{reconciler: r, log: log.WithName("planner")}
}

// Plan walks the graph in topological order and decides the operation of
// every resource:
//
//   - a resource excluded by its includeWhen expressions, or depending on
//     an excluded resource, is not scheduled, and deleted if it was
//     applied before.
//   - a resource whose producers are all unchanged is resolved against the
//     outputs recorded in the snapshot, and decided exactly.
//   - a resource depending on a created or updated resource can only be
//     decided once its producers are applied. It is planned as a deferred
//     Update, or a Create if it was never applied.
//   - resources recorded in the snapshot but no longer declared are
//     deleted.
//
// Nothing is mutated: planning errors, such as an immutable field change,
// are returned before anything runs.
func (p *Planner) Plan(ctx context.Context, g *graph.Graph, snapshot *state.Snapshot) (*DeploymentPlan, error) {
	rt, err := runtime.NewRuntime(g, runtime.StaticSource(snapshot.Outputs()))
	if err != nil {
		return nil, err
	}
	if err := rt.Validate(); err != nil {
		return nil, fmt.Errorf("invalid references: %w", err)
	}

	excluded := sets.New[string]()
	changed := sets.New[string]()
	steps := make(map[string]*Step, len(g.Nodes))
	for _, id := range g.TopologicalOrder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node := g.Nodes[id]
		log := p.log.WithValues("resourceID", id)

		if excluded.HasAny(node.GetDependencies()...) {
			log.V(1).Info("excluding resource, a dependency is excluded")
			excluded.Insert(id)
			continue
		}
		include, err := rt.WantToCreate(id)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate includeWhen of %q: %w", id, err)
		}
		if !include {
			log.V(1).Info("excluding resource, includeWhen evaluated to false")
			excluded.Insert(id)
			continue
		}

		lastApplied, applied := snapshot.Get(id)
		if changed.HasAny(node.GetDependencies()...) {
			step := &Step{Operation: reconciler.OperationCreate}
			if applied {
				step = &Step{Operation: reconciler.OperationUpdate, Deferred: true}
			}
			log.V(1).Info("planned resource", "operation", step.Operation, "deferred", step.Deferred)
			steps[id] = step
			changed.Insert(id)
			continue
		}

		desired, err := Desire(rt, id)
		if err != nil {
			return nil, err
		}
		if !applied {
			lastApplied = nil
		}
		decision, err := p.reconciler.Decide(desired, lastApplied, node.Schema())
		if err != nil {
			return nil, err
		}
		log.V(1).Info("planned resource", "operation", decision.Operation, "differences", len(decision.Differences))
		steps[id] = &Step{
			Operation:   decision.Operation,
			Differences: decision.Differences,
			Replace:     decision.Replace,
		}
		if decision.Operation != reconciler.OperationNoop {
			changed.Insert(id)
		}
	}

	var orphans []*v1alpha1.Resource
	for _, res := range snapshot.Declarations() {
		if _, scheduled := steps[res.ID]; !scheduled {
			orphans = append(orphans, res)
		}
	}
	return Build(g, steps, orphans)
}

// Desire resolves the parameters and the configuration of a node, and
// validates the parameters against the schema of its kind.
func Desire(rt *runtime.Runtime, id string) (reconciler.Desired, error) {
	node, ok := rt.Graph().Node(id)
	if !ok {
		return reconciler.Desired{}, fmt.Errorf("resource %q not found", id)
	}
	params, err := rt.ResolveParameters(id)
	if err != nil {
		return reconciler.Desired{}, err
	}
	if err := node.Schema().ValidateParameters(params); err != nil {
		return reconciler.Desired{}, fmt.Errorf("resource %q: %w", id, err)
	}
	desired := reconciler.Desired{
		NodeID:     id,
		Kind:       node.Kind(),
		Parameters: params,
	}
	config, err := materializer.MaterializeNode(id, rt)
	if err != nil {
		return reconciler.Desired{}, err
	}
	if config != nil {
		desired.Config = config.Values
	}
	return desired, nil
}
