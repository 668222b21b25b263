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

package command

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kro-run/stackgraph/pkg/graph"
	"github.com/kro-run/stackgraph/pkg/plan"
	"github.com/kro-run/stackgraph/pkg/state"
)

// planned is a stack planned against its snapshot.
type planned struct {
	graph    *graph.Graph
	snapshot *state.Snapshot
	store    state.Store
	plan     *plan.DeploymentPlan
}

// planStack loads the stack and its snapshot, and plans the run.
func (o *options) planStack(ctx context.Context, p *planOptions) (*planned, error) {
	_, g, err := o.buildGraph(p.apply)
	if err != nil {
		return nil, err
	}
	store, err := o.store(ctx)
	if err != nil {
		return nil, err
	}
	snapshot, err := store.Load(ctx, g.Name)
	if err != nil {
		return nil, err
	}
	dp, err := plan.NewPlanner(p.reconciler(), o.log).Plan(ctx, g, snapshot)
	if err != nil {
		return nil, err
	}
	return &planned{graph: g, snapshot: snapshot, store: store, plan: dp}, nil
}

func newPlanCommand(o *options) *cobra.Command {
	var p planOptions
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a run would change",
		Long: Highlight("stackgraph plan") + "\n\n" +
			"Compare the stack with the snapshot of the last run and list the\n" +
			"operation of every resource, in execution order:\n\n" +
			"  + create   ~ update   - delete   = unchanged\n\n" +
			"Updates of resources depending on changed resources are only known\n" +
			"after apply, they are decided again during the run.\n",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := o.planStack(cmd.Context(), &p)
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), result.plan)
			return nil
		},
	}
	p.addFlags(cmd)
	return cmd
}
