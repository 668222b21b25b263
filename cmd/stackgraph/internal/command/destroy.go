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
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/executor"
	"github.com/kro-run/stackgraph/pkg/graph"
	"github.com/kro-run/stackgraph/pkg/plan"
	"github.com/kro-run/stackgraph/pkg/reconciler"
	"github.com/kro-run/stackgraph/pkg/state"
)

func newDestroyCommand(o *options) *cobra.Command {
	var (
		r         runOptions
		stackName string
	)
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear a stack down",
		Long: Highlight("stackgraph destroy") + "\n\n" +
			"Delete every resource recorded in the snapshot of the stack, a\n" +
			"resource only once the resources depending on it are gone. Resources\n" +
			"with the Retain removal policy are forgotten but left in place.\n\n" +
			"With --stack the stack file is not read: the stack is torn down from\n" +
			"its snapshot alone.\n",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var stack *v1alpha1.Stack
			name := stackName
			if name == "" {
				var err error
				if stack, err = o.loadStack(); err != nil {
					return err
				}
				name = stack.Name
			}

			store, err := o.store(ctx)
			if err != nil {
				return err
			}
			snapshot, err := store.Load(ctx, name)
			if err != nil {
				return err
			}
			if snapshot.IsEmpty() {
				fmt.Fprintf(out, "Nothing to destroy for stack %q.\n", name)
				return nil
			}

			g, err := teardownGraph(stack, snapshot)
			if err != nil {
				return err
			}
			p := plan.BuildTeardown(g)
			printPlan(out, p)

			registry, err := o.providers(ctx, kindsOf(g, snapshot), r.dryRun)
			if err != nil {
				return err
			}
			if r.dryRun {
				store = nil
			}
			defer r.serveMetrics(o.log)()

			exec := executor.New(registry, reconciler.NewReconciler(), store, r.config(o), o.log)
			if err := exec.Teardown(ctx, g, p, snapshot); err != nil {
				return err
			}
			fmt.Fprintln(out, Highlight("Destroyed!"), fmt.Sprintf("stack %q is gone.", name))
			return nil
		},
	}
	cmd.Flags().StringVar(&stackName, "stack", "", "Name of the stack to destroy from its snapshot alone")
	r.addFlags(cmd)
	return cmd
}

// teardownGraph returns the graph to tear down. Without a stack it is
// rebuilt from the snapshot. With one, resources recorded in the snapshot
// but no longer declared are added from the snapshot, so nothing applied
// is left behind.
func teardownGraph(stack *v1alpha1.Stack, snapshot *state.Snapshot) (*graph.Graph, error) {
	builder := graph.NewBuilder(nil)
	if stack == nil {
		g, err := builder.Build(snapshot.Declarations())
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild stack %q from its snapshot: %w", snapshot.Stack, err)
		}
		g.Name = snapshot.Stack
		return g, nil
	}

	declared := sets.New[string]()
	for _, res := range stack.Spec.Resources {
		if res != nil {
			declared.Insert(res.ID)
		}
	}
	withOrphans := *stack
	withOrphans.Spec.Resources = slices.Clone(stack.Spec.Resources)
	for _, res := range snapshot.Declarations() {
		if !declared.Has(res.ID) {
			withOrphans.Spec.Resources = append(withOrphans.Spec.Resources, res)
		}
	}
	return builder.BuildStack(&withOrphans)
}
