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

	"github.com/spf13/cobra"

	"github.com/kro-run/stackgraph/pkg/executor"
	"github.com/kro-run/stackgraph/pkg/state"
)

func newApplyCommand(o *options) *cobra.Command {
	var (
		p planOptions
		r runOptions
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge a stack",
		Long: Highlight("stackgraph apply") + "\n\n" +
			"Plan the stack and run the plan: resources are created, updated and\n" +
			"deleted layer by layer, independent resources in parallel. What was\n" +
			"applied is saved in the snapshot, even when the run fails. The stack\n" +
			"outputs are printed once the stack is up to date.\n",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			result, err := o.planStack(ctx, &p)
			if err != nil {
				return err
			}
			printPlan(out, result.plan)
			if !result.plan.HasChanges() {
				fmt.Fprintln(out, "No changes.")
				return printOutputs(out, result.graph, result.snapshot)
			}

			registry, err := o.providers(ctx, kindsOf(result.graph, result.snapshot), r.dryRun)
			if err != nil {
				return err
			}
			var store state.Store = result.store
			if r.dryRun {
				store = nil
			}
			defer r.serveMetrics(o.log)()

			exec := executor.New(registry, p.reconciler(), store, r.config(o), o.log)
			if err := exec.Execute(ctx, result.graph, result.plan, result.snapshot); err != nil {
				return err
			}
			fmt.Fprintln(out, Highlight("Applied!"), fmt.Sprintf("stack %q is up to date.", result.graph.Name))
			return printOutputs(out, result.graph, result.snapshot)
		},
	}
	p.addFlags(cmd)
	r.addFlags(cmd)
	return cmd
}
