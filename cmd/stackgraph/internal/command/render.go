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
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kro-run/stackgraph/pkg/materializer"
	"github.com/kro-run/stackgraph/pkg/runtime"
)

func newRenderCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "render [RESOURCE...]",
		Short: "Print the materialized configuration of Release resources",
		Long: Highlight("stackgraph render [RESOURCE...]") + "\n\n" +
			"Resolve the configuration templates of the stack against the outputs\n" +
			"recorded in its snapshot, and print them as YAML documents. Without\n" +
			"arguments every template is rendered.\n",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			_, g, err := o.buildGraph(nil)
			if err != nil {
				return err
			}
			selected := sets.New(args...)
			for id := range selected {
				if _, ok := g.Node(id); !ok {
					return fmt.Errorf("resource %q not found in stack %q", id, g.Name)
				}
			}

			store, err := o.store(ctx)
			if err != nil {
				return err
			}
			snapshot, err := store.Load(ctx, g.Name)
			if err != nil {
				return err
			}
			rt, err := runtime.NewRuntime(g, runtime.StaticSource(snapshot.Outputs()))
			if err != nil {
				return err
			}

			var errs []error
			for _, id := range g.TopologicalOrder {
				if selected.Len() > 0 && !selected.Has(id) {
					continue
				}
				config, err := materializer.MaterializeNode(id, rt)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if config == nil {
					continue
				}
				data, err := config.YAML()
				if err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(out, "---\n# Source: %s\n%s", id, data)
			}
			return errors.Join(errs...)
		},
	}
}
