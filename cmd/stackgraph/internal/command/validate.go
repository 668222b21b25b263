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

	"github.com/kro-run/stackgraph/pkg/runtime"
)

func newValidateCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a stack",
		Long: Highlight("stackgraph validate") + "\n\n" +
			"Load the stack, check its declarations and references, and print\n" +
			"the dependency layers it would be deployed in. No provider is called\n" +
			"and no snapshot is read.\n",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, g, err := o.buildGraph(nil)
			if err != nil {
				return err
			}
			rt, err := runtime.NewRuntime(g, runtime.StaticSource(nil))
			if err != nil {
				return err
			}
			if err := rt.Validate(); err != nil {
				return fmt.Errorf("invalid references: %w", err)
			}

			printLayers(cmd.OutOrStdout(), g)
			fmt.Fprintln(cmd.OutOrStdout(), Highlight("Valid!"), "no errors found.")
			return nil
		},
	}
}
