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
)

func newGraphCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph of a stack in DOT format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, g, err := o.buildGraph(nil)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), g.DOT())
			return nil
		},
	}
}
