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
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/kro-run/stackgraph/pkg/graph"
	"github.com/kro-run/stackgraph/pkg/plan"
	"github.com/kro-run/stackgraph/pkg/reconciler"
	"github.com/kro-run/stackgraph/pkg/runtime"
	"github.com/kro-run/stackgraph/pkg/state"
)

var operationColors = map[reconciler.Operation]*color.Color{
	reconciler.OperationCreate: color.New(color.FgGreen),
	reconciler.OperationUpdate: color.New(color.FgYellow),
	reconciler.OperationDelete: color.New(color.FgRed),
	reconciler.OperationNoop:   color.New(color.Faint),
}

// printLayers prints the layers of a graph, one line per layer.
func printLayers(w io.Writer, g *graph.Graph) {
	fmt.Fprintf(w, "%s %q: %d resources in %d layers\n", Highlight("Stack"), g.Name, len(g.Nodes), len(g.Layers))
	for i, layer := range g.Layers {
		fmt.Fprintf(w, "  layer %d: %s\n", i, strings.Join(layer, ", "))
	}
}

// printPlan prints the steps of a plan in execution order, followed by
// their differences and a summary line.
func printPlan(w io.Writer, p *plan.DeploymentPlan) {
	fmt.Fprintf(w, "%s %q:\n", Highlight("Plan for stack"), p.Stack)
	for _, id := range p.Order() {
		step := p.Steps[id]
		symbol := step.Operation.Symbol()
		if step.Replace {
			symbol = "-/+"
		}
		line := fmt.Sprintf("  %s %s (%s)", symbol, id, step.Kind)
		var notes []string
		if step.Deferred {
			notes = append(notes, "known after apply")
		}
		if step.Replace {
			notes = append(notes, "replace")
		}
		if step.Retain {
			notes = append(notes, "retained")
		}
		if step.Orphan {
			notes = append(notes, "no longer declared")
		}
		if len(notes) > 0 {
			line += " [" + strings.Join(notes, ", ") + "]"
		}
		operationColors[step.Operation].Fprintln(w, line)
		for _, diff := range step.Differences {
			fmt.Fprintf(w, "      %s: %s => %s\n", diff.Path, formatValue(diff.Observed), formatValue(diff.Desired))
		}
	}

	counts := p.Count()
	fmt.Fprintf(w, "Plan: %d to create, %d to update, %d to delete, %d unchanged.\n",
		counts[reconciler.OperationCreate],
		counts[reconciler.OperationUpdate],
		counts[reconciler.OperationDelete],
		counts[reconciler.OperationNoop],
	)
}

// printOutputs prints the stack outputs, sorted by name. Outputs are
// resolved against the live node outputs, then the snapshot for the
// resources the run didn't touch.
func printOutputs(w io.Writer, g *graph.Graph, snapshot *state.Snapshot) error {
	if g.Outputs == nil {
		return nil
	}
	rt, err := runtime.NewRuntime(g, runtime.Sources(
		runtime.NewGraphSource(g),
		runtime.StaticSource(snapshot.Outputs()),
	))
	if err != nil {
		return err
	}
	outputs, err := rt.ResolveOutputs()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s\n", Highlight("Outputs:"))
	for _, name := range slices.Sorted(maps.Keys(outputs)) {
		value, ok := outputs[name].(string)
		if !ok {
			value = formatValue(outputs[name])
		}
		fmt.Fprintf(w, "  %s = %s\n", name, value)
	}
	return nil
}

func formatValue(v interface{}) string {
	if v == nil {
		return "(none)"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
