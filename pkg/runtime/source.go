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

package runtime

import (
	"github.com/kro-run/stackgraph/pkg/graph"
)

// OutputSource gives access to the outputs of the resources of a stack.
//
// The executor reads live outputs from the graph, while planning reads the
// outputs recorded in the last snapshot.
type OutputSource interface {
	// Outputs returns the outputs of producer, and false if they are not
	// available.
	Outputs(producer string) (map[string]interface{}, bool)
}

// GraphSource reads the outputs of the Ready nodes of a graph.
type GraphSource struct {
	graph *graph.Graph
}

// NewGraphSource returns an OutputSource backed by the node states of g.
func NewGraphSource(g *graph.Graph) *GraphSource {
	return &GraphSource{graph: g}
}

func (s *GraphSource) Outputs(producer string) (map[string]interface{}, bool) {
	node, ok := s.graph.Node(producer)
	if !ok {
		return nil, false
	}
	return node.ObservedOutputs()
}

// StaticSource is an OutputSource over a fixed set of outputs, keyed by
// resource id.
type StaticSource map[string]map[string]interface{}

func (s StaticSource) Outputs(producer string) (map[string]interface{}, bool) {
	outputs, ok := s[producer]
	return outputs, ok
}

// Sources returns an OutputSource trying each source in turn.
func Sources(sources ...OutputSource) OutputSource {
	return chain(sources)
}

type chain []OutputSource

func (c chain) Outputs(producer string) (map[string]interface{}, bool) {
	for _, source := range c {
		if outputs, ok := source.Outputs(producer); ok {
			return outputs, true
		}
	}
	return nil, false
}
