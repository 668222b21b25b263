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

// Package materializer turns configuration templates into concrete
// documents by resolving every placeholder they hold.
package materializer

import (
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/graph"
	"github.com/kro-run/stackgraph/pkg/runtime"
)

// ResolvedConfig is a configuration document with every placeholder
// replaced by its value.
type ResolvedConfig struct {
	// Name is the name of the template.
	Name string
	// Owner is the id of the resource the configuration belongs to.
	Owner  string
	Values map[string]interface{}
}

// YAML renders the resolved values.
func (c *ResolvedConfig) YAML() ([]byte, error) {
	values := c.Values
	if values == nil {
		values = map[string]interface{}{}
	}
	return yaml.Marshal(values)
}

// MaterializeError lists every placeholder of a template that could not
// be resolved.
type MaterializeError struct {
	Owner string
	Errs  []error
}

func (e *MaterializeError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("failed to materialize config of %q: %d unresolved placeholder(s): %s",
		e.Owner, len(e.Errs), strings.Join(msgs, "; "))
}

func (e *MaterializeError) Unwrap() []error {
	return e.Errs
}

// Materialize resolves a template against the outputs of the Ready nodes
// of g.
func Materialize(owner string, tmpl *v1alpha1.ConfigTemplate, g *graph.Graph) (*ResolvedConfig, error) {
	template, err := graph.NewTemplate(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template of %q: %w", owner, err)
	}
	if template.Name == "" {
		template.Name = owner
	}
	rt, err := runtime.NewRuntime(g, runtime.NewGraphSource(g))
	if err != nil {
		return nil, err
	}
	return MaterializeWith(owner, template, rt)
}

// MaterializeWith resolves a template with the given runtime. All
// placeholders are attempted, failures are reported together in a
// MaterializeError.
func MaterializeWith(owner string, tmpl *graph.Template, rt *runtime.Runtime) (*ResolvedConfig, error) {
	values, errs := rt.ResolveFields(tmpl.Values, tmpl.FieldDescriptors())
	if len(errs) > 0 {
		return nil, &MaterializeError{Owner: owner, Errs: errs}
	}
	return &ResolvedConfig{
		Name:   tmpl.Name,
		Owner:  owner,
		Values: values,
	}, nil
}

// MaterializeNode resolves the template of a node. It returns nil when
// the node has no template.
func MaterializeNode(nodeID string, rt *runtime.Runtime) (*ResolvedConfig, error) {
	node, ok := rt.Graph().Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("resource %q not found", nodeID)
	}
	if node.Template() == nil {
		return nil, nil
	}
	return MaterializeWith(nodeID, node.Template(), rt)
}
