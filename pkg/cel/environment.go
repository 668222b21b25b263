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

package cel

import (
	"fmt"
	"slices"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
	k8s "k8s.io/apiserver/pkg/cel/library"

	"github.com/kro-run/stackgraph/pkg/cel/library"
)

// EnvOption configures the environment built by DefaultEnvironment.
type EnvOption func(*environment)

type environment struct {
	// resourceIDs are declared as dynamically typed variables.
	resourceIDs []string
	extra       []cel.EnvOption
}

// WithResourceIDs declares ids as variables. Every resource output, and
// the stack variables, are read through them.
func WithResourceIDs(ids []string) EnvOption {
	return func(e *environment) {
		e.resourceIDs = append(e.resourceIDs, ids...)
	}
}

// WithCustomDeclarations adds declarations, such as functions, to the
// environment.
func WithCustomDeclarations(declarations []cel.EnvOption) EnvOption {
	return func(e *environment) {
		e.extra = append(e.extra, declarations...)
	}
}

// libraries are available to every expression of a stack.
func libraries() []cel.EnvOption {
	return []cel.EnvOption{
		ext.Lists(),
		ext.Strings(),
		k8s.URLs(),
		k8s.Regex(),
		k8s.Quantity(),
		library.Random(),
		library.Trim(),
	}
}

// DefaultEnvironment returns the environment expressions are parsed,
// checked and evaluated in.
func DefaultEnvironment(options ...EnvOption) (*cel.Env, error) {
	e := &environment{}
	for _, option := range options {
		option(e)
	}

	ids := slices.Clone(e.resourceIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	declarations := append(libraries(), e.extra...)
	for _, id := range ids {
		declarations = append(declarations, cel.Variable(id, cel.DynType))
	}
	return cel.NewEnv(declarations...)
}

// EvaluateExpression compiles expression in env, evaluates it against
// activation and returns a Go native value.
func EvaluateExpression(env *cel.Env, activation map[string]interface{}, expression string) (interface{}, error) {
	checked, iss := env.Compile(expression)
	if iss.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", expression, iss.Err())
	}
	program, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("failed to program expression %q: %w", expression, err)
	}
	val, _, err := program.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return GoNativeType(val)
}
