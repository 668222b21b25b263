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

// Package ast inspects CEL expressions to find the resources they read.
package ast

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	krocel "github.com/kro-run/stackgraph/pkg/cel"
)

// ResourceDependency is an access to a resource in an expression. For
// "Cluster.oidcIssuer.lowerAscii()" the ID is "Cluster", the Output
// "oidcIssuer" and the Path "Cluster.oidcIssuer".
type ResourceDependency struct {
	ID string
	// Output is the first field selected on the resource. It is empty when
	// the resource is used as a whole.
	Output string
	Path   string
}

// UnknownResource is an access to an identifier that is neither a known
// resource nor a variable bound by a comprehension.
type UnknownResource ResourceDependency

// UnknownFunction is a call to a function the environment doesn't declare.
type UnknownFunction struct {
	Name string
}

// ExpressionInspection holds what an expression reads and calls.
type ExpressionInspection struct {
	ResourceDependencies []ResourceDependency
	UnknownResources     []UnknownResource
	UnknownFunctions     []UnknownFunction
}

// Inspector finds the resources read by expressions. It only parses
// expressions, so they don't need to type check: resources are declared
// as dynamic values.
type Inspector struct {
	env       *cel.Env
	resources []string
}

// DefaultInspector returns an inspector over the default environment,
// with resources declared as variables and functions declared as taking
// and returning any value.
func DefaultInspector(resources []string, functions []string) (*Inspector, error) {
	declarations := make([]cel.EnvOption, 0, len(functions))
	for _, function := range functions {
		declarations = append(declarations,
			cel.Function(function, cel.Overload(function+"_any", []*cel.Type{cel.AnyType}, cel.AnyType)))
	}
	env, err := krocel.DefaultEnvironment(
		krocel.WithResourceIDs(resources),
		krocel.WithCustomDeclarations(declarations),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return NewInspectorWithEnv(env, resources), nil
}

// NewInspectorWithEnv returns an inspector using env to parse expressions
// and to know the declared functions.
func NewInspectorWithEnv(env *cel.Env, resources []string) *Inspector {
	return &Inspector{env: env, resources: slices.Clone(resources)}
}

// Inspect parses expression and returns the resources it reads, in the
// order they appear. An Inspector can inspect any number of expressions.
func (i *Inspector) Inspect(expression string) (ExpressionInspection, error) {
	parsedAST, iss := i.env.Parse(expression)
	if iss.Err() != nil {
		return ExpressionInspection{}, fmt.Errorf("failed to parse expression: %w", iss.Err())
	}
	parsed, err := cel.AstToParsedExpr(parsedAST)
	if err != nil {
		return ExpressionInspection{}, fmt.Errorf("failed to convert expression: %w", err)
	}

	w := &walker{inspector: i}
	w.visit(parsed.GetExpr(), nil)
	return w.inspection, nil
}

// walker visits the AST of a single expression.
type walker struct {
	inspector  *Inspector
	inspection ExpressionInspection
	// bound are the variables of the enclosing comprehensions, innermost
	// last. They shadow resources.
	bound []string
}

// visit walks expr. selectors are the fields selected on expr by its
// parents, outermost last.
func (w *walker) visit(expr *exprpb.Expr, selectors []string) {
	if expr == nil {
		return
	}
	switch e := expr.ExprKind.(type) {
	case *exprpb.Expr_SelectExpr:
		w.visit(e.SelectExpr.Operand, append([]string{e.SelectExpr.Field}, selectors...))
	case *exprpb.Expr_IdentExpr:
		w.ident(e.IdentExpr.Name, selectors)
	case *exprpb.Expr_CallExpr:
		w.call(e.CallExpr)
	case *exprpb.Expr_ComprehensionExpr:
		w.comprehension(e.ComprehensionExpr)
	case *exprpb.Expr_ListExpr:
		for _, element := range e.ListExpr.Elements {
			w.visit(element, nil)
		}
	case *exprpb.Expr_StructExpr:
		for _, entry := range e.StructExpr.Entries {
			w.visit(entry.GetMapKey(), nil)
			w.visit(entry.GetValue(), nil)
		}
	}
}

func (w *walker) ident(name string, selectors []string) {
	if slices.Contains(w.bound, name) || isInternalIdentifier(name) {
		return
	}
	var output string
	if len(selectors) > 0 {
		output = selectors[0]
	}
	access := ResourceDependency{
		ID:     name,
		Output: output,
		Path:   strings.Join(append([]string{name}, selectors...), "."),
	}
	if slices.Contains(w.inspector.resources, name) {
		w.inspection.ResourceDependencies = append(w.inspection.ResourceDependencies, access)
		return
	}
	w.inspection.UnknownResources = append(w.inspection.UnknownResources, UnknownResource(access))
}

func (w *walker) call(call *exprpb.Expr_Call) {
	for _, arg := range call.Args {
		w.visit(arg, nil)
	}

	env := w.inspector.env
	// Namespaced functions, e.g. random.seededString, parse as a method
	// call on an identifier.
	if ident := call.GetTarget().GetIdentExpr(); ident != nil && !slices.Contains(w.bound, ident.Name) {
		if env.HasFunction(ident.Name + "." + call.Function) {
			return
		}
	}
	if !env.HasFunction(call.Function) {
		w.inspection.UnknownFunctions = append(w.inspection.UnknownFunctions, UnknownFunction{Name: call.Function})
	}
	w.visit(call.Target, nil)
}

// comprehension visits the expansion of a macro such as filter, map or
// all. The iteration variable is bound in every part but the range.
func (w *walker) comprehension(comp *exprpb.Expr_Comprehension) {
	w.visit(comp.IterRange, nil)
	w.visit(comp.AccuInit, nil)

	w.bound = append(w.bound, comp.IterVar, comp.AccuVar)
	w.visit(comp.LoopCondition, nil)
	w.visit(comp.LoopStep, nil)
	w.visit(comp.Result, nil)
	w.bound = w.bound[:len(w.bound)-2]
}

// isInternalIdentifier reports identifiers introduced by the parser when
// expanding macros.
func isInternalIdentifier(name string) bool {
	return name == "@result" || strings.HasPrefix(name, "@") || strings.HasPrefix(name, "$$")
}
