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

package parser

import (
	"fmt"
	"sort"

	"github.com/kro-run/stackgraph/pkg/graph/fieldpath"
	"github.com/kro-run/stackgraph/pkg/graph/variable"
)

// ParseParameters extracts the fields holding expressions from a schemaless
// parameter tree. Typed variable.Reference values are reported as
// standalone expressions. Map keys may hold expressions too (trust policy
// conditions are keyed by the OIDC issuer); those are reported with
// KeyExpression set.
//
// Fields are returned sorted by path so callers get a stable order.
func ParseParameters(parameters map[string]interface{}) ([]variable.FieldDescriptor, error) {
	fields, err := parseValue(parameters, "")
	if err != nil {
		return nil, err
	}
	sort.SliceStable(fields, func(i, j int) bool {
		if fields[i].KeyExpression != fields[j].KeyExpression {
			return !fields[i].KeyExpression
		}
		return fields[i].Path < fields[j].Path
	})
	return fields, nil
}

func parseValue(value interface{}, path string) ([]variable.FieldDescriptor, error) {
	var fields []variable.FieldDescriptor
	switch field := value.(type) {
	case map[string]interface{}:
		for key, item := range field {
			itemPath := fieldpath.Join(path, key)
			keyField, err := parseString(key, itemPath)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			if keyField != nil {
				keyField.KeyExpression = true
				fields = append(fields, *keyField)
			}
			itemFields, err := parseValue(item, itemPath)
			if err != nil {
				return nil, err
			}
			fields = append(fields, itemFields...)
		}
	case []interface{}:
		for i, item := range field {
			itemFields, err := parseValue(item, fieldpath.JoinIndex(path, i))
			if err != nil {
				return nil, err
			}
			fields = append(fields, itemFields...)
		}
	case variable.Reference:
		if field.Producer == "" || field.Output == "" {
			return nil, fmt.Errorf("incomplete reference at %s: %+v", path, field)
		}
		fields = append(fields, variable.FieldDescriptor{
			Path:                 path,
			Expressions:          []string{field.Expression()},
			StandaloneExpression: true,
		})
	case *variable.Reference:
		if field == nil {
			return nil, nil
		}
		return parseValue(*field, path)
	case string:
		f, err := parseString(field, path)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", path, err)
		}
		if f != nil {
			fields = append(fields, *f)
		}
	default:
		// Ignore other types
	}
	return fields, nil
}

func parseString(field string, path string) (*variable.FieldDescriptor, error) {
	ok, err := isStandaloneExpression(field)
	if err != nil {
		return nil, err
	}
	if ok {
		expressions, _ := extractExpressions(field)
		return &variable.FieldDescriptor{
			Path:                 path,
			Expressions:          expressions,
			StandaloneExpression: true,
		}, nil
	}

	expressions, err := extractExpressions(field)
	if err != nil {
		return nil, err
	}
	if len(expressions) == 0 && !hasEscapes(field) {
		return nil, nil
	}
	return &variable.FieldDescriptor{
		Path:        path,
		Expressions: expressions,
	}, nil
}

// ParseConditionExpressions parses readyWhen and includeWhen entries. Each
// entry must be a single standalone expression; the expressions are
// returned without their delimiters.
func ParseConditionExpressions(conditions []string) ([]string, error) {
	expressions := make([]string, 0, len(conditions))
	for _, condition := range conditions {
		ok, err := isStandaloneExpression(condition)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("only standalone expressions are allowed")
		}
		extracted, _ := extractExpressions(condition)
		expressions = append(expressions, extracted[0])
	}
	return expressions, nil
}
