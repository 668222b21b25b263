// Copyright Amazon.com Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"). You may
// not use this file except in compliance with the License. A copy of the
// License is located at
//
//	http://aws.amazon.com/apache2.0/
//
// or in the "license" file accompanying this file. This file is distributed
// on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either
// express or implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package resolver writes evaluated expression values back into a
// parameter tree.
package resolver

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/kro-run/stackgraph/pkg/graph/fieldpath"
	"github.com/kro-run/stackgraph/pkg/graph/parser"
	"github.com/kro-run/stackgraph/pkg/graph/variable"
)

// Result describes what happened to one field.
type Result struct {
	Path        string
	Expressions []string
	Value       interface{}
	Err         error
}

// Summary aggregates the results of a Resolve call.
type Summary struct {
	Resolved int
	Results  []Result
	Errors   []error
}

// Resolver substitutes values into tree. values is keyed by expression
// source; callers only pass the expressions they managed to evaluate.
type Resolver struct {
	tree   map[string]interface{}
	values map[string]interface{}
}

// NewResolver returns a Resolver mutating tree in place.
func NewResolver(tree map[string]interface{}, values map[string]interface{}) *Resolver {
	return &Resolver{tree: tree, values: values}
}

// Resolve applies every field to the tree. Value fields go first, then
// key fields from the deepest to the shallowest, so renaming a key never
// invalidates a path still to be processed.
func (r *Resolver) Resolve(fields []variable.FieldDescriptor) Summary {
	var values, keys []variable.FieldDescriptor
	for _, field := range fields {
		if field.KeyExpression {
			keys = append(keys, field)
		} else {
			values = append(values, field)
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return depth(keys[i].Path) > depth(keys[j].Path)
	})

	summary := Summary{Results: make([]Result, 0, len(fields))}
	for _, field := range append(values, keys...) {
		var res Result
		if field.KeyExpression {
			res = r.renameKey(field)
		} else {
			res = r.replaceValue(field)
		}
		summary.Results = append(summary.Results, res)
		if res.Err != nil {
			summary.Errors = append(summary.Errors, res.Err)
			continue
		}
		summary.Resolved++
	}
	return summary
}

// UpsertValueAtPath sets value at path, creating missing maps and growing
// lists along the way.
func (r *Resolver) UpsertValueAtPath(path string, value interface{}) error {
	segments, err := fieldpath.Parse(path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}
	_, err = assign(r.tree, segments, value)
	return err
}

func (r *Resolver) replaceValue(field variable.FieldDescriptor) Result {
	res := Result{Path: field.Path, Expressions: field.Expressions}

	current, err := r.lookup(field.Path)
	if err != nil {
		res.Err = fmt.Errorf("field %s: %w", field.Path, err)
		return res
	}

	var value interface{}
	if field.StandaloneExpression {
		v, ok := r.values[field.Expressions[0]]
		if !ok {
			res.Err = fmt.Errorf("field %s: no value for expression %q", field.Path, field.Expressions[0])
			return res
		}
		value = v
	} else {
		template, ok := current.(string)
		if !ok {
			res.Err = fmt.Errorf("field %s: expected a string, got %T", field.Path, current)
			return res
		}
		s, err := r.interpolate(template)
		if err != nil {
			res.Err = fmt.Errorf("field %s: %w", field.Path, err)
			return res
		}
		value = s
	}

	if err := r.UpsertValueAtPath(field.Path, value); err != nil {
		res.Err = fmt.Errorf("field %s: %w", field.Path, err)
		return res
	}
	res.Value = value
	return res
}

func (r *Resolver) renameKey(field variable.FieldDescriptor) Result {
	res := Result{Path: field.Path, Expressions: field.Expressions}

	segments, err := fieldpath.Parse(field.Path)
	if err != nil || len(segments) == 0 || segments[len(segments)-1].IsIndex() {
		res.Err = fmt.Errorf("invalid key path %q", field.Path)
		return res
	}
	last := len(segments) - 1
	oldKey := segments[last].Name

	parent, err := lookup(r.tree, segments[:last])
	if err != nil {
		res.Err = fmt.Errorf("key %s: %w", field.Path, err)
		return res
	}
	m, ok := parent.(map[string]interface{})
	if !ok {
		res.Err = fmt.Errorf("key %s: parent is a %T, not a map", field.Path, parent)
		return res
	}

	newKey, err := r.interpolate(oldKey)
	if err != nil {
		res.Err = fmt.Errorf("key %s: %w", field.Path, err)
		return res
	}
	if newKey != oldKey {
		if _, taken := m[newKey]; taken {
			res.Err = fmt.Errorf("key %q resolved to %q which already exists", oldKey, newKey)
			return res
		}
		m[newKey] = m[oldKey]
		delete(m, oldKey)
	}
	res.Value = newKey
	return res
}

func (r *Resolver) interpolate(template string) (string, error) {
	return parser.Interpolate(template, func(expression string) (string, error) {
		v, ok := r.values[expression]
		if !ok {
			return "", fmt.Errorf("no value for expression %q", expression)
		}
		return StringValue(v)
	})
}

func (r *Resolver) lookup(path string) (interface{}, error) {
	segments, err := fieldpath.Parse(path)
	if err != nil {
		return nil, err
	}
	return lookup(r.tree, segments)
}

// StringValue returns the form of v used when it is interpolated in a
// string. Lists and maps are rendered as JSON.
func StringValue(v interface{}) (string, error) {
	switch value := v.(type) {
	case nil:
		return "", nil
	case string:
		return value, nil
	case bool:
		return strconv.FormatBool(value), nil
	case int:
		return strconv.Itoa(value), nil
	case int32:
		return strconv.FormatInt(int64(value), 10), nil
	case int64:
		return strconv.FormatInt(value, 10), nil
	case uint64:
		return strconv.FormatUint(value, 10), nil
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), nil
	case []interface{}, map[string]interface{}, []string:
		b, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return fmt.Sprint(value), nil
	}
}

func lookup(node interface{}, segments []fieldpath.Segment) (interface{}, error) {
	for _, segment := range segments {
		if segment.IsIndex() {
			list, ok := node.([]interface{})
			if !ok {
				return nil, fmt.Errorf("expected a list at index %d, got %T", segment.Index, node)
			}
			if segment.Index >= len(list) {
				return nil, fmt.Errorf("index %d out of range (length %d)", segment.Index, len(list))
			}
			node = list[segment.Index]
			continue
		}
		m, ok := node.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected a map at key %q, got %T", segment.Name, node)
		}
		child, ok := m[segment.Name]
		if !ok {
			return nil, fmt.Errorf("key %q not found", segment.Name)
		}
		node = child
	}
	return node, nil
}

// assign stores value under node at segments and returns the container
// that should replace node. Maps are updated in place; lists may be
// reallocated when they grow.
func assign(node interface{}, segments []fieldpath.Segment, value interface{}) (interface{}, error) {
	if len(segments) == 0 {
		return value, nil
	}
	segment, rest := segments[0], segments[1:]

	if segment.IsIndex() {
		list, ok := node.([]interface{})
		if !ok && node != nil {
			return nil, fmt.Errorf("expected a list at index %d, got %T", segment.Index, node)
		}
		if segment.Index >= len(list) {
			grown := make([]interface{}, segment.Index+1)
			copy(grown, list)
			list = grown
		}
		child, err := assign(list[segment.Index], rest, value)
		if err != nil {
			return nil, err
		}
		list[segment.Index] = child
		return list, nil
	}

	m, ok := node.(map[string]interface{})
	if !ok && node != nil {
		return nil, fmt.Errorf("expected a map at key %q, got %T", segment.Name, node)
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	child, err := assign(m[segment.Name], rest, value)
	if err != nil {
		return nil, err
	}
	m[segment.Name] = child
	return m, nil
}

func depth(path string) int {
	segments, err := fieldpath.Parse(path)
	if err != nil {
		return 0
	}
	return len(segments)
}
