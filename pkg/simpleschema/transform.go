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

package simpleschema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"k8s.io/kube-openapi/pkg/validation/spec"
)

// transformer builds OpenAPI schemas from field declarations.
type transformer struct{}

func newTransformer() *transformer {
	return &transformer{}
}

// objectSchema builds the schema of an object from the declarations of
// its fields. path is the path of the object, used in errors.
func (tf *transformer) objectSchema(path string, obj map[string]interface{}) (*spec.Schema, error) {
	schema := &spec.Schema{
		SchemaProps: spec.SchemaProps{
			Type:       []string{"object"},
			Properties: make(map[string]spec.Schema, len(obj)),
		},
	}

	for key, value := range obj {
		fieldPath := key
		if path != "" {
			fieldPath = path + "." + key
		}
		var (
			field *spec.Schema
			err   error
		)
		switch v := value.(type) {
		case map[string]interface{}:
			field, err = tf.objectSchema(fieldPath, v)
		case string:
			field, err = tf.fieldSchema(fieldPath, key, v, schema)
		default:
			err = fmt.Errorf("field %s: expected a type declaration or an object, got %T", fieldPath, value)
		}
		if err != nil {
			return nil, err
		}
		schema.Properties[key] = *field
	}
	slices.Sort(schema.Required)
	return schema, nil
}

// fieldSchema parses a `type | markers` declaration. Required fields are
// added to the required list of parent.
func (tf *transformer) fieldSchema(path, key, declaration string, parent *spec.Schema) (*spec.Schema, error) {
	typ, markers, err := parseFieldSchema(declaration)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", path, err)
	}
	schema, err := typeSchema(typ)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", path, err)
	}
	if err := tf.applyMarkers(schema, markers, key, parent); err != nil {
		return nil, fmt.Errorf("field %s: %w", path, err)
	}
	return schema, nil
}

// parseFieldSchema splits a declaration into its type and its markers.
func parseFieldSchema(declaration string) (string, []*Marker, error) {
	typ, markers, hasMarkers := strings.Cut(declaration, "|")
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return "", nil, fmt.Errorf("empty type")
	}
	if !hasMarkers {
		return typ, nil, nil
	}
	parsed, err := parseMarkers(strings.TrimSpace(markers))
	if err != nil {
		return "", nil, err
	}
	return typ, parsed, nil
}

func (tf *transformer) applyMarkers(schema *spec.Schema, markers []*Marker, key string, parent *spec.Schema) error {
	for _, marker := range markers {
		switch marker.MarkerType {
		case MarkerTypeRequired:
			required, err := strconv.ParseBool(marker.Value)
			if err != nil {
				return fmt.Errorf("invalid required marker %q: %w", marker.Value, err)
			}
			if required && parent != nil {
				parent.Required = append(parent.Required, key)
			}
		case MarkerTypeDefault:
			value, err := parseValue(schema, marker.Value)
			if err != nil {
				return fmt.Errorf("invalid default: %w", err)
			}
			schema.Default = value
		case MarkerTypeDescription:
			schema.Description = marker.Value
		case MarkerTypeMinimum, MarkerTypeMaximum:
			if !schema.Type.Contains("integer") && !schema.Type.Contains("number") {
				return fmt.Errorf("%s is only supported on numbers, got type %s", marker.MarkerType, schema.Type)
			}
			val, err := strconv.ParseFloat(marker.Value, 64)
			if err != nil {
				return fmt.Errorf("invalid %s value: %w", marker.MarkerType, err)
			}
			if marker.MarkerType == MarkerTypeMinimum {
				schema.Minimum = &val
			} else {
				schema.Maximum = &val
			}
		case MarkerTypeEnum:
			for _, raw := range strings.Split(marker.Value, ",") {
				raw = strings.TrimSpace(raw)
				if raw == "" {
					return fmt.Errorf("empty enum values are not allowed")
				}
				if !schema.Type.Contains("string") && !schema.Type.Contains("integer") {
					return fmt.Errorf("enum values only supported for string and integer types, got type: %s", schema.Type)
				}
				value, err := parseValue(schema, raw)
				if err != nil {
					return fmt.Errorf("invalid enum value: %w", err)
				}
				schema.Enum = append(schema.Enum, value)
			}
		}
	}
	if schema.Default != nil && len(schema.Enum) > 0 && !slices.Contains(schema.Enum, schema.Default) {
		return fmt.Errorf("default %v is not one of the enum values", schema.Default)
	}
	return nil
}

// parseValue parses a marker value for a field of the given schema.
// Strings are taken as is, anything else is decoded as JSON, so numbers
// decode as float64 like variables read from YAML.
func parseValue(schema *spec.Schema, raw string) (interface{}, error) {
	if schema.Type.Contains("string") {
		return raw, nil
	}
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("%q is not a valid %s: %w", raw, schema.Type, err)
	}
	if schema.Type.Contains("integer") {
		n, ok := value.(float64)
		if !ok || n != float64(int64(n)) {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
	}
	return value, nil
}
