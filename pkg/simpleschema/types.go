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
	"fmt"
	"strings"

	"k8s.io/kube-openapi/pkg/validation/spec"
)

// AtomicType is the type of a scalar field.
type AtomicType string

const (
	AtomicTypeBool    AtomicType = "boolean"
	AtomicTypeInteger AtomicType = "integer"
	AtomicTypeNumber  AtomicType = "number"
	// AtomicTypeFloat is an alias of AtomicTypeNumber.
	AtomicTypeFloat  AtomicType = "float"
	AtomicTypeString AtomicType = "string"
	// AtomicTypeObject is a free form object.
	AtomicTypeObject AtomicType = "object"
)

func atomicSchema(typ string) (*spec.Schema, bool) {
	var openAPIType string
	switch AtomicType(typ) {
	case AtomicTypeBool:
		openAPIType = "boolean"
	case AtomicTypeInteger:
		openAPIType = "integer"
	case AtomicTypeNumber, AtomicTypeFloat:
		openAPIType = "number"
	case AtomicTypeString:
		openAPIType = "string"
	case AtomicTypeObject:
		openAPIType = "object"
	default:
		return nil, false
	}
	return &spec.Schema{SchemaProps: spec.SchemaProps{Type: []string{openAPIType}}}, true
}

// typeSchema returns the schema of a type expression: an atomic type,
// []T or map[string]T, nested at will.
func typeSchema(typ string) (*spec.Schema, error) {
	typ = strings.TrimSpace(typ)
	switch {
	case typ == "":
		return nil, fmt.Errorf("empty type")
	case strings.HasPrefix(typ, "[]"):
		items, err := typeSchema(typ[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid slice type %q: %w", typ, err)
		}
		return spec.ArrayProperty(items), nil
	case strings.HasPrefix(typ, "map["):
		keyType, valueType, err := parseMapType(typ)
		if err != nil {
			return nil, err
		}
		if keyType != string(AtomicTypeString) {
			return nil, fmt.Errorf("unsupported key type for maps: %s", keyType)
		}
		values, err := typeSchema(valueType)
		if err != nil {
			return nil, fmt.Errorf("invalid map type %q: %w", typ, err)
		}
		return spec.MapProperty(values), nil
	}
	if s, ok := atomicSchema(typ); ok {
		return s, nil
	}
	return nil, fmt.Errorf("unknown type: %s", typ)
}

// parseMapType splits map[K]V into K and V.
func parseMapType(typ string) (string, string, error) {
	rest := strings.TrimPrefix(typ, "map[")
	depth := 1
	for i, char := range rest {
		switch char {
		case '[':
			depth++
		case ']':
			depth--
		}
		if depth == 0 {
			keyType, valueType := strings.TrimSpace(rest[:i]), strings.TrimSpace(rest[i+1:])
			if keyType == "" {
				return "", "", fmt.Errorf("empty map key type in %q", typ)
			}
			if valueType == "" {
				return "", "", fmt.Errorf("empty map value type in %q", typ)
			}
			return keyType, valueType, nil
		}
	}
	return "", "", fmt.Errorf("invalid map type: %s", typ)
}
