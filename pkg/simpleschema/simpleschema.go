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

// Package simpleschema compiles the type declarations of stack variables
// into OpenAPI schemas. Every field is declared with a compact
// `type | marker=value ...` notation, nested maps declare nested objects:
//
//	schema:
//	  region: string | default=us-east-1
//	  replicas: integer | default=2 minimum=1 maximum=10
//	  zones: "[]string | required=true"
//	  cluster:
//	    version: string | enum="1.29,1.30" default="1.30"
//	  tags: map[string]string
//
// Variables are then defaulted and validated against the schema before
// any expression is evaluated.
package simpleschema

import (
	"fmt"

	"k8s.io/kube-openapi/pkg/validation/spec"
	"k8s.io/kube-openapi/pkg/validation/strfmt"
	"k8s.io/kube-openapi/pkg/validation/validate"
)

// Schema is a compiled variables schema.
type Schema struct {
	openAPI *spec.Schema
}

// Compile compiles the declarations of obj. Values of obj are either
// field declarations or maps of nested declarations.
func Compile(obj map[string]interface{}) (*Schema, error) {
	openAPI, err := ToOpenAPISpec(obj)
	if err != nil {
		return nil, err
	}
	return &Schema{openAPI: openAPI}, nil
}

// ToOpenAPISpec converts the declarations of obj to an object schema.
// Fields that are not declared are accepted.
func ToOpenAPISpec(obj map[string]interface{}) (*spec.Schema, error) {
	return newTransformer().objectSchema("", obj)
}

// OpenAPI returns the OpenAPI schema.
func (s *Schema) OpenAPI() *spec.Schema {
	return s.openAPI
}

// Default returns values with the defaults of the schema set for every
// missing field. Nested objects are created when one of their fields has a
// default. values is not modified.
func (s *Schema) Default(values map[string]interface{}) map[string]interface{} {
	out, _ := applyDefaults(s.openAPI, values)
	if out == nil {
		out = map[string]interface{}{}
	}
	return out
}

// Validate validates values against the schema.
func (s *Schema) Validate(values map[string]interface{}) error {
	validator := validate.NewSchemaValidator(s.openAPI, nil, "", strfmt.Default)
	if err := validator.Validate(values).AsError(); err != nil {
		return fmt.Errorf("invalid variables: %w", err)
	}
	return nil
}

// applyDefaults returns a copy of values with the defaults of the object
// schema s applied. The boolean is false when nothing was set on a nil
// object.
func applyDefaults(s *spec.Schema, values map[string]interface{}) (map[string]interface{}, bool) {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		out[k] = v
	}
	set := false
	for name, prop := range s.Properties {
		current, ok := out[name]
		switch {
		case !ok && prop.Default != nil:
			out[name] = copyValue(prop.Default)
			set = true
		case len(prop.Properties) > 0:
			nested, isMap := current.(map[string]interface{})
			if ok && !isMap {
				// Left to validation.
				continue
			}
			defaulted, nestedSet := applyDefaults(&prop, nested)
			if ok || nestedSet {
				out[name] = defaulted
				set = set || nestedSet
			}
		}
	}
	if values == nil && !set {
		return nil, false
	}
	return out, set
}

func copyValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = copyValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = copyValue(val)
		}
		return out
	default:
		return v
	}
}
