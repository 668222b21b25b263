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
	"errors"
	"fmt"
	"reflect"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

var (
	// ErrUnsupportedType is returned when the type is not supported.
	ErrUnsupportedType = errors.New("unsupported type")
)

// GoNativeType transforms CEL output into corresponding Go types. Lists and
// maps are converted recursively so the result can be stored in a parameter
// tree and serialized.
func GoNativeType(v ref.Val) (interface{}, error) {
	switch v.Type() {
	case types.BoolType:
		return v.Value().(bool), nil
	case types.IntType:
		return v.Value().(int64), nil
	case types.UintType:
		return v.Value().(uint64), nil
	case types.DoubleType:
		return v.Value().(float64), nil
	case types.StringType:
		return v.Value().(string), nil
	case types.ListType:
		native, err := v.ConvertToNative(reflect.TypeOf([]interface{}{}))
		if err != nil {
			return nil, err
		}
		return normalize(native)
	case types.MapType:
		native, err := v.ConvertToNative(reflect.TypeOf(map[string]interface{}{}))
		if err != nil {
			return nil, err
		}
		return normalize(native)
	case types.NullType:
		return nil, nil
	default:
		// For types we can't convert, return as is with an error
		return v.Value(), fmt.Errorf("%w: %v", ErrUnsupportedType, v.Type())
	}
}

func normalize(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case ref.Val:
		return GoNativeType(val)
	case []ref.Val:
		out := make([]interface{}, len(val))
		for i, item := range val {
			n, err := GoNativeType(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[ref.Val]ref.Val:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			key, ok := k.Value().(string)
			if !ok {
				return nil, fmt.Errorf("%w: map key %v", ErrUnsupportedType, k.Type())
			}
			n, err := GoNativeType(item)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []interface{}:
		for i, item := range val {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			val[i] = n
		}
		return val, nil
	case map[string]interface{}:
		for k, item := range val {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			val[k] = n
		}
		return val, nil
	default:
		return val, nil
	}
}

// IsBoolType checks if the given ref.Val is of type BoolType
func IsBoolType(v ref.Val) bool {
	return v.Type() == types.BoolType
}

// AsBool returns the value of a condition expression result, failing when
// the expression didn't produce a boolean.
func AsBool(expression string, v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expression %s must evaluate to a bool, got %T", expression, v)
	}
	return b, nil
}
