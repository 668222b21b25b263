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

package aws

import (
	"fmt"
	"maps"
	"slices"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gobuffalo/flect"

	"github.com/kro-run/stackgraph/pkg/provider"
)

// resourceName returns the name parameter of the resource, or a name
// derived from the stack and the resource id, e.g "prod-node-group".
func resourceName(stack, nodeID string, params map[string]interface{}) string {
	if name := stringProp(params, "name"); name != "" {
		return name
	}
	return fmt.Sprintf("%s-%s", stack, flect.Dasherize(nodeID))
}

func desiredName(d provider.Desired) string {
	return resourceName(d.Stack, d.NodeID, d.Parameters)
}

// appliedName returns the name an applied resource was given.
func appliedName(a provider.Applied) string {
	if name := stringProp(a.Entry.Outputs, "name"); name != "" {
		return name
	}
	return resourceName(a.Stack, a.NodeID, a.Entry.Parameters)
}

// outputID returns an identifier reported when the resource was applied.
func outputID(a provider.Applied, key string) (string, error) {
	id := stringProp(a.Entry.Outputs, key)
	if id == "" {
		return "", fmt.Errorf("resource %q has no %s output", a.NodeID, key)
	}
	return id, nil
}

// previousParams returns the parameters that were last applied.
func previousParams(d provider.Desired) map[string]interface{} {
	if d.Previous == nil {
		return nil
	}
	return d.Previous.Parameters
}

// tags returns the tags of a resource: the stack tags, the stackgraph
// labels and the tags parameter, in increasing precedence.
func tags(d provider.Desired) map[string]string {
	out := d.Labels.Tags(d.Tags)
	maps.Copy(out, stringMapProp(d.Parameters, "tags"))
	return out
}

func stringProp(props map[string]interface{}, key string) string {
	s, _ := props[key].(string)
	return s
}

func stringPropDefault(props map[string]interface{}, key, def string) string {
	if s := stringProp(props, key); s != "" {
		return s
	}
	return def
}

// stringSliceProp extracts a string slice from a parameters map.
func stringSliceProp(props map[string]interface{}, key string) []string {
	switch s := props[key].(type) {
	case []string:
		return slices.Clone(s)
	case []interface{}:
		var result []string
		for _, item := range s {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}

// intProp extracts an int property with a default value.
func intProp(props map[string]interface{}, key string, def int) int {
	switch n := props[key].(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func int32Prop(props map[string]interface{}, key string, def int) *int32 {
	return awsv2.Int32(int32(intProp(props, key, def)))
}

func boolProp(props map[string]interface{}, key string, def bool) bool {
	b, ok := props[key].(bool)
	if !ok {
		return def
	}
	return b
}

func stringMapProp(props map[string]interface{}, key string) map[string]string {
	out := map[string]string{}
	switch m := props[key].(type) {
	case map[string]string:
		maps.Copy(out, m)
	case map[string]interface{}:
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

// changed returns true if a parameter differs from what was last applied.
func changed(d provider.Desired, key string) bool {
	prev := previousParams(d)
	if prev == nil {
		return true
	}
	return fmt.Sprint(prev[key]) != fmt.Sprint(d.Parameters[key])
}

func sortedKeys(m map[string]string) []string {
	keys := slices.Collect(maps.Keys(m))
	slices.Sort(keys)
	return keys
}
