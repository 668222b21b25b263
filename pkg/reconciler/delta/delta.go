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

package delta

import (
	"reflect"
	"slices"
	"strings"

	"github.com/kro-run/stackgraph/pkg/graph/fieldpath"
)

// Difference represents a single field-level difference between the
// desired parameters of a resource and the ones recorded when it was last
// applied.
type Difference struct {
	// Path is the full path to the differing field (e.g. "subnets[0].cidr")
	Path string `json:"path"`
	// Desired is the desired value at the path, nil if the field was removed
	Desired interface{} `json:"desired"`
	// Observed is the recorded value at the path, nil if the field is new
	Observed interface{} `json:"observed"`
}

// Compare returns the differences between desired and recorded
// parameters, sorted by path. Parameters are declarative: a field present
// in recorded but not in desired is a difference too.
//
// Numbers compare by value, so a parameter read back from YAML as a float
// equals the integer it was declared as.
func Compare(desired, recorded map[string]interface{}) []Difference {
	var differences []Difference
	walkCompare(desired, recorded, "", &differences)
	slices.SortFunc(differences, func(a, b Difference) int {
		return strings.Compare(a.Path, b.Path)
	})
	return differences
}

// Paths returns the paths of the differences.
func Paths(differences []Difference) []string {
	paths := make([]string, 0, len(differences))
	for _, d := range differences {
		paths = append(paths, d.Path)
	}
	return paths
}

// walkCompare recursively compares desired and observed values, recording any
// differences found. Maps are compared key by key, slices element by
// element when their lengths match.
func walkCompare(desired, observed interface{}, path string, differences *[]Difference) {
	switch d := desired.(type) {
	case map[string]interface{}:
		e, ok := observed.(map[string]interface{})
		if !ok {
			*differences = append(*differences, Difference{
				Path:     path,
				Observed: observed,
				Desired:  desired,
			})
			return
		}
		walkMap(d, e, path, differences)

	case []interface{}:
		e, ok := observed.([]interface{})
		if !ok {
			*differences = append(*differences, Difference{
				Path:     path,
				Observed: observed,
				Desired:  desired,
			})
			return
		}
		walkSlice(d, e, path, differences)

	default:
		if !equalScalars(desired, observed) {
			*differences = append(*differences, Difference{
				Path:     path,
				Observed: observed,
				Desired:  desired,
			})
		}
	}
}

// walkMap compares two maps recursively. Keys missing on either side are
// recorded as differences, unless the present value is nil or an empty
// collection.
func walkMap(desired, observed map[string]interface{}, path string, differences *[]Difference) {
	for k, desiredVal := range desired {
		newPath := fieldpath.Join(path, k)

		observedVal, exists := observed[k]
		if !exists {
			if !isEmpty(desiredVal) {
				*differences = append(*differences, Difference{
					Path:    newPath,
					Desired: desiredVal,
				})
			}
			continue
		}

		walkCompare(desiredVal, observedVal, newPath, differences)
	}

	for k, observedVal := range observed {
		if _, exists := desired[k]; exists || isEmpty(observedVal) {
			continue
		}
		*differences = append(*differences, Difference{
			Path:     fieldpath.Join(path, k),
			Observed: observedVal,
		})
	}
}

// walkSlice compares two slices recursively:
// - If lengths differ: records entire slice as different
// - If lengths match: recursively compares elements
func walkSlice(desired, observed []interface{}, path string, differences *[]Difference) {
	if len(desired) != len(observed) {
		*differences = append(*differences, Difference{
			Path:     path,
			Observed: observed,
			Desired:  desired,
		})
		return
	}

	for i := range desired {
		walkCompare(desired[i], observed[i], fieldpath.JoinIndex(path, i), differences)
	}
}

func isEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case map[string]interface{}:
		return len(val) == 0
	case []interface{}:
		return len(val) == 0
	}
	return false
}

func equalScalars(a, b interface{}) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	if a == nil || reflect.TypeOf(a).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
