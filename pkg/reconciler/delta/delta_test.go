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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
)

func TestCompare_Simple(t *testing.T) {
	desired := map[string]interface{}{
		"desiredSize": int64(3),
		"scaling": map[string]interface{}{
			"instanceTypes": []interface{}{"m5.large"},
		},
	}
	recorded := map[string]interface{}{
		"desiredSize": int64(2),
		"scaling": map[string]interface{}{
			"instanceTypes": []interface{}{"m5.xlarge"},
		},
	}

	differences := Compare(desired, recorded)
	want := []Difference{
		{Path: "scaling.instanceTypes[0]", Desired: "m5.large", Observed: "m5.xlarge"},
		{Path: "desiredSize", Desired: int64(3), Observed: int64(2)},
	}
	sortByPath := cmpopts.SortSlices(func(a, b Difference) bool { return a.Path < b.Path })
	if diff := cmp.Diff(want, differences, sortByPath); diff != "" {
		t.Errorf("Compare() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name      string
		desired   map[string]interface{}
		recorded  map[string]interface{}
		wantPaths []string
	}{
		{
			name:     "identical",
			desired:  map[string]interface{}{"cidrBlock": "10.0.0.0/16", "subnets": []interface{}{"a", "b"}},
			recorded: map[string]interface{}{"cidrBlock": "10.0.0.0/16", "subnets": []interface{}{"a", "b"}},
		},
		{
			name:     "numbers compare by value",
			desired:  map[string]interface{}{"allocatedStorage": 20, "port": int64(5432), "ratio": 0.5},
			recorded: map[string]interface{}{"allocatedStorage": float64(20), "port": float64(5432), "ratio": 0.5},
		},
		{
			name:      "number and string differ",
			desired:   map[string]interface{}{"port": "5432"},
			recorded:  map[string]interface{}{"port": int64(5432)},
			wantPaths: []string{"port"},
		},
		{
			name:      "new field",
			desired:   map[string]interface{}{"name": "demo", "version": "1.31"},
			recorded:  map[string]interface{}{"name": "demo"},
			wantPaths: []string{"version"},
		},
		{
			name:      "removed field",
			desired:   map[string]interface{}{"name": "demo"},
			recorded:  map[string]interface{}{"name": "demo", "version": "1.31"},
			wantPaths: []string{"version"},
		},
		{
			name:     "empty collections equal missing fields",
			desired:  map[string]interface{}{"name": "demo", "tags": map[string]interface{}{}},
			recorded: map[string]interface{}{"name": "demo", "labels": []interface{}{}, "extra": nil},
		},
		{
			name:      "slice length change reports the slice",
			desired:   map[string]interface{}{"subnets": []interface{}{"a", "b", "c"}},
			recorded:  map[string]interface{}{"subnets": []interface{}{"a", "b"}},
			wantPaths: []string{"subnets"},
		},
		{
			name:      "type change",
			desired:   map[string]interface{}{"values": map[string]interface{}{"a": "b"}},
			recorded:  map[string]interface{}{"values": "a=b"},
			wantPaths: []string{"values"},
		},
		{
			name: "keys with dots are quoted",
			desired: map[string]interface{}{
				"conditions": map[string]interface{}{"oidc.example.com:aud": "sts.amazonaws.com"},
			},
			recorded: map[string]interface{}{
				"conditions": map[string]interface{}{"oidc.example.com:aud": "other"},
			},
			wantPaths: []string{`conditions["oidc.example.com:aud"]`},
		},
		{
			name: "nested lists of maps",
			desired: map[string]interface{}{
				"subnets": []interface{}{
					map[string]interface{}{"cidr": "10.0.1.0/24", "zone": "a"},
					map[string]interface{}{"cidr": "10.0.2.0/24", "zone": "b"},
				},
			},
			recorded: map[string]interface{}{
				"subnets": []interface{}{
					map[string]interface{}{"cidr": "10.0.1.0/24", "zone": "a"},
					map[string]interface{}{"cidr": "10.0.3.0/24", "zone": "b"},
				},
			},
			wantPaths: []string{"subnets[1].cidr"},
		},
		{
			name:      "nil recorded",
			desired:   map[string]interface{}{"name": "demo"},
			wantPaths: []string{"name"},
		},
		{
			name: "both nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			differences := Compare(tt.desired, tt.recorded)
			if len(tt.wantPaths) == 0 {
				assert.Empty(t, differences)
				return
			}
			assert.Equal(t, tt.wantPaths, Paths(differences))
		})
	}
}

func TestCompare_RemovedFieldHasNilDesired(t *testing.T) {
	differences := Compare(
		map[string]interface{}{},
		map[string]interface{}{"retention": int64(7)},
	)
	assert.Equal(t, []Difference{{Path: "retention", Observed: int64(7)}}, differences)
}
