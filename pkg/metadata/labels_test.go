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

package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kro-run/stackgraph/api/v1alpha1"
)

func TestIsOwnedBy(t *testing.T) {
	tests := []struct {
		name   string
		labels map[string]string
		want   bool
	}{
		{
			name: "owned",
			labels: map[string]string{
				ManagedByLabel:  ManagedByValue,
				StackLabel:      "demo",
				ResourceIDLabel: "Release",
			},
			want: true,
		},
		{
			name:   "not managed",
			labels: map[string]string{StackLabel: "demo", ResourceIDLabel: "Release"},
		},
		{
			name: "other stack",
			labels: map[string]string{
				ManagedByLabel:  ManagedByValue,
				StackLabel:      "prod",
				ResourceIDLabel: "Release",
			},
		},
		{
			name: "no labels",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := &metav1.ObjectMeta{Labels: tt.labels}
			assert.Equal(t, tt.want, IsOwnedBy(meta, "demo", "Release"))
		})
	}
}

func TestGenericLabeler(t *testing.T) {
	stack := NewStackLabeler("demo", "v0.3.0")
	resource := NewResourceLabeler("Release", v1alpha1.KindRelease)

	merged, err := stack.Merge(resource)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		ManagedByLabel:  ManagedByValue,
		StackLabel:      "demo",
		VersionLabel:    "v0.3.0",
		ResourceIDLabel: "Release",
		KindLabel:       "Release",
	}, merged.Labels())

	_, err = merged.Merge(GenericLabeler{StackLabel: "other"})
	assert.ErrorIs(t, err, ErrDuplicatedLabels)

	meta := &metav1.ObjectMeta{Labels: map[string]string{"app": "efs"}}
	merged.ApplyLabels(meta)
	assert.Equal(t, "efs", meta.Labels["app"])
	assert.Equal(t, "demo", meta.Labels[StackLabel])
	assert.True(t, IsManaged(meta))

	empty := &metav1.ObjectMeta{}
	resource.ApplyLabels(empty)
	assert.Equal(t, "Release", empty.Labels[ResourceIDLabel])
}

func TestGenericLabeler_Tags(t *testing.T) {
	labeler := NewStackLabeler("demo", "")
	tags := labeler.Tags(map[string]string{
		"team":     "platform",
		StackLabel: "overridden",
	})
	assert.Equal(t, map[string]string{
		"team":         "platform",
		ManagedByLabel: ManagedByValue,
		StackLabel:     "demo",
	}, tags)
	assert.NotContains(t, labeler, "team")
}
