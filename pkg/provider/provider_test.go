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

package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kro-run/stackgraph/api/v1alpha1"
)

type nopProvider struct{}

func (nopProvider) Apply(context.Context, Desired) (map[string]interface{}, error) { return nil, nil }
func (nopProvider) Delete(context.Context, Applied) error                      { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	p := nopProvider{}
	r.Register(p, v1alpha1.KindCluster, v1alpha1.KindNodeGroup)

	got, err := r.Get(v1alpha1.KindNodeGroup)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = r.Get(v1alpha1.KindRelease)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoProvider))
	assert.Equal(t, "no provider registered for kind Release", err.Error())
}
