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

package fake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/provider"
)

func TestProvider_Apply(t *testing.T) {
	ctx := context.Background()
	p := NewProvider().SetOutputs("Vpc", map[string]interface{}{"vpcId": "vpc-1"})

	outputs, err := p.Apply(ctx, provider.Desired{NodeID: "Vpc", Kind: v1alpha1.KindNetwork})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"vpcId": "vpc-1"}, outputs)
	assert.True(t, p.Exists("Vpc"))

	outputs, err = p.Apply(ctx, provider.Desired{
		NodeID:     "Role",
		Kind:       v1alpha1.KindTrustRole,
		Parameters: map[string]interface{}{"name": "efs-demo"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"arn": "Role-arn", "name": "efs-demo"}, outputs)

	require.NoError(t, p.Delete(ctx, provider.Applied{NodeID: "Vpc"}))
	assert.False(t, p.Exists("Vpc"))
	assert.Equal(t, []string{"Vpc", "Role"}, p.CallsOf(OperationApply))
	assert.Equal(t, []string{"Vpc"}, p.CallsOf(OperationDelete))
}

func TestProvider_Failures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	p := NewProvider().FailApply("Vpc", boom).FailDelete("Cluster", boom)

	_, err := p.Apply(ctx, provider.Desired{NodeID: "Vpc", Kind: v1alpha1.KindNetwork})
	assert.ErrorIs(t, err, boom)
	_, err = p.Apply(ctx, provider.Desired{NodeID: "Vpc", Kind: v1alpha1.KindNetwork})
	assert.NoError(t, err)

	assert.ErrorIs(t, p.Delete(ctx, provider.Applied{NodeID: "Cluster"}), boom)
}

func TestProvider_Observe(t *testing.T) {
	ctx := context.Background()
	p := NewProvider().
		SetOutputs("Cluster", map[string]interface{}{"status": "ACTIVE"}).
		Observations("Cluster", map[string]interface{}{"status": "CREATING"})

	_, err := p.Observe(ctx, provider.Applied{NodeID: "Db"})
	assert.Error(t, err)

	_, err = p.Apply(ctx, provider.Desired{NodeID: "Cluster", Kind: v1alpha1.KindCluster})
	require.NoError(t, err)

	outputs, err := p.Observe(ctx, provider.Applied{NodeID: "Cluster"})
	require.NoError(t, err)
	assert.Equal(t, "CREATING", outputs["status"])
	outputs, err = p.Observe(ctx, provider.Applied{NodeID: "Cluster"})
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", outputs["status"])
}

func TestProvider_DelayHonorsContext(t *testing.T) {
	p := NewProvider().Delay("", time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Apply(ctx, provider.Desired{NodeID: "Vpc", Kind: v1alpha1.KindNetwork})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, p.Exists("Vpc"))
}

func TestProvider_MaxInFlight(t *testing.T) {
	p := NewProvider().Delay("", 20*time.Millisecond)
	var wg sync.WaitGroup
	for _, id := range []string{"A", "B", "C"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Apply(context.Background(), provider.Desired{NodeID: id, Kind: v1alpha1.KindNetwork})
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, p.MaxInFlight(), 2)
	assert.Len(t, p.Calls(), 3)
}
