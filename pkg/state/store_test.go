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

package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")
	store := NewFileStore(dir)

	// Nothing saved yet.
	snapshot, err := store.Load(ctx, "demo")
	require.NoError(t, err)
	assert.True(t, snapshot.IsEmpty())
	assert.Equal(t, "demo", snapshot.Stack)
	assert.Zero(t, snapshot.Generation)

	require.NoError(t, store.Save(ctx, testSnapshot()))

	loaded, err := store.Load(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Generation)
	assert.False(t, loaded.UpdatedAt.IsZero())
	assert.Equal(t, []string{"Cluster", "Role", "Vpc"}, loaded.IDs())

	vpc, ok := loaded.Get("Vpc")
	require.True(t, ok)
	assert.Equal(t, "vpc-123", vpc.Outputs["vpcId"])
	assert.Equal(t, []interface{}{"subnet-a"}, vpc.Outputs["subnetIds"])

	require.NoError(t, store.Save(ctx, loaded))
	again, err := store.Load(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Generation)

	// No temporary file is left behind.
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "demo.state.yaml", files[0].Name())

	require.NoError(t, store.Delete(ctx, "demo"))
	require.NoError(t, store.Delete(ctx, "demo"))
	empty, err := store.Load(ctx, "demo")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
		check   func(t *testing.T, s *Snapshot)
	}{
		{
			name: "numbers",
			data: `
stack: demo
generation: 3
resources:
  Db:
    kind: Database
    parameters:
      allocatedStorage: 20
`,
			check: func(t *testing.T, s *Snapshot) {
				entry, ok := s.Get("Db")
				require.True(t, ok)
				assert.EqualValues(t, 20, entry.Parameters["allocatedStorage"])
				assert.Equal(t, int64(3), s.Generation)
			},
		},
		{
			name: "no resources",
			data: "stack: demo\n",
			check: func(t *testing.T, s *Snapshot) {
				assert.NotNil(t, s.Resources)
				assert.True(t, s.IsEmpty())
			},
		},
		{
			name:    "other stack",
			data:    "stack: prod\n",
			wantErr: `snapshot belongs to stack "prod", not "demo"`,
		},
		{
			name:    "invalid yaml",
			data:    "stack: [demo",
			wantErr: "failed to decode snapshot",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decode("demo", []byte(tt.data))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}
