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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// Store persists the snapshots of stacks.
type Store interface {
	// Load returns the snapshot of a stack. A stack that was never saved
	// loads as an empty snapshot.
	Load(ctx context.Context, stack string) (*Snapshot, error)
	// Save persists a snapshot, bumping its generation.
	Save(ctx context.Context, snapshot *Snapshot) error
	// Delete removes the snapshot of a stack. Deleting a missing snapshot
	// is not an error.
	Delete(ctx context.Context, stack string) error
}

// Encode serializes a snapshot as YAML.
func Encode(snapshot *Snapshot) ([]byte, error) {
	snapshot.mu.RLock()
	defer snapshot.mu.RUnlock()
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot of %q: %w", snapshot.Stack, err)
	}
	return data, nil
}

// Decode parses a YAML snapshot. The stack name is checked against the
// expected one, a snapshot is never loaded for another stack.
func Decode(stack string, data []byte) (*Snapshot, error) {
	snapshot := NewSnapshot(stack)
	if err := yaml.Unmarshal(data, snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot of %q: %w", stack, err)
	}
	if snapshot.Stack != stack {
		return nil, fmt.Errorf("snapshot belongs to stack %q, not %q", snapshot.Stack, stack)
	}
	if snapshot.Resources == nil {
		snapshot.Resources = make(map[string]*Entry)
	}
	return snapshot, nil
}

// touch bumps the generation of a snapshot before it is saved.
func touch(snapshot *Snapshot) {
	snapshot.mu.Lock()
	defer snapshot.mu.Unlock()
	snapshot.Generation++
	snapshot.UpdatedAt = metav1.Now()
}

// FileStore keeps one YAML file per stack in a directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a store writing under dir. The directory is created
// on first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(stack string) string {
	return filepath.Join(s.dir, stack+".state.yaml")
}

func (s *FileStore) Load(_ context.Context, stack string) (*Snapshot, error) {
	data, err := os.ReadFile(s.path(stack))
	if errors.Is(err, os.ErrNotExist) {
		return NewSnapshot(stack), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return Decode(stack, data)
}

func (s *FileStore) Save(_ context.Context, snapshot *Snapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	touch(snapshot)
	data, err := Encode(snapshot)
	if err != nil {
		return err
	}

	// Write then rename, a crash never leaves a truncated snapshot.
	tmp, err := os.CreateTemp(s.dir, "."+snapshot.Stack+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(snapshot.Stack)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, stack string) error {
	err := os.Remove(s.path(stack))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
