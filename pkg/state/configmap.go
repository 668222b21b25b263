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
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/kro-run/stackgraph/pkg/metadata"
)

// snapshotKey is the ConfigMap data key holding the snapshot.
const snapshotKey = "snapshot.yaml"

// ConfigMapStore keeps the snapshot of each stack in a ConfigMap.
type ConfigMapStore struct {
	client    kubernetes.Interface
	namespace string
}

// NewConfigMapStore returns a store writing ConfigMaps in namespace.
func NewConfigMapStore(client kubernetes.Interface, namespace string) *ConfigMapStore {
	if namespace == "" {
		namespace = metav1.NamespaceDefault
	}
	return &ConfigMapStore{client: client, namespace: namespace}
}

func configMapName(stack string) string {
	return "stackgraph-" + stack
}

func (s *ConfigMapStore) Load(ctx context.Context, stack string) (*Snapshot, error) {
	cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, configMapName(stack), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return NewSnapshot(stack), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot configmap: %w", err)
	}
	data, ok := cm.Data[snapshotKey]
	if !ok {
		return nil, fmt.Errorf("configmap %s/%s has no %s key", s.namespace, cm.Name, snapshotKey)
	}
	return Decode(stack, []byte(data))
}

func (s *ConfigMapStore) Save(ctx context.Context, snapshot *Snapshot) error {
	touch(snapshot)
	data, err := Encode(snapshot)
	if err != nil {
		return err
	}

	configMaps := s.client.CoreV1().ConfigMaps(s.namespace)
	name := configMapName(snapshot.Stack)
	current, err := configMaps.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		cm := &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: s.namespace,
			},
			Data: map[string]string{snapshotKey: string(data)},
		}
		metadata.NewStackLabeler(snapshot.Stack, "").ApplyLabels(cm)
		if _, err := configMaps.Create(ctx, cm, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("failed to create snapshot configmap: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get snapshot configmap: %w", err)
	}

	updated := current.DeepCopy()
	if updated.Data == nil {
		updated.Data = map[string]string{}
	}
	updated.Data[snapshotKey] = string(data)
	metadata.NewStackLabeler(snapshot.Stack, "").ApplyLabels(updated)
	if _, err := configMaps.Update(ctx, updated, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update snapshot configmap: %w", err)
	}
	return nil
}

func (s *ConfigMapStore) Delete(ctx context.Context, stack string) error {
	err := s.client.CoreV1().ConfigMaps(s.namespace).Delete(ctx, configMapName(stack), metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete snapshot configmap: %w", err)
	}
	return nil
}
