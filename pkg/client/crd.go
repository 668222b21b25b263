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

package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	v1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset/typed/apiextensions/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/kro-run/stackgraph/pkg/metadata"
)

// Mapping is the resource of a kind and its scope.
type Mapping struct {
	Resource   schema.GroupVersionResource
	Namespaced bool
}

// clusterScopedKinds are the built-in kinds that aren't namespaced.
var clusterScopedKinds = map[schema.GroupKind]bool{
	{Group: "", Kind: "Namespace"}:                                                  true,
	{Group: "", Kind: "Node"}:                                                       true,
	{Group: "", Kind: "PersistentVolume"}:                                           true,
	{Group: "rbac.authorization.k8s.io", Kind: "ClusterRole"}:                       true,
	{Group: "rbac.authorization.k8s.io", Kind: "ClusterRoleBinding"}:                true,
	{Group: "storage.k8s.io", Kind: "StorageClass"}:                                 true,
	{Group: "storage.k8s.io", Kind: "CSIDriver"}:                                    true,
	{Group: "scheduling.k8s.io", Kind: "PriorityClass"}:                             true,
	{Group: "apiextensions.k8s.io", Kind: "CustomResourceDefinition"}:               true,
	{Group: "admissionregistration.k8s.io", Kind: "ValidatingWebhookConfiguration"}: true,
	{Group: "admissionregistration.k8s.io", Kind: "MutatingWebhookConfiguration"}:   true,
	{Group: "apiregistration.k8s.io", Kind: "APIService"}:                           true,
	{Group: "networking.k8s.io", Kind: "IngressClass"}:                              true,
}

// ResourceMapper finds the resource and the scope of a kind. Custom kinds
// are looked up in their CustomResourceDefinition; other kinds, and custom
// kinds whose CRD can't be found, get the guessed plural and the built-in
// scope.
//
// Mappings found in CRDs are cached, a ResourceMapper is meant to live for
// one run.
type ResourceMapper struct {
	crds apiextensionsv1.CustomResourceDefinitionsGetter

	mu    sync.Mutex
	cache map[schema.GroupVersionKind]Mapping
}

// NewResourceMapper returns a mapper. crds may be nil, in which case
// every mapping is guessed.
func NewResourceMapper(crds apiextensionsv1.CustomResourceDefinitionsGetter) *ResourceMapper {
	return &ResourceMapper{
		crds:  crds,
		cache: make(map[schema.GroupVersionKind]Mapping),
	}
}

// Map returns the mapping of gvk.
func (m *ResourceMapper) Map(ctx context.Context, gvk schema.GroupVersionKind) (Mapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mapping, ok := m.cache[gvk]; ok {
		return mapping, nil
	}

	guess := Mapping{
		Resource:   metadata.ResourceFor(gvk),
		Namespaced: !clusterScopedKinds[gvk.GroupKind()],
	}
	if m.crds == nil || !isCustomGroup(gvk.Group) {
		return guess, nil
	}

	crd, err := m.findCRD(ctx, gvk)
	if err != nil {
		return Mapping{}, err
	}
	if crd == nil {
		return guess, nil
	}
	mapping := Mapping{
		Resource: schema.GroupVersionResource{
			Group:    gvk.Group,
			Version:  gvk.Version,
			Resource: crd.Spec.Names.Plural,
		},
		Namespaced: crd.Spec.Scope == v1.NamespaceScoped,
	}
	m.cache[gvk] = mapping
	return mapping, nil
}

// findCRD gets the CRD named after the guessed plural, then falls back to
// scanning every CRD of the group, for kinds with an irregular plural.
func (m *ResourceMapper) findCRD(ctx context.Context, gvk schema.GroupVersionKind) (*v1.CustomResourceDefinition, error) {
	client := m.crds.CustomResourceDefinitions()
	name := metadata.ResourceFor(gvk).Resource + "." + gvk.Group
	crd, err := client.Get(ctx, name, metav1.GetOptions{})
	if err == nil && crd.Spec.Names.Kind == gvk.Kind {
		return crd, nil
	}
	if err != nil && !apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("failed to get CRD %s: %w", name, err)
	}

	list, err := client.List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list CRDs: %w", err)
	}
	for i := range list.Items {
		item := &list.Items[i]
		if item.Spec.Group == gvk.Group && item.Spec.Names.Kind == gvk.Kind {
			return item, nil
		}
	}
	return nil, nil
}

// isCustomGroup returns false for the core group and the built-in API
// groups.
func isCustomGroup(group string) bool {
	if group == "" {
		return false
	}
	for _, suffix := range []string{".k8s.io", ".kubernetes.io"} {
		if strings.HasSuffix(group, suffix) {
			return false
		}
	}
	switch group {
	case "apps", "batch", "autoscaling", "policy":
		return false
	}
	return true
}
