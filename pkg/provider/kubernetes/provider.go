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

// Package kubernetes provides the providers of the in-cluster kinds:
// arbitrary manifests and helm releases.
package kubernetes

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/client"
	"github.com/kro-run/stackgraph/pkg/metadata"
	"github.com/kro-run/stackgraph/pkg/provider"
	"github.com/kro-run/stackgraph/pkg/requeue"
)

// Kinds lists the kinds served by the Kubernetes provider.
var Kinds = []v1alpha1.Kind{
	v1alpha1.KindManifest,
	v1alpha1.KindRelease,
}

// Provider applies the objects of the Kubernetes kinds with the dynamic
// client. Every object is labelled with the stack and the resource it
// belongs to, and objects labelled for another resource are never taken
// over.
type Provider struct {
	client    dynamic.Interface
	mapper    *client.ResourceMapper
	namespace string
	log       logr.Logger
}

var (
	_ provider.Provider = &Provider{}
	_ provider.Observer = &Provider{}
)

// NewProvider returns a provider. Namespaced objects that don't set a
// namespace go to namespace.
func NewProvider(c dynamic.Interface, mapper *client.ResourceMapper, namespace string, log logr.Logger) *Provider {
	if namespace == "" {
		namespace = metav1.NamespaceDefault
	}
	if mapper == nil {
		mapper = client.NewResourceMapper(nil)
	}
	return &Provider{
		client:    c,
		mapper:    mapper,
		namespace: namespace,
		log:       log.WithName("kubernetes"),
	}
}

// Register registers the provider for the Kubernetes kinds.
func (p *Provider) Register(registry *provider.Registry) {
	registry.Register(p, Kinds...)
}

// object builds the object of a resource from its parameters.
func (p *Provider) object(kind v1alpha1.Kind, nodeID, stack string, params, config map[string]interface{}) (*unstructured.Unstructured, error) {
	switch kind {
	case v1alpha1.KindManifest:
		return manifestObject(params)
	case v1alpha1.KindRelease:
		return releaseObject(nodeID, stack, p.namespace, params, config)
	default:
		return nil, fmt.Errorf("%w for kind %s", provider.ErrNoProvider, kind)
	}
}

func (p *Provider) resourceInterface(ctx context.Context, obj *unstructured.Unstructured) (dynamic.ResourceInterface, error) {
	mapping, err := p.mapper.Map(ctx, obj.GroupVersionKind())
	if err != nil {
		return nil, err
	}
	if !mapping.Namespaced {
		obj.SetNamespace("")
		return p.client.Resource(mapping.Resource), nil
	}
	if obj.GetNamespace() == "" {
		obj.SetNamespace(p.namespace)
	}
	return p.client.Resource(mapping.Resource).Namespace(obj.GetNamespace()), nil
}

// Apply creates the object, or updates it if it exists.
func (p *Provider) Apply(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	obj, err := p.object(desired.Kind, desired.NodeID, desired.Stack, desired.Parameters, desired.Config)
	if err != nil {
		return nil, requeue.None(err)
	}
	desired.Labels.ApplyLabels(obj)

	ri, err := p.resourceInterface(ctx, obj)
	if err != nil {
		return nil, err
	}
	log := p.log.WithValues("id", desired.NodeID, "object", objectRef(obj))

	current, err := ri.Get(ctx, obj.GetName(), metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		log.V(1).Info("creating object")
		created, err := ri.Create(ctx, obj, metav1.CreateOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", objectRef(obj), err)
		}
		return outputs(desired.Kind, created), nil
	case err != nil:
		return nil, fmt.Errorf("failed to get %s: %w", objectRef(obj), err)
	}

	if metadata.IsManaged(current) && !metadata.IsOwnedBy(current, desired.Stack, desired.NodeID) {
		return nil, requeue.None(fmt.Errorf("%s is managed by another resource: stack %q, resource %q",
			objectRef(obj), current.GetLabels()[metadata.StackLabel], current.GetLabels()[metadata.ResourceIDLabel]))
	}

	log.V(1).Info("updating object")
	obj.SetResourceVersion(current.GetResourceVersion())
	updated, err := ri.Update(ctx, obj, metav1.UpdateOptions{})
	if err != nil {
		if apierrors.IsConflict(err) {
			return nil, requeue.Needed(err)
		}
		return nil, fmt.Errorf("failed to update %s: %w", objectRef(obj), err)
	}
	return outputs(desired.Kind, updated), nil
}

// Observe reads the object back.
func (p *Provider) Observe(ctx context.Context, applied provider.Applied) (map[string]interface{}, error) {
	obj, ri, err := p.appliedObject(ctx, applied)
	if err != nil {
		return nil, err
	}
	current, err := ri.Get(ctx, obj.GetName(), metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", objectRef(obj), err)
	}
	return outputs(applied.Entry.Kind, current), nil
}

// Delete deletes the object and lets the garbage collector remove its
// dependents.
func (p *Provider) Delete(ctx context.Context, applied provider.Applied) error {
	obj, ri, err := p.appliedObject(ctx, applied)
	if err != nil {
		return err
	}
	p.log.V(1).Info("deleting object", "id", applied.NodeID, "object", objectRef(obj))
	propagation := metav1.DeletePropagationBackground
	err = ri.Delete(ctx, obj.GetName(), metav1.DeleteOptions{PropagationPolicy: &propagation})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete %s: %w", objectRef(obj), err)
	}
	return nil
}

func (p *Provider) appliedObject(ctx context.Context, applied provider.Applied) (*unstructured.Unstructured, dynamic.ResourceInterface, error) {
	entry := applied.Entry
	obj, err := p.object(entry.Kind, applied.NodeID, applied.Stack, entry.Parameters, entry.Config)
	if err != nil {
		return nil, nil, err
	}
	ri, err := p.resourceInterface(ctx, obj)
	if err != nil {
		return nil, nil, err
	}
	return obj, ri, nil
}

func objectRef(obj *unstructured.Unstructured) string {
	if obj.GetNamespace() == "" {
		return fmt.Sprintf("%s %s", obj.GetKind(), obj.GetName())
	}
	return fmt.Sprintf("%s %s/%s", obj.GetKind(), obj.GetNamespace(), obj.GetName())
}

func outputs(kind v1alpha1.Kind, obj *unstructured.Unstructured) map[string]interface{} {
	if kind == v1alpha1.KindRelease {
		return releaseOutputs(obj)
	}
	out := map[string]interface{}{
		"name":       obj.GetName(),
		"namespace":  obj.GetNamespace(),
		"uid":        string(obj.GetUID()),
		"apiVersion": obj.GetAPIVersion(),
		"kind":       obj.GetKind(),
	}
	if status, ok := obj.Object["status"]; ok {
		out["status"] = status
	}
	return out
}
