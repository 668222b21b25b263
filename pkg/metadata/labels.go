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
	"errors"
	"fmt"
	"maps"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kro-run/stackgraph/api/v1alpha1"
)

const (
	// LabelPrefix is the prefix of every label stackgraph sets.
	LabelPrefix = "stackgraph." + v1alpha1.KroDomainName + "/"
)

const (
	StackLabel      = LabelPrefix + "stack"
	ResourceIDLabel = LabelPrefix + "resource-id"
	KindLabel       = LabelPrefix + "kind"
	VersionLabel    = LabelPrefix + "version"

	ManagedByLabel = "app.kubernetes.io/managed-by"
	// ManagedByValue is the value of ManagedByLabel on managed objects.
	ManagedByValue = "stackgraph"
)

// IsManaged returns true if the object was created by stackgraph.
func IsManaged(meta metav1.Object) bool {
	return meta.GetLabels()[ManagedByLabel] == ManagedByValue
}

// IsOwnedBy returns true if the object belongs to the given resource of
// the given stack.
func IsOwnedBy(meta metav1.Object, stack, resourceID string) bool {
	labels := meta.GetLabels()
	return IsManaged(meta) && labels[StackLabel] == stack && labels[ResourceIDLabel] == resourceID
}

var (
	ErrDuplicatedLabels = errors.New("duplicate labels")
)

var _ Labeler = GenericLabeler{}

// Labeler is an interface that defines a set of labels that can be
// applied to a resource.
type Labeler interface {
	Labels() map[string]string
	ApplyLabels(metav1.Object)
	Merge(Labeler) (Labeler, error)
}

// GenericLabeler is a map of labels that can be applied to a resource.
// It implements the Labeler interface.
type GenericLabeler map[string]string

// Labels returns the labels.
func (gl GenericLabeler) Labels() map[string]string {
	return gl
}

// ApplyLabels applies the labels to the resource.
func (gl GenericLabeler) ApplyLabels(meta metav1.Object) {
	for k, v := range gl {
		setLabel(meta, k, v)
	}
}

// Merge merges the labels from the other labeler into the current
// labeler. If there are any duplicate keys, an error is returned.
func (gl GenericLabeler) Merge(other Labeler) (Labeler, error) {
	newLabels := gl.Copy()
	for k, v := range other.Labels() {
		if _, ok := newLabels[k]; ok {
			return nil, fmt.Errorf("%w: found key '%s' in both maps", ErrDuplicatedLabels, k)
		}
		newLabels[k] = v
	}
	return GenericLabeler(newLabels), nil
}

// Copy returns a copy of the labels.
func (gl GenericLabeler) Copy() map[string]string {
	return maps.Clone(map[string]string(gl))
}

// Tags returns the labels as cloud tags. Stack tags come first and are
// overridden by the stackgraph labels.
func (gl GenericLabeler) Tags(stackTags map[string]string) map[string]string {
	tags := make(map[string]string, len(stackTags)+len(gl))
	maps.Copy(tags, stackTags)
	maps.Copy(tags, gl)
	return tags
}

// NewStackLabeler returns a labeler marking objects as managed by
// stackgraph for the given stack.
func NewStackLabeler(stack, version string) GenericLabeler {
	labels := map[string]string{
		ManagedByLabel: ManagedByValue,
		StackLabel:     stack,
	}
	if version != "" {
		labels[VersionLabel] = version
	}
	return labels
}

// NewResourceLabeler returns a labeler identifying the resource an object
// was created for.
func NewResourceLabeler(resourceID string, kind v1alpha1.Kind) GenericLabeler {
	return map[string]string{
		ResourceIDLabel: resourceID,
		KindLabel:       string(kind),
	}
}

// Helper function to set a label
func setLabel(meta metav1.Object, key, value string) {
	labels := meta.GetLabels()
	if labels == nil {
		labels = make(map[string]string)
	}
	labels[key] = value
	meta.SetLabels(labels)
}
