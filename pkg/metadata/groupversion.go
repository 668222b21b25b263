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
	"strings"

	"github.com/gobuffalo/flect"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// GroupVersionKindOf returns the group, version and kind an object
// declares in its apiVersion and kind fields.
func GroupVersionKindOf(obj map[string]interface{}) (schema.GroupVersionKind, error) {
	kind, _ := obj["kind"].(string)
	if kind == "" {
		return schema.GroupVersionKind{}, errors.New("kind must be a non empty string")
	}
	apiVersion, _ := obj["apiVersion"].(string)
	if apiVersion == "" {
		return schema.GroupVersionKind{}, errors.New("apiVersion must be a non empty string")
	}
	gv, err := schema.ParseGroupVersion(apiVersion)
	if err != nil {
		return schema.GroupVersionKind{}, fmt.Errorf("invalid apiVersion: %w", err)
	}
	return gv.WithKind(kind), nil
}

// ResourceFor guesses the resource of a kind, e.g HelmChart -> helmcharts,
// the way the apiserver names CRDs that don't declare an irregular plural.
func ResourceFor(gvk schema.GroupVersionKind) schema.GroupVersionResource {
	return gvk.GroupVersion().WithResource(strings.ToLower(flect.Pluralize(gvk.Kind)))
}
