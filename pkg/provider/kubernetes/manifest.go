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

package kubernetes

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/metadata"
)

// manifestObject returns the object of a Manifest, a copy of its manifest
// parameter. The status of the manifest is dropped.
func manifestObject(params map[string]interface{}) (*unstructured.Unstructured, error) {
	manifest, ok := params["manifest"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("manifest parameter must be an object, got %T", params["manifest"])
	}
	if _, err := metadata.GroupVersionKindOf(manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	obj := &unstructured.Unstructured{Object: v1alpha1.DeepCopyValues(manifest)}
	if obj.GetName() == "" {
		return nil, fmt.Errorf("invalid manifest: metadata.name is required")
	}
	delete(obj.Object, "status")
	return obj, nil
}
