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

// Package v1alpha1 contains the declaration types of a stack: the set of
// resources a deployment run materializes.
package v1alpha1

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	// KroDomainName is the domain used for the API group and for every
	// label or tag stamped on managed resources.
	KroDomainName = "kro.run"
	// StackKind is the kind of the top level declaration document.
	StackKind = "Stack"
)

// GroupVersion is the group version of stack documents.
var GroupVersion = schema.GroupVersion{Group: KroDomainName, Version: "v1alpha1"}

// StackGroupVersionKind returns the GVK every stack document must carry.
func StackGroupVersionKind() schema.GroupVersionKind {
	return GroupVersion.WithKind(StackKind)
}
