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

import metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

// Objects created for a stack are found by label. This is used to find the
// snapshot of a stack, and the objects of a resource.

func NewStackSelector(stack string) metav1.LabelSelector {
	return metav1.LabelSelector{
		MatchLabels: map[string]string{
			ManagedByLabel: ManagedByValue,
			StackLabel:     stack,
		},
	}
}

func NewResourceSelector(stack, resourceID string) metav1.LabelSelector {
	return metav1.LabelSelector{
		MatchLabels: map[string]string{
			ManagedByLabel:  ManagedByValue,
			StackLabel:      stack,
			ResourceIDLabel: resourceID,
		},
	}
}

// SelectorString renders a selector as a list option selector.
func SelectorString(selector metav1.LabelSelector) (string, error) {
	s, err := metav1.LabelSelectorAsSelector(&selector)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}
