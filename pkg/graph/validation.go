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

package graph

import (
	"fmt"
	"regexp"
	"slices"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/graph/variable"
)

var (
	// ErrNamingConvention is the base error message for naming convention violations
	ErrNamingConvention = "naming convention violation"
)

var (
	// resourceIDRegex matches identifiers usable as CEL variables.
	resourceIDRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

	// reservedKeyWords can't be used as resource ids: CEL reserved words,
	// the stack variables and the function namespaces.
	reservedKeyWords = []string{
		"as",
		"break",
		"const",
		"continue",
		"else",
		"false",
		"for",
		"function",
		"if",
		"import",
		"in",
		"let",
		"loop",
		"namespace",
		"null",
		"package",
		"random",
		"return",
		"true",
		"var",
		variable.VariablesID,
		"void",
		"while",
	}
)

// isValidResourceID checks if the given id can be used as a resource id.
func isValidResourceID(id string) bool {
	return resourceIDRegex.MatchString(id)
}

// isReservedWord checks if the given word is a reserved word.
func isReservedWord(word string) bool {
	return slices.Contains(reservedKeyWords, word)
}

// validateResources performs basic validation on the resources of a stack.
// Duplicate ids are reported first, as a DuplicateResourceError. Other
// violations are aggregated.
//
// The naming convention is as follows:
// - The id should start with a letter.
// - The id should only contain alphanumeric characters and underscores.
// - The id is not a reserved word.
func validateResources(resources []*v1alpha1.Resource) error {
	seen := make(map[string]struct{}, len(resources))
	for _, res := range resources {
		if res == nil {
			continue
		}
		if _, ok := seen[res.ID]; ok {
			return &DuplicateResourceError{ID: res.ID}
		}
		seen[res.ID] = struct{}{}
	}

	var errs []error
	for i, res := range resources {
		if res == nil {
			errs = append(errs, fmt.Errorf("resource #%d is empty", i))
			continue
		}
		if err := validateResource(res); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}

func validateResource(res *v1alpha1.Resource) error {
	if isReservedWord(res.ID) {
		return fmt.Errorf("%s: id %s is a reserved keyword", ErrNamingConvention, res.ID)
	}
	if !isValidResourceID(res.ID) {
		return fmt.Errorf("%s: id %q is not a valid resource id: must match %s",
			ErrNamingConvention, res.ID, resourceIDRegex.String())
	}
	if !res.Kind.IsValid() {
		return fmt.Errorf("resource %s: unknown kind %q", res.ID, res.Kind)
	}
	if !res.RemovalPolicy.IsValid() {
		return fmt.Errorf("resource %s: unknown removal policy %q", res.ID, res.RemovalPolicy)
	}
	if res.Template != nil && res.Kind != v1alpha1.KindRelease {
		return fmt.Errorf("resource %s: templates are only supported on %s resources", res.ID, v1alpha1.KindRelease)
	}
	return nil
}
