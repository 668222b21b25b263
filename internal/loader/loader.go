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

// Package loader reads stack declarations from disk.
package loader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"

	"github.com/kro-run/stackgraph/api/v1alpha1"
)

// ErrNoStack is returned when no Stack document was found.
var ErrNoStack = errors.New("no Stack document found")

// Load reads the stack declared at path. Path is either a YAML file, which
// may hold several documents, or a directory whose .yaml and .yml files
// are read in lexical order. Stack documents sharing the same name are
// merged: resources are appended, and variables and defaults of later
// documents win.
//
// Template valuesFrom paths are resolved relative to the file declaring
// them. Overrides are key=value pairs set into the stack variables, see
// SetVariable.
func Load(path string, overrides ...string) (*v1alpha1.Stack, error) {
	files, err := stackFiles(path)
	if err != nil {
		return nil, err
	}

	var stack *v1alpha1.Stack
	for _, file := range files {
		docs, err := readStacks(file)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			if stack == nil {
				stack = doc
				continue
			}
			if doc.Name != stack.Name {
				return nil, fmt.Errorf("%s: found stack %q, expected a single stack %q", file, doc.Name, stack.Name)
			}
			merge(stack, doc)
		}
	}
	if stack == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNoStack)
	}

	for _, override := range overrides {
		if err := SetVariable(stack, override); err != nil {
			return nil, err
		}
	}
	return stack, nil
}

func stackFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// readStacks decodes every non empty document of file.
func readStacks(file string) ([]*v1alpha1.Stack, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return decode(file, data)
}

func decode(file string, data []byte) ([]*v1alpha1.Stack, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(data)))
	var stacks []*v1alpha1.Stack
	for i := 0; ; i++ {
		doc, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read document %d: %w", file, i, err)
		}
		// The reader hands out leading separators and comment-only
		// documents as is.
		var envelope map[string]interface{}
		if err := yaml.Unmarshal(doc, &envelope); err != nil {
			return nil, fmt.Errorf("%s: failed to decode document %d: %w", file, i, err)
		}
		if len(envelope) == 0 {
			continue
		}

		stack := &v1alpha1.Stack{}
		if err := yaml.UnmarshalStrict(doc, stack); err != nil {
			return nil, fmt.Errorf("%s: failed to decode document %d: %w", file, i, err)
		}
		if err := validateHeader(stack); err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", file, i, err)
		}
		if err := resolveValuesFrom(filepath.Dir(file), stack); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		stacks = append(stacks, stack)
	}
	return stacks, nil
}

func validateHeader(stack *v1alpha1.Stack) error {
	gvk := v1alpha1.StackGroupVersionKind()
	if stack.APIVersion != gvk.GroupVersion().String() || stack.Kind != gvk.Kind {
		return fmt.Errorf("expected %s %s, got %q %q", gvk.GroupVersion(), gvk.Kind, stack.APIVersion, stack.Kind)
	}
	if stack.Name == "" {
		return errors.New("stack metadata.name is required")
	}
	return nil
}

// resolveValuesFrom reads the values files of the templates of stack. The
// values declared inline take precedence over the ones read from file.
func resolveValuesFrom(dir string, stack *v1alpha1.Stack) error {
	for _, res := range stack.Spec.Resources {
		if res == nil || res.Template == nil || res.Template.ValuesFrom == "" {
			continue
		}
		path := res.Template.ValuesFrom
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("resource %q: failed to read values: %w", res.ID, err)
		}
		values := map[string]interface{}{}
		if err := yaml.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("resource %q: failed to decode values %s: %w", res.ID, path, err)
		}
		res.Template.Values = mergeValues(values, res.Template.Values)
		res.Template.ValuesFrom = ""
	}
	return nil
}

func merge(into, from *v1alpha1.Stack) {
	into.Spec.Resources = append(into.Spec.Resources, from.Spec.Resources...)
	into.Spec.Variables = mergeValues(into.Spec.Variables, from.Spec.Variables)
	if from.Spec.Defaults.RemovalPolicy != "" {
		into.Spec.Defaults.RemovalPolicy = from.Spec.Defaults.RemovalPolicy
	}
	for k, v := range from.Spec.Defaults.Tags {
		if into.Spec.Defaults.Tags == nil {
			into.Spec.Defaults.Tags = map[string]string{}
		}
		into.Spec.Defaults.Tags[k] = v
	}
	for k, v := range from.Spec.Outputs {
		if into.Spec.Outputs == nil {
			into.Spec.Outputs = map[string]string{}
		}
		into.Spec.Outputs[k] = v
	}
}

// mergeValues deep merges override into base, and returns base. Nested
// maps are merged, any other value of override replaces the one of base.
func mergeValues(base, override map[string]interface{}) map[string]interface{} {
	if base == nil {
		base = map[string]interface{}{}
	}
	for k, v := range override {
		nested, ok := v.(map[string]interface{})
		existing, isMap := base[k].(map[string]interface{})
		if ok && isMap {
			base[k] = mergeValues(existing, nested)
			continue
		}
		base[k] = v
	}
	return base
}

// SetVariable sets a key=value override into the variables of stack. The
// key may be a dotted path into nested variables. The value is parsed as
// YAML, so numbers, booleans and lists keep their type; an empty value is
// the empty string.
func SetVariable(stack *v1alpha1.Stack, override string) error {
	key, raw, ok := strings.Cut(override, "=")
	if !ok || key == "" {
		return fmt.Errorf("invalid override %q, expected key=value", override)
	}

	var value interface{} = ""
	if raw != "" {
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return fmt.Errorf("invalid value of override %q: %w", key, err)
		}
	}

	if stack.Spec.Variables == nil {
		stack.Spec.Variables = map[string]interface{}{}
	}
	parts := strings.Split(key, ".")
	current := stack.Spec.Variables
	for _, part := range parts[:len(parts)-1] {
		if part == "" {
			return fmt.Errorf("invalid override key %q", key)
		}
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			current[part] = next
		}
		current = next
	}
	last := parts[len(parts)-1]
	if last == "" {
		return fmt.Errorf("invalid override key %q", key)
	}
	current[last] = value
	return nil
}
