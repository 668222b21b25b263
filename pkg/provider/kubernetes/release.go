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

	"github.com/gobuffalo/flect"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

const (
	// HelmChartAPIVersion and HelmChartKind identify the object the helm
	// controller installs charts from.
	HelmChartAPIVersion = "helm.cattle.io/v1"
	HelmChartKind       = "HelmChart"
)

// releaseObject renders a Release as a HelmChart. The materialized
// configuration becomes the values of the chart.
func releaseObject(nodeID, stack, namespace string, params, config map[string]interface{}) (*unstructured.Unstructured, error) {
	chart, _ := params["chart"].(string)
	if chart == "" {
		return nil, fmt.Errorf("chart parameter is required")
	}
	name, _ := params["name"].(string)
	if name == "" {
		name = fmt.Sprintf("%s-%s", stack, flect.Dasherize(nodeID))
	}
	if ns, _ := params["namespace"].(string); ns != "" {
		namespace = ns
	}

	spec := map[string]interface{}{"chart": chart}
	for _, key := range []string{"repo", "version", "targetNamespace"} {
		if v, _ := params[key].(string); v != "" {
			spec[key] = v
		}
	}
	if len(config) > 0 {
		values, err := yaml.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("failed to encode values of release %s: %w", name, err)
		}
		spec["valuesContent"] = string(values)
	}

	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": HelmChartAPIVersion,
		"kind":       HelmChartKind,
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
		},
		"spec": spec,
	}}
	return obj, nil
}

func releaseOutputs(obj *unstructured.Unstructured) map[string]interface{} {
	chart, _, _ := unstructured.NestedString(obj.Object, "spec", "chart")
	version, _, _ := unstructured.NestedString(obj.Object, "spec", "version")
	out := map[string]interface{}{
		"name":      obj.GetName(),
		"namespace": obj.GetNamespace(),
		"chart":     chart,
		"version":   version,
	}
	if jobName, found, _ := unstructured.NestedString(obj.Object, "status", "jobName"); found {
		out["jobName"] = jobName
	}
	return out
}
