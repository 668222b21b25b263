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

// Package client builds the Kubernetes clients used by the Kubernetes
// provider and the ConfigMap state store.
package client

import (
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset/typed/apiextensions/v1"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrlrtconfig "sigs.k8s.io/controller-runtime/pkg/client/config"
)

// Set provides a unified interface for different Kubernetes clients
type Set struct {
	config          *rest.Config
	kubernetes      kubernetes.Interface
	dynamic         dynamic.Interface
	apiExtensionsV1 apiextensionsv1.ApiextensionsV1Interface
}

// Config holds configuration for client creation
type Config struct {
	// RestConfig is used as is when set.
	RestConfig *rest.Config
	// Kubeconfig and Context select a kubeconfig file and a context in
	// it. When both are empty the usual lookup applies: KUBECONFIG, the
	// in-cluster config, then ~/.kube/config.
	Kubeconfig string
	Context    string
	QPS        float32
	Burst      int
	UserAgent  string
}

// NewSet creates a new client Set with the given config
func NewSet(cfg Config) (*Set, error) {
	config, err := restConfig(cfg)
	if err != nil {
		return nil, err
	}

	// Set default QPS and burst
	if config.QPS == 0 {
		config.QPS = cfg.QPS
	}
	if config.Burst == 0 {
		config.Burst = cfg.Burst
	}
	if cfg.UserAgent != "" {
		config.UserAgent = cfg.UserAgent
	}

	c := &Set{config: config}
	if err := c.init(); err != nil {
		return nil, err
	}
	return c, nil
}

func restConfig(cfg Config) (*rest.Config, error) {
	if cfg.RestConfig != nil {
		return rest.CopyConfig(cfg.RestConfig), nil
	}
	if cfg.Kubeconfig == "" && cfg.Context == "" {
		return ctrlrtconfig.GetConfig()
	}
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	rules.ExplicitPath = cfg.Kubeconfig
	overrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.Context}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
}

// NewSetForClients returns a Set wrapping existing clients, e.g fakes.
func NewSetForClients(
	kube kubernetes.Interface,
	dyn dynamic.Interface,
	apiExtensions apiextensionsv1.ApiextensionsV1Interface,
) *Set {
	return &Set{kubernetes: kube, dynamic: dyn, apiExtensionsV1: apiExtensions}
}

func (c *Set) init() error {
	var err error

	c.kubernetes, err = kubernetes.NewForConfig(c.config)
	if err != nil {
		return err
	}

	c.dynamic, err = dynamic.NewForConfig(c.config)
	if err != nil {
		return err
	}

	c.apiExtensionsV1, err = apiextensionsv1.NewForConfig(c.config)
	if err != nil {
		return err
	}

	return nil
}

// Kubernetes returns the standard Kubernetes clientset
func (c *Set) Kubernetes() kubernetes.Interface {
	return c.kubernetes
}

// Dynamic returns the dynamic client
func (c *Set) Dynamic() dynamic.Interface {
	return c.dynamic
}

// APIExtensionsV1 returns the API extensions client
func (c *Set) APIExtensionsV1() apiextensionsv1.ApiextensionsV1Interface {
	return c.apiExtensionsV1
}

// RESTConfig returns a copy of the underlying REST config
func (c *Set) RESTConfig() *rest.Config {
	if c.config == nil {
		return nil
	}
	return rest.CopyConfig(c.config)
}

// Mapper returns a ResourceMapper backed by the CRDs of the cluster.
func (c *Set) Mapper() *ResourceMapper {
	return NewResourceMapper(c.apiExtensionsV1)
}
