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

package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
	"sigs.k8s.io/release-utils/version"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/internal/loader"
	"github.com/kro-run/stackgraph/pkg/client"
	"github.com/kro-run/stackgraph/pkg/executor"
	"github.com/kro-run/stackgraph/pkg/graph"
	"github.com/kro-run/stackgraph/pkg/provider"
	awsprovider "github.com/kro-run/stackgraph/pkg/provider/aws"
	"github.com/kro-run/stackgraph/pkg/provider/fake"
	"github.com/kro-run/stackgraph/pkg/provider/kubernetes"
	"github.com/kro-run/stackgraph/pkg/reconciler"
	"github.com/kro-run/stackgraph/pkg/state"
)

const (
	backendFile      = "file"
	backendConfigMap = "configmap"
	backendS3        = "s3"

	defaultStateDir = ".stackgraph"
)

// options are the global flags, shared by every command.
type options struct {
	file         string
	set          []string
	state        string
	stateBackend string
	namespace    string
	kubeconfig   string
	kubeContext  string
	region       string
	profile      string
	roleARN      string
	logLevel     int
	apiQPS       float64
	apiBurst     int

	log     logr.Logger
	clients *client.Set
	// registry replaces the providers when set.
	registry *provider.Registry
}

func newOptions() *options {
	return &options{log: logr.Discard()}
}

func (o *options) addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.file, "file", "f", "stack.yaml", "Stack file, or directory of stack files")
	flags.StringArrayVar(&o.set, "set", nil, "Set a stack variable (key=value, dotted keys for nested values)")
	flags.StringVar(&o.stateBackend, "state-backend", backendFile, "Where snapshots are kept. One of: (file | configmap | s3)")
	flags.StringVar(&o.state, "state", "", "Snapshot location: a directory for file (default "+defaultStateDir+"), bucket[/prefix] for s3")
	flags.StringVarP(&o.namespace, "namespace", "n", "default", "Namespace of Kubernetes objects and of configmap snapshots")
	flags.StringVar(&o.kubeconfig, "kubeconfig", "", "Path to the kubeconfig file")
	flags.StringVar(&o.kubeContext, "context", "", "Kubernetes context to use")
	flags.StringVar(&o.region, "region", "", "AWS region")
	flags.StringVar(&o.profile, "profile", "", "AWS shared config profile")
	flags.StringVar(&o.roleARN, "role-arn", "", "AWS role assumed to manage resources")
	flags.IntVar(&o.logLevel, "log-level", 0, "The log level verbosity. 0 is the least verbose. Defaults to $"+LogEnv)
	flags.Float64Var(&o.apiQPS, "api-qps", 20, "Maximum provider calls per second, 0 for no limit")
	flags.IntVar(&o.apiBurst, "api-burst", 40, "Maximum burst of provider calls")
}

// loadStack reads the stack file and applies the --set overrides.
func (o *options) loadStack() (*v1alpha1.Stack, error) {
	return loader.Load(o.file, o.set...)
}

// buildGraph loads the stack and builds its graph. prepare, when set, may
// change the stack before it is built.
func (o *options) buildGraph(prepare func(*v1alpha1.Stack) error) (*v1alpha1.Stack, *graph.Graph, error) {
	stack, err := o.loadStack()
	if err != nil {
		return nil, nil, err
	}
	if prepare != nil {
		if err := prepare(stack); err != nil {
			return nil, nil, err
		}
	}
	g, err := graph.NewBuilder(nil).BuildStack(stack)
	if err != nil {
		return nil, nil, err
	}
	return stack, g, nil
}

func (o *options) kubeClients() (*client.Set, error) {
	if o.clients != nil {
		return o.clients, nil
	}
	set, err := client.NewSet(client.Config{
		Kubeconfig: o.kubeconfig,
		Context:    o.kubeContext,
		QPS:        float32(o.apiQPS),
		Burst:      o.apiBurst,
		UserAgent:  "stackgraph/" + version.GetVersionInfo().GitVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clients: %w", err)
	}
	o.clients = set
	return set, nil
}

func (o *options) awsOptions() awsprovider.Options {
	return awsprovider.Options{
		Region:  o.region,
		Profile: o.profile,
		RoleARN: o.roleARN,
	}
}

// store returns the snapshot store selected by --state-backend.
func (o *options) store(ctx context.Context) (state.Store, error) {
	switch o.stateBackend {
	case backendFile:
		dir := o.state
		if dir == "" {
			dir = defaultStateDir
		}
		return state.NewFileStore(dir), nil
	case backendConfigMap:
		set, err := o.kubeClients()
		if err != nil {
			return nil, err
		}
		return state.NewConfigMapStore(set.Kubernetes(), o.namespace), nil
	case backendS3:
		bucket, prefix, _ := strings.Cut(o.state, "/")
		if bucket == "" {
			return nil, errors.New("--state must name a bucket with the s3 backend")
		}
		cfg, err := awsprovider.LoadConfig(ctx, o.awsOptions())
		if err != nil {
			return nil, err
		}
		return state.NewS3Store(s3.NewFromConfig(cfg), bucket, prefix), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q, expected one of: %s, %s, %s",
			o.stateBackend, backendFile, backendConfigMap, backendS3)
	}
}

// providers returns the providers of the given kinds. Clients are only
// created for the kinds in use, so a stack without Kubernetes resources
// doesn't need a kubeconfig. A dry run serves every kind with the in-memory
// provider.
func (o *options) providers(ctx context.Context, kinds sets.Set[v1alpha1.Kind], dryRun bool) (*provider.Registry, error) {
	if o.registry != nil {
		return o.registry, nil
	}
	registry := provider.NewRegistry()
	if dryRun {
		registry.Register(fake.NewProvider(), v1alpha1.Kinds...)
		return registry, nil
	}

	if kinds.HasAny(awsprovider.Kinds...) {
		cfg, err := awsprovider.LoadConfig(ctx, o.awsOptions())
		if err != nil {
			return nil, err
		}
		awsprovider.NewProvider(cfg, o.log).Register(registry)
	}
	if kinds.HasAny(kubernetes.Kinds...) {
		set, err := o.kubeClients()
		if err != nil {
			return nil, err
		}
		kubernetes.NewProvider(set.Dynamic(), set.Mapper(), o.namespace, o.log).Register(registry)
	}
	return registry, nil
}

// kindsOf returns the kinds of the nodes of g and of the resources recorded
// in snapshot.
func kindsOf(g *graph.Graph, snapshot *state.Snapshot) sets.Set[v1alpha1.Kind] {
	kinds := sets.New[v1alpha1.Kind]()
	for _, node := range g.Nodes {
		kinds.Insert(node.Kind())
	}
	for _, res := range snapshot.Declarations() {
		kinds.Insert(res.Kind)
	}
	return kinds
}

// planOptions are the flags of the commands that compute a plan.
type planOptions struct {
	replace              []string
	defaultRemovalPolicy string
}

func (p *planOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&p.replace, "replace", nil, "Resources to replace when an immutable field changed")
	cmd.Flags().StringVar(&p.defaultRemovalPolicy, "default-removal-policy", "",
		"Removal policy of the resources of a stack that declares none. One of: (Destroy | Retain)")
}

// apply sets the default removal policy of stack.
func (p *planOptions) apply(stack *v1alpha1.Stack) error {
	policy := v1alpha1.RemovalPolicy(p.defaultRemovalPolicy)
	if !policy.IsValid() {
		return fmt.Errorf("invalid removal policy %q", policy)
	}
	if stack.Spec.Defaults.RemovalPolicy == "" {
		stack.Spec.Defaults.RemovalPolicy = policy
	}
	return nil
}

func (p *planOptions) reconciler() *reconciler.Reconciler {
	return reconciler.NewReconciler(p.replace...)
}

// runOptions are the flags of the commands that run a plan.
type runOptions struct {
	concurrency  int
	maxRetries   int
	readyTimeout time.Duration
	dryRun       bool
	metricsAddr  string
}

func (r *runOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&r.concurrency, "concurrency", executor.DefaultConcurrency, "Number of resources of a layer processed at once")
	cmd.Flags().IntVar(&r.maxRetries, "max-retries", 0, "Number of retries of operations that failed with a retryable error")
	cmd.Flags().DurationVar(&r.readyTimeout, "ready-timeout", executor.DefaultReadyTimeout, "How long to wait for a resource to become ready")
	cmd.Flags().BoolVar(&r.dryRun, "dry-run", false, "Run against an in-memory provider, and don't save the snapshot")
	cmd.Flags().StringVar(&r.metricsAddr, "metrics-bind-address", "", "The address the metric endpoint binds to while running, disabled when empty")
}

func (r *runOptions) config(o *options) executor.Config {
	return executor.Config{
		Concurrency:  r.concurrency,
		MaxRetries:   r.maxRetries,
		APIQPS:       o.apiQPS,
		APIBurst:     o.apiBurst,
		ReadyTimeout: r.readyTimeout,
		Version:      version.GetVersionInfo().GitVersion,
	}
}

// serveMetrics serves the run metrics until the returned function is
// called. It is a no-op when no address is set.
func (r *runOptions) serveMetrics(log logr.Logger) func() {
	if r.metricsAddr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              r.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server stopped")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
