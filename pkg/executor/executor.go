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

// Package executor runs deployment plans: it drives the providers of the
// planned resources layer by layer, records what was applied, and tears
// stacks down.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kro-run/stackgraph/pkg/graph"
	"github.com/kro-run/stackgraph/pkg/metadata"
	"github.com/kro-run/stackgraph/pkg/plan"
	"github.com/kro-run/stackgraph/pkg/provider"
	"github.com/kro-run/stackgraph/pkg/reconciler"
	"github.com/kro-run/stackgraph/pkg/runtime"
	"github.com/kro-run/stackgraph/pkg/state"
)

const (
	DefaultConcurrency   = 4
	DefaultReadyTimeout  = 30 * time.Minute
	DefaultReadyInterval = 15 * time.Second
	DefaultRetryDelay    = 10 * time.Second
)

// Config holds the parameters of a run.
type Config struct {
	// Concurrency is the number of steps of a layer that run at once.
	Concurrency int
	// MaxRetries is the number of times a failed operation is retried.
	// Only failures marked retryable by the provider are retried.
	MaxRetries int
	// RetryDelay is the delay before a retry, unless the provider asked
	// for a specific one.
	RetryDelay time.Duration
	// APIQPS and APIBurst throttle provider calls. A QPS of zero means no
	// limit.
	APIQPS   float64
	APIBurst int
	// ReadyTimeout bounds how long a resource is polled for readiness.
	ReadyTimeout time.Duration
	// ReadyInterval is the delay between two readiness polls.
	ReadyInterval time.Duration
	// Version is stamped on the objects created by the run.
	Version string
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.ReadyInterval <= 0 {
		c.ReadyInterval = DefaultReadyInterval
	}
	if c.APIBurst <= 0 {
		c.APIBurst = 1
	}
	return c
}

// Executor runs plans. A single executor can run any number of plans, one
// at a time or concurrently on different graphs.
type Executor struct {
	providers  *provider.Registry
	reconciler *reconciler.Reconciler
	// store persists the snapshot at the end of a run. May be nil.
	store   state.Store
	limiter *rate.Limiter
	config  Config
	log     logr.Logger
}

// New returns an executor calling the providers of providers. Deferred
// steps are decided again with r.
func New(providers *provider.Registry, r *reconciler.Reconciler, store state.Store, config Config, log logr.Logger) *Executor {
	config = config.withDefaults()
	limit := rate.Inf
	if config.APIQPS > 0 {
		limit = rate.Limit(config.APIQPS)
	}
	return &Executor{
		providers:  providers,
		reconciler: r,
		store:      store,
		limiter:    rate.NewLimiter(limit, config.APIBurst),
		config:     config,
		log:        log.WithName("executor"),
	}
}

// run is the state of a single Execute or Teardown call.
type run struct {
	*Executor
	graph    *graph.Graph
	plan     *plan.DeploymentPlan
	snapshot *state.Snapshot
	runtime  *runtime.Runtime
	labeler  metadata.GenericLabeler

	mu      sync.Mutex
	failed  map[string]error
	blocked map[string]error
	// deleted holds the orphans deleted or forgotten so far.
	deleted map[string]bool
}

func (e *Executor) newRun(g *graph.Graph, p *plan.DeploymentPlan, snapshot *state.Snapshot) (*run, error) {
	rt, err := runtime.NewRuntime(g, runtime.NewGraphSource(g))
	if err != nil {
		return nil, err
	}
	return &run{
		Executor: e,
		graph:    g,
		plan:     p,
		snapshot: snapshot,
		runtime:  rt,
		labeler:  metadata.NewStackLabeler(g.Name, e.config.Version),
		failed:   make(map[string]error),
		blocked:  make(map[string]error),
		deleted:  make(map[string]bool),
	}, nil
}

// Execute runs a deployment plan. Layers run in sequence, the steps of a
// layer run concurrently. A step only starts once every resource it
// depends on is Ready: the dependents of a failed resource stay Pending.
// When ctx is done no further step starts, in-flight provider calls see
// the cancellation.
//
// Every apply is recorded in snapshot, which is saved once the run is
// over, even when it failed. Failed and blocked resources are reported in
// an AggregateRunError.
func (e *Executor) Execute(ctx context.Context, g *graph.Graph, p *plan.DeploymentPlan, snapshot *state.Snapshot) (err error) {
	if p.Teardown {
		return errors.New("teardown plans must be run with Teardown")
	}
	r, err := e.newRun(g, p, snapshot)
	if err != nil {
		return err
	}
	start := time.Now()
	log := e.log.WithValues("stack", g.Name)
	log.Info("running plan", "steps", len(p.Steps), "layers", len(p.Layers))
	defer func() {
		runDuration.WithLabelValues("apply").Observe(time.Since(start).Seconds())
		if p.HasChanges() {
			err = errors.Join(err, r.save(ctx))
		}
	}()

	for i, layer := range p.Layers {
		log.V(1).Info("running layer", "layer", i, "resources", layer)
		r.runLayer(ctx, layer, r.canApply, r.applyStep)
	}
	if err := r.err(); err != nil {
		return err
	}
	log.Info("plan applied", "duration", time.Since(start).Round(time.Millisecond).String())
	return nil
}

// Teardown runs a plan built by plan.BuildTeardown: a resource is deleted
// once every resource depending on it is gone. Retained resources, and
// resources that were never applied, are marked Deleted without calling
// their provider. The nodes of g are expected to be Pending.
func (e *Executor) Teardown(ctx context.Context, g *graph.Graph, p *plan.DeploymentPlan, snapshot *state.Snapshot) (err error) {
	if !p.Teardown {
		return errors.New("only teardown plans can be run with Teardown")
	}
	r, err := e.newRun(g, p, snapshot)
	if err != nil {
		return err
	}
	start := time.Now()
	log := e.log.WithValues("stack", g.Name)
	log.Info("tearing down", "resources", len(p.Steps))
	defer func() {
		runDuration.WithLabelValues("teardown").Observe(time.Since(start).Seconds())
		err = errors.Join(err, r.save(ctx))
	}()

	for i, layer := range p.Layers {
		log.V(1).Info("tearing down layer", "layer", i, "resources", layer)
		r.runLayer(ctx, layer, r.canTearDown, r.teardownStep)
	}
	if err := r.err(); err != nil {
		return err
	}
	log.Info("stack torn down", "duration", time.Since(start).Round(time.Millisecond).String())
	return nil
}

// runLayer runs the steps of a layer on a bounded pool of workers and
// waits for all of them. Workers never return errors: failures are
// recorded so the siblings of a failed step run to completion.
func (r *run) runLayer(ctx context.Context, layer []string, ready func(*plan.Step) error, fn func(context.Context, *plan.Step) error) {
	var eg errgroup.Group
	eg.SetLimit(r.config.Concurrency)
	for _, id := range layer {
		step := r.plan.Steps[id]
		if err := ctx.Err(); err != nil {
			r.block(id, err)
			continue
		}
		if err := ready(step); err != nil {
			r.block(id, err)
			continue
		}
		eg.Go(func() error {
			// ctx may be done by the time a worker is free.
			if err := ctx.Err(); err != nil {
				r.block(id, err)
				return nil
			}
			if err := fn(ctx, step); err != nil {
				r.fail(id, err)
			}
			return nil
		})
	}
	_ = eg.Wait()
}

// canApply checks that every dependency of a step is Ready. Orphans wait
// for the orphans depending on them instead.
func (r *run) canApply(step *plan.Step) error {
	if step.Orphan {
		return r.canDeleteOrphan(step)
	}
	for _, dep := range step.DependsOn {
		node, ok := r.graph.Node(dep)
		if !ok {
			return fmt.Errorf("resource %q depends on unknown resource %q", step.NodeID, dep)
		}
		if s := node.State(); s != graph.StateReady {
			return &BlockedError{NodeID: step.NodeID, By: dep, State: s}
		}
	}
	return nil
}

func (r *run) canDeleteOrphan(step *plan.Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.plan.Steps {
		if !other.Orphan || r.deleted[other.NodeID] {
			continue
		}
		for _, dep := range other.DependsOn {
			if dep == step.NodeID {
				s := graph.StatePending
				if _, failed := r.failed[other.NodeID]; failed {
					s = graph.StateFailed
				}
				return &BlockedError{NodeID: step.NodeID, By: other.NodeID, State: s}
			}
		}
	}
	return nil
}

// canTearDown checks that every resource depending on a step is Deleted.
func (r *run) canTearDown(step *plan.Step) error {
	for _, dependent := range step.DependsOn {
		node, ok := r.graph.Node(dependent)
		if !ok {
			continue
		}
		if s := node.State(); s != graph.StateDeleted {
			return &BlockedError{NodeID: step.NodeID, By: dependent, State: s}
		}
	}
	return nil
}

func (r *run) block(id string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked[id] = cause
	blockedTotal.Inc()
	r.log.V(1).Info("step not started", "resourceID", id, "reason", cause.Error())
}

func (r *run) fail(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[id] = err
	if node, ok := r.graph.Node(id); ok {
		if s := node.State(); s == graph.StateMaterializing || s == graph.StateTearingDown {
			// The transition is legal from both states.
			_ = node.MarkFailed(err)
		}
	}
	r.log.Info("step failed", "resourceID", id, "error", err.Error())
}

func (r *run) markDeleted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted[id] = true
}

func (r *run) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.failed) == 0 && len(r.blocked) == 0 {
		return nil
	}
	return &AggregateRunError{Failed: r.failed, Blocked: r.blocked}
}

// save persists the snapshot, or deletes it once nothing is recorded.
// It runs after ctx may have been canceled: what was applied must be
// recorded regardless.
func (r *run) save(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	if r.snapshot.IsEmpty() {
		if err := r.store.Delete(ctx, r.snapshot.Stack); err != nil {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
		return nil
	}
	if err := r.store.Save(ctx, r.snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
