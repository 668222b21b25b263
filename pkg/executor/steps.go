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

package executor

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/kro-run/stackgraph/pkg/graph"
	"github.com/kro-run/stackgraph/pkg/metadata"
	"github.com/kro-run/stackgraph/pkg/plan"
	"github.com/kro-run/stackgraph/pkg/provider"
	"github.com/kro-run/stackgraph/pkg/reconciler"
	"github.com/kro-run/stackgraph/pkg/requeue"
	"github.com/kro-run/stackgraph/pkg/state"
)

// applyStep runs the step of a declared resource, retrying retryable
// failures up to MaxRetries times.
func (r *run) applyStep(ctx context.Context, step *plan.Step) error {
	if step.Orphan {
		return r.deleteOrphan(ctx, step)
	}
	node, ok := r.graph.Node(step.NodeID)
	if !ok {
		return fmt.Errorf("resource %q not found", step.NodeID)
	}
	log := r.log.WithValues("resourceID", step.NodeID, "operation", step.Operation)

	for attempt := 0; ; attempt++ {
		err := r.reconcileNode(ctx, node, step)
		if err == nil {
			return nil
		}
		retry, delay := requeue.Retryable(err)
		if !retry || attempt >= r.config.MaxRetries || ctx.Err() != nil {
			return err
		}
		if delay == 0 {
			delay = r.config.RetryDelay
		}
		log.Info("retrying operation", "attempt", attempt+1, "delay", delay.String(), "error", err.Error())
		retriesTotal.WithLabelValues(string(node.Kind())).Inc()
		if err := node.MarkFailed(err); err != nil {
			return err
		}
		if err := node.Transition(graph.StatePending); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// reconcileNode converges a single resource and marks it Ready.
func (r *run) reconcileNode(ctx context.Context, node *graph.Node, step *plan.Step) error {
	id := node.ID()
	log := r.log.WithValues("resourceID", id)
	lastApplied, applied := r.snapshot.Get(id)

	// An unchanged resource is adopted with the outputs it reported last.
	if step.Operation == reconciler.OperationNoop && applied {
		log.V(1).Info("resource unchanged")
		return node.MarkReady(lastApplied.Outputs)
	}
	if !applied {
		lastApplied = nil
	}

	if err := node.Transition(graph.StateMaterializing); err != nil {
		return err
	}
	desired, err := plan.Desire(r.runtime, id)
	if err != nil {
		return err
	}

	operation, replace := step.Operation, step.Replace
	if step.Deferred || operation == reconciler.OperationNoop {
		decision, err := r.reconciler.Decide(desired, lastApplied, node.Schema())
		if err != nil {
			return err
		}
		operation, replace = decision.Operation, decision.Replace
		log.V(1).Info("decided deferred operation", "operation", operation, "differences", len(decision.Differences))
	}
	if operation == reconciler.OperationNoop {
		return node.MarkReady(lastApplied.Outputs)
	}

	p, err := r.providers.Get(node.Kind())
	if err != nil {
		return &OperationFailedError{NodeID: id, Operation: operation, Err: err}
	}
	start := time.Now()
	defer func() {
		operationDuration.WithLabelValues(string(node.Kind()), operation.String()).Observe(time.Since(start).Seconds())
	}()

	if replace && lastApplied != nil {
		log.Info("replacing resource")
		if err := r.delete(ctx, p, id, lastApplied); err != nil {
			return &OperationFailedError{NodeID: id, Operation: reconciler.OperationDelete, Err: err}
		}
		r.snapshot.Forget(id)
		lastApplied = nil
	}

	log.Info("applying resource", "operation", operation)
	merged, err := r.labeler.Merge(metadata.NewResourceLabeler(id, node.Kind()))
	if err != nil {
		return err
	}
	labels := merged.(metadata.GenericLabeler)
	outputs, err := r.apply(ctx, p, provider.Desired{
		NodeID:     id,
		Kind:       node.Kind(),
		Stack:      r.graph.Name,
		Parameters: desired.Parameters,
		Config:     desired.Config,
		Labels:     labels,
		Tags:       labels.Tags(r.graph.Tags),
		Previous:   lastApplied,
	}, operation)
	if err != nil {
		return &OperationFailedError{NodeID: id, Operation: operation, Err: err}
	}

	entry := &state.Entry{
		Kind:          node.Kind(),
		Parameters:    desired.Parameters,
		Config:        desired.Config,
		Outputs:       outputs,
		DependsOn:     node.GetDependencies(),
		RemovalPolicy: node.RemovalPolicy(),
		AppliedAt:     metav1.Now(),
	}
	// Recorded before waiting: the resource exists even if it never gets
	// ready.
	r.snapshot.Record(id, entry)

	outputs, err = r.waitReady(ctx, p, node, entry)
	if err != nil {
		return err
	}
	entry.Outputs = outputs
	r.snapshot.Record(id, entry)
	return node.MarkReady(outputs)
}

// waitReady polls the provider until the readyWhen expressions of the node
// hold, and returns the outputs they held over. Providers that can't be
// observed must report ready outputs from Apply.
func (r *run) waitReady(ctx context.Context, p provider.Provider, node *graph.Node, entry *state.Entry) (map[string]interface{}, error) {
	id := node.ID()
	ready, reason := r.isReady(id, entry.Outputs)
	if ready {
		return entry.Outputs, nil
	}
	observer, ok := p.(provider.Observer)
	if !ok {
		return nil, &NotReadyError{NodeID: id, Reason: reason}
	}

	log := r.log.WithValues("resourceID", id)
	outputs := entry.Outputs
	applied := provider.Applied{NodeID: id, Stack: r.graph.Name, Entry: entry}
	err := wait.PollUntilContextTimeout(ctx, r.config.ReadyInterval, r.config.ReadyTimeout, false, func(ctx context.Context) (bool, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return false, err
		}
		observed, err := observer.Observe(ctx, applied)
		if err != nil {
			return false, fmt.Errorf("failed to observe resource %q: %w", id, err)
		}
		ready, reason = r.isReady(id, observed)
		if !ready {
			log.V(1).Info("waiting for resource to be ready", "reason", reason)
			return false, nil
		}
		outputs = observed
		return true, nil
	})
	if err != nil {
		if wait.Interrupted(err) && ctx.Err() == nil {
			return nil, &NotReadyError{NodeID: id, Reason: reason}
		}
		return nil, err
	}
	return outputs, nil
}

// isReady treats readyWhen expressions that can't be evaluated yet, e.g.
// over an output the provider didn't report so far, as not ready.
func (r *run) isReady(id string, outputs map[string]interface{}) (bool, string) {
	ready, reason, err := r.runtime.IsReady(id, outputs)
	if err != nil {
		return false, err.Error()
	}
	return ready, reason
}

// deleteOrphan deletes a resource that is no longer declared.
func (r *run) deleteOrphan(ctx context.Context, step *plan.Step) error {
	id := step.NodeID
	log := r.log.WithValues("resourceID", id)
	entry, ok := r.snapshot.Get(id)
	if !ok {
		r.markDeleted(id)
		return nil
	}
	if step.Retain {
		log.Info("forgetting retained resource")
		r.snapshot.Forget(id)
		r.markDeleted(id)
		return nil
	}
	p, err := r.providers.Get(step.Kind)
	if err != nil {
		return &OperationFailedError{NodeID: id, Operation: reconciler.OperationDelete, Err: err}
	}
	log.Info("deleting resource")
	if err := r.delete(ctx, p, id, entry); err != nil {
		return &OperationFailedError{NodeID: id, Operation: reconciler.OperationDelete, Err: err}
	}
	r.snapshot.Forget(id)
	r.markDeleted(id)
	return nil
}

// teardownStep deletes a resource of a teardown plan.
func (r *run) teardownStep(ctx context.Context, step *plan.Step) error {
	id := step.NodeID
	node, ok := r.graph.Node(id)
	if !ok {
		return fmt.Errorf("resource %q not found", id)
	}
	log := r.log.WithValues("resourceID", id)

	entry, applied := r.snapshot.Get(id)
	if !applied {
		log.V(1).Info("resource was never applied")
		return node.Transition(graph.StateDeleted)
	}
	if node.State() == graph.StatePending {
		if err := node.MarkReady(entry.Outputs); err != nil {
			return err
		}
	}
	if step.Retain {
		log.Info("retaining resource")
		r.snapshot.Forget(id)
		return node.Transition(graph.StateDeleted)
	}

	if err := node.Transition(graph.StateTearingDown); err != nil {
		return err
	}
	p, err := r.providers.Get(node.Kind())
	if err != nil {
		return &OperationFailedError{NodeID: id, Operation: reconciler.OperationDelete, Err: err}
	}
	log.Info("deleting resource")
	start := time.Now()
	err = r.delete(ctx, p, id, entry)
	operationDuration.WithLabelValues(string(node.Kind()), reconciler.OperationDelete.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return &OperationFailedError{NodeID: id, Operation: reconciler.OperationDelete, Err: err}
	}
	r.snapshot.Forget(id)
	return node.Transition(graph.StateDeleted)
}

func (r *run) apply(ctx context.Context, p provider.Provider, desired provider.Desired, operation reconciler.Operation) (map[string]interface{}, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	inFlight.Inc()
	defer inFlight.Dec()
	outputs, err := p.Apply(ctx, desired)
	recordOperation(string(desired.Kind), operation.String(), err)
	if outputs == nil && err == nil {
		outputs = map[string]interface{}{}
	}
	return outputs, err
}

func (r *run) delete(ctx context.Context, p provider.Provider, id string, entry *state.Entry) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	inFlight.Inc()
	defer inFlight.Dec()
	err := p.Delete(ctx, provider.Applied{NodeID: id, Stack: r.snapshot.Stack, Entry: entry})
	recordOperation(string(entry.Kind), reconciler.OperationDelete.String(), err)
	return err
}
