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

// Package fake provides an in-memory provider. It backs dry runs and the
// executor tests: it records every call, and failures, latencies and slow
// readiness can be scripted per resource.
package fake

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/graph/schema"
	"github.com/kro-run/stackgraph/pkg/provider"
)

// Call is a recorded provider call.
type Call struct {
	Operation string
	NodeID    string
	Kind      v1alpha1.Kind
}

func (c Call) String() string {
	return c.Operation + " " + c.NodeID
}

const (
	OperationApply  = "Apply"
	OperationDelete = "Delete"
)

// Provider is an in-memory provider. The zero value is not usable, use
// NewProvider.
type Provider struct {
	schemas *schema.Registry

	mu           sync.Mutex
	outputs      map[string]map[string]interface{}
	applyErrs    map[string][]error
	deleteErrs   map[string]error
	delays       map[string]time.Duration
	defaultDelay time.Duration
	observations map[string][]map[string]interface{}
	objects      map[string]map[string]interface{}
	calls        []Call
	inFlight     int
	maxInFlight  int
}

var (
	_ provider.Provider = &Provider{}
	_ provider.Observer = &Provider{}
)

// NewProvider returns an empty fake provider. Resources without scripted
// outputs report a value for every output known for their kind.
func NewProvider() *Provider {
	return &Provider{
		schemas:      schema.DefaultRegistry(),
		outputs:      make(map[string]map[string]interface{}),
		applyErrs:    make(map[string][]error),
		deleteErrs:   make(map[string]error),
		delays:       make(map[string]time.Duration),
		observations: make(map[string][]map[string]interface{}),
		objects:      make(map[string]map[string]interface{}),
	}
}

// SetOutputs sets the outputs reported when applying id.
func (p *Provider) SetOutputs(id string, outputs map[string]interface{}) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outputs[id] = outputs
	return p
}

// FailApply makes the next applies of id fail, one error per call. Once
// the errors are consumed, applies succeed.
func (p *Provider) FailApply(id string, errs ...error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyErrs[id] = append(p.applyErrs[id], errs...)
	return p
}

// FailDelete makes every delete of id fail with err.
func (p *Provider) FailDelete(id string, err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteErrs[id] = err
	return p
}

// Delay makes operations on id take d. An empty id sets the delay of
// every resource.
func (p *Provider) Delay(id string, d time.Duration) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id == "" {
		p.defaultDelay = d
	} else {
		p.delays[id] = d
	}
	return p
}

// Observations scripts what Observe returns for id: one entry per call.
// Once consumed, Observe returns the applied outputs.
func (p *Provider) Observations(id string, outputs ...map[string]interface{}) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observations[id] = append(p.observations[id], outputs...)
	return p
}

// Seed records id as existing, as if it was applied by an earlier run.
func (p *Provider) Seed(id string, outputs map[string]interface{}) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[id] = maps.Clone(outputs)
	return p
}

// Apply implements provider.Provider.
func (p *Provider) Apply(ctx context.Context, desired provider.Desired) (map[string]interface{}, error) {
	done := p.enter(Call{Operation: OperationApply, NodeID: desired.NodeID, Kind: desired.Kind})
	defer done()
	if err := p.wait(ctx, desired.NodeID); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if errs := p.applyErrs[desired.NodeID]; len(errs) > 0 {
		p.applyErrs[desired.NodeID] = errs[1:]
		return nil, errs[0]
	}
	outputs, ok := p.outputs[desired.NodeID]
	if !ok {
		outputs = p.defaultOutputs(desired)
	}
	p.objects[desired.NodeID] = maps.Clone(outputs)
	return maps.Clone(outputs), nil
}

// Delete implements provider.Provider.
func (p *Provider) Delete(ctx context.Context, applied provider.Applied) error {
	kind := v1alpha1.Kind("")
	if applied.Entry != nil {
		kind = applied.Entry.Kind
	}
	done := p.enter(Call{Operation: OperationDelete, NodeID: applied.NodeID, Kind: kind})
	defer done()
	if err := p.wait(ctx, applied.NodeID); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.deleteErrs[applied.NodeID]; err != nil {
		return err
	}
	delete(p.objects, applied.NodeID)
	return nil
}

// Observe implements provider.Observer.
func (p *Provider) Observe(_ context.Context, applied provider.Applied) (map[string]interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if scripted := p.observations[applied.NodeID]; len(scripted) > 0 {
		p.observations[applied.NodeID] = scripted[1:]
		return maps.Clone(scripted[0]), nil
	}
	outputs, ok := p.objects[applied.NodeID]
	if !ok {
		return nil, fmt.Errorf("resource %q does not exist", applied.NodeID)
	}
	return maps.Clone(outputs), nil
}

// Calls returns the recorded calls, in order.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsOf returns the ids of the resources the given operation was called
// for, in order.
func (p *Provider) CallsOf(operation string) []string {
	var ids []string
	for _, call := range p.Calls() {
		if call.Operation == operation {
			ids = append(ids, call.NodeID)
		}
	}
	return ids
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (p *Provider) MaxInFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxInFlight
}

// Exists returns true if id was applied and not deleted since.
func (p *Provider) Exists(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.objects[id]
	return ok
}

func (p *Provider) enter(call Call) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.inFlight--
	}
}

func (p *Provider) wait(ctx context.Context, id string) error {
	p.mu.Lock()
	d, ok := p.delays[id]
	if !ok {
		d = p.defaultDelay
	}
	p.mu.Unlock()
	if d == 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// defaultOutputs returns a placeholder value for each output known for the
// kind. Parameters named like an output are echoed.
func (p *Provider) defaultOutputs(desired provider.Desired) map[string]interface{} {
	outputs := make(map[string]interface{})
	s, ok := p.schemas.Get(desired.Kind)
	if !ok {
		return outputs
	}
	for _, key := range s.Outputs {
		if v, ok := desired.Parameters[key]; ok {
			outputs[key] = v
			continue
		}
		outputs[key] = fmt.Sprintf("%s-%s", desired.NodeID, key)
	}
	return outputs
}
