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

package executor_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/executor"
	"github.com/kro-run/stackgraph/pkg/graph"
	"github.com/kro-run/stackgraph/pkg/plan"
	"github.com/kro-run/stackgraph/pkg/provider/fake"
	"github.com/kro-run/stackgraph/pkg/reconciler"
	"github.com/kro-run/stackgraph/pkg/requeue"
)

var variables = map[string]interface{}{"clusterVersion": "1.31"}

var _ = Describe("Execute", func() {
	var (
		ctx context.Context
		h   *harness
	)

	BeforeEach(func() {
		ctx = context.Background()
		h = newHarness()
	})

	It("should apply resources in dependency order", func() {
		g, p, err := h.apply(ctx, eksResources(), variables)
		Expect(err).NotTo(HaveOccurred())

		Expect(p.Order()).To(Equal([]string{"Vpc", "Cluster", "Role", "Addon"}))
		Expect(h.provider.CallsOf(fake.OperationApply)).To(Equal([]string{"Vpc", "Cluster", "Role", "Addon"}))
		for id, s := range states(g) {
			Expect(s).To(Equal(graph.StateReady), id)
		}

		role, ok := h.snapshot.Get("Role")
		Expect(ok).To(BeTrue())
		Expect(role.Parameters).To(HaveKeyWithValue("name", "efs-demo"))
		Expect(role.Parameters["conditions"]).To(Equal(map[string]interface{}{
			"StringEquals": map[string]interface{}{"oidc.example.com/id/ABC:aud": "sts.amazonaws.com"},
		}))
		addon, _ := h.snapshot.Get("Addon")
		Expect(addon.Parameters).To(HaveKeyWithValue("serviceAccountRoleArn", "Role-arn"))
		Expect(addon.DependsOn).To(ConsistOf("Cluster", "Role"))

		h.reload(ctx)
		Expect(h.snapshot.IDs()).To(Equal([]string{"Addon", "Cluster", "Role", "Vpc"}))
	})

	It("should start every resource after all its dependencies", func() {
		h.provider.Delay("", 5*time.Millisecond)
		g, _, err := h.apply(ctx, eksResources(), variables)
		Expect(err).NotTo(HaveOccurred())

		position := make(map[string]int)
		for i, id := range h.provider.CallsOf(fake.OperationApply) {
			position[id] = i
		}
		for id, node := range g.Nodes {
			for _, dep := range node.GetDependencies() {
				Expect(position[dep]).To(BeNumerically("<", position[id]), "%s -> %s", dep, id)
			}
		}
	})

	It("should plan nothing and call nothing on a second run", func() {
		_, _, err := h.apply(ctx, eksResources(), variables)
		Expect(err).NotTo(HaveOccurred())
		h.reload(ctx)
		applies := len(h.provider.Calls())

		g, p, err := h.apply(ctx, eksResources(), variables)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.HasChanges()).To(BeFalse())
		Expect(p.Count()).To(Equal(map[reconciler.Operation]int{reconciler.OperationNoop: 4}))
		Expect(h.provider.Calls()).To(HaveLen(applies))
		for id, s := range states(g) {
			Expect(s).To(Equal(graph.StateReady), id)
		}
	})

	It("should decide deferred updates once their producers are applied", func() {
		_, _, err := h.apply(ctx, eksResources(), variables)
		Expect(err).NotTo(HaveOccurred())
		h.reload(ctx)
		before := len(h.provider.CallsOf(fake.OperationApply))

		_, p, err := h.apply(ctx, eksResources(), map[string]interface{}{"clusterVersion": "1.32"})
		Expect(err).NotTo(HaveOccurred())

		role, _ := p.Step("Role")
		Expect(role.Deferred).To(BeTrue())
		// The cluster reports the same outputs: its dependents are unchanged.
		Expect(h.provider.CallsOf(fake.OperationApply)[before:]).To(Equal([]string{"Cluster"}))
		cluster, _ := h.snapshot.Get("Cluster")
		Expect(cluster.Parameters).To(HaveKeyWithValue("version", "1.32"))
	})

	It("should replace a resource when requested", func() {
		_, _, err := h.apply(ctx, eksResources(), variables)
		Expect(err).NotTo(HaveOccurred())
		h.reload(ctx)
		before := len(h.provider.Calls())

		resources := eksResources()
		resources[0].Parameters["cidrBlock"] = "10.1.0.0/16"
		h.replace = []string{"Vpc"}
		_, p, err := h.apply(ctx, resources, variables)
		Expect(err).NotTo(HaveOccurred())

		vpc, _ := p.Step("Vpc")
		Expect(vpc.Replace).To(BeTrue())
		Expect(h.provider.Calls()[before:]).To(Equal([]fake.Call{
			{Operation: fake.OperationDelete, NodeID: "Vpc", Kind: v1alpha1.KindNetwork},
			{Operation: fake.OperationApply, NodeID: "Vpc", Kind: v1alpha1.KindNetwork},
		}))
	})

	It("should delete resources that are no longer declared", func() {
		_, _, err := h.apply(ctx, eksResources(), variables)
		Expect(err).NotTo(HaveOccurred())
		h.reload(ctx)

		_, p, err := h.apply(ctx, eksResources()[:3], variables)
		Expect(err).NotTo(HaveOccurred())
		addon, ok := p.Step("Addon")
		Expect(ok).To(BeTrue())
		Expect(addon.Orphan).To(BeTrue())
		Expect(h.provider.CallsOf(fake.OperationDelete)).To(Equal([]string{"Addon"}))
		Expect(h.provider.Exists("Addon")).To(BeFalse())
		h.reload(ctx)
		Expect(h.snapshot.IDs()).To(Equal([]string{"Cluster", "Role", "Vpc"}))
	})

	It("should block the dependents of a failed resource and let its siblings finish", func() {
		boom := errors.New("quota exceeded")
		h.provider.FailApply("Cluster", boom).Delay("Volume", 20*time.Millisecond)
		resources := append(eksResources(), &v1alpha1.Resource{
			ID:        "Volume",
			Kind:      v1alpha1.KindStorageVolume,
			DependsOn: []string{"Vpc"},
		})

		g, _, err := h.apply(ctx, resources, variables)
		Expect(err).To(HaveOccurred())

		var runErr *executor.AggregateRunError
		Expect(errors.As(err, &runErr)).To(BeTrue())
		Expect(runErr.FailedIDs()).To(Equal([]string{"Cluster"}))
		Expect(runErr.BlockedIDs()).To(Equal([]string{"Addon", "Role"}))

		var opErr *executor.OperationFailedError
		Expect(errors.As(err, &opErr)).To(BeTrue())
		Expect(opErr.NodeID).To(Equal("Cluster"))
		Expect(opErr.Operation).To(Equal(reconciler.OperationCreate))
		Expect(errors.Is(err, boom)).To(BeTrue())

		Expect(states(g)).To(Equal(map[string]graph.State{
			"Vpc":     graph.StateReady,
			"Volume":  graph.StateReady,
			"Cluster": graph.StateFailed,
			"Role":    graph.StatePending,
			"Addon":   graph.StatePending,
		}))
		Expect(h.provider.CallsOf(fake.OperationApply)).NotTo(ContainElement("Role"))

		// What was applied is recorded.
		h.reload(ctx)
		Expect(h.snapshot.IDs()).To(Equal([]string{"Volume", "Vpc"}))
	})

	It("should never run more operations at once than allowed", func() {
		h.config.Concurrency = 2
		h.provider.Delay("", 10*time.Millisecond)
		var resources []*v1alpha1.Resource
		for _, id := range []string{"A", "B", "C", "D", "E", "F"} {
			resources = append(resources, &v1alpha1.Resource{ID: id, Kind: v1alpha1.KindStorageVolume})
		}

		g, p, err := h.apply(ctx, resources, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Layers).To(HaveLen(1))
		Expect(h.provider.MaxInFlight()).To(BeNumerically("<=", 2))
		for id, s := range states(g) {
			Expect(s).To(Equal(graph.StateReady), id)
		}
	})

	It("should not start anything once canceled", func() {
		h.provider.Delay("Vpc", time.Hour)
		ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		g, _, err := h.apply(ctx, eksResources(), variables)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())

		var runErr *executor.AggregateRunError
		Expect(errors.As(err, &runErr)).To(BeTrue())
		Expect(runErr.FailedIDs()).To(Equal([]string{"Vpc"}))
		Expect(runErr.BlockedIDs()).To(Equal([]string{"Addon", "Cluster", "Role"}))
		Expect(errors.Is(runErr.Blocked["Cluster"], context.DeadlineExceeded)).To(BeTrue())

		Expect(h.provider.CallsOf(fake.OperationApply)).To(Equal([]string{"Vpc"}))
		Expect(g.Nodes["Cluster"].State()).To(Equal(graph.StatePending))
	})

	Context("readiness", func() {
		var resources []*v1alpha1.Resource

		BeforeEach(func() {
			resources = eksResources()
			resources[1].ReadyWhen = []string{`${Cluster.status == "ACTIVE"}`}
			h.provider.SetOutputs("Cluster", clusterOutputs("CREATING"))
		})

		It("should wait for readyWhen expressions before starting dependents", func() {
			h.provider.Observations("Cluster", clusterOutputs("CREATING"), clusterOutputs("ACTIVE"))

			g, _, err := h.apply(ctx, resources, variables)
			Expect(err).NotTo(HaveOccurred())
			outputs, ok := g.Nodes["Cluster"].ObservedOutputs()
			Expect(ok).To(BeTrue())
			Expect(outputs).To(HaveKeyWithValue("status", "ACTIVE"))

			cluster, _ := h.snapshot.Get("Cluster")
			Expect(cluster.Outputs).To(HaveKeyWithValue("status", "ACTIVE"))
		})

		It("should fail resources that never become ready", func() {
			h.config.ReadyTimeout = 20 * time.Millisecond

			g, _, err := h.apply(ctx, resources, variables)
			var notReady *executor.NotReadyError
			Expect(errors.As(err, &notReady)).To(BeTrue())
			Expect(notReady.NodeID).To(Equal("Cluster"))
			Expect(notReady.Reason).To(ContainSubstring(`Cluster.status == "ACTIVE"`))
			Expect(g.Nodes["Cluster"].State()).To(Equal(graph.StateFailed))
			Expect(g.Nodes["Role"].State()).To(Equal(graph.StatePending))

			// The cluster exists: the next run updates it rather than
			// creating it again.
			_, ok := h.snapshot.Get("Cluster")
			Expect(ok).To(BeTrue())
		})
	})

	Context("retries", func() {
		BeforeEach(func() {
			h.provider.FailApply("Vpc", requeue.NeededAfter(errors.New("throttled"), time.Millisecond))
		})

		It("should not retry by default", func() {
			_, _, err := h.apply(ctx, eksResources(), variables)
			Expect(err).To(HaveOccurred())
			Expect(h.provider.CallsOf(fake.OperationApply)).To(Equal([]string{"Vpc"}))
		})

		It("should retry retryable failures", func() {
			h.config.MaxRetries = 2
			g, _, err := h.apply(ctx, eksResources(), variables)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.provider.CallsOf(fake.OperationApply)).To(Equal([]string{"Vpc", "Vpc", "Cluster", "Role", "Addon"}))
			Expect(g.Nodes["Vpc"].State()).To(Equal(graph.StateReady))
		})

		It("should not retry failures marked as final", func() {
			h.config.MaxRetries = 2
			h.provider.FailApply("Cluster", requeue.None(errors.New("invalid version")))
			_, _, err := h.apply(ctx, eksResources(), variables)
			Expect(err).To(HaveOccurred())
			Expect(h.provider.CallsOf(fake.OperationApply)).To(Equal([]string{"Vpc", "Vpc", "Cluster"}))
		})
	})

	It("should refuse teardown plans", func() {
		g := h.build(eksResources(), variables)
		err := h.executor().Execute(ctx, g, plan.BuildTeardown(g), h.snapshot)
		Expect(err).To(MatchError(ContainSubstring("Teardown")))
	})
})

var _ = Describe("Graph errors", func() {
	It("should fail before any provider call", func() {
		h := newHarness()
		resources := append(eksResources(), &v1alpha1.Resource{ID: "Vpc", Kind: v1alpha1.KindNetwork})
		stack := &v1alpha1.Stack{Spec: v1alpha1.StackSpec{Resources: resources, Variables: variables}}
		stack.Name = stackName

		_, err := graph.NewBuilder(nil).BuildStack(stack)
		var duplicate *graph.DuplicateResourceError
		Expect(errors.As(err, &duplicate)).To(BeTrue())
		Expect(h.provider.Calls()).To(BeEmpty())
	})
})

var _ = Describe("Teardown", func() {
	var (
		ctx context.Context
		h   *harness
	)

	BeforeEach(func() {
		ctx = context.Background()
		h = newHarness()
	})

	teardown := func(resources []*v1alpha1.Resource) (*graph.Graph, *plan.DeploymentPlan, error) {
		_, _, err := h.apply(ctx, resources, variables)
		Expect(err).NotTo(HaveOccurred())
		h.reload(ctx)
		g := h.build(resources, variables)
		p := plan.BuildTeardown(g)
		return g, p, h.executor().Teardown(ctx, g, p, h.snapshot)
	}

	It("should delete resources in reverse order", func() {
		g, p, err := teardown(eksResources())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.TeardownOrder()).To(Equal([]string{"Addon", "Role", "Cluster", "Vpc"}))
		Expect(h.provider.CallsOf(fake.OperationDelete)).To(Equal([]string{"Addon", "Role", "Cluster", "Vpc"}))
		for id, s := range states(g) {
			Expect(s).To(Equal(graph.StateDeleted), id)
		}

		// The snapshot is gone with the stack.
		h.reload(ctx)
		Expect(h.snapshot.IsEmpty()).To(BeTrue())
	})

	It("should delete in the exact reverse of the creation order", func() {
		h.config.Concurrency = 1
		resources := []*v1alpha1.Resource{
			{ID: "A", Kind: v1alpha1.KindStorageVolume},
			{ID: "B", Kind: v1alpha1.KindStorageVolume},
			{ID: "C", Kind: v1alpha1.KindStorageVolume, DependsOn: []string{"A", "B"}},
		}

		_, _, err := teardown(resources)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.provider.CallsOf(fake.OperationApply)).To(Equal([]string{"A", "B", "C"}))
		Expect(h.provider.CallsOf(fake.OperationDelete)).To(Equal([]string{"C", "B", "A"}))
	})

	It("should leave retained resources in place", func() {
		resources := eksResources()
		resources[0].RemovalPolicy = v1alpha1.RemovalPolicyRetain

		g, p, err := teardown(resources)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.TeardownOrder()).To(Equal([]string{"Addon", "Role", "Cluster"}))
		Expect(h.provider.CallsOf(fake.OperationDelete)).To(Equal([]string{"Addon", "Role", "Cluster"}))
		Expect(h.provider.Exists("Vpc")).To(BeTrue())
		Expect(g.Nodes["Vpc"].State()).To(Equal(graph.StateDeleted))
		Expect(h.snapshot.IsEmpty()).To(BeTrue())
	})

	It("should keep what depends on a resource that failed to delete", func() {
		h.provider.FailDelete("Role", errors.New("role in use"))

		g, _, err := teardown(eksResources())
		var runErr *executor.AggregateRunError
		Expect(errors.As(err, &runErr)).To(BeTrue())
		Expect(runErr.FailedIDs()).To(Equal([]string{"Role"}))
		Expect(runErr.BlockedIDs()).To(Equal([]string{"Cluster", "Vpc"}))

		Expect(states(g)).To(Equal(map[string]graph.State{
			"Addon":   graph.StateDeleted,
			"Role":    graph.StateFailed,
			"Cluster": graph.StatePending,
			"Vpc":     graph.StatePending,
		}))
		h.reload(ctx)
		Expect(h.snapshot.IDs()).To(Equal([]string{"Cluster", "Role", "Vpc"}))
	})

	It("should mark resources that were never applied as deleted", func() {
		g := h.build(eksResources(), variables)
		p := plan.BuildTeardown(g)
		Expect(h.executor().Teardown(ctx, g, p, h.snapshot)).To(Succeed())
		Expect(h.provider.Calls()).To(BeEmpty())
		for id, s := range states(g) {
			Expect(s).To(Equal(graph.StateDeleted), id)
		}
	})
})
