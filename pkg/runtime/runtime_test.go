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

package runtime

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kro-run/stackgraph/api/v1alpha1"
	"github.com/kro-run/stackgraph/pkg/graph"
	"github.com/kro-run/stackgraph/pkg/graph/variable"
)

func newTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	stack := &v1alpha1.Stack{
		Spec: v1alpha1.StackSpec{
			Variables: map[string]interface{}{
				"clusterVersion": "1.31",
				"withDatabase":   false,
				"network":        map[string]interface{}{"cidr": "10.0.0.0/16"},
			},
			Resources: []*v1alpha1.Resource{
				{
					ID:         "Vpc",
					Kind:       v1alpha1.KindNetwork,
					Parameters: map[string]interface{}{"cidrBlock": "${vars.network.cidr}"},
				},
				{
					ID:   "Cluster",
					Kind: v1alpha1.KindCluster,
					Parameters: map[string]interface{}{
						"name":      "demo",
						"version":   "${vars.clusterVersion}",
						"subnetIds": "${Vpc.subnetIds}",
					},
					ReadyWhen: []string{`${Cluster.status == "ACTIVE"}`},
				},
				{
					ID:   "Role",
					Kind: v1alpha1.KindTrustRole,
					Parameters: map[string]interface{}{
						"name":               "efs-csi-${Cluster.name}",
						"federatedPrincipal": variable.Ref("Cluster", "openIdConnectProviderArn"),
						"conditions": map[string]interface{}{
							"${Cluster.oidcIssuer.replace('https://', '')}:aud": "sts.amazonaws.com",
						},
					},
				},
				{
					ID:          "Database",
					Kind:        v1alpha1.KindDatabase,
					Parameters:  map[string]interface{}{"subnetIds": "${Vpc.subnetIds}"},
					IncludeWhen: []string{"${vars.withDatabase}"},
				},
			},
		},
	}
	stack.Name = "demo"
	g, err := graph.NewBuilder(nil).BuildStack(stack)
	require.NoError(t, err)
	return g
}

func markReady(t *testing.T, g *graph.Graph, id string, outputs map[string]interface{}) {
	t.Helper()
	node, ok := g.Node(id)
	require.True(t, ok)
	require.NoError(t, node.MarkReady(outputs))
}

func TestRuntime_Resolve(t *testing.T) {
	g := newTestGraph(t)
	markReady(t, g, "Vpc", map[string]interface{}{"vpcId": "vpc-123", "subnetIds": []interface{}{"a", "b"}})

	rt, err := NewRuntime(g, NewGraphSource(g))
	require.NoError(t, err)

	tests := []struct {
		name      string
		ref       variable.Reference
		want      interface{}
		checkErr  func(t *testing.T, err error)
		wantError bool
	}{
		{
			name: "ready producer",
			ref:  variable.Ref("Vpc", "vpcId"),
			want: "vpc-123",
		},
		{
			name: "stack variable",
			ref:  variable.Ref(variable.VariablesID, "clusterVersion"),
			want: "1.31",
		},
		{
			name: "producer not ready",
			ref:  variable.Ref("Cluster", "endpoint"),
			checkErr: func(t *testing.T, err error) {
				var producerErr *UnresolvedProducerError
				require.True(t, errors.As(err, &producerErr))
				assert.Equal(t, "Cluster", producerErr.Producer)
				assert.Equal(t, graph.StatePending, producerErr.State)
			},
		},
		{
			name: "undeclared producer",
			ref:  variable.Ref("Database2", "endpoint"),
			checkErr: func(t *testing.T, err error) {
				var producerErr *UnresolvedProducerError
				require.True(t, errors.As(err, &producerErr))
				assert.Equal(t, graph.State(""), producerErr.State)
				assert.Contains(t, err.Error(), "Database2")
			},
		},
		{
			name: "undeclared output",
			ref:  variable.Ref("Vpc", "ipv6Cidr"),
			checkErr: func(t *testing.T, err error) {
				var outputErr *UnknownOutputError
				require.True(t, errors.As(err, &outputErr))
				assert.Contains(t, outputErr.Declared, "vpcId")
			},
		},
		{
			name: "declared output not reported",
			ref:  variable.Ref("Vpc", "arn"),
			checkErr: func(t *testing.T, err error) {
				var outputErr *UnknownOutputError
				require.True(t, errors.As(err, &outputErr))
				assert.Empty(t, outputErr.Declared)
				assert.Equal(t, `output "arn" was not reported by "Vpc"`, err.Error())
			},
		},
		{
			name: "unknown variable",
			ref:  variable.Ref(variable.VariablesID, "region"),
			checkErr: func(t *testing.T, err error) {
				var outputErr *UnknownOutputError
				require.True(t, errors.As(err, &outputErr))
				assert.Equal(t, []string{"clusterVersion", "network", "withDatabase"}, outputErr.Declared)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rt.Resolve(tt.ref)
			if tt.checkErr != nil {
				require.Error(t, err)
				tt.checkErr(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuntime_Evaluate(t *testing.T) {
	g := newTestGraph(t)
	markReady(t, g, "Vpc", map[string]interface{}{"vpcId": "vpc-123", "subnetIds": []interface{}{"a", "b"}})
	markReady(t, g, "Cluster", map[string]interface{}{
		"name":       "demo",
		"oidcIssuer": "https://oidc.eks.eu-west-1.amazonaws.com/id/ABC",
		"status":     "ACTIVE",
	})

	rt, err := NewRuntime(g, NewGraphSource(g))
	require.NoError(t, err)

	tests := []struct {
		expression string
		want       interface{}
		wantErr    string
	}{
		{expression: "Vpc.vpcId", want: "vpc-123"},
		{expression: "Vpc.subnetIds", want: []interface{}{"a", "b"}},
		{expression: "size(Vpc.subnetIds)", want: int64(2)},
		{expression: "Cluster.oidcIssuer.replace('https://', '')", want: "oidc.eks.eu-west-1.amazonaws.com/id/ABC"},
		{expression: "vars.network.cidr", want: "10.0.0.0/16"},
		{expression: "Vpc.vpcId + '/' + Cluster.name", want: "vpc-123/demo"},
		{expression: "Database.endpoint", wantErr: `unresolved producer "Database"`},
		{expression: "Storage.id", wantErr: `unresolved producer "Storage": no such resource`},
		{expression: "Vpc", wantErr: "must select an output of Vpc"},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got, err := rt.Evaluate(tt.expression)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuntime_Substitute(t *testing.T) {
	g := newTestGraph(t)
	markReady(t, g, "Vpc", map[string]interface{}{"vpcId": "vpc-123", "subnetIds": []interface{}{"a", "b"}})

	rt, err := NewRuntime(g, NewGraphSource(g))
	require.NoError(t, err)

	got, err := rt.Substitute("vpc=${Vpc.vpcId} subnets=${Vpc.subnetIds} literal=$${Vpc.vpcId}")
	require.NoError(t, err)
	assert.Equal(t, `vpc=vpc-123 subnets=["a","b"] literal=${Vpc.vpcId}`, got)

	_, err = rt.Substitute("endpoint=${Cluster.endpoint}")
	var substitutionErr *TemplateSubstitutionError
	require.True(t, errors.As(err, &substitutionErr))
	assert.Equal(t, "${Cluster.endpoint}", substitutionErr.Placeholder)
	var producerErr *UnresolvedProducerError
	assert.True(t, errors.As(err, &producerErr))
}

func TestRuntime_ResolveParameters(t *testing.T) {
	g := newTestGraph(t)
	rt, err := NewRuntime(g, NewGraphSource(g))
	require.NoError(t, err)

	vpc, err := rt.ResolveParameters("Vpc")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"cidrBlock": "10.0.0.0/16"}, vpc)

	_, err = rt.ResolveParameters("Role")
	require.Error(t, err)
	var producerErr *UnresolvedProducerError
	require.True(t, errors.As(err, &producerErr))
	assert.Equal(t, "Cluster", producerErr.Producer)

	markReady(t, g, "Cluster", map[string]interface{}{
		"name":                     "demo",
		"oidcIssuer":               "https://oidc.example.com/id/ABC",
		"openIdConnectProviderArn": "arn:aws:iam::123:oidc-provider/oidc.example.com/id/ABC",
	})
	role, err := rt.ResolveParameters("Role")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"name":               "efs-csi-demo",
		"federatedPrincipal": "arn:aws:iam::123:oidc-provider/oidc.example.com/id/ABC",
		"conditions": map[string]interface{}{
			"oidc.example.com/id/ABC:aud": "sts.amazonaws.com",
		},
	}, role)

	// The node parameters are left untouched.
	node, _ := g.Node("Role")
	assert.Equal(t, "efs-csi-${Cluster.name}", node.Parameters()["name"])
}

func TestRuntime_ResolveFieldsReportsEveryFailure(t *testing.T) {
	g := newTestGraph(t)
	rt, err := NewRuntime(g, NewGraphSource(g))
	require.NoError(t, err)

	node, _ := g.Node("Role")
	_, errs := rt.ResolveFields(node.Parameters(), node.FieldDescriptors())
	require.Len(t, errs, 3)
	for _, err := range errs {
		var substitutionErr *TemplateSubstitutionError
		require.True(t, errors.As(err, &substitutionErr))
		assert.NotEmpty(t, substitutionErr.Path)
	}
}

func TestRuntime_StaticSource(t *testing.T) {
	g := newTestGraph(t)
	// Outputs recorded by a previous run, e.g in a snapshot.
	source := StaticSource{
		"Vpc": {"vpcId": "vpc-old", "subnetIds": []interface{}{"x"}},
	}
	rt, err := NewRuntime(g, Sources(NewGraphSource(g), source))
	require.NoError(t, err)

	got, err := rt.Evaluate("Vpc.vpcId")
	require.NoError(t, err)
	assert.Equal(t, "vpc-old", got)

	markReady(t, g, "Vpc", map[string]interface{}{"vpcId": "vpc-new"})
	rt, err = NewRuntime(g, Sources(NewGraphSource(g), source))
	require.NoError(t, err)
	got, err = rt.Evaluate("Vpc.vpcId")
	require.NoError(t, err)
	assert.Equal(t, "vpc-new", got)
}

func TestRuntime_Validate(t *testing.T) {
	g := newTestGraph(t)
	rt, err := NewRuntime(g, NewGraphSource(g))
	require.NoError(t, err)
	assert.NoError(t, rt.Validate())

	bad, err := graph.NewBuilder(nil).Build([]*v1alpha1.Resource{
		{ID: "Vpc", Kind: v1alpha1.KindNetwork},
		{
			ID:         "Cluster",
			Kind:       v1alpha1.KindCluster,
			Parameters: map[string]interface{}{"subnetIds": "${Vpc.privateSubnets}"},
			ReadyWhen:  []string{"${Cluster.phase == 'up'}"},
		},
	})
	require.NoError(t, err)
	rt, err = NewRuntime(bad, NewGraphSource(bad))
	require.NoError(t, err)

	err = rt.Validate()
	require.Error(t, err)
	var outputErr *UnknownOutputError
	require.True(t, errors.As(err, &outputErr))
	assert.Equal(t, "privateSubnets", outputErr.Output)
	assert.Contains(t, err.Error(), `unknown output "phase" of "Cluster"`)
}

func TestRuntime_ResolveOutputs(t *testing.T) {
	stack := &v1alpha1.Stack{
		Spec: v1alpha1.StackSpec{
			Variables: map[string]interface{}{"domain": "example.com"},
			Resources: []*v1alpha1.Resource{
				{ID: "Vpc", Kind: v1alpha1.KindNetwork},
				{ID: "Cluster", Kind: v1alpha1.KindCluster, DependsOn: []string{"Vpc"}},
			},
			Outputs: map[string]string{
				"subnets":  "${Vpc.subnetIds}",
				"endpoint": "https://${Cluster.name}.${vars.domain}",
				"region":   "us-west-2",
			},
		},
	}
	stack.Name = "demo"
	g, err := graph.NewBuilder(nil).BuildStack(stack)
	require.NoError(t, err)
	markReady(t, g, "Cluster", map[string]interface{}{"name": "prod"})

	// Vpc was left alone by the run, its outputs come from the snapshot.
	snapshot := StaticSource{"Vpc": {"subnetIds": []interface{}{"subnet-1", "subnet-2"}}}
	rt, err := NewRuntime(g, Sources(NewGraphSource(g), snapshot))
	require.NoError(t, err)
	require.NoError(t, rt.Validate())
	outputs, err := rt.ResolveOutputs()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"subnets":  []interface{}{"subnet-1", "subnet-2"},
		"endpoint": "https://prod.example.com",
		"region":   "us-west-2",
	}, outputs)

	t.Run("producer not available", func(t *testing.T) {
		rt, err := NewRuntime(g, NewGraphSource(g))
		require.NoError(t, err)
		_, err = rt.ResolveOutputs()
		var unresolved *UnresolvedProducerError
		require.ErrorAs(t, err, &unresolved)
		assert.Equal(t, "Vpc", unresolved.Producer)
	})

	t.Run("undeclared output", func(t *testing.T) {
		stack.Spec.Outputs = map[string]string{"private": "${Vpc.privateSubnets}"}
		bad, err := graph.NewBuilder(nil).BuildStack(stack)
		require.NoError(t, err)
		rt, err := NewRuntime(bad, NewGraphSource(bad))
		require.NoError(t, err)
		err = rt.Validate()
		var outputErr *UnknownOutputError
		require.ErrorAs(t, err, &outputErr)
		assert.Contains(t, err.Error(), `resource "outputs.private"`)
	})

	t.Run("no outputs", func(t *testing.T) {
		g := newTestGraph(t)
		rt, err := NewRuntime(g, NewGraphSource(g))
		require.NoError(t, err)
		outputs, err := rt.ResolveOutputs()
		require.NoError(t, err)
		assert.Empty(t, outputs)
	})
}

func TestRuntime_IsReady(t *testing.T) {
	g := newTestGraph(t)
	rt, err := NewRuntime(g, NewGraphSource(g))
	require.NoError(t, err)

	tests := []struct {
		name       string
		id         string
		outputs    map[string]interface{}
		wantReady  bool
		wantReason string
		wantErr    bool
	}{
		{name: "no readyWhen", id: "Vpc", outputs: map[string]interface{}{}, wantReady: true},
		{name: "active", id: "Cluster", outputs: map[string]interface{}{"status": "ACTIVE"}, wantReady: true},
		{
			name:       "creating",
			id:         "Cluster",
			outputs:    map[string]interface{}{"status": "CREATING"},
			wantReason: `expression Cluster.status == "ACTIVE" evaluated to false`,
		},
		{name: "status not reported", id: "Cluster", outputs: map[string]interface{}{}, wantErr: true},
		{name: "unknown resource", id: "Nope", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready, reason, err := rt.IsReady(tt.id, tt.outputs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantReady, ready)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestRuntime_WantToCreate(t *testing.T) {
	g := newTestGraph(t)
	rt, err := NewRuntime(g, NewGraphSource(g))
	require.NoError(t, err)

	include, err := rt.WantToCreate("Vpc")
	require.NoError(t, err)
	assert.True(t, include)

	include, err = rt.WantToCreate("Database")
	require.NoError(t, err)
	assert.False(t, include)

	g.Variables["withDatabase"] = true
	rt, err = NewRuntime(g, NewGraphSource(g))
	require.NoError(t, err)
	include, err = rt.WantToCreate("Database")
	require.NoError(t, err)
	assert.True(t, include)
}

func TestRuntime_ConcurrentEvaluate(t *testing.T) {
	g := newTestGraph(t)
	markReady(t, g, "Vpc", map[string]interface{}{"vpcId": "vpc-123", "subnetIds": []interface{}{"a"}})
	rt, err := NewRuntime(g, NewGraphSource(g))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := rt.Evaluate("Vpc.vpcId + '-' + vars.clusterVersion")
			assert.NoError(t, err)
			assert.Equal(t, "vpc-123-1.31", got)
		}()
	}
	wg.Wait()
}
