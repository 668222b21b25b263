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

package library

import (
	"testing"

	"github.com/google/cel-go/cel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eval(t *testing.T, env *cel.Env, expr string) (interface{}, error) {
	t.Helper()
	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	prg, err := env.Program(ast)
	require.NoError(t, err)
	out, _, err := prg.Eval(map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	return out.Value(), nil
}

func TestSeededString(t *testing.T) {
	env, err := cel.NewEnv(Random())
	require.NoError(t, err)

	first, err := eval(t, env, `random.seededString(12, "jupyterhub")`)
	require.NoError(t, err)
	second, err := eval(t, env, `random.seededString(12, "jupyterhub")`)
	require.NoError(t, err)
	other, err := eval(t, env, `random.seededString(12, "another")`)
	require.NoError(t, err)

	assert.Len(t, first, 12)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	for _, c := range first.(string) {
		assert.Contains(t, seededAlphabet, string(c))
	}

	long, err := eval(t, env, `random.seededString(40, "jupyterhub")`)
	require.NoError(t, err)
	assert.Len(t, long, 40)

	_, err = eval(t, env, `random.seededString(0, "jupyterhub")`)
	assert.Error(t, err)
}

func TestTrim(t *testing.T) {
	env, err := cel.NewEnv(Trim())
	require.NoError(t, err)

	tests := []struct {
		expr string
		want string
	}{
		{expr: `"https://oidc.eks.us-west-2.amazonaws.com/id/ABC".trimPrefix("https://")`, want: "oidc.eks.us-west-2.amazonaws.com/id/ABC"},
		{expr: `"oidc.example.com".trimPrefix("https://")`, want: "oidc.example.com"},
		{expr: `"efs-csi-controller-sa".trimSuffix("-sa")`, want: "efs-csi-controller"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := eval(t, env, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
