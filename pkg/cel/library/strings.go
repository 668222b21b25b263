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
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// Trim returns a CEL library with prefix and suffix trimming member
// functions. Trust policies are keyed by the OIDC issuer without its
// scheme:
//
//	${Cluster.oidcIssuer.trimPrefix("https://") + ":sub"}
func Trim() cel.EnvOption {
	return cel.Lib(&trimLibrary{})
}

type trimLibrary struct{}

func (l *trimLibrary) LibraryName() string {
	return "kro.run.trim"
}

func (l *trimLibrary) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("trimPrefix",
			cel.MemberOverload("string_trimPrefix_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.StringType,
				cel.BinaryBinding(stringBinding(strings.TrimPrefix)),
			),
		),
		cel.Function("trimSuffix",
			cel.MemberOverload("string_trimSuffix_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.StringType,
				cel.BinaryBinding(stringBinding(strings.TrimSuffix)),
			),
		),
	}
}

func (l *trimLibrary) ProgramOptions() []cel.ProgramOption {
	return nil
}

func stringBinding(fn func(string, string) string) func(ref.Val, ref.Val) ref.Val {
	return func(lhs, rhs ref.Val) ref.Val {
		s, ok := lhs.(types.String)
		if !ok {
			return types.MaybeNoSuchOverloadErr(lhs)
		}
		arg, ok := rhs.(types.String)
		if !ok {
			return types.MaybeNoSuchOverloadErr(rhs)
		}
		return types.String(fn(string(s), string(arg)))
	}
}
