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
	"crypto/sha256"
	"encoding/binary"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

const seededAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Random returns a CEL library generating deterministic pseudo random text.
//
// random.seededString(length, seed) returns a lowercase alphanumeric string
// derived from seed. The same arguments always produce the same string, so
// names built with it (e.g bucket suffixes) stay stable across runs and
// don't show up as changes in a plan:
//
//	name: ${"hub-" + random.seededString(6, vars.stackName)}
func Random() cel.EnvOption {
	return cel.Lib(randomLib{})
}

type randomLib struct{}

func (randomLib) LibraryName() string { return "stackgraph.random" }

func (randomLib) ProgramOptions() []cel.ProgramOption { return nil }

func (randomLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("random.seededString",
			cel.Overload("random_seeded_string_int_string",
				[]*cel.Type{cel.IntType, cel.StringType},
				cel.StringType,
				cel.BinaryBinding(func(length, seed ref.Val) ref.Val {
					n, ok := length.(types.Int)
					if !ok || n <= 0 {
						return types.NewErr("random.seededString: length must be a positive integer, got %v", length)
					}
					s, ok := seed.(types.String)
					if !ok {
						return types.NewErr("random.seededString: seed must be a string, got %v", seed.Type())
					}
					return types.String(seededString(int(n), string(s)))
				}),
			),
		),
	}
}

// seededString draws n characters from a SHA-256 stream of seed. Block i
// of the stream is sha256(seed || i); each character consumes 4 bytes.
func seededString(n int, seed string) string {
	out := make([]byte, n)
	var block [sha256.Size]byte
	buf := make([]byte, len(seed)+8)
	copy(buf, seed)

	const perBlock = sha256.Size / 4
	for i := range out {
		if i%perBlock == 0 {
			binary.BigEndian.PutUint64(buf[len(seed):], uint64(i/perBlock))
			block = sha256.Sum256(buf)
		}
		offset := (i % perBlock) * 4
		v := binary.BigEndian.Uint32(block[offset : offset+4])
		out[i] = seededAlphabet[v%uint32(len(seededAlphabet))]
	}
	return string(out)
}
