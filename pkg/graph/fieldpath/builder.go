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

package fieldpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Build renders segments back into a path accepted by Parse.
func Build(segments []Segment) string {
	var b strings.Builder
	for i, segment := range segments {
		switch {
		case segment.IsIndex():
			b.WriteString("[" + strconv.Itoa(segment.Index) + "]")
		case needsQuoting(segment.Name):
			fmt.Fprintf(&b, "[%q]", segment.Name)
		default:
			if i > 0 {
				b.WriteString(".")
			}
			b.WriteString(segment.Name)
		}
	}
	return b.String()
}

// Join appends a key to an existing path.
func Join(path, name string) string {
	if path == "" && !needsQuoting(name) {
		return name
	}
	if needsQuoting(name) {
		return fmt.Sprintf("%s[%q]", path, name)
	}
	return path + "." + name
}

// JoinIndex appends a list index to an existing path.
func JoinIndex(path string, index int) string {
	return fmt.Sprintf("%s[%d]", path, index)
}

func needsQuoting(name string) bool {
	return name == "" || strings.ContainsAny(name, ".[]\"\\")
}
