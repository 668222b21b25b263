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

// Package fieldpath parses and builds the paths used to address fields of
// schemaless parameter trees, e.g `subnets[0]["kubernetes.io/role"].cidr`.
package fieldpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a path. Exactly one of Name or Index is
// meaningful: Index is -1 for named segments.
type Segment struct {
	Name  string
	Index int
}

// NewNamedSegment returns a segment addressing a map key.
func NewNamedSegment(name string) Segment {
	return Segment{Name: name, Index: -1}
}

// NewIndexedSegment returns a segment addressing a list element.
func NewIndexedSegment(index int) Segment {
	return Segment{Index: index}
}

// IsIndex returns true if the segment addresses a list element.
func (s Segment) IsIndex() bool {
	return s.Index >= 0
}

// Parse splits a path into segments. Keys containing dots (or any other
// special character) must be quoted: `metadata["kro.run/owned"]`.
func Parse(path string) ([]Segment, error) {
	var segments []Segment

	i := 0
	for i < len(path) {
		switch path[i] {
		case '.':
			i++
		case '[':
			if i+1 < len(path) && path[i+1] == '"' {
				key, next, err := parseQuotedKey(path, i+1)
				if err != nil {
					return nil, err
				}
				segments = append(segments, NewNamedSegment(key))
				i = next
				continue
			}
			end := strings.IndexByte(path[i:], ']')
			if end == -1 {
				return nil, fmt.Errorf("missing closing bracket at position %d in %q", i, path)
			}
			index, err := strconv.Atoi(path[i+1 : i+end])
			if err != nil || index < 0 {
				return nil, fmt.Errorf("invalid array index %q in %q", path[i+1:i+end], path)
			}
			segments = append(segments, NewIndexedSegment(index))
			i += end + 1
		default:
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' {
				j++
			}
			segments = append(segments, NewNamedSegment(path[i:j]))
			i = j
		}
	}
	return segments, nil
}

// parseQuotedKey reads a quoted key starting at the opening quote and
// returns the unquoted key and the position right after the closing
// bracket.
func parseQuotedKey(path string, start int) (string, int, error) {
	j := start + 1
	for j < len(path) {
		if path[j] == '\\' {
			j += 2
			continue
		}
		if path[j] == '"' {
			break
		}
		j++
	}
	if j >= len(path) {
		return "", 0, fmt.Errorf("unterminated quoted key in %q", path)
	}
	key, err := strconv.Unquote(path[start : j+1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid quoted key %s: %w", path[start:j+1], err)
	}
	if j+1 >= len(path) || path[j+1] != ']' {
		return "", 0, fmt.Errorf("missing closing bracket after key %q in %q", key, path)
	}
	return key, j + 2, nil
}
