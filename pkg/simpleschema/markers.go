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

package simpleschema

import (
	"fmt"
	"strings"
	"unicode"
)

// MarkerType is the name of a marker of a field declaration. Markers
// follow the type, in the `marker=value` format:
//
//	count: integer | default=10 minimum=1 description="Number of nodes"
type MarkerType string

const (
	MarkerTypeRequired    MarkerType = "required"
	MarkerTypeDefault     MarkerType = "default"
	MarkerTypeDescription MarkerType = "description"
	MarkerTypeMinimum     MarkerType = "minimum"
	MarkerTypeMaximum     MarkerType = "maximum"
	// MarkerTypeEnum holds comma separated values.
	MarkerTypeEnum MarkerType = "enum"
)

func markerTypeFromString(s string) (MarkerType, error) {
	switch t := MarkerType(s); t {
	case MarkerTypeRequired, MarkerTypeDefault, MarkerTypeDescription,
		MarkerTypeMinimum, MarkerTypeMaximum, MarkerTypeEnum:
		return t, nil
	default:
		return "", fmt.Errorf("unknown marker type: %s", s)
	}
}

// Marker is a marker of a field declaration.
type Marker struct {
	MarkerType MarkerType
	Value      string
}

// parseMarkers parses space separated markers. Values may be quoted, and
// may hold brackets or braces, in which case spaces don't end them.
func parseMarkers(markers string) ([]*Marker, error) {
	var (
		result   []*Marker
		current  *Marker
		inQuotes bool
		escaped  bool
		brackets int
		buffer   strings.Builder
	)
	flush := func() {
		if current != nil {
			current.Value = processValue(buffer.String())
			result = append(result, current)
			current = nil
			buffer.Reset()
		}
	}

	for _, char := range markers {
		switch {
		case char == '=' && current == nil && !inQuotes && brackets == 0:
			key := strings.TrimSpace(buffer.String())
			if key == "" {
				return nil, fmt.Errorf("empty marker key")
			}
			markerType, err := markerTypeFromString(key)
			if err != nil {
				return nil, fmt.Errorf("invalid marker key %q: %w", key, err)
			}
			current = &Marker{MarkerType: markerType}
			buffer.Reset()
		case char == '"' && !escaped:
			inQuotes = !inQuotes
			buffer.WriteRune(char)
		case char == '\\' && inQuotes && !escaped:
			escaped = true
			buffer.WriteRune(char)
		case (char == '{' || char == '[') && !inQuotes:
			brackets++
			buffer.WriteRune(char)
		case (char == '}' || char == ']') && !inQuotes:
			brackets--
			if brackets < 0 {
				return nil, fmt.Errorf("unmatched closing bracket")
			}
			buffer.WriteRune(char)
		case unicode.IsSpace(char) && !inQuotes && brackets == 0:
			if current == nil && strings.TrimSpace(buffer.String()) != "" {
				return nil, fmt.Errorf("marker %q has no value", strings.TrimSpace(buffer.String()))
			}
			flush()
		default:
			escaped = false
			buffer.WriteRune(char)
		}
	}

	if inQuotes {
		return nil, fmt.Errorf("unclosed quote")
	}
	if brackets > 0 {
		return nil, fmt.Errorf("unclosed bracket")
	}
	if current == nil && strings.TrimSpace(buffer.String()) != "" {
		return nil, fmt.Errorf("marker %q has no value", strings.TrimSpace(buffer.String()))
	}
	flush()
	return result, nil
}

// processValue removes the quotes around a value and unescapes it.
func processValue(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		return unescapeString(value[1 : len(value)-1])
	}
	return value
}

// unescapeString turns \" into " and \\ into \. Other escapes are kept.
func unescapeString(s string) string {
	var result strings.Builder
	escaped := false
	for _, char := range s {
		switch {
		case escaped:
			if char != '"' && char != '\\' {
				result.WriteRune('\\')
			}
			result.WriteRune(char)
			escaped = false
		case char == '\\':
			escaped = true
		default:
			result.WriteRune(char)
		}
	}
	return result.String()
}
