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

package parser

import (
	"errors"
	"strings"
)

const (
	// Expressions are enclosed between "${" and "}"
	exprStart = "${"
	exprEnd   = "}"
	// "$${" is a literal "${" and never starts an expression.
	escapedExprStart = "$${"
)

// Allow nested expressions, but only if they are escaped with quotes ${outer("${inner}")} is allowed, but ${outer(${inner})} is not
var ErrNestedExpression = errors.New("nested expressions are not allowed unless inside string literals")

// placeholder is the position of an expression in a string. start is the
// index of "${" and end the index right after the closing "}".
type placeholder struct {
	expression string
	start, end int
}

// scan walks str and returns its placeholders, skipping escaped ones.
func scan(str string) ([]placeholder, error) {
	var placeholders []placeholder

	start := 0
	for start < len(str) {
		startIdx := strings.Index(str[start:], exprStart)
		if startIdx == -1 {
			break
		}
		startIdx += start

		if startIdx > 0 && str[startIdx-1] == '$' {
			start = startIdx + len(exprStart)
			continue
		}

		// Find the matching end bracket, being careful about nested
		// expressions, map literals and string literals.
		bracketCount := 1
		endIdx := startIdx + len(exprStart)
		var quote byte
		escapeNext := false

		for endIdx < len(str) {
			c := str[endIdx]

			switch {
			case escapeNext:
				escapeNext = false
			case quote != 0 && c == '\\':
				escapeNext = true
			case quote != 0:
				if c == quote {
					quote = 0
				}
			case c == '"' || c == '\'':
				quote = c
			case c == '{':
				bracketCount++
			case c == '}':
				bracketCount--
			case strings.HasPrefix(str[endIdx:], exprStart):
				return nil, ErrNestedExpression
			}
			if bracketCount == 0 {
				break
			}
			endIdx++
		}

		if bracketCount != 0 {
			// Incomplete expression, move to next character and continue
			start = startIdx + 1
			continue
		}

		placeholders = append(placeholders, placeholder{
			expression: str[startIdx+len(exprStart) : endIdx],
			start:      startIdx,
			end:        endIdx + len(exprEnd),
		})
		start = endIdx + 1
	}
	return placeholders, nil
}

// extractExpressions extracts all non-nested CEL expressions from a string.
// It returns an error if it encounters a nested expression.
func extractExpressions(str string) ([]string, error) {
	placeholders, err := scan(str)
	if err != nil {
		return nil, err
	}
	expressions := make([]string, 0, len(placeholders))
	for _, p := range placeholders {
		expressions = append(expressions, p.expression)
	}
	return expressions, nil
}

// isStandaloneExpression returns true if the string is a single, complete non-nested expression.
// It returns an error if it encounters a nested expression.
func isStandaloneExpression(str string) (bool, error) {
	placeholders, err := scan(str)
	if err != nil {
		return false, err
	}
	return len(placeholders) == 1 && placeholders[0].start == 0 && placeholders[0].end == len(str), nil
}

// hasEscapes returns true if str holds an escaped "$${" sequence.
func hasEscapes(str string) bool {
	return strings.Contains(str, escapedExprStart)
}

// Interpolate replaces every expression of str by the string returned by
// replace, and unescapes "$${" into "${".
func Interpolate(str string, replace func(expression string) (string, error)) (string, error) {
	placeholders, err := scan(str)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	last := 0
	for _, p := range placeholders {
		b.WriteString(unescape(str[last:p.start]))
		value, err := replace(p.expression)
		if err != nil {
			return "", err
		}
		b.WriteString(value)
		last = p.end
	}
	b.WriteString(unescape(str[last:]))
	return b.String(), nil
}

func unescape(str string) string {
	return strings.ReplaceAll(str, escapedExprStart, exprStart)
}
