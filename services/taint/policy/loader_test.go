// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonPatterns = `[
  {"vulnerability": "xss", "sources": ["a"], "sanitizers": ["clean"], "sinks": ["sink"], "implicit": "no"},
  {"vulnerability": "sqli", "sources": ["req"], "sanitizers": [], "sinks": ["exec"], "implicit": "yes"}
]`

const yamlPatterns = `
- vulnerability: xss
  sources: [a]
  sanitizers: [clean]
  sinks: [sink]
  implicit: "no"
`

func TestLoad_JSON(t *testing.T) {
	p, err := Load([]byte(jsonPatterns), FormatJSON)
	require.NoError(t, err)
	require.Len(t, p.Patterns, 2)

	xss, ok := p.GetVulnerability("xss")
	require.True(t, ok)
	assert.True(t, xss.IsSource("a"))
	assert.True(t, xss.IsSanitizer("clean"))
	assert.True(t, xss.IsSink("sink"))
	assert.False(t, xss.Implicit)

	sqli, ok := p.GetVulnerability("sqli")
	require.True(t, ok)
	assert.True(t, sqli.Implicit)
}

func TestLoad_YAML(t *testing.T) {
	p, err := Load([]byte(yamlPatterns), FormatYAML)
	require.NoError(t, err)
	require.Len(t, p.Patterns, 1)
	assert.Equal(t, "xss", p.Patterns[0].Name)
}

func TestLoad_RejectsMissingSinks(t *testing.T) {
	bad := `[{"vulnerability": "xss", "sources": ["a"], "sinks": [], "implicit": "no"}]`
	_, err := Load([]byte(bad), FormatJSON)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedPatternFile)
}

func TestLoad_RejectsMalformedJSON(t *testing.T) {
	_, err := Load([]byte(`{not json`), FormatJSON)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedPatternFile)
}

func TestLoad_RejectsUnknownFormat(t *testing.T) {
	_, err := Load([]byte(jsonPatterns), Format("toml"))
	require.Error(t, err)
}

func TestPolicy_ImplicitPatternNames(t *testing.T) {
	p, err := Load([]byte(jsonPatterns), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, []string{"sqli"}, p.ImplicitPatternNames())
}
