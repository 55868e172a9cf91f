// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aleutian-labs/flowguard/services/taint/interpreter"
	"github.com/aleutian-labs/flowguard/services/taint/vulnerability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCounterSuffix(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"xss_1", "xss"},
		{"sql_injection_12", "sql_injection"},
		{"no_suffix_here", "no_suffix_here"},
		{"plain", "plain"},
		{"trailing_", "trailing_"},
		{"_1", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, stripCounterSuffix(c.in), "input %q", c.in)
	}
}

func TestPatternNamesOf(t *testing.T) {
	findings := []vulnerability.Finding{
		{Vulnerability: "xss_1"},
		{Vulnerability: "xss_2"},
		{Vulnerability: "sqli_1"},
	}
	assert.Equal(t, []string{"xss", "xss", "sqli"}, patternNamesOf(findings))
}

func TestDiscoverSlices_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.script"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.script"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	got, err := discoverSlices(dir, "*.script")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, filepath.Join(dir, "a.script"), got[0])
	assert.Equal(t, filepath.Join(dir, "b.script"), got[1])
}

func TestDiscoverSlices_MissingDir(t *testing.T) {
	_, err := discoverSlices(filepath.Join(t.TempDir(), "does-not-exist"), "*.script")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errMalformedInput))
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	_, err := loadPolicy(filepath.Join(t.TempDir(), "missing.json"), "json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errMalformedInput))
}

func TestExitFromError(t *testing.T) {
	assert.Equal(t, exitSuccess, exitFromError(nil))
	assert.Equal(t, exitInputError, exitFromError(errMalformedInput))
	assert.Equal(t, exitUnsupported, exitFromError(&interpreter.NodeError{Kind: "weird_node", Line: 3, Err: errors.New("unsupported")}))
	assert.Equal(t, exitInternalFail, exitFromError(errors.New("boom")))
}
