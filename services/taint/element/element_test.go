// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_GetSource(t *testing.T) {
	s := NewSource("a", 1)
	assert.Equal(t, s, s.GetSource())
}

func TestSanitized_GetSource_WalksToTerminal(t *testing.T) {
	s := NewSource("a", 1)
	san1 := NewSanitized("clean", 2, s)
	san2 := NewSanitized("clean2", 3, san1)

	assert.Equal(t, s, san2.GetSource())
}

func TestSanitized_Chain_OuterFirst(t *testing.T) {
	s := NewSource("a", 1)
	san1 := NewSanitized("clean", 2, s)
	san2 := NewSanitized("clean2", 3, san1)

	chain := Chain(san2)
	require.Len(t, chain, 2)
	assert.Equal(t, "clean2", chain[0].Name)
	assert.Equal(t, "clean", chain[1].Name)
}

func TestNewSanitized_CollapsesImmediateDuplicate(t *testing.T) {
	s := NewSource("a", 1)
	san1 := NewSanitized("clean", 2, s)
	// Re-sanitizing with the exact same (name, line) collapses to a single
	// wrap rather than nesting Sanitized(clean@2, of=Sanitized(clean@2, of=s)).
	san2 := NewSanitized("clean", 2, san1)

	assert.Equal(t, san1.Of, san2.Of)
	assert.Len(t, Chain(san2), 1)
}

func TestKey_DistinguishesDifferentChains(t *testing.T) {
	s := NewSource("a", 1)
	san1 := NewSanitized("clean", 2, s)
	san2 := NewSanitized("clean", 3, s)

	assert.NotEqual(t, san1.Key(), san2.Key())
}

func TestSource_WithLine(t *testing.T) {
	s := NewSource("a", UninitializedLine)
	patched := s.WithLine(5)
	assert.Equal(t, 5, patched.Line())
	assert.Equal(t, "a", patched.Name())
}
