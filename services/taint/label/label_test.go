// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package label

import (
	"testing"

	"github.com/aleutian-labs/flowguard/services/taint/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeMultiLabels() (MultiLabel, MultiLabel, MultiLabel) {
	a := NewMultiLabel()
	a.SetLabel(FromSources("xss", element.NewSource("a", 1)))

	b := NewMultiLabel()
	b.SetLabel(FromSources("xss", element.NewSource("b", 2)))

	c := NewMultiLabel()
	c.SetLabel(FromSources("xss", element.NewSource("c", 3)))

	return a, b, c
}

func TestMultiLabelCombine_Commutative(t *testing.T) {
	a, b, _ := threeMultiLabels()
	assert.True(t, a.Combine(b).Equal(b.Combine(a)))
}

func TestMultiLabelCombine_Associative(t *testing.T) {
	a, b, c := threeMultiLabels()
	left := a.Combine(b).Combine(c)
	right := a.Combine(b.Combine(c))
	assert.True(t, left.Equal(right))
}

func TestMultiLabelCombine_Idempotent(t *testing.T) {
	a, _, _ := threeMultiLabels()
	assert.True(t, a.Combine(a).Equal(a))
}

func TestMultiLabelCombine_Identity(t *testing.T) {
	a, _, _ := threeMultiLabels()
	assert.True(t, a.Combine(NewMultiLabel()).Equal(a))
}

func TestLabelCombine_MismatchedPatternPanics(t *testing.T) {
	a := New("xss")
	b := New("sqli")
	assert.Panics(t, func() { a.Combine(b) })
}

func TestLabel_AddSanitizerAppliesToCurrentContentsOnly(t *testing.T) {
	l := FromSources("xss", element.NewSource("a", 1))
	l.AddSanitizer(element.New("clean", 2))
	require.Len(t, l.Values, 1)

	for _, v := range l.Values {
		san, ok := v.(element.Sanitized)
		require.True(t, ok, "value should now be wrapped in Sanitized")
		assert.Equal(t, "a", san.GetSource().Elem.Name)
	}

	// A source added after AddSanitizer is not retroactively sanitized.
	l.AddSource(element.NewSource("b", 3))
	var bareCount int
	for _, v := range l.Values {
		if _, ok := v.(element.Source); ok {
			bareCount++
		}
	}
	assert.Equal(t, 1, bareCount)
}

func TestLabel_CloneIsDeep(t *testing.T) {
	l := FromSources("xss", element.NewSource("a", 1))
	clone := l.Clone()
	clone.AddSource(element.NewSource("b", 2))

	assert.Len(t, l.Values, 1)
	assert.Len(t, clone.Values, 2)
}

func TestLabel_PatchUninitializedLines(t *testing.T) {
	l := FromSources("xss", element.NewSource("a", element.UninitializedLine))
	l.PatchUninitializedLines(7)

	for _, v := range l.Values {
		assert.Equal(t, 7, v.Line())
	}
}

func TestMultiLabel_FilterImplicit(t *testing.T) {
	ml := NewMultiLabel()
	ml.SetLabel(FromSources("xss", element.NewSource("a", 1)))
	ml.SetLabel(FromSources("sqli", element.NewSource("b", 2)))

	filtered := ml.FilterImplicit(stubImplicitPolicy{implicit: []string{"xss"}})
	_, hasXSS := filtered.Labels["xss"]
	_, hasSQLi := filtered.Labels["sqli"]
	assert.True(t, hasXSS)
	assert.False(t, hasSQLi)
}

type stubImplicitPolicy struct{ implicit []string }

func (s stubImplicitPolicy) ImplicitPatternNames() []string { return s.implicit }
