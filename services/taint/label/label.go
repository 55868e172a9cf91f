// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package label implements the Label and MultiLabel lattice: the set of
// elements (possibly wrapped in sanitizer chains) that may have influenced a
// value, tagged with a pattern name, and the per-pattern family of such
// labels.
//
// # Lattice
//
// The order is subset-inclusion on a Label's value set; join is set union.
// The set is bounded by program text size times line count times wrapping
// depth, so repeated joins (as performed by the interpreter's loop
// fixed-point) are guaranteed to converge.
package label

import (
	"fmt"

	"github.com/aleutian-labs/flowguard/services/taint/element"
)

// Label is the set of elements that may have tainted a value for one
// pattern.
//
// Description:
//
//	Every value in Values either is a Source or transitively wraps one
//	(see element.Taintable). Label is conceptually immutable: Combine and
//	Clone always return a new value rather than mutating in place.
type Label struct {
	Pattern string
	Values  map[element.Key]element.Taintable
}

// New returns an empty label for the given pattern.
func New(pattern string) Label {
	return Label{Pattern: pattern, Values: make(map[element.Key]element.Taintable)}
}

// FromSources builds a label seeded with the given sources.
func FromSources(pattern string, sources ...element.Source) Label {
	l := New(pattern)
	for _, s := range sources {
		l.AddSource(s)
	}
	return l
}

// AddSource inserts a Source into the label's value set.
func (l *Label) AddSource(s element.Source) {
	if l.Values == nil {
		l.Values = make(map[element.Key]element.Taintable)
	}
	l.Values[s.Key()] = s
}

// AddSanitizer replaces every value currently in the label with a Sanitized
// wrapping that value under the given sanitizer element.
//
// This is the semantic point that sanitization applies to the current
// contents of the label, not to values added afterward — calling
// AddSanitizer before AddSource would sanitize nothing.
func (l *Label) AddSanitizer(e element.Element) {
	next := make(map[element.Key]element.Taintable, len(l.Values))
	for _, v := range l.Values {
		wrapped := element.NewSanitized(e.Name, e.Line, v)
		next[wrapped.Key()] = wrapped
	}
	l.Values = next
}

// Combine returns the join of two labels: the union of their value sets.
// Both labels must carry the same pattern name.
func (l Label) Combine(other Label) Label {
	if l.Pattern != other.Pattern {
		panic(fmt.Sprintf("flowguard: cannot combine labels for mismatched patterns %q and %q", l.Pattern, other.Pattern))
	}
	out := New(l.Pattern)
	for k, v := range l.Values {
		out.Values[k] = v
	}
	for k, v := range other.Values {
		out.Values[k] = v
	}
	return out
}

// Equal reports whether two labels carry the same pattern and value set.
func (l Label) Equal(other Label) bool {
	if l.Pattern != other.Pattern || len(l.Values) != len(other.Values) {
		return false
	}
	for k := range l.Values {
		if _, ok := other.Values[k]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the label.
func (l Label) Clone() Label {
	out := New(l.Pattern)
	for k, v := range l.Values {
		switch t := v.(type) {
		case element.Source:
			out.Values[k] = t.Clone()
		case element.Sanitized:
			out.Values[k] = t.Clone()
		default:
			out.Values[k] = v
		}
	}
	return out
}

// PatchUninitializedLines replaces the line number of every value whose
// head line is element.UninitializedLine with useLine. This implements the
// use-site patching described in spec.md §3 for variables declared
// uninitialized inside an unvisited branch.
func (l *Label) PatchUninitializedLines(useLine int) {
	next := make(map[element.Key]element.Taintable, len(l.Values))
	for _, v := range l.Values {
		if v.Line() == element.UninitializedLine {
			v = v.WithLine(useLine)
		}
		next[v.Key()] = v
	}
	l.Values = next
}

// IsEmpty reports whether the label carries no values.
func (l Label) IsEmpty() bool { return len(l.Values) == 0 }

// String renders a debug representation.
func (l Label) String() string {
	return fmt.Sprintf("Label[%s]{%d values}", l.Pattern, len(l.Values))
}

// MultiLabel is a family of labels indexed by pattern name: the product of
// the labels a value carries under every pattern in the active policy.
//
// Description:
//
//	A missing key denotes the empty label for that pattern. GetLabel is the
//	one intentionally mutable accessor: it inserts an empty label on miss,
//	because callers rely on it to inject sources/sanitizers in place (see
//	interpreter.Interpreter's call handling).
type MultiLabel struct {
	Labels map[string]Label
}

// NewMultiLabel returns an empty multilabel.
func NewMultiLabel() MultiLabel {
	return MultiLabel{Labels: make(map[string]Label)}
}

// GetLabel returns the label for pattern, creating and storing an empty one
// if absent.
func (m *MultiLabel) GetLabel(pattern string) Label {
	if m.Labels == nil {
		m.Labels = make(map[string]Label)
	}
	if l, ok := m.Labels[pattern]; ok {
		return l
	}
	l := New(pattern)
	m.Labels[pattern] = l
	return l
}

// SetLabel stores lbl under its own pattern name.
func (m *MultiLabel) SetLabel(lbl Label) {
	if m.Labels == nil {
		m.Labels = make(map[string]Label)
	}
	m.Labels[lbl.Pattern] = lbl
}

// Combine returns the pointwise join across the union of both multilabels'
// pattern keys.
func (m MultiLabel) Combine(other MultiLabel) MultiLabel {
	out := NewMultiLabel()
	for name, l := range m.Labels {
		out.Labels[name] = l.Clone()
	}
	for name, l := range other.Labels {
		if existing, ok := out.Labels[name]; ok {
			out.Labels[name] = existing.Combine(l)
		} else {
			out.Labels[name] = l.Clone()
		}
	}
	return out
}

// Equal reports whether two multilabels hold equal labels under the same
// set of pattern keys.
func (m MultiLabel) Equal(other MultiLabel) bool {
	if len(m.Labels) != len(other.Labels) {
		return false
	}
	for name, l := range m.Labels {
		ol, ok := other.Labels[name]
		if !ok || !l.Equal(ol) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the multilabel.
func (m MultiLabel) Clone() MultiLabel {
	out := NewMultiLabel()
	for name, l := range m.Labels {
		out.Labels[name] = l.Clone()
	}
	return out
}

// ImplicitPolicy is the minimal view of a policy that FilterImplicit needs:
// the set of pattern names that track control-dependent (implicit) flows.
// services/taint/policy.Policy satisfies this.
type ImplicitPolicy interface {
	ImplicitPatternNames() []string
}

// FilterImplicit returns a copy retaining only the labels whose pattern is
// marked implicit=true by policy. This keeps implicit-flow-disabled
// patterns from being contaminated by a conditional's or loop's test
// expression when it is pushed onto the interpreter's context stack.
func (m MultiLabel) FilterImplicit(policy ImplicitPolicy) MultiLabel {
	implicit := make(map[string]bool)
	for _, name := range policy.ImplicitPatternNames() {
		implicit[name] = true
	}
	out := NewMultiLabel()
	for name, l := range m.Labels {
		if implicit[name] {
			out.Labels[name] = l.Clone()
		}
	}
	return out
}

// String renders a debug representation.
func (m MultiLabel) String() string {
	return fmt.Sprintf("MultiLabel{%d patterns}", len(m.Labels))
}
