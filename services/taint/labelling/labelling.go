// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package labelling implements MultiLabelling: the per-variable environment
// mapping a variable name to the MultiLabel it currently carries at a
// program point.
package labelling

import "github.com/aleutian-labs/flowguard/services/taint/label"

// MultiLabelling maps variable names to multilabels. A missing key means
// "not initialized in any explored path" — see
// Policy.UninitializedMultiLabel for how the interpreter fills that gap.
type MultiLabelling struct {
	Mapping map[string]label.MultiLabel
}

// New builds an empty labelling.
func New() MultiLabelling {
	return MultiLabelling{Mapping: make(map[string]label.MultiLabel)}
}

// Of returns the multilabel bound to variable, and whether it was bound.
func (m MultiLabelling) Of(variable string) (label.MultiLabel, bool) {
	ml, ok := m.Mapping[variable]
	return ml, ok
}

// Set destructively binds variable to ml.
func (m *MultiLabelling) Set(variable string, ml label.MultiLabel) {
	if m.Mapping == nil {
		m.Mapping = make(map[string]label.MultiLabel)
	}
	m.Mapping[variable] = ml
}

// Clone returns a deep copy.
func (m MultiLabelling) Clone() MultiLabelling {
	out := New()
	for k, v := range m.Mapping {
		out.Mapping[k] = v.Clone()
	}
	return out
}

// Combine returns the pointwise join across the union of both labellings'
// variable keys. Unlike the branch-merge policy used by the interpreter at
// if/while joins, this does not fill in uninitialized-sentinel multilabels
// for one-sided variables — callers that need that (§4.5's branch-merge
// policy) must do it before calling Combine.
func (m MultiLabelling) Combine(other MultiLabelling) MultiLabelling {
	out := m.Clone()
	for k, v := range other.Mapping {
		if existing, ok := out.Mapping[k]; ok {
			out.Mapping[k] = existing.Combine(v)
		} else {
			out.Mapping[k] = v.Clone()
		}
	}
	return out
}

// Equal reports structural equality, used by the interpreter's loop
// fixed-point check.
func (m MultiLabelling) Equal(other MultiLabelling) bool {
	if len(m.Mapping) != len(other.Mapping) {
		return false
	}
	for k, v := range m.Mapping {
		ov, ok := other.Mapping[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// FillMissing is the branch-merge policy of spec.md §4.5: for every
// variable present in other's mapping but absent from m's, bind it in m to
// the uninitialized-sentinel multilabel that uninit produces. Call this on
// both sides of a branch join before Combine so that a variable defined in
// only one branch doesn't silently lose the other branch's "not assigned
// here" taint.
func (m *MultiLabelling) FillMissing(other MultiLabelling, uninit func(name string) label.MultiLabel) {
	if m.Mapping == nil {
		m.Mapping = make(map[string]label.MultiLabel)
	}
	for k := range other.Mapping {
		if _, ok := m.Mapping[k]; !ok {
			m.Mapping[k] = uninit(k)
		}
	}
}
