// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package element defines the value types named by a taint label: a plain
// Element, a Source, and a Sanitized wrapper chain that always terminates in
// a Source.
//
// # Description
//
// All three are immutable once constructed. Equality and hashing are
// structural: an Element's identity is its (Name, Line) pair, and a
// Sanitized's identity additionally includes the chain it wraps.
package element

import "fmt"

// UninitializedLine is the sentinel line number for an Element that names a
// variable read before it was assigned along the explored path. Callers patch
// it to the use-site line the first time the element is evaluated.
const UninitializedLine = -1

// Element names a program identifier at a line.
//
// Description:
//
//	Element is a value type: freely copied, never mutated after
//	construction. Two elements are equal iff their (Name, Line) pairs match.
type Element struct {
	Name string
	Line int
}

// New builds a plain Element.
func New(name string, line int) Element {
	return Element{Name: name, Line: line}
}

// String renders the element as "name@line", matching the teacher's
// repr-style debug output.
func (e Element) String() string {
	return fmt.Sprintf("%s@%d", e.Name, e.Line)
}

// Clone returns a structural copy. Elements are value types, so this is
// just a value return, but it keeps call sites symmetric with Source.Clone
// and Sanitized.Clone.
func (e Element) Clone() Element {
	return e
}

// Taintable is the common interface over Source and Sanitized: the kinds of
// values a Label's value set may contain. A plain Element does not
// implement it.
//
// Description:
//
//	Every Taintable either is a Source or transitively wraps one; GetSource
//	walks a Sanitized chain down to its terminal Source.
type Taintable interface {
	// Key returns a comparable identity used as a Go map key, so sets of
	// Taintable can be represented as map[Key]Taintable.
	Key() Key
	// GetSource returns the terminal Source of the chain.
	GetSource() Source
	// Name returns the element name at the head of the chain.
	Name() string
	// Line returns the line number at the head of the chain.
	Line() int
	// WithLine returns a copy with the head line number replaced; used to
	// patch UninitializedLine sentinels to a use-site line.
	WithLine(line int) Taintable
	// String renders a debug representation.
	String() string
}

// Key is the structural identity of a Taintable, suitable as a map key.
// For a Source it is just (name, line); for a Sanitized it additionally
// folds in the key of the wrapped value, so two sanitizer chains of
// different depth or provenance never collide. Of holds the wrapped key's
// rendering (empty for a Source), so two structurally equal chains compare
// equal as map keys.
type Key struct {
	Name string
	Line int
	Of   string
}

func (k Key) String() string {
	return fmt.Sprintf("%q@%d(%s)", k.Name, k.Line, k.Of)
}

// Source is an Element considered tainted for some pattern: a chain
// terminator.
type Source struct {
	Elem Element
}

// NewSource builds a Source at (name, line).
func NewSource(name string, line int) Source {
	return Source{Elem: New(name, line)}
}

func (s Source) Key() Key                 { return Key{Name: s.Elem.Name, Line: s.Elem.Line} }
func (s Source) GetSource() Source        { return s }
func (s Source) Name() string             { return s.Elem.Name }
func (s Source) Line() int                { return s.Elem.Line }
func (s Source) WithLine(line int) Taintable {
	return Source{Elem: New(s.Elem.Name, line)}
}
func (s Source) String() string { return fmt.Sprintf("Source(%s)", s.Elem) }
func (s Source) Clone() Source  { return Source{Elem: s.Elem.Clone()} }

// Sanitized wraps a predecessor Taintable (a Source or another Sanitized)
// with the sanitizer element that was applied to it.
//
// Invariant: the chain formed by following Of always terminates in a
// Source — see GetSource.
//
// Normalization: constructing Sanitized(name, line, of) where (name, line)
// equals of's own (name, line) collapses the duplicate by skipping straight
// to of's wrapped value; deeper duplicates in the chain are preserved. This
// matters for f(f(x)): without it, the chain would record the same
// sanitizer call site twice for no added information.
type Sanitized struct {
	Elem Element
	Of   Taintable
}

// NewSanitized builds a Sanitized element, applying the single-hop
// normalization described above.
func NewSanitized(name string, line int, of Taintable) Sanitized {
	if of.Name() == name && of.Line() == line {
		switch v := of.(type) {
		case Source:
			return Sanitized{Elem: New(name, line), Of: v}
		case Sanitized:
			return Sanitized{Elem: New(name, line), Of: v.Of}
		}
	}
	return Sanitized{Elem: New(name, line), Of: of}
}

func (s Sanitized) Key() Key {
	return Key{Name: s.Elem.Name, Line: s.Elem.Line, Of: s.Of.Key().String()}
}

func (s Sanitized) GetSource() Source { return s.Of.GetSource() }
func (s Sanitized) Name() string      { return s.Elem.Name }
func (s Sanitized) Line() int         { return s.Elem.Line }

func (s Sanitized) WithLine(line int) Taintable {
	return Sanitized{Elem: New(s.Elem.Name, line), Of: s.Of}
}

func (s Sanitized) String() string {
	return fmt.Sprintf("Sanitized(%s | %s)", s.Elem, s.Of)
}

func (s Sanitized) Clone() Sanitized {
	var of Taintable
	switch v := s.Of.(type) {
	case Source:
		of = v.Clone()
	case Sanitized:
		of = v.Clone()
	default:
		of = s.Of
	}
	return Sanitized{Elem: s.Elem.Clone(), Of: of}
}

// Chain walks a Sanitized down to its terminal Source, returning the
// sanitizer elements encountered in outer-first order (the order the report
// format in spec.md §6 requires).
func Chain(t Taintable) []Element {
	var trace []Element
	for {
		san, ok := t.(Sanitized)
		if !ok {
			return trace
		}
		trace = append(trace, san.Elem)
		t = san.Of
	}
}

var (
	_ Taintable = Source{}
	_ Taintable = Sanitized{}
)
