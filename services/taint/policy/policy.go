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
	"github.com/aleutian-labs/flowguard/services/taint/element"
	"github.com/aleutian-labs/flowguard/services/taint/label"
)

// Policy is an ordered list of patterns: the information-flow rule set an
// analysis run is checked against.
type Policy struct {
	Patterns []Pattern
}

// New builds a Policy over the given patterns, preserving order (order
// matters for the report's deterministic output — see spec.md §5).
func New(patterns []Pattern) Policy {
	return Policy{Patterns: patterns}
}

// GetVulnerabilities returns the names of every pattern in the policy.
func (p Policy) GetVulnerabilities() []string {
	names := make([]string, 0, len(p.Patterns))
	for _, pat := range p.Patterns {
		names = append(names, pat.Name)
	}
	return names
}

// GetImplicitVulnerabilities returns the names of patterns marked
// implicit=true.
func (p Policy) GetImplicitVulnerabilities() []string {
	return p.ImplicitPatternNames()
}

// ImplicitPatternNames implements label.ImplicitPolicy.
func (p Policy) ImplicitPatternNames() []string {
	var names []string
	for _, pat := range p.Patterns {
		if pat.Implicit {
			names = append(names, pat.Name)
		}
	}
	return names
}

// GetVulnerability returns the pattern with the given name.
func (p Policy) GetVulnerability(name string) (Pattern, bool) {
	for _, pat := range p.Patterns {
		if pat.Name == name {
			return pat, true
		}
	}
	return Pattern{}, false
}

// SearchSource returns the names of patterns that declare name as a source.
func (p Policy) SearchSource(name string) []string {
	var names []string
	for _, pat := range p.Patterns {
		if pat.IsSource(name) {
			names = append(names, pat.Name)
		}
	}
	return names
}

// SearchSanitizer returns the names of patterns that declare name as a
// sanitizer.
func (p Policy) SearchSanitizer(name string) []string {
	var names []string
	for _, pat := range p.Patterns {
		if pat.IsSanitizer(name) {
			names = append(names, pat.Name)
		}
	}
	return names
}

// SearchSink returns the names of patterns that declare name as a sink.
func (p Policy) SearchSink(name string) []string {
	var names []string
	for _, pat := range p.Patterns {
		if pat.IsSink(name) {
			names = append(names, pat.Name)
		}
	}
	return names
}

// FindIllegal returns the evidence multilabel for a candidate sink: for
// every pattern whose sinks contain sinkName, the corresponding label from
// ml (empty if that pattern never saw a matching value). An empty label
// under a pattern still records "no source reached" — callers that care
// must check per-label emptiness themselves (spec.md §4.4).
func (p Policy) FindIllegal(sinkName string, ml label.MultiLabel) label.MultiLabel {
	bad := label.NewMultiLabel()
	for _, pat := range p.Patterns {
		if pat.IsSink(sinkName) {
			bad.SetLabel(ml.GetLabel(pat.Name))
		}
	}
	return bad
}

// UninitializedMultiLabel builds the sentinel multilabel for a variable
// read without being assigned on the current path: for every pattern in the
// policy, a label containing Source(name, element.UninitializedLine). See
// spec.md §4.5.
func (p Policy) UninitializedMultiLabel(name string) label.MultiLabel {
	ml := label.NewMultiLabel()
	for _, pat := range p.Patterns {
		ml.SetLabel(label.FromSources(pat.Name, element.NewSource(name, element.UninitializedLine)))
	}
	return ml
}
