// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy holds the vulnerability-pattern database: a list of
// immutable Pattern records (source/sanitizer/sink name sets plus an
// implicit-flow flag) and the search/classification queries the
// interpreter runs against them.
package policy

import "fmt"

// Pattern is a named vulnerability pattern: the sources, sanitizers, and
// sinks that define one information-flow rule, plus whether control-
// dependent (implicit) flows should be tracked for it.
type Pattern struct {
	Name       string          `json:"vulnerability" yaml:"vulnerability" validate:"required"`
	Sources    map[string]bool `json:"-" yaml:"-"`
	Sanitizers map[string]bool `json:"-" yaml:"-"`
	Sinks      map[string]bool `json:"-" yaml:"-"`
	Implicit   bool            `json:"-" yaml:"-"`
}

// IsSource reports whether name is a source for this pattern.
func (p Pattern) IsSource(name string) bool { return p.Sources[name] }

// IsSanitizer reports whether name is a sanitizer for this pattern.
func (p Pattern) IsSanitizer(name string) bool { return p.Sanitizers[name] }

// IsSink reports whether name is a sink for this pattern.
func (p Pattern) IsSink(name string) bool { return p.Sinks[name] }

// String renders a debug representation.
func (p Pattern) String() string {
	return fmt.Sprintf("Pattern[%s]{sources=%d, sanitizers=%d, sinks=%d, implicit=%v}",
		p.Name, len(p.Sources), len(p.Sanitizers), len(p.Sinks), p.Implicit)
}

func stringSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
