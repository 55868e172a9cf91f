// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vulnerability collects the illegal flows discovered while
// analyzing a program slice and renders them into the JSON report format of
// spec.md §6.
package vulnerability

import (
	"github.com/aleutian-labs/flowguard/services/taint/element"
	"github.com/aleutian-labs/flowguard/services/taint/label"
)

// flowEntry records one (sink, recorded-multilabel) pair in discovery
// order, preserving insertion order for deterministic report output.
type flowEntry struct {
	sink element.Element
	ml   label.MultiLabel
}

// Vulnerability is an append-only collector of illegal flows found during
// interpretation. Nothing outlives a single analysis run.
type Vulnerability struct {
	entries []flowEntry
}

// New builds an empty collector.
func New() *Vulnerability {
	return &Vulnerability{}
}

// Save records ml as the evidence multilabel observed at sink. Saving a
// multilabel with no non-empty labels is intentional: it is how the report
// step distinguishes "this sink was reached with no illegal flow" (nothing
// to show) from "this sink was reached with an unsanitized flow."
func (v *Vulnerability) Save(sink element.Element, ml label.MultiLabel) {
	v.entries = append(v.entries, flowEntry{sink: sink, ml: ml})
}

// Len returns the number of recorded (sink, multilabel) entries. Mostly
// useful for metrics and tests.
func (v *Vulnerability) Len() int {
	return len(v.entries)
}
