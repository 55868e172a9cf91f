// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vulnerability

import (
	"sort"
	"strconv"

	"github.com/aleutian-labs/flowguard/services/taint/element"
)

// Finding is one reported flow: a (source, sink, pattern) triple together
// with every sanitizer trace observed for it. This is the in-memory shape
// the JSON serializer (out of scope per spec.md §1) consumes; field names
// mirror the report contract of spec.md §6 so that serialization is a
// direct field-to-field marshal.
type Finding struct {
	Vulnerability   string     `json:"vulnerability"`
	Source          [2]any     `json:"source"`
	Sink            [2]any     `json:"sink"`
	SanitizedFlows  [][][2]any `json:"sanitized_flows"`
	UnsanitizedFlow string     `json:"unsanitized_flows"`
}

type findingKey struct {
	sourceName string
	sourceLine int
	sinkName   string
	sinkLine   int
	pattern    string
}

// Findings renders the collected flows into the report format of spec.md
// §6: one entry per (source, sink, pattern) key observed, in the order each
// key was first discovered, with a pattern-scoped "<name>_<k>" counter
// starting at 1.
func (v *Vulnerability) Findings() []Finding {
	type accum struct {
		key    findingKey
		traces [][]element.Element
	}

	var order []findingKey
	byKey := make(map[findingKey]*accum)

	for _, entry := range v.entries {
		// Go's builtin map randomizes range order; iterate patterns and
		// values in a sorted order so that the report is deterministic
		// across runs, per spec.md §5.
		patterns := make([]string, 0, len(entry.ml.Labels))
		for name := range entry.ml.Labels {
			patterns = append(patterns, name)
		}
		sort.Strings(patterns)

		for _, patternName := range patterns {
			lbl := entry.ml.Labels[patternName]
			values := make([]element.Taintable, 0, len(lbl.Values))
			for _, val := range lbl.Values {
				values = append(values, val)
			}
			sort.Slice(values, func(i, j int) bool { return taintableLess(values[i], values[j]) })

			for _, val := range values {
				src := val.GetSource()
				k := findingKey{
					sourceName: src.Elem.Name,
					sourceLine: src.Elem.Line,
					sinkName:   entry.sink.Name,
					sinkLine:   entry.sink.Line,
					pattern:    lbl.Pattern,
				}
				a, ok := byKey[k]
				if !ok {
					a = &accum{key: k}
					byKey[k] = a
					order = append(order, k)
				}
				a.traces = append(a.traces, element.Chain(val))
			}
		}
	}

	counters := make(map[string]int)
	findings := make([]Finding, 0, len(order))
	for _, k := range order {
		a := byKey[k]
		counters[k.pattern]++

		unsanitized := "no"
		var sanitizedFlows [][][2]any
		for _, trace := range a.traces {
			if len(trace) == 0 {
				unsanitized = "yes"
				continue
			}
			hops := make([][2]any, 0, len(trace))
			for _, e := range trace {
				hops = append(hops, [2]any{e.Name, e.Line})
			}
			sanitizedFlows = append(sanitizedFlows, hops)
		}
		if sanitizedFlows == nil {
			sanitizedFlows = [][][2]any{}
		}

		findings = append(findings, Finding{
			Vulnerability:   patternLabel(k.pattern, counters[k.pattern]),
			Source:          [2]any{k.sourceName, k.sourceLine},
			Sink:            [2]any{k.sinkName, k.sinkLine},
			SanitizedFlows:  sanitizedFlows,
			UnsanitizedFlow: unsanitized,
		})
	}

	return findings
}

func patternLabel(pattern string, k int) string {
	return pattern + "_" + strconv.Itoa(k)
}

// taintableLess orders two Taintable values by (head name, head line, chain
// depth) so that sorting over a label's value set is deterministic and
// reproducible across runs.
func taintableLess(a, b element.Taintable) bool {
	if a.Name() != b.Name() {
		return a.Name() < b.Name()
	}
	if a.Line() != b.Line() {
		return a.Line() < b.Line()
	}
	return len(element.Chain(a)) < len(element.Chain(b))
}
