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
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aleutian-labs/flowguard/pkg/runid"
	"github.com/aleutian-labs/flowguard/services/taint/interpreter"
	"github.com/aleutian-labs/flowguard/services/taint/policy"
	"github.com/aleutian-labs/flowguard/services/taint/script"
	"github.com/aleutian-labs/flowguard/services/taint/telemetry"
	"github.com/aleutian-labs/flowguard/services/taint/vulnerability"
)

// loadPolicy reads and decodes a pattern file in the requested format
// (spec.md §6's JSON contract by default, or the supplementary YAML
// format from SPEC_FULL.md §4).
func loadPolicy(patternsPath, format string) (policy.Policy, error) {
	data, err := os.ReadFile(patternsPath)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("%w: reading patterns file: %v", errMalformedInput, err)
	}

	wireFormat := policy.FormatJSON
	if format == "yaml" {
		wireFormat = policy.FormatYAML
	}

	p, err := policy.Load(data, wireFormat)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("%w: %v", errMalformedInput, err)
	}
	return p, nil
}

// analyzeSlice reads and parses slicePath, runs the interpreter under p,
// and returns the resulting findings. Every failure is attributed to one
// of spec.md §7's error kinds: a read/parse failure is wrapped in
// errMalformedInput; an interpreter failure (including an
// *interpreter.NodeError for an unsupported AST node) is returned as-is so
// the caller's exit-code mapping can tell it apart.
func analyzeSlice(ctx context.Context, tel *telemetry.Telemetry, slicePath string, p policy.Policy) ([]vulnerability.Finding, error) {
	src, err := os.ReadFile(slicePath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading slice file: %v", errMalformedInput, err)
	}

	mod, err := script.Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing slice: %v", errMalformedInput, err)
	}

	runID := runid.New()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, finish, err := tel.StartRun(ctx, runID, slicePath)
	if err != nil {
		return nil, fmt.Errorf("starting telemetry span: %w", err)
	}
	log := telemetry.LoggerWithRun(ctx, serviceLog.Slog(), runID)
	log.Debug("analysis starting", "slice", slicePath, "patterns", len(p.Patterns))

	vulns, err := interpreter.NewWithLogger(p, serviceLog).Run(mod)
	if err != nil {
		finish(0, err)
		log.Error("analysis failed", "error", err)
		return nil, err
	}

	findings := vulns.Findings()
	finish(len(findings), nil)
	tel.RecordFindings(patternNamesOf(findings))
	log.Info("analysis complete", "vulnerabilities_found", len(findings))

	return findings, nil
}

// patternNamesOf strips the "_<k>" report counter suffix (spec.md §6) off
// each finding's Vulnerability field so RecordFindings can aggregate by
// raw pattern name instead of by per-run counter value.
func patternNamesOf(findings []vulnerability.Finding) []string {
	names := make([]string, 0, len(findings))
	for _, f := range findings {
		names = append(names, stripCounterSuffix(f.Vulnerability))
	}
	return names
}

func stripCounterSuffix(vuln string) string {
	idx := strings.LastIndex(vuln, "_")
	if idx < 0 || idx == len(vuln)-1 {
		return vuln
	}
	if _, err := strconv.Atoi(vuln[idx+1:]); err != nil {
		return vuln
	}
	return vuln[:idx]
}
