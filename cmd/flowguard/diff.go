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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aleutian-labs/flowguard/services/taint/vulnerability"
	godiff "github.com/sourcegraph/go-diff/diff"
	"github.com/spf13/cobra"
)

// diffCmd compares two analyze/batch JSON finding reports and prints
// which findings appeared or disappeared between them. The comparison
// text is parsed and re-rendered through github.com/sourcegraph/go-diff
// (diff.NewMultiFileDiffReader(...).ReadAllFiles() / diff.PrintFileDiff)
// rather than hand-printed, the same round trip the teacher's
// services/code_buddy/validate.PatchValidator.parseDiff/applyDiff uses
// to get a structured, canonically-formatted diff out of unified-diff
// text it already has the pieces for.
var diffCmd = &cobra.Command{
	Use:   "diff <old-report.json> <new-report.json>",
	Short: "Show findings added or removed between two JSON reports",
	Long: `diff re-renders two flowguard JSON finding reports as sorted
one-finding-per-line text and prints the unified diff between them, so
a developer can see what a pattern-file or slice change added or fixed
without line-by-line JSON comparison.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiff(args[0], args[1])
	},
}

func runDiff(oldPath, newPath string) error {
	oldLines, err := findingLines(oldPath)
	if err != nil {
		return err
	}
	newLines, err := findingLines(newPath)
	if err != nil {
		return err
	}

	unified := unifiedLineDiff(oldPath, newPath, oldLines, newLines)
	if unified == "" {
		fmt.Println("no differences")
		return nil
	}

	fileDiffs, err := godiff.NewMultiFileDiffReader(strings.NewReader(unified)).ReadAllFiles()
	if err != nil {
		return fmt.Errorf("%w: parsing generated diff: %v", errMalformedInput, err)
	}
	for _, fd := range fileDiffs {
		out, err := godiff.PrintFileDiff(fd)
		if err != nil {
			return fmt.Errorf("%w: rendering diff: %v", errMalformedInput, err)
		}
		if _, err := os.Stdout.Write(out); err != nil {
			return err
		}
	}
	return nil
}

// findingLines reads a JSON finding report and renders each finding as a
// single stable, sorted text line so unifiedLineDiff can compare two
// reports by content rather than by position.
func findingLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading report: %v", errMalformedInput, err)
	}
	var findings []vulnerability.Finding
	if err := json.Unmarshal(data, &findings); err != nil {
		return nil, fmt.Errorf("%w: decoding report: %v", errMalformedInput, err)
	}
	lines := make([]string, 0, len(findings))
	for _, f := range findings {
		lines = append(lines, fmt.Sprintf("%s: %v -> %v", f.Vulnerability, f.Source, f.Sink))
	}
	sort.Strings(lines)
	return lines, nil
}

// unifiedLineDiff renders a minimal unified diff (a single hunk, no
// shared context) between two already-sorted line sets. Finding lines
// carry no positional adjacency the way source lines do, so a
// context-free added/removed hunk is the right shape here rather than a
// full Myers diff.
func unifiedLineDiff(oldPath, newPath string, oldLines, newLines []string) string {
	oldSet := make(map[string]bool, len(oldLines))
	for _, l := range oldLines {
		oldSet[l] = true
	}
	newSet := make(map[string]bool, len(newLines))
	for _, l := range newLines {
		newSet[l] = true
	}

	var removed, added []string
	for _, l := range oldLines {
		if !newSet[l] {
			removed = append(removed, l)
		}
	}
	for _, l := range newLines {
		if !oldSet[l] {
			added = append(added, l)
		}
	}
	if len(removed) == 0 && len(added) == 0 {
		return ""
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--- %s\n+++ %s\n", oldPath, newPath)
	fmt.Fprintf(&buf, "@@ -1,%d +1,%d @@\n", len(removed), len(added))
	for _, l := range removed {
		fmt.Fprintf(&buf, "-%s\n", l)
	}
	for _, l := range added {
		fmt.Fprintf(&buf, "+%s\n", l)
	}
	return buf.String()
}
