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
	"encoding/json"
	"fmt"
	"os"

	"github.com/aleutian-labs/flowguard/services/taint/telemetry"
	"github.com/aleutian-labs/flowguard/services/taint/vulnerability"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var (
	analyzeOutput  string
	analyzeFormat  string
	analyzeWatch   bool
	analyzeTelOutW string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <slice-path> <patterns-path>",
	Short: "Analyze a single program slice against a pattern file",
	Long: `analyze implements spec.md §6's external interface: two positional
arguments, a program slice and a JSON (or, with --patterns-format=yaml,
YAML) pattern file. Exit code 0 covers a completed analysis, including one
that reports vulnerabilities; a nonzero exit distinguishes malformed input
from an unsupported AST node (see the flowguard command's exit-code
table).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tel, err := telemetry.New(telemetry.Config{ServiceName: "flowguard", Writer: os.Stderr})
		if err != nil {
			return err
		}
		defer tel.Shutdown(cmd.Context())

		run := func() error {
			return runAnalyze(cmd.Context(), tel, args[0], args[1])
		}

		if err := run(); err != nil {
			exitCode = exitFromError(err)
			if !analyzeWatch {
				return nil // error already reported; exit code already set
			}
		}

		if !analyzeWatch {
			return nil
		}
		return watchAndRerun(args[1], run)
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Write the JSON report here instead of stdout")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "patterns-format", "json", "Pattern file format: json or yaml")
	analyzeCmd.Flags().BoolVar(&analyzeWatch, "watch", false, "Re-run whenever the pattern file changes on disk")
}

func runAnalyze(ctx context.Context, tel *telemetry.Telemetry, slicePath, patternsPath string) error {
	p, err := loadPolicy(patternsPath, analyzeFormat)
	if err != nil {
		return err
	}

	findings, err := analyzeSlice(ctx, tel, slicePath, p)
	if err != nil {
		return err
	}

	return writeFindings(findings, analyzeOutput)
}

func writeFindings(findings []vulnerability.Finding, outputPath string) error {
	out := os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("%w: opening output file: %v", errMalformedInput, err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(findings)
}

// watchAndRerun re-invokes fn every time patternsPath changes on disk,
// grounded in the teacher's fsnotify-based hot-reload usage elsewhere in
// AleutianFOSS. It blocks until the watcher's event or error channel is
// closed; a watcher error is logged and watching continues.
func watchAndRerun(patternsPath string, fn func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting pattern-file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(patternsPath); err != nil {
		return fmt.Errorf("watching %s: %w", patternsPath, err)
	}

	serviceLog.Info("watching pattern file for changes", "path", patternsPath)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			serviceLog.Info("pattern file changed, re-running analysis", "path", patternsPath)
			if err := fn(); err != nil {
				exitCode = exitFromError(err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			serviceLog.Error("watcher error", "error", err)
		}
	}
}
