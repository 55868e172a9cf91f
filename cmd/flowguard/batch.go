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
	"path/filepath"
	"runtime"
	"sort"

	"github.com/aleutian-labs/flowguard/services/taint/policy"
	"github.com/aleutian-labs/flowguard/services/taint/telemetry"
	"github.com/aleutian-labs/flowguard/services/taint/vulnerability"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	batchOutput   string
	batchFormat   string
	batchWorkers  int
	batchFileGlob string
)

// batchResult pairs one slice file's findings with the file path, so the
// aggregated JSON report can attribute each finding to its source file —
// unlike `analyze`, which analyzes exactly one slice and has no need to.
type batchResult struct {
	Slice    string                  `json:"slice"`
	Findings []vulnerability.Finding `json:"findings"`
	Error    string                  `json:"error,omitempty"`
}

var batchCmd = &cobra.Command{
	Use:   "batch <slices-dir> <patterns-path>",
	Short: "Analyze every slice in a directory concurrently",
	Long: `batch formalizes the original implementation's lab-harness shell
loop (see SPEC_FULL.md §5) as a first-class subcommand: every matching
file under slices-dir is parsed and interpreted independently, one
Interpreter per file, fanned out across a worker pool. The interpreter
itself remains single-threaded per spec.md §5 — concurrency here is only
across independent analysis runs, never within one.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tel, err := telemetry.New(telemetry.Config{ServiceName: "flowguard", Writer: os.Stderr})
		if err != nil {
			return err
		}
		defer tel.Shutdown(cmd.Context())

		p, err := loadPolicy(args[1], batchFormat)
		if err != nil {
			exitCode = exitFromError(err)
			return nil
		}

		slices, err := discoverSlices(args[0], batchFileGlob)
		if err != nil {
			exitCode = exitFromError(err)
			return nil
		}

		results := runBatch(cmd.Context(), tel, slices, p, batchWorkers)

		if err := writeBatchResults(results, batchOutput); err != nil {
			exitCode = exitFromError(err)
			return nil
		}

		for _, r := range results {
			if r.Error != "" {
				exitCode = exitInputError
				break
			}
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "Write the aggregated JSON report here instead of stdout")
	batchCmd.Flags().StringVar(&batchFormat, "patterns-format", "json", "Pattern file format: json or yaml")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Concurrent analysis workers (0 = number of CPUs)")
	batchCmd.Flags().StringVar(&batchFileGlob, "glob", "*.script", "Glob matched against file names under slices-dir")
}

func discoverSlices(dir, glob string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ok, err := filepath.Match(glob, d.Name())
		if err != nil {
			return err
		}
		if ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walking %s: %v", errMalformedInput, dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// runBatch analyzes every slice concurrently, bounded by workers (0 means
// runtime.NumCPU, mirroring cmd_policy_check.go's DefaultWorkers
// convention). Results preserve the input order regardless of completion
// order, so the report stays deterministic per spec.md §5.
func runBatch(ctx context.Context, tel *telemetry.Telemetry, slices []string, p policy.Policy, workers int) []batchResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]batchResult, len(slices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, slicePath := range slices {
		i, slicePath := i, slicePath
		g.Go(func() error {
			findings, err := analyzeSlice(gctx, tel, slicePath, p)
			r := batchResult{Slice: slicePath}
			if err != nil {
				r.Error = err.Error()
			} else {
				r.Findings = findings
			}
			results[i] = r
			return nil // per-file errors are recorded, not fatal to the batch
		})
	}
	_ = g.Wait()

	return results
}

func writeBatchResults(results []batchResult, outputPath string) error {
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
	return enc.Encode(results)
}
