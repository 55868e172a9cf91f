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
	"errors"
	"fmt"
	"os"

	"github.com/aleutian-labs/flowguard/pkg/logging"
	"github.com/aleutian-labs/flowguard/services/taint/interpreter"
	"github.com/spf13/cobra"
)

// Exit codes, per spec.md §6-§7: 0 covers a completed analysis regardless
// of whether vulnerabilities were found; nonzero distinguishes malformed
// input from an unsupported AST node so scripts invoking flowguard can
// tell the two failure modes apart.
const (
	exitSuccess      = 0
	exitInputError   = 1
	exitUnsupported  = 2
	exitInternalFail = 3
)

var exitCode = exitSuccess

var (
	logLevel   string
	logJSON    bool
	logQuiet   bool
	logNoColor bool
	serviceLog *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "flowguard",
	Short: "Static taint analysis for program slices",
	Long: `flowguard traces information flow through a small imperative
scripting language slice, reporting any path from a declared source to a
declared sink that the supplied pattern file did not consider sanitized.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		color := logging.ColorAuto
		if logNoColor {
			color = logging.ColorNever
		}
		serviceLog = logging.New(logging.Config{
			Level:   parseLevel(logLevel),
			Service: "flowguard",
			JSON:    logJSON,
			Quiet:   logQuiet,
			Color:   color,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if serviceLog != nil {
			_ = serviceLog.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Minimum log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false,
		"Emit logs as JSON instead of text")
	rootCmd.PersistentFlags().BoolVar(&logQuiet, "quiet", false,
		"Suppress log output on stderr")
	rootCmd.PersistentFlags().BoolVar(&logNoColor, "no-color", false,
		"Disable ANSI color in text-format stderr logs, even when stderr is a terminal")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(diffCmd)
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// exitFromError maps a failure from analyze/batch to one of the exit codes
// in spec.md §6-§7 and prints it to stderr.
func exitFromError(err error) int {
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(os.Stderr, "flowguard:", err)

	var nodeErr *interpreter.NodeError
	if errors.As(err, &nodeErr) {
		return exitUnsupported
	}
	if errors.Is(err, errMalformedInput) {
		return exitInputError
	}
	return exitInternalFail
}

// errMalformedInput wraps failures reading or parsing the slice/pattern
// files — spec.md §7's "Input error" kind.
var errMalformedInput = errors.New("malformed input")
