// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for flowguard's four
// subcommands (analyze, batch, serve, diff).
//
// Logger wraps log/slog with three destinations: stderr (text or JSON,
// optionally ANSI-colored when stderr is a terminal), an optional log
// file (always JSON, one file per service per day under LogDir), and an
// optional LogExporter for anything downstream of that; the CLI
// configures none. All three run off the same
// *slog.Logger so a caller holding a *Logger can always drop to Slog()
// for telemetry.LoggerWithRun's trace/run-ID attribute injection.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Level is flowguard's log severity, ordered Debug < Info < Warn < Error
// and mapped onto slog.Level by toSlogLevel.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ColorMode controls whether the stderr text handler colorizes level
// names with ANSI escapes.
type ColorMode int

const (
	// ColorAuto colorizes only when stderr is a real terminal, detected
	// with github.com/mattn/go-isatty the same way the teacher's CLI
	// surfaces decide whether to emit ANSI escapes at all.
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// Config configures a Logger. The zero value is Debug level (LevelDebug is
// the zero Level), stderr only, text format, auto color detection; the root
// command always sets Level from --log-level, whose default is info.
type Config struct {
	// Level is the minimum level written to any destination.
	Level Level

	// LogDir, if set, adds a file destination: JSON lines at
	// "{LogDir}/{Service}_{YYYY-MM-DD}.log". Supports a leading "~".
	LogDir string

	// Service tags every log line and names the log file. When empty, no
	// service attribute is added and the log file is named "flowguard".
	Service string

	// JSON switches the stderr destination from text to JSON. The file
	// destination is always JSON regardless of this setting.
	JSON bool

	// Quiet suppresses the stderr destination entirely (file and
	// Exporter, if configured, are unaffected). batch uses this with
	// --quiet so concurrent worker output doesn't interleave on stderr.
	Quiet bool

	// Color controls ANSI colorization of the stderr text destination.
	// Ignored when JSON is true. Default: ColorAuto.
	Color ColorMode

	// Exporter, if set, receives every log entry at or above Level on a
	// separate goroutine per call, in addition to stderr/file. The CLI
	// sets no Exporter; the implementations in this package are
	// NopExporter, BufferedExporter, and WriterExporter.
	Exporter LogExporter
}

// LogExporter receives log entries alongside the stderr/file output.
// Export is called once per entry on its own goroutine and must not
// block the caller; Flush and Close run during Logger.Close.
type LogExporter interface {
	Export(ctx context.Context, entry LogEntry) error
	Flush(ctx context.Context) error
	Close() error
}

// LogEntry is the payload handed to a LogExporter.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Service   string
	Attrs     map[string]any
}

// Logger is a thin, mutex-protected wrapper over slog.Logger that adds
// the file/Exporter destinations and Close-time cleanup.
type Logger struct {
	slog     *slog.Logger
	config   Config
	file     *os.File
	exporter LogExporter
	mu       sync.Mutex
}

// New builds a Logger from config, wiring stderr, the optional log
// file, and the optional Exporter into a single slog.Logger.
func New(config Config) *Logger {
	var handlers []slog.Handler

	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}
	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			textOpts := *opts
			if shouldColorize(config.Color, os.Stderr) {
				textOpts.ReplaceAttr = colorizeLevelAttr
			}
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, &textOpts))
		}
	}

	logger := &Logger{config: config, exporter: config.Exporter}

	if config.LogDir != "" {
		if file, err := openLogFile(config.LogDir, config.Service); err == nil {
			logger.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	logger.slog = slog.New(handler)
	return logger
}

func openLogFile(logDir, service string) (*os.File, error) {
	dir := expandPath(logDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	if service == "" {
		service = "flowguard"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
}

// shouldColorize resolves a ColorMode against a destination writer.
func shouldColorize(mode ColorMode, w io.Writer) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		f, ok := w.(*os.File)
		if !ok {
			return false
		}
		fd := f.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
}

// colorizeLevelAttr wraps the rendered level name in an ANSI color code
// matching its severity, via slog.HandlerOptions.ReplaceAttr.
func colorizeLevelAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	const reset = "\x1b[0m"
	var code, name string
	switch {
	case level >= slog.LevelError:
		code, name = "\x1b[31m", "ERROR"
	case level >= slog.LevelWarn:
		code, name = "\x1b[33m", "WARN"
	case level >= slog.LevelInfo:
		code, name = "\x1b[32m", "INFO"
	default:
		code, name = "\x1b[36m", "DEBUG"
	}
	a.Value = slog.StringValue(code + name + reset)
	return a
}

// Default returns an Info-level, stderr-only, auto-color logger tagged
// "flowguard" — analyze's default before flag parsing overrides it.
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "flowguard"})
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// With returns a child Logger sharing this one's file handle and
// exporter but carrying additional attributes on every subsequent line.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:     l.slog.With(args...),
		config:   l.config,
		file:     l.file,
		exporter: l.exporter,
	}
}

// Slog exposes the underlying *slog.Logger, e.g. for
// telemetry.LoggerWithRun's trace/run-ID attribute injection.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes and closes the Exporter (if any) and syncs/closes the
// log file (if any). Safe to call on a Logger with neither configured.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush exporter: %w", err))
		}
		if err := l.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close exporter: %w", err))
		}
	}
	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync log file: %w", err))
		}
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (l *Logger) log(level Level, msg string, args ...any) {
	switch level {
	case LevelDebug:
		l.slog.Debug(msg, args...)
	case LevelInfo:
		l.slog.Info(msg, args...)
	case LevelWarn:
		l.slog.Warn(msg, args...)
	case LevelError:
		l.slog.Error(msg, args...)
	}

	if l.exporter != nil && level >= l.config.Level {
		entry := LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   msg,
			Service:   l.config.Service,
			Attrs:     argsToMap(args),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = l.exporter.Export(ctx, entry)
		}()
	}
}

// multiHandler fans a record out to every handler enabled for its
// level, so stderr and the log file can run different formats
// concurrently off one slog.Logger.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// expandPath expands a leading "~" to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// argsToMap converts slog-style key/value args into LogEntry.Attrs.
func argsToMap(args []any) map[string]any {
	result := make(map[string]any)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			result[key] = args[i+1]
		}
	}
	return result
}

// NopExporter discards every entry. Used where a Config needs a
// non-nil Exporter without a real sink, e.g. in tests.
type NopExporter struct{}

func (e *NopExporter) Export(ctx context.Context, entry LogEntry) error { return nil }
func (e *NopExporter) Flush(ctx context.Context) error                 { return nil }
func (e *NopExporter) Close() error                                    { return nil }

var _ LogExporter = (*NopExporter)(nil)

// BufferedExporter collects entries in memory for test assertions.
// Export is called asynchronously by Logger, so callers must
// synchronize (e.g. via a subsequent file-backed read, or by giving the
// async goroutine time to land) before inspecting Entries.
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{entries: make([]LogEntry, 0, 16)}
}

func (e *BufferedExporter) Export(ctx context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

func (e *BufferedExporter) Flush(ctx context.Context) error { return nil }
func (e *BufferedExporter) Close() error                    { return nil }

// Entries returns a copy of the entries collected so far.
func (e *BufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]LogEntry, len(e.entries))
	copy(result, e.entries)
	return result
}

// WriterExporter writes each entry as a single plain-text line to w:
// timestamp, level, message, and attributes.
type WriterExporter struct {
	w  io.Writer
	mu sync.Mutex
}

func NewWriterExporter(w io.Writer) *WriterExporter {
	return &WriterExporter{w: w}
}

func (e *WriterExporter) Export(ctx context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := fmt.Fprintf(e.w, "[%s] %s: %s %v\n",
		entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Message, entry.Attrs)
	return err
}

func (e *WriterExporter) Flush(ctx context.Context) error { return nil }
func (e *WriterExporter) Close() error                    { return nil }
