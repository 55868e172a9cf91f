// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry instruments analysis runs with OpenTelemetry traces
// and Prometheus metrics.
//
// # Description
//
// One span is opened per analysis run (per source file or per batch item)
// and closed with the run's outcome. Finding counts and run duration are
// also recorded as Prometheus series so a long-running `flowguard serve`
// process can expose them at /metrics.
//
// Spans are written through the stdout exporters to Config.Writer (the
// analyze and batch subcommands set it to stderr) rather than sent to an
// OTLP collector: this keeps
// the FOSS build dependency-free of a running Jaeger/Tempo instance while
// still producing W3C-shaped trace data a developer can pipe through
// `jq`. A collector-backed exporter is a natural enterprise extension
// point, following the NoOp/OTel split in the teacher's diagnostics
// tracer, but is out of scope here (see DESIGN.md).
//
// # Thread Safety
//
// Telemetry is safe for concurrent use once New returns; StartRun may be
// called from multiple goroutines (e.g. the batch subcommand's worker
// pool).
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures a Telemetry instance.
//
// A zero-value Config produces spans and metrics that are recorded but
// never written anywhere useful (Writer defaults to io.Discard); callers
// that want the export output should set Writer explicitly, as the analyze
// and batch subcommands do (os.Stderr). serve leaves it unset.
type Config struct {
	// ServiceName identifies this process in span/metric resource
	// attributes. Default: "flowguard".
	ServiceName string

	// Writer receives the exported spans and metrics, newline-delimited
	// JSON. Default: io.Discard.
	Writer io.Writer

	// Disabled turns every method into a no-op (NoOp tracer/meter). Use
	// this for unit tests that don't want stdout noise.
	Disabled bool
}

// Telemetry holds the tracer, meter, and Prometheus collectors for a
// flowguard process.
type Telemetry struct {
	tracer trace.Tracer

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	registry             *prometheus.Registry
	vulnerabilitiesFound *prometheus.CounterVec
	analysisDuration     *prometheus.HistogramVec

	mu          sync.Mutex
	initialized bool
}

// New builds a Telemetry instance and registers its Prometheus
// collectors against a fresh registry (not prometheus.DefaultRegisterer,
// so multiple Telemetry values can coexist in tests).
func New(cfg Config) (*Telemetry, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "flowguard"
	}
	writer := cfg.Writer
	if writer == nil {
		writer = io.Discard
	}

	registry := prometheus.NewRegistry()
	vulnerabilitiesFound := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowguard_vulnerabilities_found_total",
		Help: "Number of distinct vulnerability findings reported, labeled by pattern name.",
	}, []string{"pattern"})
	analysisDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowguard_analysis_duration_seconds",
		Help:    "Wall-clock duration of a single analysis run.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	registry.MustRegister(vulnerabilitiesFound, analysisDuration)

	t := &Telemetry{
		registry:             registry,
		vulnerabilitiesFound: vulnerabilitiesFound,
		analysisDuration:     analysisDuration,
	}

	if cfg.Disabled {
		t.tracer = noop.NewTracerProvider().Tracer(serviceName)
		t.initialized = true
		return t, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(writer))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(writer))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build metric exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)

	t.tracerProvider = tracerProvider
	t.meterProvider = meterProvider
	t.tracer = tracerProvider.Tracer(serviceName)
	t.initialized = true
	return t, nil
}

// Registry returns the Prometheus registry backing this Telemetry, for
// wiring into a promhttp handler (see cmd/flowguard's serve subcommand).
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// TracerProvider returns the underlying OpenTelemetry TracerProvider, or
// nil when Telemetry was built with Config.Disabled. The serve
// subcommand installs this as the process-wide tracer provider
// (otel.SetTracerProvider) before attaching otelgin.Middleware, the same
// order the teacher's services/orchestrator/main.go uses so request
// spans created by the gin middleware land in the same trace export
// pipeline as the per-run spans StartRun opens.
func (t *Telemetry) TracerProvider() *sdktrace.TracerProvider {
	return t.tracerProvider
}

// StartRun opens a span covering one analysis run and returns a finish
// function. The finish function sets the finding count and outcome on the
// span and ends it, and records the run's duration in the Prometheus
// duration histogram under its outcome label; it must be called exactly
// once. ctx must not be nil — callers with no live context
// should pass context.Background() explicitly rather than relying on a
// silent default, mirroring services/trace/dag.Executor.Resume's
// ErrNilContext check.
//
// Example:
//
//	ctx, finish, err := tel.StartRun(ctx, "a1b2c3", "input.script")
//	if err != nil {
//	    return err
//	}
//	vulns, err := interpreter.New(p).Run(mod)
//	finish(vulns.Len(), err)
func (t *Telemetry) StartRun(ctx context.Context, runID, target string) (context.Context, func(vulnCount int, err error), error) {
	if ctx == nil {
		return nil, nil, ErrNilContext
	}
	start := time.Now()
	ctx, span := t.tracer.Start(ctx, "flowguard.analyze",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("target", target),
		),
	)

	return ctx, func(vulnCount int, err error) {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(attribute.Int("vulnerabilities_found", vulnCount))
		span.End()

		t.analysisDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}, nil
}

// RecordFindings increments the vulnerabilities_found counter once per
// entry of patternNames, so a name listed twice is counted twice.
func (t *Telemetry) RecordFindings(patternNames []string) {
	for _, name := range patternNames {
		t.vulnerabilitiesFound.WithLabelValues(name).Inc()
	}
}

// Shutdown flushes and stops the trace and metric providers. It is a
// no-op when the Telemetry was built with Config.Disabled.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// NewStdoutTelemetry is a convenience constructor matching the CLI's
// default: spans and metrics from the stdout exporters, written to
// os.Stderr, under the "flowguard" service name.
func NewStdoutTelemetry() (*Telemetry, error) {
	return New(Config{ServiceName: "flowguard", Writer: os.Stderr})
}
