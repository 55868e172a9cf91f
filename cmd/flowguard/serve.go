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
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aleutian-labs/flowguard/services/taint/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
)

var (
	servePort    int
	serveDebug   bool
	shutdownWait time.Duration
)

// serveCmd exposes flowguard as a long-running HTTP service: a POST
// /v1/analyze endpoint wrapping analyzeSlice, plus the /metrics and
// /healthz endpoints the other subcommands have no need for. Grounded
// in cmd/codebuddy/main.go's gin.New()+gin.Recovery() server skeleton,
// with the os.Exit(0) shutdown replaced by a real http.Server.Shutdown
// so in-flight requests drain instead of being cut off.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run flowguard as an HTTP service",
	Long: `serve starts a long-running flowguard instance with a JSON analysis
endpoint, a Prometheus /metrics endpoint, and a /healthz endpoint, per
SPEC_FULL.md §4's gin/Prometheus domain-stack wiring.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable gin debug mode and request logging")
	serveCmd.Flags().DurationVar(&shutdownWait, "shutdown-timeout", 10*time.Second,
		"How long to wait for in-flight requests to drain on shutdown")
}

type analyzeRequest struct {
	Slice          string `json:"slice" binding:"required"`
	PatternsPath   string `json:"patterns_path" binding:"required"`
	PatternsFormat string `json:"patterns_format"`
}

func runServe(ctx context.Context) error {
	tel, err := telemetry.New(telemetry.Config{ServiceName: "flowguard"})
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())

	if serveDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if tp := tel.TracerProvider(); tp != nil {
		otel.SetTracerProvider(tp)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("flowguard"))
	if serveDebug {
		router.Use(gin.Logger())
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(tel.Registry(), promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	v1.POST("/analyze", handleAnalyze(tel))

	addr := fmt.Sprintf(":%d", servePort)
	srv := &http.Server{Addr: addr, Handler: router}

	serveCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		serviceLog.Info("flowguard server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-serveCtx.Done():
	}

	serviceLog.Info("shutting down flowguard server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func handleAnalyze(tel *telemetry.Telemetry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req analyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		p, err := loadPolicy(req.PatternsPath, req.PatternsFormat)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		findings, err := analyzeSlice(c.Request.Context(), tel, req.Slice, p)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		body, err := json.Marshal(findings)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json", body)
	}
}
