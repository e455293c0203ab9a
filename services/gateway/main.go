// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// The gateway is the telessaude HTTP server: authentication, patient
// profiles, and the streaming diagnosis endpoint the chat client
// consumes.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/telessaude/telessaude/pkg/logging"
	"github.com/telessaude/telessaude/services/gateway/diagnosis"
	"github.com/telessaude/telessaude/services/gateway/observability"
	"github.com/telessaude/telessaude/services/gateway/routes"
	"github.com/telessaude/telessaude/services/gateway/store"
)

func initTracer(logger *logging.Logger) (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("telessaude-gateway")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("GATEWAY_PORT")
	if port == "" {
		port = "8080"
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("GATEWAY_LOG_LEVEL")),
		Service: "gateway",
		JSON:    true,
	})
	defer logger.Close()

	cleanup, err := initTracer(logger)
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	dataDir := os.Getenv("TELESSAUDE_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("cannot determine home directory: %v", err)
		}
		dataDir = filepath.Join(home, ".telessaude", "gateway")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		log.Fatalf("cannot create data directory %s: %v", dataDir, err)
	}

	st, err := store.Open(filepath.Join(dataDir, "db"), logger)
	if err != nil {
		log.Fatalf("FATAL: could not open the gateway store: %v", err)
	}
	defer st.Close()

	var diagnoser diagnosis.Diagnoser
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		diagnoser = diagnosis.NewOpenAIDiagnoser(apiKey, os.Getenv("DIAGNOSIS_MODEL"), logger)
		logger.Info("using OpenAI diagnosis backend")
	} else {
		diagnoser = diagnosis.NewOfflineDiagnoser()
		logger.Warn("OPENAI_API_KEY not set, running with the offline diagnosis notice")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("telessaude-gateway"))

	routes.SetupRoutes(router, st, diagnoser, logger)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
		// No WriteTimeout: diagnosis responses stream for up to a
		// minute and must not be cut off by the server.
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gateway listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("gateway terminated: %v", err)
	}
}
