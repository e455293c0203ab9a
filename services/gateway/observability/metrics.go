// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the gateway.
//
// Metrics are exposed on /metrics. All operations are thread-safe via
// Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "telessaude"
	gatewaySubsystem = "gateway"
)

// GatewayMetrics holds the Prometheus metrics for gateway operations.
//
// # Fields
//
//   - RequestsTotal: Counter of requests by endpoint and status class
//   - DiagnosisDurationSeconds: Histogram of full diagnosis stream time
//   - DiagnosisBytesTotal: Counter of streamed diagnosis bytes
//   - ActiveDiagnoses: Gauge of diagnosis streams currently open
//   - ClientDisconnectsTotal: Counter of clients gone mid-stream
type GatewayMetrics struct {
	RequestsTotal            *prometheus.CounterVec
	DiagnosisDurationSeconds *prometheus.HistogramVec
	DiagnosisBytesTotal      prometheus.Counter
	ActiveDiagnoses          prometheus.Gauge
	ClientDisconnectsTotal   prometheus.Counter
}

// DefaultMetrics is the singleton instance, set by InitMetrics.
var DefaultMetrics *GatewayMetrics

var initOnce sync.Once

// InitMetrics creates and registers the gateway metrics on the default
// Prometheus registry. Safe to call more than once; registration
// happens on the first call only.
func InitMetrics() *GatewayMetrics {
	initOnce.Do(func() {
		DefaultMetrics = &GatewayMetrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: gatewaySubsystem,
					Name:      "requests_total",
					Help:      "Total requests by endpoint and status class",
				},
				[]string{"endpoint", "status"},
			),

			DiagnosisDurationSeconds: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: metricsNamespace,
					Subsystem: gatewaySubsystem,
					Name:      "diagnosis_duration_seconds",
					Help:      "Full diagnosis stream duration in seconds",
					Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60},
				},
				[]string{"status"},
			),

			DiagnosisBytesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: gatewaySubsystem,
					Name:      "diagnosis_bytes_total",
					Help:      "Total diagnosis bytes streamed to clients",
				},
			),

			ActiveDiagnoses: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: metricsNamespace,
					Subsystem: gatewaySubsystem,
					Name:      "active_diagnoses",
					Help:      "Diagnosis streams currently open",
				},
			),

			ClientDisconnectsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: gatewaySubsystem,
					Name:      "client_disconnects_total",
					Help:      "Clients that disconnected mid-stream",
				},
			),
		}
	})
	return DefaultMetrics
}
