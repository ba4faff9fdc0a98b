// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors exposed on /metrics.
// The metric names, labels, and buckets are part of the wire contract.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every gateway collector. Handler serves it on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// RequestLatency observes total end-to-end validation latency.
	RequestLatency = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "guardrail_request_latency_seconds",
		Help:    "Total request latency",
		Buckets: []float64{0.01, 0.025, 0.05, 0.075, 0.1, 0.15, 0.2, 0.5},
	})

	// RequestTotal counts validations by outcome status and flag decision.
	RequestTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "guardrail_request_total",
		Help: "Total requests",
	}, []string{"status", "flagged"})

	// InFlight tracks the number of validations currently in progress.
	InFlight = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "guardrail_in_flight_requests",
		Help: "Number of in-flight requests",
	})

	// ModelCallLatency observes per-model downstream call latency.
	ModelCallLatency = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guardrail_model_call_latency_seconds",
		Help:    "Latency of downstream model calls",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 1.0},
	}, []string{"model_name"})

	// RetryTotal counts model call retries by model and attempt number.
	RetryTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "guardrail_model_call_retries_total",
		Help: "Total number of retries for model calls",
	}, []string{"model_name", "retry_number"})

	// CircuitState reports each model's breaker state
	// (0=closed, 1=open, 2=half-open).
	CircuitState = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "guardrail_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
	}, []string{"model_name"})
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// InitModelLabels pre-initializes per-model label sets so the series are
// exposed before the first request arrives.
func InitModelLabels(models []string) {
	for _, name := range models {
		ModelCallLatency.WithLabelValues(name)
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
