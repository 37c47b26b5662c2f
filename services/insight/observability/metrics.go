// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the insight
// pipeline: request counters, per-stage validation outcomes, pipeline
// stage latency, and model token usage.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "ledger"

// Subsystem for insight pipeline metrics
const insightSubsystem = "insight"

// PipelineMetrics holds all Prometheus metrics for the insight
// pipeline. Initialize once at startup via InitMetrics().
type PipelineMetrics struct {
	// RequestsTotal counts pipeline requests.
	// Labels: status (success, rejected, error)
	RequestsTotal *prometheus.CounterVec

	// VerdictsTotal counts validation outcomes.
	// Labels: stage (syntax_check, ...), code (ACCEPTED, WRITE_ATTEMPT_BLOCKED, ...)
	VerdictsTotal *prometheus.CounterVec

	// StageDurationSeconds measures per-stage pipeline latency.
	// Labels: stage (extract, rank, window, resolve, generate, validate, execute, format)
	StageDurationSeconds *prometheus.HistogramVec

	// TokensTotal counts model tokens by direction.
	// Labels: direction (input, output)
	TokensTotal *prometheus.CounterVec

	// ContextEntriesSelected measures how many history entries fit
	// the token budget per request.
	ContextEntriesSelected prometheus.Histogram

	// UnresolvedReferencesTotal counts reference-resolution failures.
	// Labels: category (period, source, metric, account_filter, comparative)
	UnresolvedReferencesTotal *prometheus.CounterVec

	// ActiveRequests tracks requests currently holding a session lock.
	ActiveRequests prometheus.Gauge

	// RetriesTotal counts upstream-timeout retries.
	// Labels: target (model, ledger)
	RetriesTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of PipelineMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *PipelineMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once
// at application startup; a second call panics on duplicate
// registration.
func InitMetrics() *PipelineMetrics {
	DefaultMetrics = &PipelineMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "requests_total",
				Help:      "Total pipeline requests by outcome",
			},
			[]string{"status"},
		),

		VerdictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "verdicts_total",
				Help:      "Validation verdicts by stage and reason code",
			},
			[]string{"stage", "code"},
		),

		StageDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0},
			},
			[]string{"stage"},
		),

		TokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "tokens_total",
				Help:      "Estimated model tokens by direction",
			},
			[]string{"direction"},
		),

		ContextEntriesSelected: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "context_entries_selected",
				Help:      "Context entries fitted into the token budget per request",
				Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
			},
		),

		UnresolvedReferencesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "unresolved_references_total",
				Help:      "Reference resolution failures by category",
			},
			[]string{"category"},
		),

		ActiveRequests: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "active_requests",
				Help:      "Requests currently holding a session lock",
			},
		),

		RetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "retries_total",
				Help:      "Upstream timeout retries by target",
			},
			[]string{"target"},
		),
	}
	return DefaultMetrics
}

// =============================================================================
// Recording Helpers
// =============================================================================

// RecordRequest increments the request counter. Nil-safe so callers
// do not guard on metrics being initialized.
func (m *PipelineMetrics) RecordRequest(status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(status).Inc()
}

// RecordVerdict increments the verdict counter for one validation
// outcome.
func (m *PipelineMetrics) RecordVerdict(stage, code string) {
	if m == nil {
		return
	}
	m.VerdictsTotal.WithLabelValues(stage, code).Inc()
}

// RecordStageDuration observes one pipeline stage's latency.
func (m *PipelineMetrics) RecordStageDuration(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDurationSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordTokens adds estimated input and output token counts.
func (m *PipelineMetrics) RecordTokens(input, output int) {
	if m == nil {
		return
	}
	m.TokensTotal.WithLabelValues("input").Add(float64(input))
	m.TokensTotal.WithLabelValues("output").Add(float64(output))
}

// RecordContextWindow observes the fitted window size.
func (m *PipelineMetrics) RecordContextWindow(entries int) {
	if m == nil {
		return
	}
	m.ContextEntriesSelected.Observe(float64(entries))
}

// RecordUnresolved increments the unresolved-reference counter for
// one category.
func (m *PipelineMetrics) RecordUnresolved(category string) {
	if m == nil {
		return
	}
	m.UnresolvedReferencesTotal.WithLabelValues(category).Inc()
}

// RequestStarted marks a request as holding its session lock.
func (m *PipelineMetrics) RequestStarted() {
	if m == nil {
		return
	}
	m.ActiveRequests.Inc()
}

// RequestEnded releases the active-request gauge.
func (m *PipelineMetrics) RequestEnded() {
	if m == nil {
		return
	}
	m.ActiveRequests.Dec()
}

// RecordRetry increments the retry counter for one upstream target.
func (m *PipelineMetrics) RecordRetry(target string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(target).Inc()
}
