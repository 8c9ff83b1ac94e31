// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

// Package metrics provides Prometheus instrumentation for depotwatch:
// upstream fetch outcomes, sync results, commit conflicts, cache
// efficiency and API traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fetcher metrics
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotwatch_fetch_requests_total",
			Help: "Total rate-limited fetch outcomes by endpoint class",
		},
		[]string{"class", "outcome"}, // outcome: status class (2xx/3xx/4xx), retries_exhausted, fatal
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotwatch_fetch_retries_total",
			Help: "Total transient-failure retries by endpoint class",
		},
		[]string{"class"},
	)

	FetchWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "depotwatch_fetch_gate_wait_seconds",
			Help:    "Time spent waiting on the per-class request spacing gate",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"class"},
	)

	// Synchronizer metrics
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotwatch_sync_runs_total",
			Help: "Total per-title synchronizer runs by outcome",
		},
		[]string{"outcome"}, // updated, up-to-date, upstream-unreachable, failed
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "depotwatch_sync_duration_seconds",
			Help:    "Duration of a single-title synchronizer run",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommitConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "depotwatch_commit_conflicts_total",
			Help: "Total optimistic-concurrency conflicts observed on branch commits",
		},
	)

	BatchTitles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "depotwatch_batch_titles",
			Help: "Number of titles processed by the most recent batch",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "depotwatch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotwatch_circuit_breaker_requests_total",
			Help: "Circuit breaker request outcomes",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotwatch_cache_hits_total",
			Help: "Cache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotwatch_cache_misses_total",
			Help: "Cache misses by cache name",
		},
		[]string{"cache"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotwatch_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "depotwatch_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)
