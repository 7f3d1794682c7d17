// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_cycles_total",
			Help: "Total number of ingestion cycles by outcome",
		},
		[]string{"status"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingestion_cycle_duration_seconds",
			Help:    "Duration of one full ingestion cycle",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	CandidatesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candidates_fetched_total",
			Help: "Total number of candidates fetched per source",
		},
		[]string{"source"},
	)

	SourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_errors_total",
			Help: "Total number of per-adapter fetch failures",
		},
		[]string{"source"},
	)

	// Alert metrics
	AlertsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_created_total",
			Help: "Total number of alerts created",
		},
	)

	AlertsUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_updated_total",
			Help: "Total number of alerts merged with new candidates",
		},
	)

	// Fan-out metrics
	ChangeEventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "change_events_published_total",
			Help: "Total number of change events handed to consumers",
		},
	)

	ChangeEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "change_events_dropped_total",
			Help: "Total number of change events dropped on a full buffer",
		},
	)

	// Dispatch metrics
	DispatchEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_emails_total",
			Help: "Total number of report emails by delivery status",
		},
		[]string{"status"},
	)
)
