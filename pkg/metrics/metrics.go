// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GeometryRejectedTotal counts fail-closed exclusions caused by unusable geometry
	GeometryRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "geo",
			Name:      "geometry_rejected_total",
			Help:      "Total number of search areas or locations rejected as malformed",
		},
		[]string{"reason"},
	)

	// ListingsIngestedTotal tracks ingest outcomes by portal and result (created, merged, manual_input, failed)
	ListingsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "ingest",
			Name:      "listings_total",
			Help:      "Total number of ingested listings by portal and outcome",
		},
		[]string{"portal_source", "outcome"},
	)

	// IngestDuration tracks the time spent ingesting one raw listing
	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Duration of listing ingestion in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"portal_source"},
	)

	// DuplicateConflictsTotal tracks ambiguous duplicate detections
	DuplicateConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "dedup",
			Name:      "ambiguous_total",
			Help:      "Total number of imports matching more than one canonical listing",
		},
	)

	// StorageConflictRetriesTotal tracks canonical-create races resolved by the merge path
	StorageConflictRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "dedup",
			Name:      "storage_conflict_retries_total",
			Help:      "Total number of ingest retries after a unique index conflict",
		},
	)

	// MatchDuration tracks how long matching one buyer takes
	MatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "duration_seconds",
			Help:      "Duration of matching a buyer against the listing pool in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	// RematchBuyersTotal tracks per-buyer rematch outcomes (matched, no_preference, failed)
	RematchBuyersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "rematch_buyers_total",
			Help:      "Total number of buyers processed by rematch runs by outcome",
		},
		[]string{"outcome"},
	)

	// NotificationsRecordedTotal tracks RecordSent calls split by first send or resend
	NotificationsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "notification",
			Name:      "recorded_total",
			Help:      "Total number of recorded notification sends",
		},
		[]string{"kind"},
	)

	// KafkaMessagesTotal tracks consumed messages by outcome
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_total",
			Help:      "Total number of consumed Kafka messages by outcome",
		},
		[]string{"topic", "outcome"},
	)

	// LockWaitDuration tracks time spent acquiring dedup locks
	LockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "redis",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a dedup lock in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
		},
	)
)
