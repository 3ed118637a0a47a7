package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "songparty"

var (
	// StoreTxRetries counts optimistic transactions replayed because another writer touched the room first.
	StoreTxRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "tx_retries_total",
		Help:      "Room transactions retried after a concurrent write.",
	})

	StoreTxAborted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "tx_aborted_total",
		Help:      "Room transactions given up after exhausting the retry budget.",
	})

	StoreDroppedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "dropped_entries_total",
		Help:      "Malformed room entries discarded while decoding.",
	})

	PhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "game",
		Name:      "phase_transitions_total",
		Help:      "Phase transitions written, by target phase.",
	}, []string{"to"})

	// Fallbacks counts external collaborator calls answered by a degraded path.
	Fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fallbacks_total",
		Help:      "External service calls served by a fallback, by service and reason.",
	}, []string{"service", "reason"})

	Panics = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "panics_recovered_total",
		Help:      "Panics recovered by a top-level handler, by surface.",
	}, []string{"surface"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "errors_total",
		Help:      "Failed Redis commands, by client.",
	}, []string{"client"})
)
