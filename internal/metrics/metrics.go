// Package metrics declares the process-wide Prometheus metrics for jicofo.
//
// Naming convention: namespace_subsystem_name.
//   - namespace: jicofo (application-level grouping)
//   - subsystem: bridge, conference, colibri, relay, redistribute, client (domain grouping)
//   - name: specific metric
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BridgeStress is the last-reported stress value per bridge (Gauge - current state).
	BridgeStress = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "jicofo",
		Subsystem: "bridge",
		Name:      "stress",
		Help:      "Last reported stress value for a bridge",
	}, []string{"bridge"})

	// BridgeOperational tracks whether a bridge is currently selectable (1) or not (0).
	BridgeOperational = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "jicofo",
		Subsystem: "bridge",
		Name:      "operational",
		Help:      "1 if the bridge is operational and selectable, 0 otherwise",
	}, []string{"bridge"})

	// BridgesSelected counts successful bridge selections.
	BridgesSelected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jicofo",
		Subsystem: "bridge",
		Name:      "selected_total",
		Help:      "Total number of times a bridge was selected for a new endpoint",
	}, []string{"bridge"})

	// BridgeSelectionFailures counts selection attempts with no viable candidate.
	BridgeSelectionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jicofo",
		Subsystem: "bridge",
		Name:      "selection_failures_total",
		Help:      "Total number of bridge selection attempts that found no candidate",
	})

	// BridgeEndpointsMoved counts endpoints migrated away from a bridge.
	BridgeEndpointsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jicofo",
		Subsystem: "bridge",
		Name:      "endpoints_moved_total",
		Help:      "Total number of endpoints migrated away from a bridge",
	}, []string{"bridge"})

	// ActiveConferences tracks the current number of live conferences.
	ActiveConferences = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "jicofo",
		Subsystem: "conference",
		Name:      "active",
		Help:      "Current number of active conferences",
	})

	// ConferenceParticipants tracks participant count per conference.
	ConferenceParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "jicofo",
		Subsystem: "conference",
		Name:      "participants",
		Help:      "Number of participants in each conference",
	}, []string{"conference"})

	// ParticipantsInviteFailures counts failed invite tasks by reason.
	ParticipantsInviteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jicofo",
		Subsystem: "conference",
		Name:      "invite_failures_total",
		Help:      "Total invite task failures by classified reason",
	}, []string{"reason"})

	// ColibriRequestDuration tracks colibri allocation/update RPC latency.
	ColibriRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jicofo",
		Subsystem: "colibri",
		Name:      "request_duration_seconds",
		Help:      "Time spent waiting for a colibri response",
		Buckets:   prometheus.DefBuckets,
	}, []string{"request_type"})

	// ColibriSessions tracks the current number of per-bridge colibri sessions.
	ColibriSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "jicofo",
		Subsystem: "colibri",
		Name:      "sessions_active",
		Help:      "Current number of active colibri sessions across all conferences",
	})

	// RelaysActive tracks the current number of inter-bridge relays.
	RelaysActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "jicofo",
		Subsystem: "relay",
		Name:      "active",
		Help:      "Current number of inter-bridge relays across all conferences",
	})

	// RedistributionMoves counts endpoints moved by the load redistributor.
	RedistributionMoves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jicofo",
		Subsystem: "redistribute",
		Name:      "moves_total",
		Help:      "Total number of endpoints moved by the load redistributor",
	}, []string{"bridge", "trigger"})

	// CircuitBreakerState tracks the circuit breaker state per bridge.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "jicofo",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the per-bridge circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"bridge"})

	// CircuitBreakerFailures tracks requests rejected by an open circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jicofo",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"bridge"})

	// RateLimitExceeded tracks requests that exceeded a rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jicofo",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded a rate limit",
	}, []string{"scope", "reason"})

	// BusOperationsTotal tracks messaging-bus operations.
	BusOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jicofo",
		Subsystem: "bus",
		Name:      "operations_total",
		Help:      "Total number of messaging bus operations",
	}, []string{"operation", "status"})

	// BusOperationDuration tracks messaging-bus operation latency.
	BusOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jicofo",
		Subsystem: "bus",
		Name:      "operation_duration_seconds",
		Help:      "Duration of messaging bus operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// ClientConnectionsActive tracks the current number of active client
	// signaling connections.
	ClientConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "jicofo",
		Subsystem: "client",
		Name:      "connections_active",
		Help:      "Current number of active client websocket connections",
	})
)
