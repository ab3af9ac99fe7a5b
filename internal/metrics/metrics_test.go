package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBridgeMetrics(t *testing.T) {
	BridgeStress.WithLabelValues("bridge-1").Set(0.42)
	if v := testutil.ToFloat64(BridgeStress.WithLabelValues("bridge-1")); v != 0.42 {
		t.Errorf("expected BridgeStress 0.42, got %v", v)
	}

	BridgeOperational.WithLabelValues("bridge-1").Set(1)
	if v := testutil.ToFloat64(BridgeOperational.WithLabelValues("bridge-1")); v != 1 {
		t.Errorf("expected BridgeOperational 1, got %v", v)
	}

	BridgesSelected.WithLabelValues("bridge-1").Inc()
	if v := testutil.ToFloat64(BridgesSelected.WithLabelValues("bridge-1")); v < 1 {
		t.Errorf("expected BridgesSelected >= 1, got %v", v)
	}

	before := testutil.ToFloat64(BridgeSelectionFailures)
	BridgeSelectionFailures.Inc()
	if v := testutil.ToFloat64(BridgeSelectionFailures); v != before+1 {
		t.Errorf("expected BridgeSelectionFailures to increment by 1, got %v -> %v", before, v)
	}

	BridgeEndpointsMoved.WithLabelValues("bridge-1").Inc()
}

func TestConferenceMetrics(t *testing.T) {
	before := testutil.ToFloat64(ActiveConferences)
	ActiveConferences.Inc()
	if v := testutil.ToFloat64(ActiveConferences); v != before+1 {
		t.Errorf("expected ActiveConferences to increment, got %v -> %v", before, v)
	}
	ActiveConferences.Dec()

	ConferenceParticipants.WithLabelValues("conf-1").Set(3)
	if v := testutil.ToFloat64(ConferenceParticipants.WithLabelValues("conf-1")); v != 3 {
		t.Errorf("expected ConferenceParticipants 3, got %v", v)
	}

	ParticipantsInviteFailures.WithLabelValues("bridge-not-allocated").Inc()
}

func TestColibriMetrics(t *testing.T) {
	ColibriRequestDuration.WithLabelValues("allocate").Observe(0.25)

	before := testutil.ToFloat64(ColibriSessions)
	ColibriSessions.Inc()
	if v := testutil.ToFloat64(ColibriSessions); v != before+1 {
		t.Errorf("expected ColibriSessions to increment, got %v -> %v", before, v)
	}
}

func TestRelayAndRedistributeMetrics(t *testing.T) {
	before := testutil.ToFloat64(RelaysActive)
	RelaysActive.Inc()
	if v := testutil.ToFloat64(RelaysActive); v != before+1 {
		t.Errorf("expected RelaysActive to increment, got %v -> %v", before, v)
	}

	RedistributionMoves.WithLabelValues("bridge-1", "stress_threshold").Inc()
}

func TestCircuitBreakerMetrics(t *testing.T) {
	CircuitBreakerState.WithLabelValues("bridge-1").Set(1)
	if v := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("bridge-1")); v != 1 {
		t.Errorf("expected CircuitBreakerState 1, got %v", v)
	}

	CircuitBreakerFailures.WithLabelValues("bridge-1").Inc()
}

func TestRateLimitAndBusMetrics(t *testing.T) {
	RateLimitExceeded.WithLabelValues("operator_api", "token_bucket_empty").Inc()

	BusOperationsTotal.WithLabelValues("publish", "success").Inc()
	BusOperationDuration.WithLabelValues("publish").Observe(0.01)
}
