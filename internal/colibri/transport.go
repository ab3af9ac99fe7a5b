package colibri

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jitsi/jicofo/internal/metrics"
	"github.com/jitsi/jicofo/internal/protocol"
)

// RawSender delivers a ConferenceModify request to a bridge and returns its
// ConferenceModified response (or protocol.ErrTimeout / a transport error).
// Implemented by whatever carries colibri-v2 stanzas on the wire (XMPP,
// the signaling bus); the manager only depends on this narrow seam.
type RawSender interface {
	Send(ctx context.Context, bridgeJID string, req *protocol.ConferenceModify) (*protocol.ConferenceModified, error)
}

// Transport wraps a RawSender with one circuit breaker per bridge and
// classifies every outcome into the colibri error taxonomy (§7). Grounded
// on pkg/sfu/client.go's gobreaker-wrapped RPC pattern, generalized from a
// single collaborator to one breaker per bridge JID.
type Transport struct {
	raw RawSender

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewTransport builds a Transport over raw.
func NewTransport(raw RawSender) *Transport {
	return &Transport{raw: raw, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (t *Transport) breakerFor(bridgeJID string) *gobreaker.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, ok := t.breakers[bridgeJID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        bridgeJID,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateClosed:
				v = 0
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
		},
	})
	t.breakers[bridgeJID] = cb
	return cb
}

// Send executes req against bridgeJID through that bridge's breaker and
// classifies the outcome per §7.
func (t *Transport) Send(ctx context.Context, bridgeJID string, req *protocol.ConferenceModify) (*protocol.ConferenceModified, error) {
	cb := t.breakerFor(bridgeJID)

	resp, err := cb.Execute(func() (interface{}, error) {
		return t.raw.Send(ctx, bridgeJID, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerFailures.WithLabelValues(bridgeJID).Inc()
			return nil, ErrTimeout
		}
		return nil, classifyTransportError(err)
	}

	modified := resp.(*protocol.ConferenceModified)
	if modified.Error != nil {
		return modified, classifyStanzaError(modified.Error)
	}
	return modified, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, protocol.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrParsing
}

// classifyStanzaError maps a StanzaError's condition (and, where present,
// its application-specific reason) onto the colibri error taxonomy.
// ApplicationReason disambiguates whether an item-not-found refers to the
// conference on the bridge or the bridge being unreachable (§7).
func classifyStanzaError(e *protocol.StanzaError) error {
	switch e.Condition {
	case protocol.ConditionBadRequest:
		return ErrBadRequest
	case protocol.ConditionItemNotFound:
		if e.Reason == protocol.ReasonConferenceNotFound {
			return ErrConferenceNotFound
		}
		return ErrGenericAllocationFailed
	case protocol.ConditionServiceUnavailable:
		if e.Reason == protocol.ReasonGracefulShutdown {
			return ErrBridgeInGracefulShutdown
		}
		return ErrGenericAllocationFailed
	case protocol.ConditionConflict, protocol.ConditionNotAcceptable:
		return ErrBadRequest
	default:
		return ErrGenericAllocationFailed
	}
}
