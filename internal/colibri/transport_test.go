package colibri

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsi/jicofo/internal/protocol"
)

type stubRawSender struct {
	resp *protocol.ConferenceModified
	err  error
}

func (s *stubRawSender) Send(ctx context.Context, bridgeJID string, req *protocol.ConferenceModify) (*protocol.ConferenceModified, error) {
	return s.resp, s.err
}

func TestTransport_Send_Success(t *testing.T) {
	raw := &stubRawSender{resp: &protocol.ConferenceModified{Type: protocol.IQResult}}
	tr := NewTransport(raw)

	resp, err := tr.Send(context.Background(), "b1", &protocol.ConferenceModify{})
	require.NoError(t, err)
	assert.Equal(t, protocol.IQResult, resp.Type)
}

func TestTransport_Send_ClassifiesTimeout(t *testing.T) {
	raw := &stubRawSender{err: protocol.ErrTimeout}
	tr := NewTransport(raw)

	_, err := tr.Send(context.Background(), "b1", &protocol.ConferenceModify{})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestTransport_Send_ClassifiesStanzaErrors(t *testing.T) {
	cases := []struct {
		name string
		in   *protocol.StanzaError
		want error
	}{
		{"bad-request", &protocol.StanzaError{Condition: protocol.ConditionBadRequest}, ErrBadRequest},
		{"conference-not-found", &protocol.StanzaError{Condition: protocol.ConditionItemNotFound, Reason: protocol.ReasonConferenceNotFound}, ErrConferenceNotFound},
		{"item-not-found-unknown-reason", &protocol.StanzaError{Condition: protocol.ConditionItemNotFound}, ErrGenericAllocationFailed},
		{"graceful-shutdown", &protocol.StanzaError{Condition: protocol.ConditionServiceUnavailable, Reason: protocol.ReasonGracefulShutdown}, ErrBridgeInGracefulShutdown},
		{"service-unavailable-unknown", &protocol.StanzaError{Condition: protocol.ConditionServiceUnavailable}, ErrGenericAllocationFailed},
		{"conflict", &protocol.StanzaError{Condition: protocol.ConditionConflict}, ErrBadRequest},
		{"unknown-condition", &protocol.StanzaError{Condition: "something-else"}, ErrGenericAllocationFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := &stubRawSender{resp: &protocol.ConferenceModified{Error: tc.in}}
			tr := NewTransport(raw)
			_, err := tr.Send(context.Background(), "b1", &protocol.ConferenceModify{})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestIsBridgeFaulting(t *testing.T) {
	assert.True(t, IsBridgeFaulting(ErrTimeout))
	assert.True(t, IsBridgeFaulting(ErrParsing))
	assert.True(t, IsBridgeFaulting(ErrGenericAllocationFailed))
	assert.False(t, IsBridgeFaulting(ErrBadRequest))
	assert.False(t, IsBridgeFaulting(errors.New("unrelated")))
}
