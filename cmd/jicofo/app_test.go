package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsi/jicofo/internal/colibri"
	"github.com/jitsi/jicofo/internal/conference"
	"github.com/jitsi/jicofo/internal/protocol"
	"github.com/jitsi/jicofo/internal/store"
)

// stubColibri is a minimal conference.ColibriManager fake; app_test only
// cares that Shutdown reaches every live orchestrator, not what colibri
// actually does.
type stubColibri struct{}

func (stubColibri) Allocate(ctx context.Context, participantID, statsID string, offer protocol.Offer, region, pinnedVersion string, forceMuteAudio, forceMuteVideo bool) (*colibri.ColibriAllocation, error) {
	return &colibri.ColibriAllocation{SessionID: "s"}, nil
}
func (stubColibri) UpdateParticipant(ctx context.Context, participantID string, transport *protocol.Transport, sources []protocol.Source, suppressLocalBridgeUpdate bool) error {
	return nil
}
func (stubColibri) Mute(ctx context.Context, participantIDs []string, doMute bool, mediaType protocol.MediaType) (bool, error) {
	return false, nil
}
func (stubColibri) RemoveParticipant(ctx context.Context, participantID string) error { return nil }
func (stubColibri) RemoveBridge(bridgeJID string) []string                           { return nil }
func (stubColibri) Expire(ctx context.Context)                                       {}
func (stubColibri) ParticipantsOnBridge(bridgeJID string) []string                   { return nil }
func (stubColibri) BridgeForParticipant(participantID string) (string, bool)         { return "", false }

type stubSender struct{}

func (stubSender) Send(ctx context.Context, participantID string, msg *protocol.ClientMessage) error {
	return nil
}

func newTestStoreForApp() *store.Store {
	factory := func(roomID string, onTerminate func(string)) *conference.Orchestrator {
		return conference.New(roomID, conference.Config{MinParticipants: 1}, stubColibri{}, stubSender{}, onTerminate)
	}
	return store.New(factory, time.Minute, time.Minute)
}

// TestApp_Shutdown_TerminatesLiveConferences verifies that App.Shutdown
// reaches every conference handle registered in the store, not just the
// HTTP/gRPC listeners wrapping it.
func TestApp_Shutdown_TerminatesLiveConferences(t *testing.T) {
	s := newTestStoreForApp()
	o1, _ := s.GetOrCreate("room1")
	o2, _ := s.GetOrCreate("room2")
	require.Equal(t, 2, s.Count())

	app := &App{store: s}

	err := app.Shutdown(context.Background())
	require.NoError(t, err)

	assert.Equal(t, conference.StateTerminated, o1.State())
	assert.Equal(t, conference.StateTerminated, o2.State())
}

// TestApp_Shutdown_NilComponentsAreSkipped verifies Shutdown tolerates a
// partially-constructed App (e.g. one where the bus or redistributor never
// started) without panicking.
func TestApp_Shutdown_NilComponentsAreSkipped(t *testing.T) {
	app := &App{}
	assert.NoError(t, app.Shutdown(context.Background()))
}
