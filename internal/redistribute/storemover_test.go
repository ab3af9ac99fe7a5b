package redistribute

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsi/jicofo/internal/colibri"
	"github.com/jitsi/jicofo/internal/conference"
	"github.com/jitsi/jicofo/internal/protocol"
)

// stubColibri is a minimal conference.ColibriManager fake that tracks which
// bridge each participant is "on" so ConferencesOnBridge/MoveParticipant
// have something real to report against.
type stubColibri struct {
	mu       sync.Mutex
	bridgeOf map[string]string
	moves    []string
}

func newStubColibri() *stubColibri {
	return &stubColibri{bridgeOf: make(map[string]string)}
}

func (s *stubColibri) Allocate(ctx context.Context, participantID, statsID string, offer protocol.Offer, region, pinnedVersion string, forceMuteAudio, forceMuteVideo bool) (*colibri.ColibriAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bridgeOf[participantID] = "bridge1"
	s.moves = append(s.moves, participantID)
	return &colibri.ColibriAllocation{SessionID: "sess-" + participantID}, nil
}
func (s *stubColibri) UpdateParticipant(ctx context.Context, participantID string, transport *protocol.Transport, sources []protocol.Source, suppressLocalBridgeUpdate bool) error {
	return nil
}
func (s *stubColibri) Mute(ctx context.Context, participantIDs []string, doMute bool, mediaType protocol.MediaType) (bool, error) {
	return true, nil
}
func (s *stubColibri) RemoveParticipant(ctx context.Context, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bridgeOf, participantID)
	return nil
}
func (s *stubColibri) RemoveBridge(bridgeJID string) []string { return nil }
func (s *stubColibri) Expire(ctx context.Context)             {}
func (s *stubColibri) ParticipantsOnBridge(bridgeJID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, b := range s.bridgeOf {
		if b == bridgeJID {
			ids = append(ids, id)
		}
	}
	return ids
}
func (s *stubColibri) BridgeForParticipant(participantID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bridgeOf[participantID]
	return b, ok
}

type stubSender struct{}

func (stubSender) Send(ctx context.Context, participantID string, msg *protocol.ClientMessage) error {
	return nil
}

type fakeLookup struct {
	rooms map[string]*conference.Orchestrator
}

func (f *fakeLookup) Get(roomID string) (*conference.Orchestrator, bool) {
	o, ok := f.rooms[roomID]
	return o, ok
}
func (f *fakeLookup) All() []*conference.Orchestrator {
	out := make([]*conference.Orchestrator, 0, len(f.rooms))
	for _, o := range f.rooms {
		out = append(out, o)
	}
	return out
}

func newTestRoom(t *testing.T, roomID string, stub *stubColibri, participantIDs ...string) *conference.Orchestrator {
	t.Helper()
	o := conference.New(roomID, conference.Config{MinParticipants: 1}, stub, stubSender{}, nil)
	for i, id := range participantIDs {
		role := conference.RoleParticipant
		if i == 0 {
			role = conference.RoleOwner
		}
		require.NoError(t, o.AdmitParticipant(context.Background(), id, id+"-stats", "eu", role))
	}
	return o
}

func TestStoreMover_ConferencesOnBridge_AggregatesAcrossRooms(t *testing.T) {
	stub := newStubColibri()
	roomA := newTestRoom(t, "roomA", stub, "a1", "a2")
	roomB := newTestRoom(t, "roomB", stub, "b1")

	mover := NewStoreMover(&fakeLookup{rooms: map[string]*conference.Orchestrator{"roomA": roomA, "roomB": roomB}})

	usages := mover.ConferencesOnBridge("bridge1")
	assert.Len(t, usages, 2)

	total := 0
	for _, u := range usages {
		total += u.EndpointCount
	}
	assert.Equal(t, 3, total)
}

func TestStoreMover_MoveEndpoint_UnknownConferenceErrors(t *testing.T) {
	mover := NewStoreMover(&fakeLookup{rooms: map[string]*conference.Orchestrator{}})
	err := mover.MoveEndpoint(context.Background(), "ghost", "ep1", "")
	assert.Error(t, err)
}

func TestStoreMover_MoveEndpoints_MovesUpToN(t *testing.T) {
	stub := newStubColibri()
	room := newTestRoom(t, "roomA", stub, "a1", "a2", "a3")

	mover := NewStoreMover(&fakeLookup{rooms: map[string]*conference.Orchestrator{"roomA": room}})

	moved, err := mover.MoveEndpoints(context.Background(), "roomA", "bridge1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
}
