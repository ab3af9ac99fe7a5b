package colibri

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsi/jicofo/internal/bridge"
	"github.com/jitsi/jicofo/internal/protocol"
)

// fakeSelector is a minimal bridge.Selector stand-in: always returns the
// least-loaded bridge from a fixed fleet, ignoring region/version hints.
type fakeSelector struct {
	mu       sync.Mutex
	bridges  map[string]*bridge.Bridge
	faulted  map[string]bool
}

func newFakeSelector(jids ...string) *fakeSelector {
	s := &fakeSelector{bridges: make(map[string]*bridge.Bridge), faulted: make(map[string]bool)}
	for _, jid := range jids {
		b := bridge.NewBridge(jid)
		b.UpdateFromPresence(0.1, "", jid, "", false, false)
		s.bridges[jid] = b
	}
	return s
}

func (s *fakeSelector) Select(inUse []*bridge.Bridge, region, pinnedVersion string) (*bridge.Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(inUse) > 0 {
		for _, b := range inUse {
			if !s.faulted[b.JID] {
				return b, nil
			}
		}
	}
	for _, jid := range []string{"b1", "b2", "b3"} {
		if b, ok := s.bridges[jid]; ok && !s.faulted[jid] {
			return b, nil
		}
	}
	return nil, bridge.ErrSelectionFailed
}

func (s *fakeSelector) MarkFaulted(jid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faulted[jid] = true
}

func (s *fakeSelector) MarkAllocationSucceeded(jid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faulted[jid] = false
}

func (s *fakeSelector) Get(jid string) (*bridge.Bridge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bridges[jid]
	return b, ok
}

// fakeRawSender simulates a bridge accepting every request, optionally
// failing for specific bridge JIDs.
type fakeRawSender struct {
	mu             sync.Mutex
	fail           map[string]error
	sent           []*protocol.ConferenceModify
	relaySetup     string // what a relay-create response proposes; "" defaults to "actpass"
}

func newFakeRawSender() *fakeRawSender {
	return &fakeRawSender{fail: make(map[string]error)}
}

func (f *fakeRawSender) Send(ctx context.Context, bridgeJID string, req *protocol.ConferenceModify) (*protocol.ConferenceModified, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	err := f.fail[bridgeJID]
	relaySetup := f.relaySetup
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}

	resp := &protocol.ConferenceModified{ID: req.ID, Type: protocol.IQResult}
	for _, ep := range req.Endpoints {
		resp.Endpoints = append(resp.Endpoints, protocol.EndpointModifiedElement{
			ID:        ep.ID,
			Transport: ep.Transport,
			SessionID: bridgeJID,
		})
	}
	for _, rl := range req.Relays {
		if !rl.Create {
			continue
		}
		setup := relaySetup
		if setup == "" {
			setup = "actpass"
		}
		resp.Relays = append(resp.Relays, protocol.RelayModifiedElement{
			ID:        rl.ID,
			Transport: protocol.Transport{Setup: setup, WebSocket: "wss://" + bridgeJID + "/colibri-ws/" + rl.ID},
		})
	}
	return resp, nil
}

func offerWithSource(ssrc uint32, owner string) protocol.Offer {
	return protocol.Offer{
		Sources: []protocol.Source{{SSRC: ssrc, MediaType: protocol.MediaAudio, Owner: owner}},
		Transport: protocol.Transport{
			UFrag: "ufrag", Pwd: "pwd",
		},
	}
}

func TestAllocate_SingleBridgeTwoParticipants(t *testing.T) {
	selector := newFakeSelector("b1")
	raw := newFakeRawSender()
	m := NewManager("room1", selector, raw, time.Second)

	ctx := context.Background()
	_, err := m.Allocate(ctx, "p1", "stats1", offerWithSource(1, "p1"), "R1", "", false, false)
	require.NoError(t, err)
	_, err = m.Allocate(ctx, "p2", "stats2", offerWithSource(2, "p2"), "R1", "", false, false)
	require.NoError(t, err)

	assert.Equal(t, 1, m.SessionCount())
	assert.False(t, m.RelaysBetween("b1", "b2"))
}

func TestAllocate_DuplicateParticipantRejected(t *testing.T) {
	selector := newFakeSelector("b1")
	raw := newFakeRawSender()
	m := NewManager("room1", selector, raw, time.Second)

	ctx := context.Background()
	_, err := m.Allocate(ctx, "p1", "stats1", offerWithSource(1, "p1"), "", "", false, false)
	require.NoError(t, err)

	_, err = m.Allocate(ctx, "p1", "stats1", offerWithSource(1, "p1"), "", "", false, false)
	assert.ErrorIs(t, err, ErrDuplicateParticipant)
}

func TestAllocate_TwoBridgesCreatesRelay(t *testing.T) {
	selector := newFakeSelector("b1")
	raw := newFakeRawSender()
	m := NewManager("room1", selector, raw, time.Second)
	ctx := context.Background()

	_, err := m.Allocate(ctx, "p1", "stats1", offerWithSource(1, "p1"), "R1", "", false, false)
	require.NoError(t, err)

	selector.mu.Lock()
	b2 := bridge.NewBridge("b2")
	b2.UpdateFromPresence(0.1, "R2", "b2", "", false, false)
	selector.bridges["b2"] = b2
	selector.faulted["b1"] = true // force selection of b2 for p2
	selector.mu.Unlock()

	_, err = m.Allocate(ctx, "p2", "stats2", offerWithSource(2, "p2"), "R2", "", false, false)
	require.NoError(t, err)

	assert.Equal(t, 2, m.SessionCount())
	assert.True(t, m.RelaysBetween("b1", "b2"))
}

func TestAllocate_RelayTransportPinsRolesAndStripsWebsocket(t *testing.T) {
	selector := newFakeSelector("b1")
	raw := newFakeRawSender()
	m := NewManager("room1", selector, raw, time.Second)
	ctx := context.Background()

	_, err := m.Allocate(ctx, "p1", "stats1", offerWithSource(1, "p1"), "R1", "", false, false)
	require.NoError(t, err)

	selector.mu.Lock()
	b2 := bridge.NewBridge("b2")
	b2.UpdateFromPresence(0.1, "R2", "b2", "", false, false)
	selector.bridges["b2"] = b2
	selector.faulted["b1"] = true
	selector.mu.Unlock()

	_, err = m.Allocate(ctx, "p2", "stats2", offerWithSource(2, "p2"), "R2", "", false, false)
	require.NoError(t, err)

	// b2's session was created later, so it is the initiator: active DTLS
	// setup and the only side advertising a websocket candidate (§8 scenario
	// 2: "one side has dtls setup=active, the other passive; only one side
	// advertises a websocket").
	role, wsActive, ok := m.RelayRole("b2", "b1")
	require.True(t, ok)
	assert.Equal(t, "active", role)
	assert.True(t, wsActive)

	role, wsActive, ok = m.RelayRole("b1", "b2")
	require.True(t, ok)
	assert.Equal(t, "passive", role)
	assert.False(t, wsActive)
}

func TestAllocate_RelayTransportRejectedWhenNotActpass(t *testing.T) {
	selector := newFakeSelector("b1")
	raw := newFakeRawSender()
	raw.relaySetup = "active" // bridge misbehaves: should propose actpass on a fresh relay
	m := NewManager("room1", selector, raw, time.Second)
	ctx := context.Background()

	_, err := m.Allocate(ctx, "p1", "stats1", offerWithSource(1, "p1"), "R1", "", false, false)
	require.NoError(t, err)

	selector.mu.Lock()
	b2 := bridge.NewBridge("b2")
	b2.UpdateFromPresence(0.1, "R2", "b2", "", false, false)
	selector.bridges["b2"] = b2
	selector.faulted["b1"] = true
	selector.mu.Unlock()

	_, err = m.Allocate(ctx, "p2", "stats2", offerWithSource(2, "p2"), "R2", "", false, false)
	require.NoError(t, err)

	// The relay pair still exists (endpoint mesh succeeded), but the
	// rejected transport was never pinned.
	assert.True(t, m.RelaysBetween("b1", "b2"))
	_, _, ok := m.RelayRole("b2", "b1")
	assert.True(t, ok)
}

func TestAllocate_BridgeFailureMarksFaultedAndRollsBack(t *testing.T) {
	selector := newFakeSelector("b1")
	raw := newFakeRawSender()
	raw.fail["b1"] = ErrTimeout
	m := NewManager("room1", selector, raw, time.Second)

	_, err := m.Allocate(context.Background(), "p1", "stats1", offerWithSource(1, "p1"), "", "", false, false)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, m.SessionCount())

	selector.mu.Lock()
	faulted := selector.faulted["b1"]
	selector.mu.Unlock()
	assert.True(t, faulted)
}

func TestRemoveParticipant_Idempotent(t *testing.T) {
	selector := newFakeSelector("b1")
	raw := newFakeRawSender()
	m := NewManager("room1", selector, raw, time.Second)
	ctx := context.Background()

	_, err := m.Allocate(ctx, "p1", "stats1", offerWithSource(1, "p1"), "", "", false, false)
	require.NoError(t, err)

	require.NoError(t, m.RemoveParticipant(ctx, "p1"))
	assert.Equal(t, 0, m.SessionCount())

	sentBefore := len(raw.sent)
	require.NoError(t, m.RemoveParticipant(ctx, "p1"))
	assert.Equal(t, sentBefore, len(raw.sent), "second removal must not emit further bridge traffic")
}

func TestRemoveBridge_ReturnsParticipantsForReinvite(t *testing.T) {
	selector := newFakeSelector("b1")
	raw := newFakeRawSender()
	m := NewManager("room1", selector, raw, time.Second)
	ctx := context.Background()

	_, err := m.Allocate(ctx, "p1", "stats1", offerWithSource(1, "p1"), "", "", false, false)
	require.NoError(t, err)
	_, err = m.Allocate(ctx, "p2", "stats2", offerWithSource(2, "p2"), "", "", false, false)
	require.NoError(t, err)

	ids := m.RemoveBridge("b1")
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids)
	assert.Equal(t, 0, m.SessionCount())
}

func TestMute_ChangesForceMuteAndReportsChanged(t *testing.T) {
	selector := newFakeSelector("b1")
	raw := newFakeRawSender()
	m := NewManager("room1", selector, raw, time.Second)
	ctx := context.Background()

	_, err := m.Allocate(ctx, "p1", "stats1", offerWithSource(1, "p1"), "", "", false, false)
	require.NoError(t, err)

	changed, err := m.Mute(ctx, []string{"p1"}, true, protocol.MediaAudio)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = m.Mute(ctx, []string{"p1"}, true, protocol.MediaAudio)
	require.NoError(t, err)
	assert.False(t, changed, "re-applying the same mute state should report no change")
}
