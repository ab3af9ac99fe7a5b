package colibri

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jitsi/jicofo/internal/bridge"
	"github.com/jitsi/jicofo/internal/logging"
	"github.com/jitsi/jicofo/internal/metrics"
	"github.com/jitsi/jicofo/internal/protocol"
)

// ErrDuplicateParticipant is returned by Allocate when the given
// participant id already has an active allocation in this conference.
var ErrDuplicateParticipant = errors.New("colibri: participant already allocated")

// Selector is the subset of bridge.Selector the manager depends on.
type Selector interface {
	Select(inUse []*bridge.Bridge, participantRegion, pinnedVersion string) (*bridge.Bridge, error)
	MarkFaulted(jid string)
	MarkAllocationSucceeded(jid string)
	Get(jid string) (*bridge.Bridge, bool)
}

// Manager owns the colibri-level contract for one conference: the
// sessions-by-bridge map, the participants-by-endpoint map, and the relay
// mesh between sessions (§4.4). One Manager per conference.
type Manager struct {
	conferenceID   string
	selector       Selector
	transport      RawSender
	requestTimeout time.Duration

	mu           sync.Mutex
	sessions     map[string]*ColibriSession // keyed by bridge JID
	participants map[string]*ParticipantInfo
}

// NewManager builds a Manager for one conference.
func NewManager(conferenceID string, selector Selector, transport RawSender, requestTimeout time.Duration) *Manager {
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	return &Manager{
		conferenceID:   conferenceID,
		selector:       selector,
		transport:      transport,
		requestTimeout: requestTimeout,
		sessions:       make(map[string]*ColibriSession),
		participants:   make(map[string]*ParticipantInfo),
	}
}

func (m *Manager) inUseBridgesLocked() []*bridge.Bridge {
	out := make([]*bridge.Bridge, 0, len(m.sessions))
	for jid := range m.sessions {
		if b, ok := m.selector.Get(jid); ok {
			out = append(out, b)
		}
	}
	return out
}

// Allocate runs the allocation protocol for one participant (§4.4):
// selection, get-or-create session, relay-mesh bootstrap for a fresh
// session, the colibri round-trip, and reconciliation of the result.
func (m *Manager) Allocate(ctx context.Context, participantID, statsID string, offer protocol.Offer, region, pinnedVersion string, forceMuteAudio, forceMuteVideo bool) (*ColibriAllocation, error) {
	m.mu.Lock()
	if _, exists := m.participants[participantID]; exists {
		m.mu.Unlock()
		return nil, ErrDuplicateParticipant
	}

	b, err := m.selector.Select(m.inUseBridgesLocked(), region, pinnedVersion)
	if err != nil {
		m.mu.Unlock()
		return nil, ErrBridgeSelectionFailed
	}

	session, exists := m.sessions[b.JID]
	wasNewSession := !exists
	if wasNewSession {
		session = newColibriSession(b.JID, b.JID)
		m.sessions[b.JID] = session
	}

	req := &protocol.ConferenceModify{
		ID:         protocol.NewStanzaID(),
		Type:       protocol.IQSet,
		Conference: m.conferenceID,
		Create:     !session.Created,
		Endpoints: []protocol.EndpointElement{{
			ID:             participantID,
			StatsID:        statsID,
			Create:         true,
			ForceMuteAudio: forceMuteAudio,
			ForceMuteVideo: forceMuteVideo,
			Sources:        offer.Sources,
			Transport:      offer.Transport,
		}},
	}

	info := &ParticipantInfo{
		ID:              participantID,
		StatsID:         statsID,
		Sources:         offer.Sources,
		Session:         session,
		AudioForceMuted: forceMuteAudio,
		VideoForceMuted: forceMuteVideo,
	}
	m.participants[participantID] = info
	session.Participants[participantID] = info

	var secondaryUpdates []func(context.Context)
	if !session.Created {
		// Fresh session: open a relay pair to every other existing session.
		// The later-created session is the deterministic initiator (§9 open
		// question: relay initiator = session created later).
		for otherJID, other := range m.sessions {
			if otherJID == b.JID {
				continue
			}
			ours := newRelay(other.RelayID, true)
			theirs := newRelay(session.RelayID, false)
			for id := range other.Participants {
				ours.addEndpoint(id)
			}
			session.Relays[other.RelayID] = ours
			other.Relays[session.RelayID] = theirs

			req.Relays = append(req.Relays, protocol.RelayElement{
				ID:        other.RelayID,
				Initiator: true,
				Create:    true,
				Endpoints: ours.Endpoints(),
				Transport: protocol.Transport{Setup: ours.DTLSRole},
			})

			otherJIDCopy := otherJID
			sessionRelayID := session.RelayID
			endpointID := participantID
			secondaryUpdates = append(secondaryUpdates, func(ctx context.Context) {
				m.sendRelayEndpointUpdate(ctx, otherJIDCopy, sessionRelayID, []string{endpointID}, false)
			})
		}
	} else {
		// Existing session: tell every other session to add this endpoint
		// as a remote endpoint on its relay to this bridge.
		for otherJID, other := range session.Relays {
			_ = other
			jidCopy := otherJID
			endpointID := participantID
			sessionRelayID := session.RelayID
			secondaryUpdates = append(secondaryUpdates, func(ctx context.Context) {
				m.sendRelayEndpointUpdate(ctx, jidCopy, sessionRelayID, []string{endpointID}, false)
			})
		}
	}
	m.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	modified, err := m.transport.Send(sendCtx, b.JID, req)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		delete(m.participants, participantID)
		delete(session.Participants, participantID)
		if len(session.Participants) == 0 {
			delete(m.sessions, b.JID)
		}
		if IsBridgeFaulting(err) {
			m.selector.MarkFaulted(b.JID)
		}
		logging.Warn(ctx, "colibri: allocation failed", zap.String("bridge_jid", b.JID), zap.String("participant_id", participantID), zap.Error(err))
		return nil, err
	}

	m.selector.MarkAllocationSucceeded(b.JID)
	session.Created = true

	var allocation ColibriAllocation
	if len(modified.Endpoints) > 0 {
		ep := modified.Endpoints[0]
		allocation = ColibriAllocation{
			FeedbackSources: ep.FeedbackSources,
			Transport:       ep.Transport,
			Region:          region,
			SessionID:       ep.SessionID,
			SCTPPort:        ep.Transport.SctpPort,
		}
	}

	for _, rm := range modified.Relays {
		relay, ok := session.Relays[rm.ID]
		if !ok {
			continue
		}
		normalized, err := applyRelayTransport(relay, rm.Transport)
		if err != nil {
			logging.Warn(ctx, "colibri: relay transport rejected, update aborted",
				zap.String("bridge_jid", b.JID), zap.String("relay_id", rm.ID), zap.Error(err))
			continue
		}
		otherJID, remoteRelayID := rm.ID, session.RelayID
		secondaryUpdates = append(secondaryUpdates, func(ctx context.Context) {
			m.sendRelayTransportUpdate(ctx, otherJID, remoteRelayID, normalized)
		})
	}

	for _, send := range secondaryUpdates {
		go send(context.Background())
	}

	if wasNewSession {
		metrics.ColibriSessions.Inc()
	}
	return &allocation, nil
}

// applyRelayTransport validates a bridge's proposed relay transport and
// pins the concrete DTLS/ICE role onto it (§4.4): a freshly offered relay
// transport must propose setup=actpass; anything else is rejected outright.
// The manager then rewrites setup to the relay's pinned role and, on the
// non-initiator side, strips the websocket candidate — only the initiator
// side ever advertises one.
func applyRelayTransport(relay *Relay, t protocol.Transport) (protocol.Transport, error) {
	if t.Setup != "actpass" {
		return protocol.Transport{}, fmt.Errorf("relay %s: bridge proposed setup=%q, want actpass", relay.ID, t.Setup)
	}
	t.Setup = relay.DTLSRole
	if !relay.InitiatorFlag {
		t.WebSocket = ""
	}
	relay.TransportUpdated = true
	return t, nil
}

// sendRelayTransportUpdate forwards the concrete transport pinned on one
// side of a relay pair to the bridge holding the other side, so it can
// complete its half of the DTLS/ICE handshake.
func (m *Manager) sendRelayTransportUpdate(ctx context.Context, bridgeJID, relayID string, transport protocol.Transport) {
	req := &protocol.ConferenceModify{
		ID:         protocol.NewStanzaID(),
		Type:       protocol.IQSet,
		Conference: m.conferenceID,
		Relays: []protocol.RelayElement{{
			ID:        relayID,
			Transport: transport,
		}},
	}
	sendCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	if _, err := m.transport.Send(sendCtx, bridgeJID, req); err != nil {
		logging.Warn(ctx, "colibri: relay transport update failed", zap.String("bridge_jid", bridgeJID), zap.Error(err))
	}
}

func (m *Manager) sendRelayEndpointUpdate(ctx context.Context, bridgeJID, relayID string, endpointIDs []string, expire bool) {
	req := &protocol.ConferenceModify{
		ID:         protocol.NewStanzaID(),
		Type:       protocol.IQSet,
		Conference: m.conferenceID,
		Relays: []protocol.RelayElement{{
			ID:        relayID,
			Endpoints: endpointIDs,
			Expire:    expire,
		}},
	}
	sendCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	if _, err := m.transport.Send(sendCtx, bridgeJID, req); err != nil {
		logging.Warn(ctx, "colibri: relay endpoint update failed", zap.String("bridge_jid", bridgeJID), zap.Error(err))
	}
}

// UpdateParticipant pushes new transport and/or sources for an existing
// participant to its bridge, unless suppressLocalBridgeUpdate is set (used
// when the update originated from the bridge itself).
func (m *Manager) UpdateParticipant(ctx context.Context, participantID string, transport *protocol.Transport, sources []protocol.Source, suppressLocalBridgeUpdate bool) error {
	m.mu.Lock()
	info, ok := m.participants[participantID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if sources != nil {
		info.Sources = sources
	}
	session := info.Session
	bridgeJID := session.BridgeJID
	m.mu.Unlock()

	if suppressLocalBridgeUpdate {
		return nil
	}

	ep := protocol.EndpointElement{ID: participantID, Sources: sources}
	if transport != nil {
		ep.Transport = *transport
	}
	req := &protocol.ConferenceModify{
		ID:         protocol.NewStanzaID(),
		Type:       protocol.IQSet,
		Conference: m.conferenceID,
		Endpoints:  []protocol.EndpointElement{ep},
	}
	sendCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	_, err := m.transport.Send(sendCtx, bridgeJID, req)
	if err != nil && IsBridgeFaulting(err) {
		m.selector.MarkFaulted(bridgeJID)
	}
	return err
}

// Mute applies a force-mute directive to every listed participant and
// pushes it to each affected bridge session (§4.4, §4.5). Returns true if
// any participant's mute state actually changed.
func (m *Manager) Mute(ctx context.Context, participantIDs []string, doMute bool, mediaType protocol.MediaType) (bool, error) {
	m.mu.Lock()
	bySession := make(map[*ColibriSession][]string)
	changed := false
	for _, id := range participantIDs {
		info, ok := m.participants[id]
		if !ok {
			continue
		}
		var before bool
		switch mediaType {
		case protocol.MediaAudio:
			before = info.AudioForceMuted
			info.AudioForceMuted = doMute
		case protocol.MediaVideo:
			before = info.VideoForceMuted
			info.VideoForceMuted = doMute
		}
		if before != doMute {
			changed = true
		}
		bySession[info.Session] = append(bySession[info.Session], id)
	}
	m.mu.Unlock()

	var firstErr error
	for session, ids := range bySession {
		eps := make([]protocol.EndpointElement, 0, len(ids))
		for _, id := range ids {
			ep := protocol.EndpointElement{ID: id}
			if mediaType == protocol.MediaAudio {
				ep.ForceMuteAudio = doMute
			} else {
				ep.ForceMuteVideo = doMute
			}
			eps = append(eps, ep)
		}
		req := &protocol.ConferenceModify{
			ID:         protocol.NewStanzaID(),
			Type:       protocol.IQSet,
			Conference: m.conferenceID,
			Endpoints:  eps,
		}
		sendCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
		_, err := m.transport.Send(sendCtx, session.BridgeJID, req)
		cancel()
		if err != nil {
			if IsBridgeFaulting(err) {
				m.selector.MarkFaulted(session.BridgeJID)
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return changed, firstErr
}

// RemoveParticipant drops a participant and expires it on its bridge.
// Idempotent: a second call for an already-removed participant is a no-op
// and emits no further bridge traffic.
func (m *Manager) RemoveParticipant(ctx context.Context, participantID string) error {
	m.mu.Lock()
	info, ok := m.participants[participantID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	session := info.Session
	delete(m.participants, participantID)
	delete(session.Participants, participantID)

	sessionEmpty := len(session.Participants) == 0
	var relayTargets []string
	if sessionEmpty {
		for remoteJID := range session.Relays {
			relayTargets = append(relayTargets, remoteJID)
		}
		delete(m.sessions, session.BridgeJID)
		for _, remote := range m.sessions {
			delete(remote.Relays, session.RelayID)
		}
	} else {
		for _, relay := range session.Relays {
			relay.removeEndpoint(participantID)
		}
	}
	bridgeJID := session.BridgeJID
	m.mu.Unlock()

	req := &protocol.ConferenceModify{
		ID:         protocol.NewStanzaID(),
		Type:       protocol.IQSet,
		Conference: m.conferenceID,
		Expire:     sessionEmpty,
		Endpoints:  []protocol.EndpointElement{{ID: participantID, Expire: true}},
	}
	sendCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	_, err := m.transport.Send(sendCtx, bridgeJID, req)
	cancel()
	if err != nil {
		logging.Warn(ctx, "colibri: remove participant request failed", zap.String("bridge_jid", bridgeJID), zap.Error(err))
	}

	for _, remoteJID := range relayTargets {
		m.sendRelayEndpointUpdate(context.Background(), remoteJID, session.RelayID, nil, true)
	}

	if sessionEmpty {
		metrics.ColibriSessions.Dec()
	}
	return nil
}

func (m *Manager) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// RemoveBridge drops the session for bridgeJID (e.g. after it's marked
// faulty) and returns the ids of its participants so the caller can
// re-invite them (§4.4, §7).
func (m *Manager) RemoveBridge(bridgeJID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[bridgeJID]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(session.Participants))
	for id := range session.Participants {
		ids = append(ids, id)
		delete(m.participants, id)
	}
	sort.Strings(ids)

	delete(m.sessions, bridgeJID)
	for _, remote := range m.sessions {
		delete(remote.Relays, session.RelayID)
	}

	metrics.ColibriSessions.Dec()
	return ids
}

// Expire tears down every session in the conference, best-effort.
func (m *Manager) Expire(ctx context.Context) {
	m.mu.Lock()
	jids := make([]string, 0, len(m.sessions))
	for jid := range m.sessions {
		jids = append(jids, jid)
	}
	m.sessions = make(map[string]*ColibriSession)
	m.participants = make(map[string]*ParticipantInfo)
	m.mu.Unlock()

	for _, jid := range jids {
		req := &protocol.ConferenceModify{
			ID:         protocol.NewStanzaID(),
			Type:       protocol.IQSet,
			Conference: m.conferenceID,
			Expire:     true,
		}
		sendCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
		_, err := m.transport.Send(sendCtx, jid, req)
		cancel()
		if err != nil {
			logging.Warn(ctx, "colibri: expire failed", zap.String("bridge_jid", jid), zap.Error(err))
		}
	}
	metrics.ColibriSessions.Sub(float64(len(jids)))
}

// SessionCount returns the number of distinct bridges currently holding at
// least one participant of this conference (§8, "session arity" invariant).
func (m *Manager) SessionCount() int {
	return m.sessionCount()
}

// RelaysBetween reports whether sessions on bridges a and b hold a relay
// pair pointing at each other (§8, "relay completeness" invariant).
func (m *Manager) RelaysBetween(bridgeA, bridgeB string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sa, ok := m.sessions[bridgeA]
	if !ok {
		return false
	}
	sb, ok := m.sessions[bridgeB]
	if !ok {
		return false
	}
	_, aHasB := sa.Relays[sb.RelayID]
	_, bHasA := sb.Relays[sa.RelayID]
	return aHasB && bHasA
}

// RelayRole reports the pinned DTLS setup role and websocket-advertising
// state of the relay bridgeA holds towards bridgeB, for test inspection and
// operator introspection of §4.4's transport exchange.
func (m *Manager) RelayRole(bridgeA, bridgeB string) (dtlsRole string, advertisesWebsocket, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sa, exists := m.sessions[bridgeA]
	if !exists {
		return "", false, false
	}
	sb, exists := m.sessions[bridgeB]
	if !exists {
		return "", false, false
	}
	relay, exists := sa.Relays[sb.RelayID]
	if !exists {
		return "", false, false
	}
	return relay.DTLSRole, relay.WebsocketActive, true
}

// ParticipantsOnBridge lists the ids of every participant of this
// conference currently allocated on bridgeJID, for the load redistributor
// (§4.3 "ConferencesOnBridge").
func (m *Manager) ParticipantsOnBridge(bridgeJID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[bridgeJID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(session.Participants))
	for id := range session.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BridgeForParticipant reports which bridge JID currently holds
// participantID, for on-demand single-endpoint moves (§6 /move-endpoint).
func (m *Manager) BridgeForParticipant(participantID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.participants[participantID]
	if !ok || info.Session == nil {
		return "", false
	}
	return info.Session.BridgeJID, true
}
