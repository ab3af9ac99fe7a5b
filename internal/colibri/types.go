// Package colibri owns the colibri-level contract for a single conference:
// allocating, updating and removing participants on bridges, maintaining
// the inter-bridge relay mesh, and classifying bridge failures (§4.4).
package colibri

import (
	"github.com/jitsi/jicofo/internal/protocol"
)

// ColibriAllocation is the immutable result of a successful allocation
// against a bridge (§3).
type ColibriAllocation struct {
	FeedbackSources []protocol.Source
	Transport       protocol.Transport
	Region          string
	SessionID       string
	SCTPPort        *int
}

// ParticipantInfo is what the manager tracks per endpoint (§3).
type ParticipantInfo struct {
	ID              string
	StatsID         string
	Sources         []protocol.Source
	Session         *ColibriSession
	AudioForceMuted bool
	VideoForceMuted bool
}

// Relay is one directed half of a bridge-to-bridge relay pair (§3, §4.4).
// Both sides of a pair track the same remote endpoint set; only the fields
// listed here differ by which side is the initiator.
type Relay struct {
	ID               string
	InitiatorFlag    bool
	DTLSRole         string // "active" (initiator) | "passive" (non-initiator)
	ControllingFlag  bool   // ICE controlling, tied to InitiatorFlag
	WebsocketActive  bool   // only the initiator side advertises a websocket candidate
	TransportUpdated bool

	remoteEndpoints map[string]struct{}
}

func newRelay(id string, initiator bool) *Relay {
	dtls := "passive"
	if initiator {
		dtls = "active"
	}
	return &Relay{
		ID:              id,
		InitiatorFlag:   initiator,
		DTLSRole:        dtls,
		ControllingFlag: initiator,
		WebsocketActive: initiator,
		remoteEndpoints: make(map[string]struct{}),
	}
}

func (r *Relay) addEndpoint(id string)    { r.remoteEndpoints[id] = struct{}{} }
func (r *Relay) removeEndpoint(id string) { delete(r.remoteEndpoints, id) }

// Endpoints returns the relay's current remote endpoint set.
func (r *Relay) Endpoints() []string {
	out := make([]string, 0, len(r.remoteEndpoints))
	for id := range r.remoteEndpoints {
		out = append(out, id)
	}
	return out
}

// ColibriSession is the per-bridge child of the manager: one per bridge
// currently holding at least one participant of this conference (§3).
type ColibriSession struct {
	RelayID      string
	BridgeJID    string
	Created      bool
	Participants map[string]*ParticipantInfo
	// Relays is keyed by the remote session's relay id.
	Relays map[string]*Relay
}

func newColibriSession(bridgeJID, relayID string) *ColibriSession {
	return &ColibriSession{
		RelayID:      relayID,
		BridgeJID:    bridgeJID,
		Participants: make(map[string]*ParticipantInfo),
		Relays:       make(map[string]*Relay),
	}
}
