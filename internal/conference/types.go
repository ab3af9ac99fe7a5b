// Package conference implements the per-room orchestrator (§4.5): participant
// admission, invitation, source bookkeeping, moderation, and the restart and
// single-participant timers. Grounded on internal/v1/room/room.go's
// single-mutex roster pattern (xxxLocked helpers, onEmpty callback, wg for
// background sends), generalized from a WebSocket room to a colibri-backed
// conference.
package conference

import (
	"sort"

	"github.com/jitsi/jicofo/internal/protocol"
)

// Role distinguishes moderation rights within a conference.
type Role int

const (
	RoleParticipant Role = iota
	RoleModerator
	RoleOwner
)

// CanModerate reports whether r may mute/force-admit other participants.
func (r Role) CanModerate() bool { return r >= RoleModerator }

// Participant is one conference member: a stable endpoint identity that
// survives re-invite (only its underlying bridge session id changes, see
// §4.5 "Move endpoint / bridge removal").
type Participant struct {
	ID               string
	StatsID          string
	Region           string
	Role             Role
	Transport        protocol.Transport
	Sources          []protocol.Source
	AudioForceMuted  bool
	VideoForceMuted  bool
	BridgeSessionID  string // detects stale transport-info from the client after a re-invite
	Accepted         bool   // true once session-accept has been processed
}

// SourceSet is an unordered collection of Source scoped to one participant.
type SourceSet []protocol.Source

// SourceMap maps participant id to its SourceSet (§3). The zero value is an
// empty map; callers get an immutable Snapshot rather than the live map.
type SourceMap struct {
	byParticipant map[string]SourceSet
}

// NewSourceMap builds an empty SourceMap.
func NewSourceMap() *SourceMap {
	return &SourceMap{byParticipant: make(map[string]SourceSet)}
}

// Set replaces participantID's source set.
func (m *SourceMap) Set(participantID string, sources SourceSet) {
	m.byParticipant[participantID] = sources
}

// Remove drops participantID's source set entirely (on leave).
func (m *SourceMap) Remove(participantID string) {
	delete(m.byParticipant, participantID)
}

// Get returns participantID's current source set.
func (m *SourceMap) Get(participantID string) SourceSet {
	return m.byParticipant[participantID]
}

// FindOwner returns the participant id owning ssrc, or "" if none.
func (m *SourceMap) FindOwner(ssrc uint32) string {
	for id, set := range m.byParticipant {
		for _, s := range set {
			if s.SSRC == ssrc {
				return id
			}
		}
	}
	return ""
}

// Snapshot returns an immutable copy of the whole map, safe to hand to
// code outside the orchestrator's lock (§3: "exposed only as an immutable
// snapshot").
func (m *SourceMap) Snapshot() map[string]SourceSet {
	out := make(map[string]SourceSet, len(m.byParticipant))
	for id, set := range m.byParticipant {
		cp := make(SourceSet, len(set))
		copy(cp, set)
		out[id] = cp
	}
	return out
}

// AllSources returns every source across every participant, sorted by
// ssrc, used for disjointness checks and full-state re-advertisement.
func (m *SourceMap) AllSources() []protocol.Source {
	var all []protocol.Source
	for _, set := range m.byParticipant {
		all = append(all, set...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SSRC < all[j].SSRC })
	return all
}
