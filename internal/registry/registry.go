// Package registry implements MeetRegistry (§4.8): presence-aggregated
// rosters of brewery-style detector components (SIP gateways, transcribers,
// recorders) and the selection policy used to pick one for a conference.
// Grounded on internal/v1/room/room.go's participant-roster map (single
// mutex, xxxLocked helpers), generalized from a per-room client roster to a
// process-wide, capability-filtered instance roster.
package registry

import (
	"sort"
	"sync"
)

// Capability is a bitset of brewery roles a single detector instance may
// advertise in its presence.
type Capability uint8

const (
	CapSipGateway Capability = 1 << iota
	CapTranscriber
	CapRecorder
)

// Has reports whether c includes want.
func (c Capability) Has(want Capability) bool { return c&want != 0 }

// Instance is one brewery occupant's last-known presence (§4.8).
type Instance struct {
	JID              string
	Region           string
	Capabilities     Capability
	ParticipantCount int
	ShuttingDown     bool
}

// Registry tracks brewery occupants for SIP gateway, transcriber, and
// recorder selection.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*Instance
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{instances: make(map[string]*Instance)}
}

// UpdateFromPresence records or refreshes one instance's advertised state.
func (r *Registry) UpdateFromPresence(jid, region string, caps Capability, participantCount int, shuttingDown bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[jid] = &Instance{
		JID:              jid,
		Region:           region,
		Capabilities:     caps,
		ParticipantCount: participantCount,
		ShuttingDown:     shuttingDown,
	}
}

// Remove drops jid from the roster, e.g. on presence unavailable.
func (r *Registry) Remove(jid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, jid)
}

// Snapshot returns every tracked instance, sorted by jid.
func (r *Registry) Snapshot() []Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, *inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JID < out[j].JID })
	return out
}

// SelectSipGateway picks an instance advertising CapSipGateway (§4.8).
func (r *Registry) SelectSipGateway(preferredRegions []string, localRegion string) (Instance, bool) {
	return r.selectWithCapability(CapSipGateway, preferredRegions, localRegion)
}

// SelectTranscriber picks an instance advertising CapTranscriber (§4.8).
func (r *Registry) SelectTranscriber(preferredRegions []string, localRegion string) (Instance, bool) {
	return r.selectWithCapability(CapTranscriber, preferredRegions, localRegion)
}

// SelectRecorder picks an instance advertising CapRecorder.
func (r *Registry) SelectRecorder(preferredRegions []string, localRegion string) (Instance, bool) {
	return r.selectWithCapability(CapRecorder, preferredRegions, localRegion)
}

// selectWithCapability implements §4.8's selection policy: filter
// graceful-shutdown and capability-missing instances, prefer
// preferredRegions in order then the local region, then pick minimum
// participant count, tying by stable jid order.
func (r *Registry) selectWithCapability(want Capability, preferredRegions []string, localRegion string) (Instance, bool) {
	r.mu.Lock()
	candidates := make([]Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		if inst.ShuttingDown || !inst.Capabilities.Has(want) {
			continue
		}
		candidates = append(candidates, *inst)
	}
	r.mu.Unlock()

	if len(candidates) == 0 {
		return Instance{}, false
	}

	regionTiers := append(append([]string{}, preferredRegions...), localRegion)
	for _, region := range regionTiers {
		if region == "" {
			continue
		}
		if best, ok := pickMinParticipants(candidates, region); ok {
			return best, true
		}
	}
	return pickMinParticipants(candidates, "")
}

// pickMinParticipants returns the candidate with the fewest participants,
// restricted to region when non-empty, tie-broken by jid.
func pickMinParticipants(candidates []Instance, region string) (Instance, bool) {
	var pool []Instance
	if region == "" {
		pool = candidates
	} else {
		for _, c := range candidates {
			if c.Region == region {
				pool = append(pool, c)
			}
		}
	}
	if len(pool) == 0 {
		return Instance{}, false
	}

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].ParticipantCount != pool[j].ParticipantCount {
			return pool[i].ParticipantCount < pool[j].ParticipantCount
		}
		return pool[i].JID < pool[j].JID
	})
	return pool[0], true
}
