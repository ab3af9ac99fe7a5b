package bridge

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jitsi/jicofo/internal/logging"
	"github.com/jitsi/jicofo/internal/metrics"
)

// PresenceStats is the subset of a bridge's brewery presence payload the
// selector consumes (§9, "presence-based discovery").
type PresenceStats struct {
	Stress       float64
	Region       string
	RelayID      string
	Version      string
	Drain        bool
	ShuttingDown bool
}

// Selector maintains the known bridge fleet and implements the selection
// and fleet-health queries the conference orchestrator and bridge-session
// manager depend on (§4.2). One Selector per jicofo instance.
type Selector struct {
	mu sync.Mutex

	overloadThreshold float64
	bridges           map[string]*Bridge
}

// NewSelector builds an empty fleet tracker. overloadThreshold is the
// correctedStress value at or above which a bridge is considered
// overloaded (bridge.load-redistribution.stressThreshold, §6).
func NewSelector(overloadThreshold float64) *Selector {
	if overloadThreshold <= 0 {
		overloadThreshold = 0.8
	}
	return &Selector{
		overloadThreshold: overloadThreshold,
		bridges:           make(map[string]*Bridge),
	}
}

// UpdateFromPresence upserts the bridge identified by jid and records its
// latest presence stats, marking it operational unless it is shutting down.
func (s *Selector) UpdateFromPresence(jid string, stats PresenceStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bridges[jid]
	if !ok {
		b = NewBridge(jid)
		s.bridges[jid] = b
	}
	b.UpdateFromPresence(stats.Stress, stats.Region, stats.RelayID, stats.Version, stats.Drain, stats.ShuttingDown)
	metrics.BridgeStress.WithLabelValues(jid).Set(stats.Stress)
	if b.IsOperational() {
		metrics.BridgeOperational.WithLabelValues(jid).Set(1)
	} else {
		metrics.BridgeOperational.WithLabelValues(jid).Set(0)
	}
}

// Remove drops a bridge from the fleet, e.g. after its presence expires
// entirely from the brewery room.
func (s *Selector) Remove(jid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bridges, jid)
	metrics.BridgeOperational.DeleteLabelValues(jid)
	metrics.BridgeStress.DeleteLabelValues(jid)
}

// MarkFaulted disables a bridge after a hard colibri failure against it
// (timeout, parse error, unknown condition) per §7's BridgeSelectionFailed
// propagation policy.
func (s *Selector) MarkFaulted(jid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bridges[jid]; ok {
		b.SetOperational(false)
		metrics.BridgeOperational.WithLabelValues(jid).Set(0)
	}
}

// MarkAllocationSucceeded restores a bridge to operational after a
// successful allocation, even if it had previously faulted.
func (s *Selector) MarkAllocationSucceeded(jid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bridges[jid]; ok {
		b.MarkAllocationSucceeded()
		metrics.BridgeOperational.WithLabelValues(jid).Set(1)
	}
}

func (s *Selector) candidates(pinnedVersion string) []*Bridge {
	out := make([]*Bridge, 0, len(s.bridges))
	for _, b := range s.bridges {
		if !b.IsOperational() || b.IsDraining() {
			continue
		}
		if pinnedVersion != "" && b.Version != pinnedVersion {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Select picks a bridge for a new or migrating participant. inUse lists
// bridges already hosting this conference (so the session can be colocated
// instead of spawning an extra relay hop); participantRegion is the
// endpoint's hinted region; pinnedVersion, if non-empty, restricts
// candidates to that exact bridge version (§4.2 selection policy):
//
//  1. filter out non-operational, draining, and wrong-version bridges.
//  2. prefer an in-use bridge with correctedStress below the overload
//     threshold.
//  3. prefer same-region bridges.
//  4. among remaining candidates, the least-loaded by correctedStress.
//
// Ties are broken by bridge JID for determinism.
func (s *Selector) Select(inUse []*Bridge, participantRegion, pinnedVersion string) (*Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	picked, err := s.selectLocked(inUse, participantRegion, pinnedVersion)
	if err != nil {
		metrics.BridgeSelectionFailures.Inc()
		return nil, err
	}
	picked.RecordAssignment()
	metrics.BridgesSelected.WithLabelValues(picked.JID).Inc()
	return picked, nil
}

func (s *Selector) selectLocked(inUse []*Bridge, participantRegion, pinnedVersion string) (*Bridge, error) {
	candidates := s.candidates(pinnedVersion)
	if len(candidates) == 0 {
		return nil, ErrSelectionFailed
	}

	inUseSet := make(map[string]struct{}, len(inUse))
	for _, b := range inUse {
		inUseSet[b.JID] = struct{}{}
	}

	if picked := pickLeastLoaded(filterBridges(candidates, func(b *Bridge) bool {
		_, used := inUseSet[b.JID]
		return used && b.CorrectedStress() < s.overloadThreshold
	})); picked != nil {
		return picked, nil
	}

	if participantRegion != "" {
		if picked := pickLeastLoaded(filterBridges(candidates, func(b *Bridge) bool {
			return b.Region == participantRegion
		})); picked != nil {
			return picked, nil
		}
	}

	picked := pickLeastLoaded(candidates)
	if picked == nil {
		return nil, ErrSelectionFailed
	}
	return picked, nil
}

func filterBridges(in []*Bridge, keep func(*Bridge) bool) []*Bridge {
	out := make([]*Bridge, 0, len(in))
	for _, b := range in {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

func pickLeastLoaded(in []*Bridge) *Bridge {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool {
		si, sj := in[i].CorrectedStress(), in[j].CorrectedStress()
		if si != sj {
			return si < sj
		}
		return in[i].JID < in[j].JID
	})
	return in[0]
}

// RecordEndpointsMoved attributes n migrated endpoints to the bridge they
// moved away from, for the redistributor's automatic and on-demand moves
// (§4.1, §4.3).
func (s *Selector) RecordEndpointsMoved(jid string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bridges[jid]; ok {
		b.EndpointsMoved(n)
	}
	metrics.BridgeEndpointsMoved.WithLabelValues(jid).Add(float64(n))
}

// HasNonOverloadedBridge reports whether any operational, non-draining
// bridge currently has correctedStress below the overload threshold.
// Satisfies health.BridgeFleetChecker.
func (s *Selector) HasNonOverloadedBridge() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bridges {
		if b.IsOperational() && !b.IsDraining() && b.CorrectedStress() < s.overloadThreshold {
			return true
		}
	}
	return false
}

// Overloaded returns every operational, non-draining bridge at or above the
// overload threshold, for the load redistributor's automatic sweep (§4.3).
func (s *Selector) Overloaded() []*Bridge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Bridge, 0)
	for _, b := range s.bridges {
		if b.IsOperational() && !b.IsDraining() && b.CorrectedStress() >= s.overloadThreshold {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JID < out[j].JID })
	return out
}

// Get returns the bridge known by jid, if any.
func (s *Selector) Get(jid string) (*Bridge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bridges[jid]
	return b, ok
}

// Snapshot returns a stable-ordered copy of the fleet for /stats and
// /debug reporting (§6).
func (s *Selector) Snapshot() []*Bridge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Bridge, 0, len(s.bridges))
	for _, b := range s.bridges {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JID < out[j].JID })
	return out
}

// PruneStale removes bridges whose last presence report is older than
// maxAge, called periodically alongside the store's idle-expiry sweep.
func (s *Selector) PruneStale(ctx context.Context, maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for jid, b := range s.bridges {
		if b.LastReported().Before(cutoff) {
			delete(s.bridges, jid)
			metrics.BridgeOperational.DeleteLabelValues(jid)
			metrics.BridgeStress.DeleteLabelValues(jid)
			logging.Debug(ctx, "pruned stale bridge", zap.String("bridge_jid", jid))
		}
	}
}
