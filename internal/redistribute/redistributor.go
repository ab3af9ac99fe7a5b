// Package redistribute implements the load redistributor (§4.3): an
// on-demand API for operator-triggered endpoint moves, plus an automatic
// timer loop that nudges endpoints off overloaded bridges. Grounded on the
// periodic-loop-with-cancellation idiom used for heartbeats elsewhere in
// the example pack; the redistributor never picks the destination bridge
// itself — every move becomes a re-invite that goes through the normal
// BridgeSelector.
package redistribute

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jitsi/jicofo/internal/bridge"
	"github.com/jitsi/jicofo/internal/logging"
	"github.com/jitsi/jicofo/internal/metrics"
)

// ConferenceUsage is one conference's footprint on a bridge, used to order
// candidates for a move (§4.3: "greedy over conferences ordered by
// descending endpoint-on-this-bridge count").
type ConferenceUsage struct {
	ConferenceID  string
	EndpointCount int
}

// FleetStatus is the subset of BridgeSelector the redistributor consumes.
type FleetStatus interface {
	Overloaded() []*bridge.Bridge
	HasNonOverloadedBridge() bool
	RecordEndpointsMoved(jid string, n int)
}

// ConferenceMover is implemented by the conference orchestrator layer: it
// carries out a move by re-inviting the affected participant(s), which in
// turn re-enters normal bridge selection.
type ConferenceMover interface {
	// ConferencesOnBridge reports, for the given bridge, every conference
	// currently using it and how many endpoints each has there.
	ConferencesOnBridge(bridgeJID string) []ConferenceUsage
	// MoveEndpoint re-invites a single named endpoint of conferenceID away
	// from its current bridge (fromBridge, if non-empty, asserts which one).
	MoveEndpoint(ctx context.Context, conferenceID, endpointID, fromBridge string) error
	// MoveEndpoints re-invites up to n endpoints of conferenceID away from
	// bridgeJID, returning how many were actually moved (the conference may
	// have fewer than n endpoints left on that bridge).
	MoveEndpoints(ctx context.Context, conferenceID, bridgeJID string, n int) (int, error)
}

// Config holds the bridge.load-redistribution.* settings (§6).
type Config struct {
	Enabled         bool
	Interval        time.Duration
	Timeout         time.Duration
	Endpoints       int // N endpoints moved per overloaded bridge per automatic tick
	StressThreshold float64
}

// Redistributor runs the automatic rebalancing loop and serves the
// on-demand move API used by the operator HTTP surface (§6 /move-endpoint,
// /move-endpoints, /move-fraction).
type Redistributor struct {
	cfg    Config
	fleet  FleetStatus
	mover  ConferenceMover

	mu          sync.Mutex
	timeoutTill map[string]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Redistributor. Call Start to begin the automatic loop; it is
// a no-op if cfg.Enabled is false.
func New(cfg Config, fleet FleetStatus, mover ConferenceMover) *Redistributor {
	if cfg.Endpoints <= 0 {
		cfg.Endpoints = 1
	}
	return &Redistributor{
		cfg:         cfg,
		fleet:       fleet,
		mover:       mover,
		timeoutTill: make(map[string]time.Time),
	}
}

// Start launches the automatic redistribution loop in a background
// goroutine. Cancel ctx (or call Stop) to end it.
func (r *Redistributor) Start(ctx context.Context) {
	if !r.cfg.Enabled {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.loop(ctx)
}

// Stop ends the automatic loop and waits for it to exit.
func (r *Redistributor) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Redistributor) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick runs one automatic redistribution pass (§4.3 "Automatic loop").
func (r *Redistributor) tick(ctx context.Context) {
	if !r.fleet.HasNonOverloadedBridge() {
		logging.Debug(ctx, "redistribute: skipping tick, no non-overloaded bridge exists")
		return
	}

	for _, b := range r.fleet.Overloaded() {
		if r.inTimeout(b.JID) {
			continue
		}
		moved, err := r.MoveEndpoints(ctx, "", b.JID, r.cfg.Endpoints)
		if err != nil {
			logging.Warn(ctx, "redistribute: automatic move failed", zap.String("bridge_jid", b.JID), zap.Error(err))
		}
		if moved > 0 {
			metrics.RedistributionMoves.WithLabelValues(b.JID, "automatic").Add(float64(moved))
		}
		r.setTimeout(b.JID)
	}
}

func (r *Redistributor) inTimeout(jid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	till, ok := r.timeoutTill[jid]
	return ok && time.Now().Before(till)
}

func (r *Redistributor) setTimeout(jid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeoutTill[jid] = time.Now().Add(r.cfg.Timeout)
}

// MoveEndpoint moves a single named endpoint off its current bridge
// on-demand (§6 /move-endpoint).
func (r *Redistributor) MoveEndpoint(ctx context.Context, conferenceID, endpointID, fromBridge string) error {
	err := r.mover.MoveEndpoint(ctx, conferenceID, endpointID, fromBridge)
	if err == nil {
		label := fromBridge
		if label == "" {
			label = "unknown"
		}
		metrics.RedistributionMoves.WithLabelValues(label, "on_demand").Inc()
	}
	return err
}

// MoveEndpoints moves up to n endpoints off bridgeJID on-demand (§6
// /move-endpoints). If conferenceID is empty, candidates are drawn greedily
// from every conference on the bridge, most-loaded first, taking at most
// the remaining budget from each (§4.3).
func (r *Redistributor) MoveEndpoints(ctx context.Context, conferenceID, bridgeJID string, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}

	if conferenceID != "" {
		moved, err := r.mover.MoveEndpoints(ctx, conferenceID, bridgeJID, n)
		if moved > 0 {
			r.fleet.RecordEndpointsMoved(bridgeJID, moved)
		}
		return moved, err
	}

	usages := r.mover.ConferencesOnBridge(bridgeJID)
	sort.Slice(usages, func(i, j int) bool {
		if usages[i].EndpointCount != usages[j].EndpointCount {
			return usages[i].EndpointCount > usages[j].EndpointCount
		}
		return usages[i].ConferenceID < usages[j].ConferenceID
	})

	remaining := n
	total := 0
	for _, u := range usages {
		if remaining <= 0 {
			break
		}
		take := u.EndpointCount
		if take > remaining {
			take = remaining
		}
		moved, err := r.mover.MoveEndpoints(ctx, u.ConferenceID, bridgeJID, take)
		if err != nil {
			logging.Warn(ctx, "redistribute: move failed", zap.String("conference_id", u.ConferenceID), zap.Error(err))
			continue
		}
		total += moved
		remaining -= moved
	}
	if total > 0 {
		r.fleet.RecordEndpointsMoved(bridgeJID, total)
	}
	return total, nil
}

// MoveFraction moves ceil(frac * total-endpoints-on-bridge) endpoints off
// bridgeJID on-demand (§6 /move-fraction).
func (r *Redistributor) MoveFraction(ctx context.Context, bridgeJID string, frac float64) (int, error) {
	if frac <= 0 {
		return 0, nil
	}
	if frac > 1 {
		frac = 1
	}

	total := 0
	for _, u := range r.mover.ConferencesOnBridge(bridgeJID) {
		total += u.EndpointCount
	}
	n := int(math.Ceil(frac * float64(total)))
	moved, err := r.MoveEndpoints(ctx, "", bridgeJID, n)
	if err == nil && moved > 0 {
		metrics.RedistributionMoves.WithLabelValues(bridgeJID, "on_demand_fraction").Add(float64(moved))
	}
	return moved, err
}
