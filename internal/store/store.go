// Package store implements the conference registry (§4.6): a concurrent
// room id → conference handle map with single-writer-per-key creation,
// bridge-version pinning, and an idle-expiry sweeper. Grounded on
// internal/v1/session/hub.go's Hub (getOrCreateRoom's lock-check-create
// pattern, removeRoom's timer-based cleanup), generalized from a
// WebSocket room registry to a colibri-conference registry.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jitsi/jicofo/internal/conference"
	"github.com/jitsi/jicofo/internal/logging"
	"github.com/jitsi/jicofo/internal/metrics"
)

// Factory builds a fresh Orchestrator for a newly created room. The
// returned orchestrator's onTerminate callback must not be set by the
// factory; Store installs its own to self-unregister the handle.
type Factory func(roomID string, onTerminate func(string)) *conference.Orchestrator

// ConferenceEndedListener is notified when a conference handle is removed
// from the store, regardless of why (idle-expiry, operator shutdown, the
// orchestrator's own lifecycle ending). A small capability interface
// rather than a concrete dependency, matching internal/health's
// BridgeFleetChecker idiom.
type ConferenceEndedListener interface {
	ConferenceEnded(roomID string)
}

// PinnedConference records that roomID must only be served by bridges
// running bridgeVersion, until expiresAt (§3, §4.6).
type PinnedConference struct {
	RoomID        string
	BridgeVersion string
	ExpiresAt     time.Time
}

// Store is the process-wide ConferenceStore (§4.6).
type Store struct {
	mu        sync.Mutex
	handles   map[string]*conference.Orchestrator
	pins      map[string]PinnedConference
	listeners []ConferenceEndedListener

	factory                Factory
	conferenceStartTimeout time.Duration

	sweepInterval time.Duration
	cancel        context.CancelFunc
	done          chan struct{}
}

// New builds a Store. conferenceStartTimeout governs the idle-expiry sweep:
// a room with no participant ever admitted for longer than this is
// terminated. sweepInterval is how often the sweep runs; both default to
// sane values when non-positive.
func New(factory Factory, conferenceStartTimeout, sweepInterval time.Duration) *Store {
	if conferenceStartTimeout <= 0 {
		conferenceStartTimeout = 30 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Second
	}
	return &Store{
		handles:                make(map[string]*conference.Orchestrator),
		pins:                   make(map[string]PinnedConference),
		factory:                factory,
		conferenceStartTimeout: conferenceStartTimeout,
		sweepInterval:          sweepInterval,
	}
}

// GetOrCreate returns the existing orchestrator for roomID, or atomically
// creates one. The newly created orchestrator's Started() is invoked only
// after the handle is inserted and the store's lock has been released
// (§5: suspension-adjacent work never happens under the store's lock).
func (s *Store) GetOrCreate(roomID string) (o *conference.Orchestrator, created bool) {
	s.mu.Lock()
	if existing, ok := s.handles[roomID]; ok {
		s.mu.Unlock()
		return existing, false
	}

	o = s.factory(roomID, func(id string) { s.remove(id) })
	s.handles[roomID] = o
	s.mu.Unlock()

	metrics.ActiveConferences.Inc()
	o.Started()
	logging.Info(context.Background(), "store: conference created", zap.String("conference_id", roomID))
	return o, true
}

// Get returns the handle for roomID, if any.
func (s *Store) Get(roomID string) (*conference.Orchestrator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.handles[roomID]
	return o, ok
}

// AddListener registers l to be notified whenever a conference handle is
// removed from the store.
func (s *Store) AddListener(l ConferenceEndedListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RemoveListener unregisters l. A no-op if l was never added.
func (s *Store) RemoveListener(l ConferenceEndedListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// remove drops a handle, called by the orchestrator's onTerminate hook.
func (s *Store) remove(roomID string) {
	s.mu.Lock()
	_, existed := s.handles[roomID]
	delete(s.handles, roomID)
	delete(s.pins, roomID)
	listeners := append([]ConferenceEndedListener(nil), s.listeners...)
	s.mu.Unlock()

	if existed {
		metrics.ActiveConferences.Dec()
		s.notifyEnded(roomID, listeners)
	}
}

// notifyEnded fires conferenceEnded to every listener snapshotted outside
// the store lock (§9 open question: snapshot listeners inside the lock,
// fire outside, so a listener calling back into the store can't deadlock).
func (s *Store) notifyEnded(roomID string, listeners []ConferenceEndedListener) {
	for _, l := range listeners {
		l.ConferenceEnded(roomID)
	}
}

// All returns every currently active conference handle, for the load
// redistributor's cross-conference move APIs (§4.3).
func (s *Store) All() []*conference.Orchestrator {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*conference.Orchestrator, 0, len(s.handles))
	for _, o := range s.handles {
		out = append(out, o)
	}
	return out
}

// Count returns the number of active conference handles.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Pin records that roomID must stick to bridgeVersion for duration (§4.6).
func (s *Store) Pin(roomID, bridgeVersion string, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins[roomID] = PinnedConference{
		RoomID:        roomID,
		BridgeVersion: bridgeVersion,
		ExpiresAt:     time.Now().Add(duration),
	}
}

// Unpin removes any pin on roomID.
func (s *Store) Unpin(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pins, roomID)
}

// PinnedVersion returns the bridge version roomID is pinned to, if any
// unexpired pin exists.
func (s *Store) PinnedVersion(roomID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[roomID]
	if !ok || time.Now().After(p.ExpiresAt) {
		return "", false
	}
	return p.BridgeVersion, true
}

// Start launches the idle-expiry sweeper in a background goroutine.
func (s *Store) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit.
func (s *Store) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// sweep terminates rooms that have sat idle (never admitted a participant)
// past conferenceStartTimeout (§4.6).
func (s *Store) sweep(ctx context.Context) {
	s.mu.Lock()
	var stale []*conference.Orchestrator
	for _, o := range s.handles {
		if o.HasHadAtLeastOneParticipant() {
			continue
		}
		if time.Since(o.CreatedAt()) > s.conferenceStartTimeout {
			stale = append(stale, o)
		}
	}
	s.mu.Unlock()

	sort.Slice(stale, func(i, j int) bool { return stale[i].RoomID < stale[j].RoomID })
	for _, o := range stale {
		logging.Info(ctx, "store: idle conference expired", zap.String("conference_id", o.RoomID))
		o.Shutdown(ctx, "idle-expiry")
	}
}
