package conference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jitsi/jicofo/internal/colibri"
	"github.com/jitsi/jicofo/internal/logging"
	"github.com/jitsi/jicofo/internal/metrics"
	"github.com/jitsi/jicofo/internal/protocol"
)

// State is the conference lifecycle state machine (§4.5): Created → Started
// → Terminated.
type State int

const (
	StateCreated State = iota
	StateStarted
	StateTerminated
)

// String renders the state for operator-facing introspection (§6 /debug).
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ColibriManager is the subset of *colibri.Manager the orchestrator depends
// on, narrowed to a capability interface per the design notes' "small
// interfaces over global registries" guidance (§9).
type ColibriManager interface {
	Allocate(ctx context.Context, participantID, statsID string, offer protocol.Offer, region, pinnedVersion string, forceMuteAudio, forceMuteVideo bool) (*colibri.ColibriAllocation, error)
	UpdateParticipant(ctx context.Context, participantID string, transport *protocol.Transport, sources []protocol.Source, suppressLocalBridgeUpdate bool) error
	Mute(ctx context.Context, participantIDs []string, doMute bool, mediaType protocol.MediaType) (bool, error)
	RemoveParticipant(ctx context.Context, participantID string) error
	RemoveBridge(bridgeJID string) []string
	Expire(ctx context.Context)
	ParticipantsOnBridge(bridgeJID string) []string
	BridgeForParticipant(participantID string) (string, bool)
}

// MessageSender delivers a client-dialect message to one participant.
type MessageSender interface {
	Send(ctx context.Context, participantID string, msg *protocol.ClientMessage) error
}

// Config holds the conference.* settings relevant to the orchestrator (§6).
type Config struct {
	MinParticipants          int
	SingleParticipantTimeout time.Duration
	StartTimeout             time.Duration
	MaxSsrcsPerUser          int
	MaxSsrcGroupsPerUser     int
	RestartMaxRequests       int
	RestartInterval          time.Duration
	RestartMinInterval       time.Duration
	Codecs                   []string
	RTPHeaderExtensions      []string
	// DelayForSize implements conference.source-signaling-delays (§4.5):
	// given the current participant count, it returns how long to batch
	// outgoing source-add/source-remove notifications before flushing them.
	// Nil (or a func returning <=0) means send immediately.
	DelayForSize func(size int) time.Duration
}

// Orchestrator is the per-conference state machine (§4.5). Grounded on
// room.Room's single-mutex roster with xxxLocked helpers, generalized from
// a WebSocket client roster to colibri-backed conference participants.
type Orchestrator struct {
	RoomID string
	cfg    Config

	mu            sync.Mutex
	state         State
	participants  map[string]*Participant
	pending       map[string]struct{}
	sourceMap     *SourceMap
	createdAt     time.Time
	hadParticipant bool

	singleTimer *time.Timer
	startTimer  *time.Timer

	sourceDeltaMu    sync.Mutex
	sourceDeltaQueue []pendingSourceDelta
	sourceDeltaTimer *time.Timer

	colibri        ColibriManager
	sender         MessageSender
	restartLimiter *RestartLimiter

	onTerminate func(roomID string)
}

// New builds an Orchestrator in the Created state and arms the
// start-timeout (§4.5: "Started → Terminated ... start-timeout elapses in
// Created").
func New(roomID string, cfg Config, colibriManager ColibriManager, sender MessageSender, onTerminate func(string)) *Orchestrator {
	if cfg.MaxSsrcsPerUser <= 0 {
		cfg.MaxSsrcsPerUser = 4
	}
	if cfg.MaxSsrcGroupsPerUser <= 0 {
		cfg.MaxSsrcGroupsPerUser = 2
	}
	o := &Orchestrator{
		RoomID:         roomID,
		cfg:            cfg,
		state:          StateCreated,
		participants:   make(map[string]*Participant),
		pending:        make(map[string]struct{}),
		sourceMap:      NewSourceMap(),
		createdAt:      time.Now(),
		colibri:        colibriManager,
		sender:         sender,
		restartLimiter: NewRestartLimiter(cfg.RestartMaxRequests, cfg.RestartInterval, cfg.RestartMinInterval),
		onTerminate:    onTerminate,
	}
	if cfg.StartTimeout > 0 {
		o.startTimer = time.AfterFunc(cfg.StartTimeout, o.onStartTimeout)
	}
	return o
}

func (o *Orchestrator) onStartTimeout() {
	o.mu.Lock()
	if o.state != StateCreated {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	o.terminate(context.Background(), "start-timeout")
}

// Started transitions Created → Started after the initial MUC join
// succeeds. A no-op if already started or terminated.
func (o *Orchestrator) Started() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateCreated {
		return
	}
	o.state = StateStarted
	if o.startTimer != nil {
		o.startTimer.Stop()
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// AdmitParticipant creates a Participant for a real (non-focus,
// non-detector) occupant who joined the MUC. If the conference is below
// MinParticipants the invite is deferred; once the threshold is reached,
// every pending participant is invited concurrently (§4.5).
func (o *Orchestrator) AdmitParticipant(ctx context.Context, id, statsID, region string, role Role) error {
	o.mu.Lock()
	if o.state == StateTerminated {
		o.mu.Unlock()
		return ErrConferenceTerminated
	}
	if _, exists := o.participants[id]; exists {
		o.mu.Unlock()
		return fmt.Errorf("%w: participant %q already admitted", ErrValidationFailed, id)
	}

	p := &Participant{ID: id, StatsID: statsID, Region: region, Role: role}
	o.participants[id] = p
	o.hadParticipant = true
	if o.singleTimer != nil {
		o.singleTimer.Stop()
		o.singleTimer = nil
	}

	if len(o.participants) < o.cfg.MinParticipants {
		o.pending[id] = struct{}{}
		o.mu.Unlock()
		return nil
	}

	toInvite := make([]string, 0, len(o.pending)+1)
	for pid := range o.pending {
		toInvite = append(toInvite, pid)
	}
	o.pending = make(map[string]struct{})
	toInvite = append(toInvite, id)
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, pid := range toInvite {
		wg.Add(1)
		go func(pid string) {
			defer wg.Done()
			if err := o.invite(ctx, pid); err != nil {
				logging.Warn(ctx, "conference: invite failed", zap.String("conference_id", o.RoomID), zap.String("endpoint_id", pid), zap.Error(err))
			}
		}(pid)
	}
	wg.Wait()

	metrics.ConferenceParticipants.WithLabelValues(o.RoomID).Set(float64(o.ParticipantCount()))
	return nil
}

// invite runs the invite task (§4.5): allocate against a bridge and send a
// session-initiate composed from the colibri response.
func (o *Orchestrator) invite(ctx context.Context, participantID string) error {
	o.mu.Lock()
	p, ok := o.participants[participantID]
	if !ok {
		o.mu.Unlock()
		return ErrParticipantNotFound
	}
	region := p.Region
	statsID := p.StatsID
	audioMuted := p.AudioForceMuted
	videoMuted := p.VideoForceMuted
	hadPriorAllocation := p.BridgeSessionID != ""
	o.mu.Unlock()

	// A restart, a move, or a re-invite after bridge removal all reuse the
	// same Participant; any prior bridge-side allocation for it must be
	// torn down first so the colibri manager doesn't reject the re-invite
	// as a duplicate (§4.5 "Move endpoint / bridge removal").
	if hadPriorAllocation {
		if err := o.colibri.RemoveParticipant(ctx, participantID); err != nil {
			logging.Warn(ctx, "conference: pre-invite removal failed", zap.String("conference_id", o.RoomID), zap.String("endpoint_id", participantID), zap.Error(err))
		}
	}

	offer := protocol.Offer{Codecs: o.cfg.Codecs, RTPHeaderExt: o.cfg.RTPHeaderExtensions}
	allocation, err := o.colibri.Allocate(ctx, participantID, statsID, offer, region, "", audioMuted, videoMuted)
	if err != nil {
		if classifyInviteFailure(err) == inviteAbandon {
			o.mu.Lock()
			delete(o.participants, participantID)
			o.mu.Unlock()
			return err
		}
		// Transient/bridge-removal failures: caller (or the bridge-removal
		// handler) is responsible for scheduling a retry.
		return err
	}

	o.mu.Lock()
	p.BridgeSessionID = allocation.SessionID
	o.mu.Unlock()

	msg := &protocol.ClientMessage{
		ID:   protocol.NewStanzaID(),
		Type: protocol.IQSet,
		Kind: protocol.ClientSessionInitiate,
		To:   participantID,
		Offer: &protocol.Offer{
			Sources:   o.sourceMap.AllSources(),
			Transport: allocation.Transport,
			Codecs:    o.cfg.Codecs,
		},
	}
	return o.sender.Send(ctx, participantID, msg)
}

type inviteFailureClass int

const (
	inviteRetryableTransient inviteFailureClass = iota
	inviteAbandon
	inviteRetryAfterBridgeRemoval
)

func classifyInviteFailure(err error) inviteFailureClass {
	switch {
	case err == colibri.ErrBadRequest, err == colibri.ErrDuplicateParticipant:
		return inviteAbandon
	case colibri.IsBridgeFaulting(err):
		return inviteRetryAfterBridgeRemoval
	default:
		return inviteRetryableTransient
	}
}

// HandleAccept merges a participant's session-accept transport into its
// tracked state and pushes it to the bridge.
func (o *Orchestrator) HandleAccept(ctx context.Context, participantID string, transport protocol.Transport) error {
	o.mu.Lock()
	p, ok := o.participants[participantID]
	if !ok {
		o.mu.Unlock()
		return ErrParticipantNotFound
	}
	p.Transport = transport
	p.Accepted = true
	o.mu.Unlock()

	return o.colibri.UpdateParticipant(ctx, participantID, &transport, nil, false)
}

// HandleTransportInfo merges incremental ICE candidates, guarding against a
// stale update from a since-re-invited endpoint (§4.5's bridgeSessionId
// staleness check).
func (o *Orchestrator) HandleTransportInfo(ctx context.Context, participantID, bridgeSessionID string, transport protocol.Transport) error {
	o.mu.Lock()
	p, ok := o.participants[participantID]
	if !ok {
		o.mu.Unlock()
		return ErrParticipantNotFound
	}
	if bridgeSessionID != "" && p.BridgeSessionID != "" && bridgeSessionID != p.BridgeSessionID {
		o.mu.Unlock()
		return fmt.Errorf("%w: stale transport-info for bridge session %q", ErrValidationFailed, bridgeSessionID)
	}
	p.Transport.Candidates = append(p.Transport.Candidates, transport.Candidates...)
	merged := p.Transport
	o.mu.Unlock()

	return o.colibri.UpdateParticipant(ctx, participantID, &merged, nil, false)
}

// AddSources validates and admits new sources for a participant, updates
// the conference-wide SourceMap, pushes them to the bridge, and propagates
// the delta to every other participant (§4.5).
func (o *Orchestrator) AddSources(ctx context.Context, participantID string, sources []protocol.Source) error {
	o.mu.Lock()
	p, ok := o.participants[participantID]
	if !ok {
		o.mu.Unlock()
		return ErrParticipantNotFound
	}

	existing := o.sourceMap.Get(participantID)
	if err := o.validateSourcesLocked(participantID, p, existing, sources); err != nil {
		o.mu.Unlock()
		return err
	}

	merged := append(SourceSet{}, existing...)
	merged = append(merged, sources...)
	o.sourceMap.Set(participantID, merged)
	size := len(o.participants)
	o.mu.Unlock()

	if err := o.colibri.UpdateParticipant(ctx, participantID, nil, merged, false); err != nil {
		return err
	}

	o.scheduleSourceDelta(ctx, participantID, size, protocol.ClientSourceAdd, sources)
	return nil
}

// RemoveSources drops the named ssrcs from a participant's source set and
// propagates a source-remove delta to everyone else.
func (o *Orchestrator) RemoveSources(ctx context.Context, participantID string, ssrcs []uint32) error {
	o.mu.Lock()
	_, ok := o.participants[participantID]
	if !ok {
		o.mu.Unlock()
		return ErrParticipantNotFound
	}

	toRemove := make(map[uint32]struct{}, len(ssrcs))
	for _, s := range ssrcs {
		toRemove[s] = struct{}{}
	}

	existing := o.sourceMap.Get(participantID)
	var removed, kept SourceSet
	for _, s := range existing {
		if _, match := toRemove[s.SSRC]; match {
			removed = append(removed, s)
		} else {
			kept = append(kept, s)
		}
	}
	o.sourceMap.Set(participantID, kept)
	size := len(o.participants)
	o.mu.Unlock()

	if err := o.colibri.UpdateParticipant(ctx, participantID, nil, kept, false); err != nil {
		return err
	}

	o.scheduleSourceDelta(ctx, participantID, size, protocol.ClientSourceRemove, removed)
	return nil
}

// validateSourcesLocked enforces §4.5's source-add invariants. Caller must
// hold o.mu.
func (o *Orchestrator) validateSourcesLocked(participantID string, p *Participant, existing SourceSet, incoming []protocol.Source) error {
	audioCount, videoCount := 0, 0
	for _, s := range existing {
		if s.MediaType == protocol.MediaAudio {
			audioCount++
		} else {
			videoCount++
		}
	}

	seenSSRC := make(map[uint32]struct{})
	for id, set := range o.sourceMap.byParticipant {
		if id == participantID {
			continue
		}
		for _, s := range set {
			seenSSRC[s.SSRC] = struct{}{}
		}
	}

	for _, s := range incoming {
		if s.MediaType != protocol.MediaAudio && s.MediaType != protocol.MediaVideo {
			return fmt.Errorf("%w: unsupported media type %q", ErrValidationFailed, s.MediaType)
		}
		if _, taken := seenSSRC[s.SSRC]; taken {
			return fmt.Errorf("%w: ssrc %d already in use", ErrValidationFailed, s.SSRC)
		}
		if s.MediaType == protocol.MediaAudio && p.AudioForceMuted {
			return fmt.Errorf("%w: participant is force-muted for audio", ErrValidationFailed)
		}
		if s.MediaType == protocol.MediaVideo && p.VideoForceMuted {
			return fmt.Errorf("%w: participant is force-muted for video", ErrValidationFailed)
		}
		if s.MediaType == protocol.MediaAudio {
			audioCount++
		} else {
			videoCount++
		}
		seenSSRC[s.SSRC] = struct{}{}
	}

	if audioCount+videoCount > o.cfg.MaxSsrcsPerUser {
		return fmt.Errorf("%w: exceeds maxSsrcsPerUser (%d)", ErrValidationFailed, o.cfg.MaxSsrcsPerUser)
	}

	existingGroups := make(map[string]struct{})
	for _, s := range existing {
		if s.GroupID != "" {
			existingGroups[s.GroupID] = struct{}{}
		}
	}
	totalGroups := len(existingGroups)
	for _, s := range incoming {
		if s.GroupID == "" {
			continue
		}
		if _, already := existingGroups[s.GroupID]; already {
			continue
		}
		existingGroups[s.GroupID] = struct{}{}
		totalGroups++
	}
	if totalGroups > o.cfg.MaxSsrcGroupsPerUser {
		return fmt.Errorf("%w: exceeds maxSsrcGroupsPerUser (%d)", ErrValidationFailed, o.cfg.MaxSsrcGroupsPerUser)
	}
	return nil
}

func (o *Orchestrator) otherParticipantIDsLocked(excluding string) []string {
	out := make([]string, 0, len(o.participants))
	for id := range o.participants {
		if id != excluding {
			out = append(out, id)
		}
	}
	return out
}

// pendingSourceDelta is one queued source-add/source-remove notification
// awaiting its batching window (§4.5 "source propagation delay").
type pendingSourceDelta struct {
	senderID string
	kind     protocol.ClientMessageType
	sources  []protocol.Source
}

// scheduleSourceDelta batches delta behind cfg.DelayForSize(size), or sends
// it immediately when the configured delay is zero. Deltas are flushed in
// enqueue order, so a source-add is never delivered after a later
// source-remove for the same source, and no two deltas are ever merged into
// one message — batching only delays delivery, it never coalesces an
// add/remove boundary.
func (o *Orchestrator) scheduleSourceDelta(ctx context.Context, senderID string, size int, kind protocol.ClientMessageType, delta []protocol.Source) {
	if len(delta) == 0 {
		return
	}

	var delay time.Duration
	if o.cfg.DelayForSize != nil {
		delay = o.cfg.DelayForSize(size)
	}
	if delay <= 0 {
		o.broadcastSourceDelta(ctx, senderID, kind, delta)
		return
	}

	o.sourceDeltaMu.Lock()
	o.sourceDeltaQueue = append(o.sourceDeltaQueue, pendingSourceDelta{senderID: senderID, kind: kind, sources: delta})
	if o.sourceDeltaTimer == nil {
		o.sourceDeltaTimer = time.AfterFunc(delay, func() { o.flushSourceDeltas(context.Background()) })
	}
	o.sourceDeltaMu.Unlock()
}

// flushSourceDeltas sends every queued delta, in the order it was queued.
func (o *Orchestrator) flushSourceDeltas(ctx context.Context) {
	o.sourceDeltaMu.Lock()
	queue := o.sourceDeltaQueue
	o.sourceDeltaQueue = nil
	o.sourceDeltaTimer = nil
	o.sourceDeltaMu.Unlock()

	for _, d := range queue {
		o.broadcastSourceDelta(ctx, d.senderID, d.kind, d.sources)
	}
}

func (o *Orchestrator) broadcastSourceDelta(ctx context.Context, senderID string, kind protocol.ClientMessageType, delta []protocol.Source) {
	if len(delta) == 0 {
		return
	}
	o.mu.Lock()
	targets := o.otherParticipantIDsLocked(senderID)
	o.mu.Unlock()

	for _, target := range targets {
		msg := &protocol.ClientMessage{
			ID:      protocol.NewStanzaID(),
			Type:    protocol.IQSet,
			Kind:    kind,
			To:      target,
			Sources: delta,
		}
		if err := o.sender.Send(ctx, target, msg); err != nil {
			logging.Warn(ctx, "conference: source propagation failed", zap.String("endpoint_id", target), zap.Error(err))
		}
	}
}

// SetForceMute applies a moderator's mute/unmute directive. Only roles with
// moderator rights may mute others; owners cannot be muted by
// non-owners; unmuting a force-muted participant is rejected from
// non-moderators (§4.5).
func (o *Orchestrator) SetForceMute(ctx context.Context, caller Role, targetIDs []string, doMute bool, mediaType protocol.MediaType) error {
	if !caller.CanModerate() {
		return ErrNotModerator
	}

	o.mu.Lock()
	for _, id := range targetIDs {
		p, ok := o.participants[id]
		if !ok {
			continue
		}
		if p.Role == RoleOwner && caller != RoleOwner {
			o.mu.Unlock()
			return ErrNotModerator
		}
	}
	o.mu.Unlock()

	_, err := o.colibri.Mute(ctx, targetIDs, doMute, mediaType)
	if err != nil {
		return err
	}

	o.mu.Lock()
	for _, id := range targetIDs {
		if p, ok := o.participants[id]; ok {
			if mediaType == protocol.MediaAudio {
				p.AudioForceMuted = doMute
			} else {
				p.VideoForceMuted = doMute
			}
		}
	}
	o.mu.Unlock()
	return nil
}

// RequestRestart re-invites a participant in response to a client-issued
// session-restart, subject to the restart-request rate limit (§4.5, §7).
func (o *Orchestrator) RequestRestart(ctx context.Context, participantID string) error {
	if !o.restartLimiter.Allow(participantID) {
		return ErrRestartRateLimitExceeded
	}
	return o.invite(ctx, participantID)
}

// HandleBridgeRemoved reconciles a bridge's removal (§4.5 "Move endpoint /
// bridge removal"): every affected participant is re-invited using the
// same Participant object, so its endpoint identity survives while
// BridgeSessionID changes.
func (o *Orchestrator) HandleBridgeRemoved(ctx context.Context, bridgeJID string) {
	ids := o.colibri.RemoveBridge(bridgeJID)
	for _, id := range ids {
		go func(id string) {
			if err := o.invite(ctx, id); err != nil {
				logging.Warn(ctx, "conference: re-invite after bridge removal failed", zap.String("conference_id", o.RoomID), zap.String("endpoint_id", id), zap.Error(err))
			}
		}(id)
	}
}

// EndpointsOnBridge lists the participant ids of this conference currently
// allocated on bridgeJID, for the load redistributor's on-demand and
// automatic move APIs (§4.3).
func (o *Orchestrator) EndpointsOnBridge(bridgeJID string) []string {
	return o.colibri.ParticipantsOnBridge(bridgeJID)
}

// MoveParticipant re-invites participantID onto a freshly selected bridge
// (§4.3, §6 /move-endpoint). If fromBridge is non-empty, the move is
// rejected when the participant is no longer on that bridge — it's already
// moved or departed since the operator's snapshot was taken.
func (o *Orchestrator) MoveParticipant(ctx context.Context, participantID, fromBridge string) error {
	if fromBridge != "" {
		current, ok := o.colibri.BridgeForParticipant(participantID)
		if !ok || current != fromBridge {
			return ErrParticipantNotFound
		}
	}
	return o.invite(ctx, participantID)
}

// RemoveParticipant removes a departing participant, expiring it on the
// bridge, and arms the single-participant timer or terminates the
// conference as the roster empties (§4.5).
func (o *Orchestrator) RemoveParticipant(ctx context.Context, participantID string) error {
	o.mu.Lock()
	if _, ok := o.participants[participantID]; !ok {
		o.mu.Unlock()
		return nil
	}
	delete(o.participants, participantID)
	delete(o.pending, participantID)
	o.sourceMap.Remove(participantID)
	o.restartLimiter.Forget(participantID)
	remaining := len(o.participants)
	o.mu.Unlock()

	if err := o.colibri.RemoveParticipant(ctx, participantID); err != nil {
		logging.Warn(ctx, "conference: remove participant failed", zap.String("endpoint_id", participantID), zap.Error(err))
	}

	switch remaining {
	case 0:
		o.terminate(ctx, "last-participant-left")
	case 1:
		o.armSingleParticipantTimer(ctx)
	}

	metrics.ConferenceParticipants.WithLabelValues(o.RoomID).Set(float64(remaining))
	return nil
}

func (o *Orchestrator) armSingleParticipantTimer(ctx context.Context) {
	if o.cfg.SingleParticipantTimeout <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.singleTimer != nil {
		o.singleTimer.Stop()
	}
	o.singleTimer = time.AfterFunc(o.cfg.SingleParticipantTimeout, func() {
		o.terminate(context.Background(), "single-participant-timeout")
	})
}

func (o *Orchestrator) terminate(ctx context.Context, reason string) {
	o.mu.Lock()
	if o.state == StateTerminated {
		o.mu.Unlock()
		return
	}
	o.state = StateTerminated
	if o.startTimer != nil {
		o.startTimer.Stop()
	}
	if o.singleTimer != nil {
		o.singleTimer.Stop()
	}
	o.mu.Unlock()

	o.sourceDeltaMu.Lock()
	if o.sourceDeltaTimer != nil {
		o.sourceDeltaTimer.Stop()
		o.sourceDeltaTimer = nil
	}
	o.sourceDeltaQueue = nil
	o.sourceDeltaMu.Unlock()

	o.colibri.Expire(ctx)
	logging.Info(ctx, "conference: terminated", zap.String("conference_id", o.RoomID), zap.String("reason", reason))
	metrics.ConferenceParticipants.DeleteLabelValues(o.RoomID)
	if o.onTerminate != nil {
		o.onTerminate(o.RoomID)
	}
}

// Shutdown terminates the conference for an external reason (idle-expiry,
// operator request). Idempotent.
func (o *Orchestrator) Shutdown(ctx context.Context, reason string) {
	o.terminate(ctx, reason)
}

// ParticipantCount returns the current roster size.
func (o *Orchestrator) ParticipantCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.participants)
}

// HasHadAtLeastOneParticipant reports whether any participant has ever
// joined, for ConferenceStore's idle-expiry sweep (§4.6).
func (o *Orchestrator) HasHadAtLeastOneParticipant() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hadParticipant
}

// CreatedAt returns the time this orchestrator was constructed.
func (o *Orchestrator) CreatedAt() time.Time {
	return o.createdAt
}
