package conference

import "errors"

// ErrValidationFailed rejects a source/role/id operation with no side
// effects (§7).
var ErrValidationFailed = errors.New("conference: validation failed")

// ErrRestartRateLimitExceeded rejects a restart-request over the
// per-participant token-bucket or minimum-interval limit (§7, §4.5).
var ErrRestartRateLimitExceeded = errors.New("conference: restart request rate limit exceeded")

// ErrClientInviteRejected means the client returned an error or timed out
// on session-initiate and had not already session-accepted (§7).
var ErrClientInviteRejected = errors.New("conference: client rejected invite")

// ErrParticipantNotFound means the named participant is not a member of
// this conference.
var ErrParticipantNotFound = errors.New("conference: participant not found")

// ErrNotModerator rejects a moderation action from a non-moderator caller.
var ErrNotModerator = errors.New("conference: caller is not a moderator")

// ErrConferenceTerminated rejects any operation against a conference whose
// state machine has already reached Terminated.
var ErrConferenceTerminated = errors.New("conference: conference has terminated")
