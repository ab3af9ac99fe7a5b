package colibri

import "errors"

// Error taxonomy for bridge/colibri interactions (§7). These are concepts,
// not a type hierarchy: each is a distinct sentinel so callers can
// errors.Is() and apply the propagation policy the spec assigns it.
var (
	// ErrBridgeSelectionFailed means no candidate bridge exists. Allocate
	// returns it without contacting a bridge; no event is fired and no
	// retry is scheduled when capacity returns.
	ErrBridgeSelectionFailed = errors.New("colibri: no candidate bridge available")

	// ErrBridgeInGracefulShutdown means the target bridge refused a new
	// conference. Allocate rolls back the participant's allocation and
	// returns it; the bridge is not marked non-selectable and the
	// participant is not re-invited to another bridge.
	ErrBridgeInGracefulShutdown = errors.New("colibri: bridge is in graceful shutdown")

	// ErrConferenceNotFound means the bridge expired the conference out
	// from under us. Allocate rolls back only the failed participant's
	// allocation; the session's other participants are not re-invited.
	ErrConferenceNotFound = errors.New("colibri: bridge reports conference not found")

	// ErrBadRequest means our own request was structurally wrong; the
	// bridge is not marked faulty, only the one participant is abandoned.
	ErrBadRequest = errors.New("colibri: bad colibri request")

	// ErrTimeout means no response arrived within the deadline; the bridge
	// is marked non-operational. Affected participants are not re-invited.
	ErrTimeout = errors.New("colibri: request timed out")

	// ErrParsing means the response was malformed; treated the same as a
	// timeout (bridge marked faulty).
	ErrParsing = errors.New("colibri: response could not be parsed")

	// ErrGenericAllocationFailed is an error stanza with an unrecognized
	// condition; the bridge is marked non-operational. The participant is
	// not re-invited.
	ErrGenericAllocationFailed = errors.New("colibri: allocation failed with unknown condition")
)

// IsBridgeFaulting reports whether err is one of the conditions that should
// mark the originating bridge non-operational (§7: timeout, parsing error,
// or an error stanza carrying an unrecognized condition).
func IsBridgeFaulting(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrParsing) || errors.Is(err, ErrGenericAllocationFailed)
}
