package bridge

import "errors"

// ErrSelectionFailed is returned when Selector.Select cannot find any
// operational, non-overloaded bridge for a new or migrating endpoint (§7,
// BridgeSelectionFailed). colibri.Manager.Allocate reports it to its caller
// as colibri.ErrBridgeSelectionFailed.
var ErrSelectionFailed = errors.New("bridge: selection failed, no suitable bridge available")

// ErrGracefulShutdown names a target bridge in graceful shutdown (§7,
// BridgeInGracefulShutdown). Nothing in this package returns it:
// Selector.Select reports every failure to find a bridge as
// ErrSelectionFailed.
var ErrGracefulShutdown = errors.New("bridge: target bridge is in graceful shutdown")
