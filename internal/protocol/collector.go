package protocol

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrTimeout is returned when a stanza collector's deadline elapses before a
// response (or error) arrives; distinct from a typed StanzaError because a
// nil result from the transport is ambiguous between "no reply yet" and
// "acknowledged with an empty body" (§4.7).
var ErrTimeout = errors.New("protocol: timed out waiting for response")

// result is the single-slot future backing one in-flight request.
type result struct {
	payload []byte
	err     error
}

// Collector correlates outbound set-type requests with their eventual
// response by stanza id. One Collector is shared by every session that
// originates requests on a given transport (client or bridge-facing).
type Collector struct {
	mu      sync.Mutex
	pending map[string]chan result
}

// NewCollector builds an empty correlation table.
func NewCollector() *Collector {
	return &Collector{pending: make(map[string]chan result)}
}

// NewStanzaID mints a fresh, unique stanza id for a new outbound request.
func NewStanzaID() string {
	return uuid.NewString()
}

// Await registers id and blocks until Resolve(id, ...) is called or ctx is
// done, whichever comes first. Must be called before the request carrying id
// is actually sent, so a fast reply can never race ahead of registration.
func (c *Collector) Await(ctx context.Context, id string) ([]byte, error) {
	ch := make(chan result, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	select {
	case r := <-ch:
		return r.payload, r.err
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

// Prepare registers id for correlation and returns a wait function, letting
// the caller send the request that carries id in between the two — needed
// whenever the send itself (e.g. a bus publish) must happen from outside
// the goroutine that will block waiting, so registration is guaranteed to
// complete before the request can possibly be answered.
func (c *Collector) Prepare(id string) func(ctx context.Context) ([]byte, error) {
	ch := make(chan result, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	return func(ctx context.Context) ([]byte, error) {
		defer func() {
			c.mu.Lock()
			delete(c.pending, id)
			c.mu.Unlock()
		}()

		select {
		case r := <-ch:
			return r.payload, r.err
		case <-ctx.Done():
			return nil, ErrTimeout
		}
	}
}

// Forget cancels a pending registration made via Prepare without having to
// wait out its timeout, e.g. when the send that would carry id never made
// it onto the wire. No-op if id isn't pending.
func (c *Collector) Forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Resolve delivers a response payload to whoever is awaiting id. It is a
// no-op if nobody is waiting (late or duplicate reply).
func (c *Collector) Resolve(id string, payload []byte) {
	c.deliver(id, result{payload: payload})
}

// ResolveError delivers a typed error to whoever is awaiting id.
func (c *Collector) ResolveError(id string, err error) {
	c.deliver(id, result{err: err})
}

func (c *Collector) deliver(id string, r result) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- r:
	default:
	}
}

// Pending reports how many requests are currently awaiting a response;
// exposed for tests and operator /stats.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
