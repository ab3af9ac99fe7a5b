package clienttransport

import (
	"context"
	"fmt"
	"sync"

	"github.com/jitsi/jicofo/internal/protocol"
)

// Router fans an Orchestrator's outbound messages out to whichever Client
// is currently connected for a given participant. One Router exists per
// conference; it satisfies conference.MessageSender.
type Router struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRouter builds an empty Router.
func NewRouter() *Router {
	return &Router{clients: make(map[string]*Client)}
}

// Register associates participantID with its live connection.
func (r *Router) Register(participantID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[participantID] = c
}

// Unregister drops participantID, e.g. once its connection closes. It is a
// no-op if a newer connection has already replaced the stored client.
func (r *Router) Unregister(participantID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.clients[participantID]; ok && current == c {
		delete(r.clients, participantID)
	}
}

// Send implements conference.MessageSender.
func (r *Router) Send(ctx context.Context, participantID string, msg *protocol.ClientMessage) error {
	r.mu.RLock()
	c, ok := r.clients[participantID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("clienttransport: no connected client for participant %q", participantID)
	}
	return c.Send(ctx, msg)
}
