// Package clienttransport is the client-facing signaling endpoint: a
// WebSocket connection per participant carrying the Jingle-like client
// dialect (§6) encoded as JSON (protocol.ClientMessage). Grounded on
// internal/v1/transport/client.go's Client (wsConnection seam, buffered
// send/prioritySend channels, readPump/writePump pair), generalized from a
// protobuf room-broadcast client to a JSON-encoded signaling client bound
// to one conference participant.
package clienttransport

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jitsi/jicofo/internal/logging"
	"github.com/jitsi/jicofo/internal/metrics"
	"github.com/jitsi/jicofo/internal/protocol"

	"github.com/gorilla/websocket"
)

// wsConnection is the subset of *websocket.Conn the client needs, seamed
// for testing without a real socket.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// SessionHandler is the narrow slice of *conference.Orchestrator the
// client dispatches decoded messages to. Declared here rather than
// imported from internal/conference to keep this package's dependency
// surface to protocol + its own transport concerns.
type SessionHandler interface {
	HandleAccept(ctx context.Context, participantID string, transport protocol.Transport) error
	HandleTransportInfo(ctx context.Context, participantID, bridgeSessionID string, transport protocol.Transport) error
	AddSources(ctx context.Context, participantID string, sources []protocol.Source) error
	RemoveSources(ctx context.Context, participantID string, ssrcs []uint32) error
	RequestRestart(ctx context.Context, participantID string) error
	RemoveParticipant(ctx context.Context, participantID string) error
}

const writeWait = 10 * time.Second

// Client is one participant's signaling connection.
type Client struct {
	conn          wsConnection
	session       SessionHandler
	participantID string

	send         chan []byte
	prioritySend chan []byte
	closeOnce    sync.Once
	closeMu      sync.RWMutex // guards send/prioritySend against a close racing a concurrent Send
	closed       bool
}

// NewClient wraps conn for participantID, routing decoded messages to
// session.
func NewClient(conn wsConnection, session SessionHandler, participantID string) *Client {
	return &Client{
		conn:          conn,
		session:       session,
		participantID: participantID,
		send:          make(chan []byte, 256),
		prioritySend:  make(chan []byte, 64),
	}
}

// Run starts the client's read and write pumps and blocks until the
// connection closes. Call from its own goroutine.
func (c *Client) Run(ctx context.Context) {
	metrics.ClientConnectionsActive.Inc()
	defer metrics.ClientConnectionsActive.Dec()

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()
	c.readPump(ctx)
	c.shutdown()
	<-done
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closed = true
		c.closeMu.Unlock()
		close(c.send)
		close(c.prioritySend)
	})
}

// readPump decodes inbound frames and dispatches them to the session
// handler until the connection errors or closes.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.conn.Close()
		if err := c.session.RemoveParticipant(ctx, c.participantID); err != nil {
			logging.Warn(ctx, "clienttransport: remove participant on disconnect failed", zap.String("endpoint_id", c.participantID), zap.Error(err))
		}
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.UnmarshalClientMessage(data)
		if err != nil {
			logging.Warn(ctx, "clienttransport: malformed client message", zap.String("endpoint_id", c.participantID), zap.Error(err))
			continue
		}

		if err := c.dispatch(ctx, msg); err != nil {
			logging.Warn(ctx, "clienttransport: dispatch failed", zap.String("endpoint_id", c.participantID), zap.String("kind", string(msg.Kind)), zap.Error(err))
			c.sendError(ctx, msg, err)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, msg *protocol.ClientMessage) error {
	switch msg.Kind {
	case protocol.ClientSessionAccept, protocol.ClientTransportAccept:
		transport := protocol.Transport{}
		if msg.Transport != nil {
			transport = *msg.Transport
		}
		return c.session.HandleAccept(ctx, c.participantID, transport)
	case protocol.ClientTransportInfo:
		transport := protocol.Transport{}
		if msg.Transport != nil {
			transport = *msg.Transport
		}
		return c.session.HandleTransportInfo(ctx, c.participantID, "", transport)
	case protocol.ClientSourceAdd:
		return c.session.AddSources(ctx, c.participantID, msg.Sources)
	case protocol.ClientSourceRemove:
		ssrcs := make([]uint32, 0, len(msg.Sources))
		for _, s := range msg.Sources {
			ssrcs = append(ssrcs, s.SSRC)
		}
		return c.session.RemoveSources(ctx, c.participantID, ssrcs)
	case protocol.ClientRestartRequest:
		return c.session.RequestRestart(ctx, c.participantID)
	case protocol.ClientSessionTerminate:
		return c.session.RemoveParticipant(ctx, c.participantID)
	default:
		return nil
	}
}

func (c *Client) sendError(ctx context.Context, in *protocol.ClientMessage, cause error) {
	c.Send(ctx, &protocol.ClientMessage{
		ID:   in.ID,
		Type: protocol.IQError,
		Kind: in.Kind,
		Error: &protocol.StanzaError{
			Condition: protocol.ConditionBadRequest,
			Message:   cause.Error(),
		},
	})
}

// writePump drains the priority and normal send channels to the socket,
// preferring priority traffic.
func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		// Drain prioritySend first so a burst of source deltas on send
		// never delays a pending signaling-critical message.
		select {
		case message, ok := <-c.prioritySend:
			if !ok {
				return
			}
			if !c.write(message) {
				return
			}
			continue
		default:
		}

		select {
		case message, ok := <-c.prioritySend:
			if !ok {
				return
			}
			if !c.write(message) {
				return
			}
		case message, ok := <-c.send:
			if !ok {
				return
			}
			if !c.write(message) {
				return
			}
		}
	}
}

func (c *Client) write(data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	return true
}

// Send marshals and enqueues msg for delivery, routing signaling-critical
// kinds through the priority channel so they're never starved by a burst
// of source deltas.
func (c *Client) Send(ctx context.Context, msg *protocol.ClientMessage) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}

	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return nil
	}

	ch := c.send
	if isPriorityKind(msg.Kind) || msg.Type == protocol.IQError {
		ch = c.prioritySend
	}

	select {
	case ch <- data:
		return nil
	default:
		logging.Warn(ctx, "clienttransport: send channel full, dropping message", zap.String("endpoint_id", c.participantID), zap.String("kind", string(msg.Kind)))
		return nil
	}
}

func isPriorityKind(kind protocol.ClientMessageType) bool {
	switch kind {
	case protocol.ClientSessionInitiate, protocol.ClientTransportInfo, protocol.ClientSessionTerminate:
		return true
	default:
		return false
	}
}
