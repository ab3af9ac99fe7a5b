package colibri

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jitsi/jicofo/internal/bus"
	"github.com/jitsi/jicofo/internal/logging"
	"github.com/jitsi/jicofo/internal/protocol"
)

// requestEnvelope is the payload published on a bridge's request topic: the
// colibri-v2 request plus the topic this instance expects the reply on, so
// a bridge (or a bus-side relay towards one) knows where to route it.
type requestEnvelope struct {
	ReplyTo string                     `json:"replyTo"`
	Request *protocol.ConferenceModify `json:"request"`
}

// BusTransport is the production RawSender: it carries ConferenceModify /
// ConferenceModified exchanges over the shared messaging bus instead of a
// direct XMPP/colibri-v2 socket, correlating replies by stanza id the same
// way pkg/sfu/client.go correlates gRPC responses, generalized from one
// collaborator to N bus-addressable bridges (§4.7, §6). Single-instance
// deployments still work unmodified: bus.Service degrades to a no-op when
// constructed without a Redis address, so Send always times out cleanly
// rather than blocking forever.
type BusTransport struct {
	bus       *bus.Service
	collector *protocol.Collector
	selfID    string
	timeout   time.Duration
}

// NewBusTransport builds a BusTransport. selfID names this jicofo
// instance's reply topic so bridges (or the bus fabric) know where to
// route ConferenceModified responses.
func NewBusTransport(busService *bus.Service, selfID string, requestTimeout time.Duration) *BusTransport {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &BusTransport{
		bus:       busService,
		collector: protocol.NewCollector(),
		selfID:    selfID,
		timeout:   requestTimeout,
	}
}

// Start subscribes to this instance's reply topic. Must be called once,
// before the first Send, and kept running for the process lifetime.
func (t *BusTransport) Start(ctx context.Context) {
	t.bus.Subscribe(ctx, replyTopic(t.selfID), nil, t.onReply)
}

func (t *BusTransport) onReply(msg bus.Message) {
	if msg.Event != "modified" {
		return
	}
	modified, err := protocol.UnmarshalConferenceModified(msg.Payload)
	if err != nil {
		logging.Error(context.Background(), "colibri: malformed bus reply", zap.Error(err))
		return
	}
	t.collector.Resolve(modified.ID, msg.Payload)
}

// Send publishes req to bridgeJID's request topic and blocks for the
// correlated reply on this instance's own topic, or until requestTimeout
// elapses.
func (t *BusTransport) Send(ctx context.Context, bridgeJID string, req *protocol.ConferenceModify) (*protocol.ConferenceModified, error) {
	if req.ID == "" {
		req.ID = protocol.NewStanzaID()
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	wait := t.collector.Prepare(req.ID)

	envelope := requestEnvelope{ReplyTo: replyTopic(t.selfID), Request: req}
	if err := t.bus.Publish(ctx, requestTopic(bridgeJID), "modify", envelope, t.selfID); err != nil {
		t.collector.Forget(req.ID)
		return nil, err
	}

	payload, err := wait(ctx)
	if err != nil {
		return nil, err
	}
	return protocol.UnmarshalConferenceModified(payload)
}

func requestTopic(bridgeJID string) string { return fmt.Sprintf("colibri.request.%s", bridgeJID) }
func replyTopic(selfID string) string      { return fmt.Sprintf("colibri.reply.%s", selfID) }
