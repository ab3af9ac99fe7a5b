package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/jitsi/jicofo/internal/bus"
	"github.com/jitsi/jicofo/internal/logging"
)

// busConferenceNotifier implements store.ConferenceEndedListener, publishing
// a conference's end to every other jicofo instance sharing the bus. Nil-safe
// the same way colibri's bus transport is: a nil or disconnected bus just
// means single-instance mode, not an error.
type busConferenceNotifier struct {
	bus *bus.Service
}

func conferenceEndedTopic() string { return "jicofo.conferences.ended" }

func (n *busConferenceNotifier) ConferenceEnded(roomID string) {
	if n.bus == nil {
		return
	}
	ctx := context.Background()
	if err := n.bus.Publish(ctx, conferenceEndedTopic(), "ended", roomID, "jicofo"); err != nil {
		logging.Warn(ctx, "failed to publish conference-ended event", zap.String("conference_id", roomID), zap.Error(err))
	}
}
