package clienttransport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsi/jicofo/internal/protocol"
)

func TestRouter_SendToRegisteredClient(t *testing.T) {
	conn := newFakeConn()
	session := &fakeSession{}
	client := NewClient(conn, session, "p1")
	// Client.Send only queues the frame; the write pump puts it on the socket.
	go client.writePump()
	defer client.shutdown()

	r := NewRouter()
	r.Register("p1", client)

	err := r.Send(context.Background(), "p1", &protocol.ClientMessage{Kind: protocol.ClientSourceAdd})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return conn.writtenCount() > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, conn.writtenCount())
}

func TestRouter_SendToUnknownParticipantErrors(t *testing.T) {
	r := NewRouter()
	err := r.Send(context.Background(), "ghost", &protocol.ClientMessage{})
	assert.Error(t, err)
}

func TestRouter_UnregisterOnlyRemovesMatchingClient(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	session := &fakeSession{}
	client1 := NewClient(conn1, session, "p1")
	client2 := NewClient(conn2, session, "p1")
	go client2.writePump()
	defer client2.shutdown()

	r := NewRouter()
	r.Register("p1", client1)
	r.Register("p1", client2) // newer connection replaces the old one

	r.Unregister("p1", client1) // stale; must not evict client2
	err := r.Send(context.Background(), "p1", &protocol.ClientMessage{Kind: protocol.ClientSourceAdd})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return conn2.writtenCount() > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, conn2.writtenCount())

	r.Unregister("p1", client2)
	err = r.Send(context.Background(), "p1", &protocol.ClientMessage{})
	assert.Error(t, err)
}
