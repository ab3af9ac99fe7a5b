package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ResolveDeliversPayload(t *testing.T) {
	c := NewCollector()
	id := NewStanzaID()

	done := make(chan struct{})
	var got []byte
	var gotErr error
	go func() {
		got, gotErr = c.Await(context.Background(), id)
		close(done)
	}()

	// Give Await a chance to register before resolving.
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, c.Pending())
	c.Resolve(id, []byte("payload"))

	<-done
	assert.NoError(t, gotErr)
	assert.Equal(t, "payload", string(got))
	assert.Equal(t, 0, c.Pending())
}

func TestCollector_ResolveError(t *testing.T) {
	c := NewCollector()
	id := NewStanzaID()

	done := make(chan struct{})
	var gotErr error
	go func() {
		_, gotErr = c.Await(context.Background(), id)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	sentErr := &StanzaError{Condition: ConditionItemNotFound}
	c.ResolveError(id, sentErr)

	<-done
	assert.Equal(t, sentErr, gotErr)
}

func TestCollector_TimesOut(t *testing.T) {
	c := NewCollector()
	id := NewStanzaID()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Await(ctx, id)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, c.Pending())
}

func TestCollector_ResolveWithoutWaiterIsNoop(t *testing.T) {
	c := NewCollector()
	assert.NotPanics(t, func() {
		c.Resolve("unknown-id", []byte("x"))
	})
}

func TestCollector_ConcurrentRequests(t *testing.T) {
	c := NewCollector()

	const n = 20
	ids := make([]string, n)
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		ids[i] = NewStanzaID()
		go func(id string) {
			payload, err := c.Await(context.Background(), id)
			assert.NoError(t, err)
			results <- string(payload)
		}(ids[i])
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, c.Pending())

	for _, id := range ids {
		c.Resolve(id, []byte(id))
	}
	for i := 0; i < n; i++ {
		<-results
	}
}
