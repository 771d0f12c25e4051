package roomws

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tj/assert"

	"github.com/douglasnaphas/room-app-1/room-ws/connectiondao"
)

func newTestBroadcaster(store *fakeStore, sender *fakeSender) *Broadcaster {
	return &Broadcaster{
		Connections:  store,
		Sender:       sender,
		Logger:       zerolog.Nop(),
		Concurrency:  4,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}
}

func seed(store *fakeStore, roomCode string, connIDs ...string) {
	for _, connID := range connIDs {
		store.conns[connID] = connectiondao.Connection{
			ConnectionID: connID,
			RoomCode:     roomCode,
			Endpoint:     "https://example.com/ws",
		}
	}
}

func TestBroadcast(t *testing.T) {
	payload := []byte(`{"room":"R7","sender":"s","sentAt":1,"payload":{}}`)

	t.Run("delivers to every member", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		seed(store, "R7", "conn-a", "conn-b", "conn-c")

		delivery, err := newTestBroadcaster(store, sender).Broadcast(context.Background(), "R7", payload)
		assert.NoError(t, err)
		assert.Equal(t, Delivery{Targets: 3, Delivered: 3}, delivery)
	})

	t.Run("empty room is a no-op", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()

		delivery, err := newTestBroadcaster(store, sender).Broadcast(context.Background(), "R7", payload)
		assert.NoError(t, err)
		assert.Equal(t, Delivery{}, delivery)
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		seed(store, "R7", "conn-a")
		sender.fail("conn-a", fmt.Errorf("throttled"))

		delivery, err := newTestBroadcaster(store, sender).Broadcast(context.Background(), "R7", payload)
		assert.NoError(t, err)
		assert.Equal(t, Delivery{Targets: 1, Delivered: 1}, delivery)
		assert.Equal(t, 2, sender.attemptCount("conn-a"))
	})

	t.Run("retries are bounded", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		seed(store, "R7", "conn-a")
		sender.fail("conn-a", fmt.Errorf("throttled"), fmt.Errorf("throttled"), fmt.Errorf("throttled"))

		delivery, err := newTestBroadcaster(store, sender).Broadcast(context.Background(), "R7", payload)
		assert.NoError(t, err)
		assert.Equal(t, Delivery{Targets: 1, Dropped: 1}, delivery)
		assert.Equal(t, 3, sender.attemptCount("conn-a"))
	})

	t.Run("gone target evicted exactly once, no retry", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		seed(store, "R7", "conn-a", "conn-b")
		sender.fail("conn-a", fmt.Errorf("posting: %w", ErrGone))

		delivery, err := newTestBroadcaster(store, sender).Broadcast(context.Background(), "R7", payload)
		assert.NoError(t, err)
		assert.Equal(t, Delivery{Targets: 2, Delivered: 1, Evicted: 1}, delivery)
		assert.Equal(t, 1, sender.attemptCount("conn-a"))
		assert.False(t, store.has("conn-a"))
		assert.True(t, store.has("conn-b"))
	})

	t.Run("membership is read fresh per broadcast", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		seed(store, "R7", "conn-a", "conn-b")
		b := newTestBroadcaster(store, sender)

		_, err := b.Broadcast(context.Background(), "R7", payload)
		assert.NoError(t, err)
		assert.Equal(t, 1, sender.attemptCount("conn-b"))

		assert.NoError(t, store.Delete(context.Background(), "conn-b"))

		delivery, err := b.Broadcast(context.Background(), "R7", payload)
		assert.NoError(t, err)
		assert.Equal(t, Delivery{Targets: 1, Delivered: 1}, delivery)
		assert.Equal(t, 1, sender.attemptCount("conn-b"))
	})

	t.Run("cancelled context drops instead of stalling", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		seed(store, "R7", "conn-a")
		sender.fail("conn-a", fmt.Errorf("throttled"))

		b := newTestBroadcaster(store, sender)
		b.RetryBackoff = time.Minute

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		delivery, err := b.Broadcast(ctx, "R7", payload)
		assert.NoError(t, err)
		assert.Equal(t, Delivery{Targets: 1, Dropped: 1}, delivery)
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		store := newFakeStore()
		store.listErr = fmt.Errorf("dynamodb down")

		_, err := newTestBroadcaster(store, newFakeSender()).Broadcast(context.Background(), "R7", payload)
		assert.Error(t, err)
	})
}
