package roomws

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/douglasnaphas/room-app-1/room-ws/connectiondao"
)

// ConnectionStore is the durable registry of live connections. All cross-call
// state lives here; no in-process map tracks membership, so any instance can
// serve any room's broadcast.
type ConnectionStore interface {
	Put(ctx context.Context, conn connectiondao.Connection) error
	Get(ctx context.Context, connectionID string) (*connectiondao.Connection, error)
	ListByRoom(ctx context.Context, roomCode string) ([]connectiondao.Connection, error)
	Delete(ctx context.Context, connectionID string) error
}

// Broadcaster fans a room event out to every member connection. Membership is
// read fresh from the store on every call; a member that joined after the
// scan started may miss that one event.
type Broadcaster struct {
	Connections  ConnectionStore
	Sender       Sender
	Logger       zerolog.Logger
	Concurrency  int           // max concurrent sends (default 50)
	MaxRetries   int           // transient-failure retries per target (default 2)
	RetryBackoff time.Duration // linear backoff between retries (default 100ms)
}

// Delivery summarizes one fan-out.
type Delivery struct {
	Targets   int
	Delivered int
	Evicted   int
	Dropped   int
}

type sendOutcome int

const (
	outcomeDelivered sendOutcome = iota
	outcomeEvicted
	outcomeDropped
)

// Broadcast delivers data to every member of a room, the sender included.
// Targets are independent: a gone target is evicted from the store without
// retry, a transiently failing target is retried a bounded number of times
// then dropped, and neither blocks or fails delivery to the rest. Delivery is
// best effort, at most once per live connection.
func (b *Broadcaster) Broadcast(ctx context.Context, roomCode string, data []byte) (Delivery, error) {
	targets, err := b.Connections.ListByRoom(ctx, roomCode)
	if err != nil {
		return Delivery{}, fmt.Errorf("listing connections for room %v: %w", roomCode, err)
	}
	if len(targets) == 0 {
		return Delivery{}, nil
	}

	concurrency := b.Concurrency
	if concurrency <= 0 {
		concurrency = 50
	}

	var delivered, evicted, dropped atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, target := range targets {
		target := target
		g.Go(func() error {
			switch b.sendWithRetry(ctx, target, data) {
			case outcomeDelivered:
				delivered.Add(1)
			case outcomeEvicted:
				evicted.Add(1)
			case outcomeDropped:
				dropped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return Delivery{
		Targets:   len(targets),
		Delivered: int(delivered.Load()),
		Evicted:   int(evicted.Load()),
		Dropped:   int(dropped.Load()),
	}, nil
}

func (b *Broadcaster) sendWithRetry(ctx context.Context, target connectiondao.Connection, data []byte) sendOutcome {
	retries := b.MaxRetries
	if retries <= 0 {
		retries = 2
	}
	backoff := b.RetryBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := b.Sender.Send(ctx, target.Endpoint, target.ConnectionID, data)
		if err == nil {
			return outcomeDelivered
		}

		if errors.Is(err, ErrGone) {
			b.Logger.Info().
				Str("connection_id", target.ConnectionID).
				Str("room", target.RoomCode).
				Msg("connection gone, evicting")
			if delErr := b.Connections.Delete(ctx, target.ConnectionID); delErr != nil {
				b.Logger.Error().Err(delErr).
					Str("connection_id", target.ConnectionID).
					Msg("failed to evict gone connection")
			}
			return outcomeEvicted
		}

		if attempt >= retries {
			b.Logger.Warn().Err(err).
				Str("connection_id", target.ConnectionID).
				Int("attempts", attempt+1).
				Msg("dropping undeliverable event")
			return outcomeDropped
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			b.Logger.Warn().
				Str("connection_id", target.ConnectionID).
				Msg("fan-out cancelled before retry")
			return outcomeDropped
		case <-timer.C:
		}
	}
}
