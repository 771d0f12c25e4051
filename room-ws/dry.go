package roomws

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/douglasnaphas/room-app-1/room-ws/connectiondao"
)

// DryStore wraps a ConnectionStore for --dry runs: reads pass through to the
// underlying store, writes are logged and skipped.
type DryStore struct {
	Store  ConnectionStore
	Logger zerolog.Logger
}

func (s *DryStore) Put(_ context.Context, conn connectiondao.Connection) error {
	s.Logger.Info().
		Str("connection_id", conn.ConnectionID).
		Str("room", conn.RoomCode).
		Msg("dry run, skipping connection write")
	return nil
}

func (s *DryStore) Get(ctx context.Context, connectionID string) (*connectiondao.Connection, error) {
	return s.Store.Get(ctx, connectionID)
}

func (s *DryStore) ListByRoom(ctx context.Context, roomCode string) ([]connectiondao.Connection, error) {
	return s.Store.ListByRoom(ctx, roomCode)
}

func (s *DryStore) Delete(_ context.Context, connectionID string) error {
	s.Logger.Info().
		Str("connection_id", connectionID).
		Msg("dry run, skipping connection delete")
	return nil
}
