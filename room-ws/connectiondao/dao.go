package connectiondao

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// ErrNotFound indicates no record exists for the requested connection.
var ErrNotFound = errors.New("connection not found")

// ErrStoreUnavailable indicates a backing store I/O failure. Callers may
// treat the operation as retryable.
var ErrStoreUnavailable = errors.New("store unavailable")

// DAO provides access to the WebSocket connections table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new connections DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Connection{}),
		api:       api,
		tableName: tableName,
	}
}

// Put stores a connection record. Put is an idempotent insert-or-replace
// keyed by connection ID.
func (d *DAO) Put(ctx context.Context, conn Connection) error {
	if err := d.table.Put(conn).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to store connection %v: %w: %v", conn.ConnectionID, ErrStoreUnavailable, err)
	}
	return nil
}

// Get retrieves a connection record by ID. Returns ErrNotFound when no record
// exists.
func (d *DAO) Get(ctx context.Context, connectionID string) (*Connection, error) {
	var conn Connection
	if err := d.table.Get(connectionID).ScanWithContext(ctx, &conn); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, fmt.Errorf("connection %v: %w", connectionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get connection %v: %w: %v", connectionID, ErrStoreUnavailable, err)
	}
	return &conn, nil
}

// ListByRoom returns all connections currently registered in a room using the
// RoomIndex GSI. The read is eventually consistent; a connection that joined
// or left a moment ago may or may not be reflected.
func (d *DAO) ListByRoom(ctx context.Context, roomCode string) ([]Connection, error) {
	var conns []Connection
	err := d.table.Query("#RoomCode = ?", roomCode).
		IndexName("RoomIndex").
		FindAllWithContext(ctx, &conns)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections by room %v: %w: %v", roomCode, ErrStoreUnavailable, err)
	}
	return conns, nil
}

// Delete removes a connection record by ID. Deleting a non-existent key is
// not an error.
func (d *DAO) Delete(ctx context.Context, connectionID string) error {
	if err := d.table.Delete(connectionID).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to delete connection %v: %w: %v", connectionID, ErrStoreUnavailable, err)
	}
	return nil
}

// Count returns the number of connections in a room.
func (d *DAO) Count(ctx context.Context, roomCode string) (int64, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		IndexName:              aws.String("RoomIndex"),
		KeyConditionExpression: aws.String("room_code = :room"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":room": {S: aws.String(roomCode)},
		},
		Select: aws.String("COUNT"),
	}

	output, err := d.api.QueryWithContext(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("failed to count connections for room %v: %w: %v", roomCode, ErrStoreUnavailable, err)
	}

	return *output.Count, nil
}
