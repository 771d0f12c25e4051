package connectiondao

// Connection represents one live WebSocket connection stored in DynamoDB.
// RoomCode is immutable after creation; switching rooms requires a reconnect.
type Connection struct {
	ConnectionID string `dynamodbav:"pk" ddb:"hash"`
	RoomCode     string `dynamodbav:"room_code" ddb:"gsi_hash:RoomIndex"`
	DisplayName  string `dynamodbav:"display_name"`
	Endpoint     string `dynamodbav:"endpoint"`
	ConnectedAt  int64  `dynamodbav:"connected_at"`
	TTL          int64  `dynamodbav:"ttl"`
}
