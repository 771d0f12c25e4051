package roomws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/douglasnaphas/room-app-1/room-ws/connectiondao"
)

// Event is the envelope fanned out to every member of a room. The payload is
// whatever the sending client supplied, passed through opaquely: valid JSON
// is carried unchanged, anything else is carried as a JSON string.
type Event struct {
	Room    string          `json:"room"`
	Sender  string          `json:"sender"`
	Name    string          `json:"name,omitempty"`
	SentAt  int64           `json:"sentAt"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent wraps an inbound message body in an Event attributed to the
// sending connection.
func NewEvent(conn connectiondao.Connection, body string) Event {
	return newEvent(conn.RoomCode, conn.ConnectionID, conn.DisplayName, body)
}

// NewServerEvent wraps a server-originated message body in an Event with the
// reserved sender "server".
func NewServerEvent(roomCode, body string) Event {
	return newEvent(roomCode, "server", "", body)
}

func newEvent(roomCode, sender, name, body string) Event {
	payload := json.RawMessage(body)
	if !json.Valid(payload) {
		quoted, _ := json.Marshal(body)
		payload = quoted
	}
	return Event{
		Room:    roomCode,
		Sender:  sender,
		Name:    name,
		SentAt:  time.Now().Unix(),
		Payload: payload,
	}
}

// Marshal serializes the event for delivery.
func (e Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshalling event: %w", err)
	}
	return data, nil
}

// ParseEvent parses a serialized event.
func ParseEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	if e.Room == "" {
		return nil, fmt.Errorf("missing room")
	}
	return &e, nil
}
