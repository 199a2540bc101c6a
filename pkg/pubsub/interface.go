package pubsub

import (
	"context"
	"encoding/json"
	"time"
)

// Event is one relay message on the bus.
type Event struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType, roomID string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		RoomID:    roomID,
		Payload:   data,
		Timestamp: time.Now(),
	}, nil
}

// UnmarshalPayload unmarshals the event payload into the given struct.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// decodeEvent parses a wire event, filling the room from the channel name
// when the publisher left it out.
func decodeEvent(data []byte, channel string) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	if event.RoomID == "" {
		event.RoomID, _ = RoomFromChannel(channel)
	}
	return &event, nil
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

// PatternSubscriber delivers every event whose channel matches pattern until
// ctx is cancelled or the bus is closed.
type PatternSubscriber interface {
	SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error)
}

// PubSub is the transport behind the cross-instance room relay.
type PubSub interface {
	Publisher
	PatternSubscriber
	Close() error
}
