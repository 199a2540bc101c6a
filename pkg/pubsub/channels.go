package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming conventions for the chat relay. Every gateway instance
// publishes room broadcasts on a per-room channel and subscribes to the
// wildcard pattern so it can fan the payload out to its local members.
const (
	// Gateway -> Gateway channels
	ChannelRoomToGateway = "chat:room:%s:to_gateway"

	// PatternRoomToGateway matches every room relay channel.
	PatternRoomToGateway = "chat:room:*:to_gateway"
)

// Event types for Gateway -> Gateway communication.
const (
	EventRoomBroadcast = "room_broadcast"
)

// RoomToGatewayChannel returns the relay channel for a room.
func RoomToGatewayChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomToGateway, roomID)
}

// RoomFromChannel extracts the room id from a relay channel name.
// Room names may themselves contain ':' so everything between the
// fixed prefix and suffix is returned.
func RoomFromChannel(channel string) (string, bool) {
	const prefix, suffix = "chat:room:", ":to_gateway"
	if !strings.HasPrefix(channel, prefix) || !strings.HasSuffix(channel, suffix) {
		return "", false
	}
	room := strings.TrimSuffix(strings.TrimPrefix(channel, prefix), suffix)
	return room, room != ""
}

// Event payloads for Gateway -> Gateway.

// RoomBroadcastPayload carries an already encoded client frame.
type RoomBroadcastPayload struct {
	Origin  string `json:"origin"`            // instance id of the publisher
	Exclude string `json:"exclude,omitempty"` // connection id to skip
	Frame   []byte `json:"frame"`
}
