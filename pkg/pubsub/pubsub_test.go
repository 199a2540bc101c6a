package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent_FillsRoomFromChannel(t *testing.T) {
	event, err := decodeEvent([]byte(`{"type":"room_broadcast","payload":{}}`), RoomToGatewayChannel("lesson:7"))
	require.NoError(t, err)
	assert.Equal(t, "lesson:7", event.RoomID)

	event, err = decodeEvent([]byte(`{"type":"room_broadcast","room_id":"u1"}`), RoomToGatewayChannel("other"))
	require.NoError(t, err)
	assert.Equal(t, "u1", event.RoomID)

	_, err = decodeEvent([]byte(`not json`), "")
	assert.Error(t, err)
}

func TestSanitizeGroupID(t *testing.T) {
	assert.Equal(t, "chat-relay-gw-1.local", sanitizeGroupID("chat-relay-gw 1.local"))
	assert.Equal(t, "a-b_c", sanitizeGroupID("a:b_c"))
}

func TestRoomFromChannel(t *testing.T) {
	room, ok := RoomFromChannel(RoomToGatewayChannel("lesson:7"))
	assert.True(t, ok)
	assert.Equal(t, "lesson:7", room)

	_, ok = RoomFromChannel("signal:room:x:to_media")
	assert.False(t, ok)
}

func TestRedisPubSub_PatternDelivery(t *testing.T) {
	mr := miniredis.RunT(t)

	ps, err := NewRedisPubSub(RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := ps.SubscribePattern(ctx, PatternRoomToGateway)
	require.NoError(t, err)

	evt, err := NewEvent(EventRoomBroadcast, "u2", RoomBroadcastPayload{Origin: "a", Frame: []byte(`{"type":"pong"}`)})
	require.NoError(t, err)
	require.NoError(t, ps.Publish(ctx, RoomToGatewayChannel("u2"), evt))

	select {
	case got := <-events:
		require.NotNil(t, got)
		assert.Equal(t, EventRoomBroadcast, got.Type)
		assert.Equal(t, "u2", got.RoomID)

		var payload RoomBroadcastPayload
		require.NoError(t, got.UnmarshalPayload(&payload))
		assert.Equal(t, "a", payload.Origin)
		assert.JSONEq(t, `{"type":"pong"}`, string(payload.Frame))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}
