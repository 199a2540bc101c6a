package router

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/autoschool-chat/internal/config"
	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/internal/hub"
	"github.com/weiawesome/autoschool-chat/pkg/pubsub"
)

var wsConfig = config.WebSocketConfig{
	PingInterval: time.Second,
	PongWait:     2 * time.Second,
	WriteWait:    time.Second,
	SendBuffer:   16,
}

func startHub(t *testing.T) *hub.Hub {
	t.Helper()
	h := hub.NewHub(wsConfig)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func connect(t *testing.T, h *hub.Hub, connID, userID string) *hub.Client {
	t.Helper()
	c := hub.NewClient(connID, domain.Identity{ID: userID, Source: domain.SourceUserObject}, h, nil, wsConfig)
	require.True(t, h.Register(c, userID, hub.ConnectionRoom(connID)))
	return c
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func next(t *testing.T, c *hub.Client) frame {
	t.Helper()
	select {
	case raw := <-c.Send:
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("connection %s received nothing", c.ID)
		return frame{}
	}
}

func silent(t *testing.T, c *hub.Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("connection %s unexpectedly received %s", c.ID, raw)
	case <-time.After(80 * time.Millisecond):
	}
}

func messageID(t *testing.T, f frame) string {
	t.Helper()
	var m domain.Message
	require.NoError(t, json.Unmarshal(f.Data, &m))
	return m.ID
}

func TestRouteMessage_Direct(t *testing.T) {
	h := startHub(t)
	senderDev1 := connect(t, h, "c1", "u1")
	senderDev2 := connect(t, h, "c2", "u1")
	receiver := connect(t, h, "c3", "u2")
	bystander := connect(t, h, "c4", "u3")

	r := New(h, nil)
	msg := &domain.Message{ID: "m1", Sender: "u1", Receiver: "u2", Content: "hi"}
	r.RouteMessage(context.Background(), msg, domain.Origin{ConnID: "c1", UserID: "u1"})

	got := next(t, receiver)
	assert.Equal(t, domain.EventReceiveMessage, got.Type)
	assert.Equal(t, "m1", messageID(t, got))

	echo := next(t, senderDev1)
	assert.Equal(t, "m1", messageID(t, echo))

	silent(t, senderDev2)
	silent(t, bystander)
}

func TestRouteMessage_GroupExcludesOrigin(t *testing.T) {
	h := startHub(t)
	sender := connect(t, h, "c1", "u1")
	member := connect(t, h, "c2", "u2")
	outsider := connect(t, h, "c3", "u3")
	require.True(t, h.JoinRoom(sender, "lesson-7"))
	require.True(t, h.JoinRoom(member, "lesson-7"))

	r := New(h, nil)
	msg := &domain.Message{ID: "g1", Sender: "u1", Content: "hello class", IsGroup: true, Room: "lesson-7"}
	r.RouteMessage(context.Background(), msg, domain.Origin{ConnID: "c1", UserID: "u1"})

	assert.Equal(t, "g1", messageID(t, next(t, member)))
	// Only the sync echo reaches the sender.
	assert.Equal(t, "g1", messageID(t, next(t, sender)))
	silent(t, sender)
	silent(t, outsider)
}

func TestRouteMessage_RESTOriginEchoesToSenderDevices(t *testing.T) {
	h := startHub(t)
	d1 := connect(t, h, "c1", "u1")
	d2 := connect(t, h, "c2", "u1")
	receiver := connect(t, h, "c3", "u2")

	r := New(h, nil)
	r.RouteMessage(context.Background(), &domain.Message{ID: "m2", Sender: "u1", Receiver: "u2"}, domain.Origin{UserID: "u1"})

	assert.Equal(t, "m2", messageID(t, next(t, receiver)))
	assert.Equal(t, "m2", messageID(t, next(t, d1)))
	assert.Equal(t, "m2", messageID(t, next(t, d2)))
}

func TestRouteReadReceipt(t *testing.T) {
	h := startHub(t)
	counterpart := connect(t, h, "c1", "u2")
	reader := connect(t, h, "c2", "u1")

	r := New(h, nil)
	r.RouteReadReceipt(context.Background(), "u2", &domain.MessagesReadPayload{ReaderID: "u1", ConversationID: "u1", Count: 3})
	r.RouteReadReceipt(context.Background(), "", &domain.MessagesReadPayload{ReaderID: "u1"})

	got := next(t, counterpart)
	assert.Equal(t, domain.EventMessagesRead, got.Type)
	var receipt domain.MessagesReadPayload
	require.NoError(t, json.Unmarshal(got.Data, &receipt))
	assert.Equal(t, "u1", receipt.ReaderID)
	assert.EqualValues(t, 3, receipt.Count)
	silent(t, reader)
}

func TestRelay_CrossInstanceDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newInstance := func(id string) (*hub.Hub, *Router) {
		ps, err := pubsub.NewRedisPubSub(pubsub.RedisConfig{Address: mr.Addr()})
		require.NoError(t, err)
		t.Cleanup(func() { ps.Close() })

		h := startHub(t)
		relay := NewRelay(ps, h, id)
		require.NoError(t, relay.Start(ctx))
		return h, New(h, relay)
	}

	hubA, routerA := newInstance("a")
	hubB, _ := newInstance("b")

	sender := connect(t, hubA, "c1", "u1")
	receiverRemote := connect(t, hubB, "c2", "u2")
	senderRemote := connect(t, hubB, "c3", "u1")

	routerA.RouteMessage(ctx, &domain.Message{ID: "m3", Sender: "u1", Receiver: "u2"}, domain.Origin{ConnID: "c1", UserID: "u1"})

	assert.Equal(t, "m3", messageID(t, next(t, receiverRemote)))
	assert.Equal(t, "m3", messageID(t, next(t, sender)))
	// The connection room echo never leaves instance a.
	silent(t, senderRemote)
	silent(t, sender)
}
