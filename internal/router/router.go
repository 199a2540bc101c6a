package router

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/internal/hub"
	"github.com/weiawesome/autoschool-chat/pkg/log"
)

// Router resolves target rooms for an event and hands the encoded frame to
// the local hub and, when configured, to the cross-instance relay.
type Router struct {
	hub   *hub.Hub
	relay *Relay
}

// New creates a router. relay may be nil for a single instance deployment.
func New(h *hub.Hub, relay *Relay) *Router {
	return &Router{hub: h, relay: relay}
}

// RouteMessage fans a stored message out to the receiver's identity room,
// the group room for group messages, and the sender's own view.
func (r *Router) RouteMessage(ctx context.Context, msg *domain.Message, origin domain.Origin) {
	frame, err := json.Marshal(domain.NewEnvelope(domain.EventReceiveMessage, msg))
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to encode message frame")
		return
	}

	var targets []string
	if msg.Receiver != "" {
		targets = append(targets, msg.Receiver)
	}
	if msg.IsGroup && msg.Room != "" {
		targets = append(targets, msg.Room)
	}
	r.publish(ctx, targets, origin.ConnID, frame)

	// Sync echo: the originating connection, or every device of the sender
	// when the message did not come from a connection.
	if origin.FromConnection() {
		r.publish(ctx, []string{hub.ConnectionRoom(origin.ConnID)}, "", frame)
	} else if msg.Sender != "" && msg.Sender != msg.Receiver {
		r.publish(ctx, []string{msg.Sender}, "", frame)
	}

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldMessageID, msg.ID).
		Strs("rooms", targets).
		Bool("group", msg.IsGroup).
		Msg("message routed")
}

// RouteReadReceipt notifies the counterpart that their messages were read.
func (r *Router) RouteReadReceipt(ctx context.Context, counterpartID string, receipt *domain.MessagesReadPayload) {
	if domain.IsBlankName(counterpartID) {
		return
	}
	frame, err := json.Marshal(domain.NewEnvelope(domain.EventMessagesRead, receipt))
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to encode read receipt")
		return
	}
	r.publish(ctx, []string{counterpartID}, "", frame)
}

func (r *Router) publish(ctx context.Context, rooms []string, exclude string, frame []byte) {
	if len(rooms) == 0 {
		return
	}
	r.hub.BroadcastRaw(rooms, frame, exclude)

	if r.relay == nil {
		return
	}
	for _, room := range rooms {
		// Connection rooms only exist on the instance holding the socket.
		if strings.HasPrefix(room, hub.ConnectionRoomPrefix) {
			continue
		}
		r.relay.Publish(ctx, room, exclude, frame)
	}
}
