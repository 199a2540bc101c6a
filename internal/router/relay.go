package router

import (
	"context"
	"time"

	"github.com/weiawesome/autoschool-chat/internal/hub"
	"github.com/weiawesome/autoschool-chat/pkg/log"
	"github.com/weiawesome/autoschool-chat/pkg/pubsub"
)

const relayPublishTimeout = 3 * time.Second

// Relay shares room broadcasts between gateway instances over pubsub.
// Events published by this instance are ignored on receipt since the local
// hub already delivered them.
type Relay struct {
	ps         pubsub.PubSub
	hub        *hub.Hub
	instanceID string
}

func NewRelay(ps pubsub.PubSub, h *hub.Hub, instanceID string) *Relay {
	return &Relay{ps: ps, hub: h, instanceID: instanceID}
}

// Publish sends frame to room on every other instance. It does not block the
// caller on the broker.
func (r *Relay) Publish(ctx context.Context, room, exclude string, frame []byte) {
	event, err := pubsub.NewEvent(pubsub.EventRoomBroadcast, room, pubsub.RoomBroadcastPayload{
		Origin:  r.instanceID,
		Exclude: exclude,
		Frame:   frame,
	})
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to build relay event")
		return
	}

	l := log.Ctx(ctx)
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
		defer cancel()
		if err := r.ps.Publish(pubCtx, pubsub.RoomToGatewayChannel(room), event); err != nil {
			l.Warn().Err(err).Str(log.FieldRoom, room).Msg("relay publish failed")
		}
	}()
}

// Start subscribes to every room channel and delivers foreign broadcasts to
// local members until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	events, err := r.ps.SubscribePattern(ctx, pubsub.PatternRoomToGateway)
	if err != nil {
		return err
	}

	go r.consume(ctx, events)

	l := log.L()
	l.Info().Str("instance_id", r.instanceID).Msg("room relay started")
	return nil
}

func (r *Relay) consume(ctx context.Context, events <-chan *pubsub.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			r.handle(event)
		}
	}
}

func (r *Relay) handle(event *pubsub.Event) {
	if event.Type != pubsub.EventRoomBroadcast || event.RoomID == "" {
		return
	}

	var payload pubsub.RoomBroadcastPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldRoom, event.RoomID).Msg("invalid relay payload")
		return
	}
	if payload.Origin == r.instanceID {
		return
	}

	r.hub.BroadcastRaw([]string{event.RoomID}, payload.Frame, payload.Exclude)
}

func (r *Relay) Close() error {
	return r.ps.Close()
}
