package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/autoschool-chat/pkg/log"
)

// RedisPubSub relays events over Redis PUBLISH / PSUBSCRIBE.
type RedisPubSub struct {
	client *redis.Client
	subs   []*redis.PubSub
	mu     sync.Mutex
}

func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPubSub{client: client}, nil
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return r.client.Publish(ctx, channel, data).Err()
}

// SubscribePattern returns once Redis has confirmed the subscription, so
// events published afterwards are never missed.
func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	sub := r.client.PSubscribe(ctx, pattern)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to confirm subscription to %s: %w", pattern, err)
	}

	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()

	events := make(chan *Event, 100)
	go r.forward(ctx, sub, events)

	return events, nil
}

func (r *RedisPubSub) forward(ctx context.Context, sub *redis.PubSub, events chan<- *Event) {
	defer close(events)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			event, err := decodeEvent([]byte(msg.Payload), msg.Channel)
			if err != nil {
				l := log.L()
				l.Warn().Err(err).Str("channel", msg.Channel).Msg("redis pubsub: failed to unmarshal event")
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			default:
				l := log.L()
				l.Warn().Str("channel", msg.Channel).Msg("redis pubsub: subscriber lagging, event dropped")
			}
		}
	}
}

// Close ends every subscription and the Redis client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subs {
		sub.Close()
	}
	r.subs = nil

	return r.client.Close()
}
