package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/autoschool-chat/internal/config"
	"github.com/weiawesome/autoschool-chat/internal/domain"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrStale     = errors.New("cache generation moved")
)

// generationTTL bounds how long an idle user's generation counter lives.
const generationTTL = 24 * time.Hour

// Scopes cached per user.
const (
	ScopeAll      = "all"
	ScopeAssigned = "assigned"
)

var scopes = []string{ScopeAll, ScopeAssigned}

type RedisConversationCache struct {
	client *redis.Client
	prefix string
}

func NewRedisConversationCache(cfg config.RedisConfig, prefix string) (*RedisConversationCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisConversationCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (c *RedisConversationCache) key(userID, scope string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, userID, scope)
}

func (c *RedisConversationCache) genKey(userID string) string {
	return fmt.Sprintf("%s:%s:gen", c.prefix, userID)
}

func (c *RedisConversationCache) Generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get generation from redis: %w", err)
	}
	return gen, nil
}

func (c *RedisConversationCache) Get(ctx context.Context, userID, scope string) ([]domain.Conversation, error) {
	data, err := c.client.Get(ctx, c.key(userID, scope)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var conversations []domain.Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return conversations, nil
}

func (c *RedisConversationCache) Set(ctx context.Context, userID, scope string, conversations []domain.Conversation, ttl time.Duration, gen int64) error {
	data, err := json.Marshal(conversations)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	genKey := c.genKey(userID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(userID, scope), data, ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStale), errors.Is(err, redis.TxFailedErr):
		return ErrStale
	default:
		return fmt.Errorf("failed to set in redis: %w", err)
	}
}

func (c *RedisConversationCache) Invalidate(ctx context.Context, userIDs ...string) error {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Incr(ctx, c.genKey(id))
			pipe.Expire(ctx, c.genKey(id), generationTTL)
			for _, scope := range scopes {
				pipe.Del(ctx, c.key(id, scope))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate in redis: %w", err)
	}
	return nil
}

func (c *RedisConversationCache) Close() error {
	return c.client.Close()
}
