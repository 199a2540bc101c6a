package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/autoschool-chat/internal/cache"
	"github.com/weiawesome/autoschool-chat/internal/config"
	"github.com/weiawesome/autoschool-chat/internal/domain"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func msgAt(id, from, to string, at time.Time, status domain.Status) domain.Message {
	return domain.Message{ID: id, Sender: from, Receiver: to, Content: id, Type: domain.MessageTypeText, Status: status, CreatedAt: at}
}

func TestAggregate_OnePerCounterpartWithLatest(t *testing.T) {
	messages := []domain.Message{
		msgAt("01", "u1", "u2", base, domain.StatusRead),
		msgAt("02", "u2", "u1", base.Add(2*time.Minute), domain.StatusSent),
		msgAt("03", "u2", "u1", base.Add(time.Minute), domain.StatusDelivered),
		msgAt("04", "u3", "u1", base.Add(5*time.Minute), domain.StatusRead),
		msgAt("05", "u1", "u4", base.Add(3*time.Minute), domain.StatusSent),
	}

	convs := Aggregate("u1", messages, nil)
	require.Len(t, convs, 3)

	assert.Equal(t, []string{"u3", "u4", "u2"}, []string{convs[0].CounterpartID, convs[1].CounterpartID, convs[2].CounterpartID})

	byID := make(map[string]domain.Conversation)
	for _, c := range convs {
		_, dup := byID[c.CounterpartID]
		assert.False(t, dup)
		byID[c.CounterpartID] = c
	}
	assert.Equal(t, "02", byID["u2"].LastMessage.ID)
	assert.Equal(t, int64(2), byID["u2"].UnreadCount)
	assert.Equal(t, int64(0), byID["u3"].UnreadCount)
	// Messages u1 sent are never unread for u1.
	assert.Equal(t, int64(0), byID["u4"].UnreadCount)
}

func TestAggregate_TieBreaks(t *testing.T) {
	messages := []domain.Message{
		msgAt("0B", "u2", "u1", base, domain.StatusSent),
		msgAt("0A", "u2", "u1", base, domain.StatusSent),
		msgAt("0C", "u3", "u1", base, domain.StatusSent),
	}

	convs := Aggregate("u1", messages, nil)
	require.Len(t, convs, 2)
	// Within u2, equal timestamps pick the greater id.
	assert.Equal(t, "0B", convs[0].LastMessage.ID)
	// Across groups, equal recency orders by id ascending.
	assert.Equal(t, "u2", convs[0].CounterpartID)
	assert.Equal(t, "u3", convs[1].CounterpartID)
}

func TestAggregate_AllowList(t *testing.T) {
	messages := []domain.Message{
		msgAt("01", "u2", "u1", base, domain.StatusSent),
		msgAt("02", "u3", "u1", base.Add(time.Minute), domain.StatusSent),
	}

	convs := Aggregate("u1", messages, []string{"u9", "u2", "u5", "u2"})
	require.Len(t, convs, 3)
	assert.Equal(t, "u2", convs[0].CounterpartID)
	assert.NotNil(t, convs[0].LastMessage)

	assert.Equal(t, "u5", convs[1].CounterpartID)
	assert.Nil(t, convs[1].LastMessage)
	assert.Equal(t, int64(0), convs[1].UnreadCount)
	assert.Equal(t, "u9", convs[2].CounterpartID)

	assert.Empty(t, Aggregate("u1", messages, []string{}))
}

func TestConversationService_List(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.insert(t, "01", "u1", "u2", base, domain.StatusRead)
	f.insert(t, "02", "u2", "u1", base.Add(time.Minute), domain.StatusSent)
	f.insert(t, "03", "u3", "u1", base.Add(-time.Hour), domain.StatusSent)

	convs, err := f.conversations.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 2)

	assert.Equal(t, "u2", convs[0].CounterpartID)
	assert.Equal(t, "Bo", convs[0].User.FirstName)
	assert.Equal(t, "02", convs[0].LastMessage.ID)
	assert.Equal(t, int64(1), convs[0].UnreadCount)

	assert.Equal(t, &domain.Profile{ID: "u3"}, convs[1].User)

	n, err := f.conversations.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestConversationService_ListAssigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create([]domain.AssignmentModel{
		{InstructorID: "u2", CandidateID: "u1", Active: true},
		{InstructorID: "u2", CandidateID: "c7", Active: true},
	}).Error)
	f.insert(t, "01", "u1", "u2", base, domain.StatusSent)
	f.insert(t, "02", "u2", "u9", base, domain.StatusSent)

	convs, err := f.conversations.ListAssigned(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "u1", convs[0].CounterpartID)
	assert.Equal(t, int64(1), convs[0].UnreadCount)
	assert.Equal(t, "c7", convs[1].CounterpartID)
	assert.Nil(t, convs[1].LastMessage)
}

func TestConversationService_CacheInvalidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	convCache, err := cache.NewRedisConversationCache(config.RedisConfig{Address: mr.Addr()}, "test")
	require.NoError(t, err)
	defer convCache.Close()

	conversations := NewConversationService(f.repo, f.dir, f.dir, convCache, time.Minute)
	messaging := NewMessagingService(f.repo, f.tracker, conversations, f.dir, f.router, nil)

	_, err = messaging.SendMessage(ctx, domain.Origin{}, "u2", &domain.SendMessageRequest{Receiver: "u1", Content: "first"})
	require.NoError(t, err)

	convs, err := conversations.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, int64(1), convs[0].UnreadCount)

	// The cache write is asynchronous.
	require.Eventually(t, func() bool {
		_, err := convCache.Get(ctx, "u1", cache.ScopeAll)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	_, err = messaging.SendMessage(ctx, domain.Origin{}, "u2", &domain.SendMessageRequest{Receiver: "u1", Content: "second"})
	require.NoError(t, err)

	convs, err = conversations.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "second", convs[0].LastMessage.Content)
	assert.Equal(t, int64(2), convs[0].UnreadCount)
}

// slowFillCache delays every fill so invalidations can overtake it.
type slowFillCache struct {
	cache.ConversationCache
	delay time.Duration
}

func (c *slowFillCache) Set(ctx context.Context, userID, scope string, conversations []domain.Conversation, ttl time.Duration, gen int64) error {
	time.Sleep(c.delay)
	return c.ConversationCache.Set(ctx, userID, scope, conversations, ttl, gen)
}

func TestConversationService_SlowFillDoesNotOverwriteInvalidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisConversationCache(config.RedisConfig{Address: mr.Addr()}, "test")
	require.NoError(t, err)
	defer redisCache.Close()

	conversations := NewConversationService(f.repo, f.dir, f.dir, &slowFillCache{ConversationCache: redisCache, delay: 50 * time.Millisecond}, time.Minute)
	messaging := NewMessagingService(f.repo, f.tracker, conversations, f.dir, f.router, nil)

	_, err = messaging.SendMessage(ctx, domain.Origin{}, "u2", &domain.SendMessageRequest{Receiver: "u1", Content: "a"})
	require.NoError(t, err)

	convs, err := conversations.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, int64(1), convs[0].UnreadCount)

	// Lands while the fill for the first list is still pending.
	_, err = messaging.SendMessage(ctx, domain.Origin{}, "u2", &domain.SendMessageRequest{Receiver: "u1", Content: "b"})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	convs, err = conversations.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "b", convs[0].LastMessage.Content)
	assert.Equal(t, int64(2), convs[0].UnreadCount)

	require.Eventually(t, func() bool {
		got, err := redisCache.Get(ctx, "u1", cache.ScopeAll)
		return err == nil && len(got) == 1 && got[0].UnreadCount == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConversationService_LoadIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t)

	mr := miniredis.RunT(t)
	convCache, err := cache.NewRedisConversationCache(config.RedisConfig{Address: mr.Addr()}, "test")
	require.NoError(t, err)
	defer convCache.Close()

	conversations := NewConversationService(f.repo, f.dir, f.dir, convCache, time.Minute)
	f.insert(t, "01", "u2", "u1", base, domain.StatusSent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	convs, err := conversations.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "01", convs[0].LastMessage.ID)
}
