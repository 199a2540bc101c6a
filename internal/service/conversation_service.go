package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/autoschool-chat/internal/cache"
	"github.com/weiawesome/autoschool-chat/internal/directory"
	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/internal/repository"
	"github.com/weiawesome/autoschool-chat/pkg/log"
)

type conversationServiceImpl struct {
	repo        repository.MessageRepository
	profiles    directory.ProfileDirectory
	assignments directory.AssignmentProvider
	cache       cache.ConversationCache
	cacheTTL    time.Duration
	sf          singleflight.Group
}

// NewConversationService creates the conversation aggregator. convCache and
// assignments may be nil.
func NewConversationService(
	repo repository.MessageRepository,
	profiles directory.ProfileDirectory,
	assignments directory.AssignmentProvider,
	convCache cache.ConversationCache,
	cacheTTL time.Duration,
) ConversationService {
	return &conversationServiceImpl{
		repo:        repo,
		profiles:    profiles,
		assignments: assignments,
		cache:       convCache,
		cacheTTL:    cacheTTL,
	}
}

func (s *conversationServiceImpl) List(ctx context.Context, userID string) ([]domain.Conversation, error) {
	if err := requireID("userId", userID); err != nil {
		return nil, err
	}
	return s.cached(ctx, userID, cache.ScopeAll, func(ctx context.Context) ([]domain.Conversation, error) {
		return s.build(ctx, userID, nil)
	})
}

func (s *conversationServiceImpl) ListAssigned(ctx context.Context, userID string) ([]domain.Conversation, error) {
	if err := requireID("userId", userID); err != nil {
		return nil, err
	}
	if s.assignments == nil {
		return s.List(ctx, userID)
	}
	return s.cached(ctx, userID, cache.ScopeAssigned, func(ctx context.Context) ([]domain.Conversation, error) {
		allow, err := s.assignments.Counterparts(ctx, userID)
		if err != nil {
			return nil, domain.NewStoreUnavailableError(err)
		}
		if allow == nil {
			allow = []string{}
		}
		return s.build(ctx, userID, allow)
	})
}

func (s *conversationServiceImpl) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if err := requireID("userId", userID); err != nil {
		return 0, err
	}
	n, err := s.repo.CountByRecipient(ctx, userID, repository.RecipientFilter{StatusIn: domain.UnreadStatuses})
	if err != nil {
		return 0, mapRepoError(err)
	}
	return n, nil
}

func (s *conversationServiceImpl) Invalidate(ctx context.Context, userIDs ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Strs("users", userIDs).Msg("cache invalidate error")
	}
}

// cached serves userID's list for scope from the cache, computing it with
// load on a miss. Concurrent callers share one load, which runs detached from
// the first caller's cancellation.
func (s *conversationServiceImpl) cached(ctx context.Context, userID, scope string, load func(context.Context) ([]domain.Conversation, error)) ([]domain.Conversation, error) {
	if s.cache == nil {
		return load(ctx)
	}

	key := userID + ":" + scope
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		l := log.Ctx(loadCtx)

		cached, err := s.cache.Get(loadCtx, userID, scope)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l.Warn().Err(err).Msg("cache get error")
		}

		// Read before loading so an invalidation during the load wins.
		gen, genErr := s.cache.Generation(loadCtx, userID)
		if genErr != nil {
			l.Warn().Err(genErr).Msg("cache generation error")
		}

		conversations, err := load(loadCtx)
		if err != nil {
			return nil, err
		}

		if genErr == nil {
			go s.fill(userID, scope, conversations, gen)
		}

		return conversations, nil
	})
	if err != nil {
		return nil, err
	}

	conversations, ok := result.([]domain.Conversation)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return conversations, nil
}

func (s *conversationServiceImpl) fill(userID, scope string, conversations []domain.Conversation, gen int64) {
	cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.cache.Set(cacheCtx, userID, scope, conversations, s.cacheTTL, gen)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrStale):
		l := log.L()
		l.Debug().Str(log.FieldUserID, userID).Msg("skipped stale cache fill")
	default:
		l := log.L()
		l.Warn().Err(err).Msg("cache set error")
	}
}

func (s *conversationServiceImpl) build(ctx context.Context, userID string, allow []string) ([]domain.Conversation, error) {
	messages, err := s.repo.FindByParticipant(ctx, userID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	conversations := Aggregate(userID, messages, allow)

	ids := make([]string, len(conversations))
	for i := range conversations {
		ids[i] = conversations[i].CounterpartID
	}
	profiles := lookupProfiles(ctx, s.profiles, ids)
	for i := range conversations {
		conversations[i].User = profiles[conversations[i].CounterpartID]
	}

	return conversations, nil
}

type conversationGroup struct {
	last   *domain.Message
	unread int64
}

// Aggregate groups userID's direct messages by counterpart in a single pass.
// The last message of a group is the one with the greatest CreatedAt, equal
// timestamps resolved by the greater id. Entries are ordered by last message
// recency descending, ties by last message id ascending.
//
// A non-nil allow restricts the output to exactly those counterparts;
// counterparts without history get a placeholder (nil LastMessage) and are
// listed after every entry with history, by id ascending.
func Aggregate(userID string, messages []domain.Message, allow []string) []domain.Conversation {
	groups := make(map[string]*conversationGroup)
	for i := range messages {
		m := &messages[i]
		counterpart := m.Counterpart(userID)
		if counterpart == "" {
			continue
		}

		g, ok := groups[counterpart]
		if !ok {
			g = &conversationGroup{}
			groups[counterpart] = g
		}
		if g.last == nil || m.CreatedAt.After(g.last.CreatedAt) ||
			(m.CreatedAt.Equal(g.last.CreatedAt) && m.ID > g.last.ID) {
			g.last = m
		}
		if m.Receiver == userID && m.Sender == counterpart && (m.Status == domain.StatusSent || m.Status == domain.StatusDelivered) {
			g.unread++
		}
	}

	var (
		withHistory  []domain.Conversation
		placeholders []domain.Conversation
	)
	if allow == nil {
		for id, g := range groups {
			withHistory = append(withHistory, newConversation(id, g))
		}
	} else {
		seen := make(map[string]bool, len(allow))
		for _, id := range allow {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			if g, ok := groups[id]; ok {
				withHistory = append(withHistory, newConversation(id, g))
			} else {
				placeholders = append(placeholders, domain.Conversation{CounterpartID: id})
			}
		}
	}

	sort.Slice(withHistory, func(i, j int) bool {
		a, b := withHistory[i].LastMessage, withHistory[j].LastMessage
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	sort.Slice(placeholders, func(i, j int) bool {
		return placeholders[i].CounterpartID < placeholders[j].CounterpartID
	})

	out := make([]domain.Conversation, 0, len(withHistory)+len(placeholders))
	out = append(out, withHistory...)
	return append(out, placeholders...)
}

func newConversation(id string, g *conversationGroup) domain.Conversation {
	last := *g.last
	return domain.Conversation{
		CounterpartID: id,
		LastMessage:   &last,
		UnreadCount:   g.unread,
	}
}

// lookupProfiles resolves ids to profiles, substituting a bare profile for
// ids the directory does not know or when the directory fails.
func lookupProfiles(ctx context.Context, dir directory.ProfileDirectory, ids []string) map[string]*domain.Profile {
	var found map[string]*domain.Profile
	if dir != nil && len(ids) > 0 {
		var err error
		found, err = dir.GetProfiles(ctx, ids)
		if err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("profile lookup failed, using bare profiles")
		}
	}

	out := make(map[string]*domain.Profile, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok && p != nil {
			out[id] = p
		} else {
			out[id] = &domain.Profile{ID: id}
		}
	}
	return out
}
