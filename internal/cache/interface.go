package cache

import (
	"context"
	"time"

	"github.com/weiawesome/autoschool-chat/internal/domain"
)

// ConversationCache stores computed conversation lists per user and scope.
//
// Every user carries a generation that Invalidate advances. A list computed
// after reading generation gen is only stored while the user is still at gen,
// so a slow fill cannot resurrect a list computed before an invalidation.
type ConversationCache interface {
	Get(ctx context.Context, userID, scope string) ([]domain.Conversation, error)
	Generation(ctx context.Context, userID string) (int64, error)
	// Set returns ErrStale when userID moved past gen.
	Set(ctx context.Context, userID, scope string, conversations []domain.Conversation, ttl time.Duration, gen int64) error
	// Invalidate drops every cached scope for the given users.
	Invalidate(ctx context.Context, userIDs ...string) error
	Close() error
}
