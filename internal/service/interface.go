package service

import (
	"context"

	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/internal/repository"
)

// StatusTracker applies delivery-state transitions.
type StatusTracker interface {
	MarkOne(ctx context.Context, messageID string, status domain.Status) (*domain.Message, error)
	// MarkConversationRead marks every unread message from fromUser to toUser
	// as read and returns the affected count. Repeating it is a no-op.
	MarkConversationRead(ctx context.Context, fromUser, toUser string) (int64, error)
	// MarkConversationDelivered moves sent messages from fromUser to toUser to delivered.
	MarkConversationDelivered(ctx context.Context, fromUser, toUser string) (int64, error)
}

// ConversationService derives per-user conversation summaries.
type ConversationService interface {
	List(ctx context.Context, userID string) ([]domain.Conversation, error)
	// ListAssigned restricts the list to the user's assigned counterparts,
	// with placeholders for those without history.
	ListAssigned(ctx context.Context, userID string) ([]domain.Conversation, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	Invalidate(ctx context.Context, userIDs ...string)
}

// MessagingService orchestrates sending, reading and history.
type MessagingService interface {
	SendMessage(ctx context.Context, origin domain.Origin, senderID string, req *domain.SendMessageRequest) (*domain.Message, error)
	MarkRead(ctx context.Context, origin domain.Origin, readerID, counterpartID string) (int64, error)
	History(ctx context.Context, callerID, counterpartID string, order repository.SortOrder) ([]domain.Message, error)
	Inbox(ctx context.Context, userID string, statuses []domain.Status) ([]domain.Message, error)
	UpdateStatus(ctx context.Context, messageID string, status domain.Status) (*domain.Message, error)
}

// Router delivers events to rooms. Delivery is fire-and-forget.
type Router interface {
	RouteMessage(ctx context.Context, msg *domain.Message, origin domain.Origin)
	RouteReadReceipt(ctx context.Context, counterpartID string, receipt *domain.MessagesReadPayload)
}
