package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/autoschool-chat/internal/domain"
)

var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrStatusRegression = errors.New("status regression")
)

// SortOrder orders history by creation time.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder converts a string to SortOrder, defaulting to ascending.
func ParseSortOrder(s string) SortOrder {
	if s == string(SortDesc) {
		return SortDesc
	}
	return SortAsc
}

// RecipientFilter narrows recipient queries. Empty fields match everything.
type RecipientFilter struct {
	StatusIn []domain.Status
	Sender   string
}

// MessageRepository defines the interface for message persistence.
type MessageRepository interface {
	Create(ctx context.Context, draft *domain.Draft) (*domain.Message, error)
	FindByParticipants(ctx context.Context, a, b string, order SortOrder) ([]domain.Message, error)
	FindByRecipient(ctx context.Context, userID string, filter RecipientFilter) ([]domain.Message, error)
	CountByRecipient(ctx context.Context, userID string, filter RecipientFilter) (int64, error)
	// FindByParticipant returns every direct message userID sent or received.
	FindByParticipant(ctx context.Context, userID string) ([]domain.Message, error)
	// UpdateStatus moves one message to status. Regressions fail with
	// ErrStatusRegression unless allowRegression is set; setting the current
	// status again is a no-op.
	UpdateStatus(ctx context.Context, id string, status domain.Status, allowRegression bool) (*domain.Message, error)
	// BulkUpdateStatus moves every direct message from sender to receiver whose
	// status is in fromStatuses to status, returning the affected count.
	BulkUpdateStatus(ctx context.Context, sender, receiver string, fromStatuses []domain.Status, status domain.Status) (int64, error)
}
