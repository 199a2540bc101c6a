package service

import (
	"context"
	"errors"

	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/internal/repository"
	"github.com/weiawesome/autoschool-chat/pkg/log"
)

type statusTrackerImpl struct {
	repo            repository.MessageRepository
	allowRegression bool
}

// NewStatusTracker creates a status tracker. With allowRegression set,
// MarkOne overwrites any status instead of rejecting backwards moves.
func NewStatusTracker(repo repository.MessageRepository, allowRegression bool) StatusTracker {
	return &statusTrackerImpl{
		repo:            repo,
		allowRegression: allowRegression,
	}
}

func (s *statusTrackerImpl) MarkOne(ctx context.Context, messageID string, status domain.Status) (*domain.Message, error) {
	if err := requireID("id", messageID); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, domain.NewValidationError("status", "status must be one of sent, delivered, read")
	}

	msg, err := s.repo.UpdateStatus(ctx, messageID, status, s.allowRegression)
	if err != nil {
		if errors.Is(err, repository.ErrStatusRegression) && msg != nil {
			l := log.Ctx(ctx)
			l.Info().Str(log.FieldMessageID, messageID).Str("from", string(msg.Status)).Str("to", string(status)).Msg("rejected status regression")
			return nil, domain.NewInvalidTransitionError(msg.Status, status)
		}
		return nil, mapRepoError(err)
	}
	return msg, nil
}

func (s *statusTrackerImpl) MarkConversationRead(ctx context.Context, fromUser, toUser string) (int64, error) {
	return s.bulk(ctx, fromUser, toUser, domain.UnreadStatuses, domain.StatusRead)
}

func (s *statusTrackerImpl) MarkConversationDelivered(ctx context.Context, fromUser, toUser string) (int64, error) {
	return s.bulk(ctx, fromUser, toUser, []domain.Status{domain.StatusSent}, domain.StatusDelivered)
}

func (s *statusTrackerImpl) bulk(ctx context.Context, fromUser, toUser string, from []domain.Status, to domain.Status) (int64, error) {
	if err := requireID("from", fromUser); err != nil {
		return 0, err
	}
	if err := requireID("to", toUser); err != nil {
		return 0, err
	}

	n, err := s.repo.BulkUpdateStatus(ctx, fromUser, toUser, from, to)
	if err != nil {
		return 0, mapRepoError(err)
	}

	if n > 0 {
		l := log.Ctx(ctx)
		l.Debug().Str("sender", fromUser).Str("receiver", toUser).Str("status", string(to)).Int64("affected", n).Msg("conversation status updated")
	}
	return n, nil
}
