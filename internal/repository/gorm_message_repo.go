package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db        *gorm.DB
	opTimeout time.Duration
}

// NewGormMessageRepository creates a new GORM-based message repository.
// Every call runs under opTimeout when it is positive.
func NewGormMessageRepository(db *gorm.DB, opTimeout time.Duration) *GormMessageRepository {
	return &GormMessageRepository{db: db, opTimeout: opTimeout}
}

func (r *GormMessageRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func toDomainList(models []domain.MessageModel) []domain.Message {
	messages := make([]domain.Message, len(models))
	for i := range models {
		messages[i] = *models[i].ToDomain()
	}
	return messages
}

// Create validates and stores a new message with status sent.
func (r *GormMessageRepository) Create(ctx context.Context, draft *domain.Draft) (*domain.Message, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	l := log.Ctx(ctx)

	model := domain.DraftToModel(ulid.Make().String(), draft, time.Now().UTC())
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Msg("failed to create message in db")
		return nil, fmt.Errorf("create message: %w", err)
	}

	l.Debug().Str(log.FieldMessageID, model.ID).Msg("message created in db")
	return model.ToDomain(), nil
}

func (r *GormMessageRepository) getByID(ctx context.Context, id string) (*domain.Message, error) {
	var model domain.MessageModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldMessageID, id).Msg("failed to get message by id")
		return nil, fmt.Errorf("get message: %w", result.Error)
	}
	return model.ToDomain(), nil
}

// FindByParticipants returns the direct history between a and b.
func (r *GormMessageRepository) FindByParticipants(ctx context.Context, a, b string, order SortOrder) ([]domain.Message, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	l := log.Ctx(ctx)

	dir := "ASC"
	if order == SortDesc {
		dir = "DESC"
	}

	var models []domain.MessageModel
	result := r.db.WithContext(ctx).
		Where("is_group = ?", false).
		Where("(sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)", a, b, b, a).
		Order("created_at " + dir).
		Order("id " + dir).
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldUserID, a).Str(log.FieldCounterpartID, b).Msg("failed to find messages by participants")
		return nil, fmt.Errorf("find by participants: %w", result.Error)
	}

	return toDomainList(models), nil
}

func (r *GormMessageRepository) recipientQuery(ctx context.Context, userID string, filter RecipientFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&domain.MessageModel{}).Where("receiver = ?", userID)
	if len(filter.StatusIn) > 0 {
		query = query.Where("status IN ?", statusStrings(filter.StatusIn))
	}
	if filter.Sender != "" {
		query = query.Where("sender = ?", filter.Sender)
	}
	return query
}

// FindByRecipient returns messages addressed to userID, oldest first.
func (r *GormMessageRepository) FindByRecipient(ctx context.Context, userID string, filter RecipientFilter) ([]domain.Message, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	l := log.Ctx(ctx)

	var models []domain.MessageModel
	if err := r.recipientQuery(ctx, userID, filter).Order("created_at ASC").Order("id ASC").Find(&models).Error; err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to find messages by recipient")
		return nil, fmt.Errorf("find by recipient: %w", err)
	}

	return toDomainList(models), nil
}

// CountByRecipient counts messages addressed to userID.
func (r *GormMessageRepository) CountByRecipient(ctx context.Context, userID string, filter RecipientFilter) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	l := log.Ctx(ctx)

	var count int64
	if err := r.recipientQuery(ctx, userID, filter).Count(&count).Error; err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to count messages by recipient")
		return 0, fmt.Errorf("count by recipient: %w", err)
	}
	return count, nil
}

// FindByParticipant returns every direct message userID sent or received.
func (r *GormMessageRepository) FindByParticipant(ctx context.Context, userID string) ([]domain.Message, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	l := log.Ctx(ctx)

	var models []domain.MessageModel
	result := r.db.WithContext(ctx).
		Where("is_group = ?", false).
		Where("sender = ? OR receiver = ?", userID, userID).
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldUserID, userID).Msg("failed to find messages by participant")
		return nil, fmt.Errorf("find by participant: %w", result.Error)
	}

	return toDomainList(models), nil
}

// UpdateStatus applies a single status transition as one conditional update,
// then re-reads the row to classify a miss.
func (r *GormMessageRepository) UpdateStatus(ctx context.Context, id string, status domain.Status, allowRegression bool) (*domain.Message, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	l := log.Ctx(ctx)

	query := r.db.WithContext(ctx).Model(&domain.MessageModel{}).Where("id = ?", id)
	if allowRegression {
		query = query.Where("status <> ?", string(status))
	} else {
		below := status.Below()
		if len(below) == 0 {
			// Nothing ranks below sent, so the only outcome is a no-op or a regression.
			query = query.Where("1 = 0")
		} else {
			query = query.Where("status IN ?", statusStrings(below))
		}
	}

	result := query.Updates(map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldMessageID, id).Msg("failed to update message status")
		return nil, fmt.Errorf("update status: %w", result.Error)
	}

	current, err := r.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 && current.Status != status {
		return current, ErrStatusRegression
	}

	l.Debug().Str(log.FieldMessageID, id).Str("status", string(status)).Int64("affected", result.RowsAffected).Msg("message status updated")
	return current, nil
}

// BulkUpdateStatus transitions a whole direct conversation in one statement.
func (r *GormMessageRepository) BulkUpdateStatus(ctx context.Context, sender, receiver string, fromStatuses []domain.Status, status domain.Status) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("sender = ? AND receiver = ? AND is_group = ?", sender, receiver, false).
		Where("status IN ?", statusStrings(fromStatuses)).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str("sender", sender).Str("receiver", receiver).Msg("failed to bulk update message status")
		return 0, fmt.Errorf("bulk update status: %w", result.Error)
	}

	return result.RowsAffected, nil
}
