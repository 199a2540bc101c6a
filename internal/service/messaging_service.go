package service

import (
	"context"
	"strings"

	"github.com/weiawesome/autoschool-chat/internal/audit"
	"github.com/weiawesome/autoschool-chat/internal/directory"
	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/internal/kafka"
	"github.com/weiawesome/autoschool-chat/internal/repository"
	"github.com/weiawesome/autoschool-chat/pkg/log"
)

type messagingServiceImpl struct {
	repo          repository.MessageRepository
	tracker       StatusTracker
	conversations ConversationService
	profiles      directory.ProfileDirectory
	router        Router
	events        kafka.EventProducer
}

// NewMessagingService creates the messaging façade. A nil events producer
// disables domain events.
func NewMessagingService(
	repo repository.MessageRepository,
	tracker StatusTracker,
	conversations ConversationService,
	profiles directory.ProfileDirectory,
	router Router,
	events kafka.EventProducer,
) MessagingService {
	if events == nil {
		events = kafka.NoopProducer{}
	}
	return &messagingServiceImpl{
		repo:          repo,
		tracker:       tracker,
		conversations: conversations,
		profiles:      profiles,
		router:        router,
		events:        events,
	}
}

// SendMessage validates, persists and routes a message. The returned error
// is always a *domain.Error.
func (s *messagingServiceImpl) SendMessage(ctx context.Context, origin domain.Origin, senderID string, req *domain.SendMessageRequest) (*domain.Message, error) {
	draft := &domain.Draft{
		Sender:     strings.TrimSpace(senderID),
		Receiver:   strings.TrimSpace(req.Receiver),
		Room:       strings.TrimSpace(req.Room),
		Content:    req.Content,
		Type:       req.InferType(),
		Attachment: req.ResolveAttachment(),
		IsGroup:    req.IsGroup,
	}
	if domain.IsBlankName(draft.Receiver) {
		draft.Receiver = ""
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	msg, err := s.repo.Create(ctx, draft)
	if err != nil {
		return nil, mapRepoError(err)
	}

	ids := []string{msg.Sender}
	if msg.Receiver != "" {
		ids = append(ids, msg.Receiver)
	}
	profiles := lookupProfiles(ctx, s.profiles, ids)
	msg.SenderProfile = profiles[msg.Sender]
	if msg.Receiver != "" {
		msg.ReceiverProfile = profiles[msg.Receiver]
	}

	s.conversations.Invalidate(ctx, msg.Sender, msg.Receiver)
	s.router.RouteMessage(ctx, msg, origin)

	if err := s.events.MessageCreated(ctx, msg); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to publish message event")
	}

	audit.LogWithDetail(ctx, audit.ActionSendMessage, msg.Sender, msg.ID, "message sent")
	return msg, nil
}

// MarkRead marks the counterpart's messages to the reader as read and
// notifies the counterpart's room.
func (s *messagingServiceImpl) MarkRead(ctx context.Context, origin domain.Origin, readerID, counterpartID string) (int64, error) {
	n, err := s.tracker.MarkConversationRead(ctx, counterpartID, readerID)
	if err != nil {
		return 0, err
	}

	receipt := &domain.MessagesReadPayload{
		ReaderID:       readerID,
		ConversationID: readerID,
		Count:          n,
	}
	s.router.RouteReadReceipt(ctx, counterpartID, receipt)

	if n > 0 {
		s.conversations.Invalidate(ctx, readerID, counterpartID)
		if err := s.events.MessagesRead(ctx, readerID, counterpartID, n); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("failed to publish read event")
		}
	}

	audit.LogWithDetail(ctx, audit.ActionMarkRead, readerID, counterpartID, "conversation marked read")
	return n, nil
}

// History returns the direct history between the caller and counterpart and
// moves counterpart's sent messages to the caller into delivered.
func (s *messagingServiceImpl) History(ctx context.Context, callerID, counterpartID string, order repository.SortOrder) ([]domain.Message, error) {
	if err := requireID("userId", counterpartID); err != nil {
		return nil, err
	}

	n, err := s.tracker.MarkConversationDelivered(ctx, counterpartID, callerID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		s.conversations.Invalidate(ctx, callerID, counterpartID)
	}

	messages, err := s.repo.FindByParticipants(ctx, callerID, counterpartID, order)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return messages, nil
}

// Inbox lists messages addressed to userID, optionally filtered by status.
func (s *messagingServiceImpl) Inbox(ctx context.Context, userID string, statuses []domain.Status) ([]domain.Message, error) {
	if err := requireID("userId", userID); err != nil {
		return nil, err
	}
	messages, err := s.repo.FindByRecipient(ctx, userID, repository.RecipientFilter{StatusIn: statuses})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return messages, nil
}

// UpdateStatus applies a single-message transition.
func (s *messagingServiceImpl) UpdateStatus(ctx context.Context, messageID string, status domain.Status) (*domain.Message, error) {
	msg, err := s.tracker.MarkOne(ctx, messageID, status)
	if err != nil {
		return nil, err
	}

	s.conversations.Invalidate(ctx, msg.Sender, msg.Receiver)
	if err := s.events.StatusChanged(ctx, msg); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to publish status event")
	}
	return msg, nil
}
