package kafka

import (
	"context"

	"github.com/weiawesome/autoschool-chat/internal/domain"
)

// Event types produced for downstream consumers.
const (
	EventMessageCreated = "message.created"
	EventMessagesRead   = "messages.read"
	EventStatusChanged  = "message.status_changed"
)

// EventProducer publishes messaging domain events.
type EventProducer interface {
	MessageCreated(ctx context.Context, msg *domain.Message) error
	MessagesRead(ctx context.Context, readerID, counterpartID string, count int64) error
	StatusChanged(ctx context.Context, msg *domain.Message) error
	Close() error
}

// NoopProducer drops every event. Used when kafka is disabled.
type NoopProducer struct{}

func (NoopProducer) MessageCreated(context.Context, *domain.Message) error     { return nil }
func (NoopProducer) MessagesRead(context.Context, string, string, int64) error { return nil }
func (NoopProducer) StatusChanged(context.Context, *domain.Message) error      { return nil }
func (NoopProducer) Close() error                                              { return nil }
