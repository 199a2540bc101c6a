package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/pkg/log"
)

// Envelope is the value written for every event.
type Envelope struct {
	Type       string          `json:"type"`
	Message    *domain.Message `json:"message,omitempty"`
	Receipt    *ReadReceipt    `json:"receipt,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// ReadReceipt names the conversation a reader cleared.
type ReadReceipt struct {
	ReaderID      string `json:"readerId"`
	CounterpartID string `json:"counterpartId"`
	Count         int64  `json:"count"`
}

type ConfluentProducer struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

func NewConfluentProducer(brokers, topic string, partitions int) (*ConfluentProducer, error) {
	// Ensure topic exists with desired partition count
	if err := ensureTopic(brokers, topic, partitions); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", topic).Msg("failed to ensure topic (may already exist)")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	cp := &ConfluentProducer{
		producer: p,
		topic:    topic,
		doneCh:   make(chan struct{}),
	}

	go cp.deliveryReportHandler()

	return cp, nil
}

func ensureTopic(brokers, topic string, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}

	return nil
}

func (cp *ConfluentProducer) deliveryReportHandler() {
	for e := range cp.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				l := log.L()
				l.Error().Err(ev.TopicPartition.Error).Str("topic", cp.topic).Msg("kafka delivery failed")
			}
		}
	}
	close(cp.doneCh)
}

// ConversationKey keys events so that one conversation stays on one
// partition: the group room, or the sorted participant pair.
func ConversationKey(a, b, room string) string {
	if room != "" {
		return "room:" + room
	}
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1]
}

func (cp *ConfluentProducer) produce(key string, env *Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", env.Type, err)
	}

	err = cp.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &cp.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.Type)},
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	return nil
}

// messageEvent returns the key and envelope for a message lifecycle event.
func messageEvent(eventType string, msg *domain.Message, at time.Time) (string, *Envelope) {
	return ConversationKey(msg.Sender, msg.Receiver, msg.Room), &Envelope{
		Type:       eventType,
		Message:    msg,
		OccurredAt: at,
	}
}

// readEvent keys on the reader/counterpart pair so read events share the
// partition of the conversation's messages.
func readEvent(readerID, counterpartID string, count int64, at time.Time) (string, *Envelope) {
	return ConversationKey(readerID, counterpartID, ""), &Envelope{
		Type: EventMessagesRead,
		Receipt: &ReadReceipt{
			ReaderID:      readerID,
			CounterpartID: counterpartID,
			Count:         count,
		},
		OccurredAt: at,
	}
}

func (cp *ConfluentProducer) MessageCreated(ctx context.Context, msg *domain.Message) error {
	return cp.produce(messageEvent(EventMessageCreated, msg, time.Now().UTC()))
}

func (cp *ConfluentProducer) MessagesRead(ctx context.Context, readerID, counterpartID string, count int64) error {
	return cp.produce(readEvent(readerID, counterpartID, count, time.Now().UTC()))
}

func (cp *ConfluentProducer) StatusChanged(ctx context.Context, msg *domain.Message) error {
	return cp.produce(messageEvent(EventStatusChanged, msg, time.Now().UTC()))
}

func (cp *ConfluentProducer) Close() error {
	cp.producer.Flush(5000)
	cp.producer.Close()
	<-cp.doneCh
	return nil
}
