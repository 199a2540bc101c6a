package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/autoschool-chat/pkg/log"
)

// KafkaPubSub relays events through a single topic keyed by room, so all
// events of one room stay ordered on one partition. Every instance consumes
// the whole topic under its own group id.
type KafkaPubSub struct {
	producer    *kafka.Producer
	config      KafkaConfig
	cancels     []context.CancelFunc
	consumers   sync.WaitGroup
	reportsDone chan struct{}
	mu          sync.Mutex
}

func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultRelayTopic
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		producer:    p,
		config:      cfg,
		reportsDone: make(chan struct{}),
	}

	go k.deliveryReportHandler()

	if err := k.ensureTopic(); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", cfg.Topic).Msg("failed to ensure kafka relay topic (may already exist)")
	}

	return k, nil
}

func (k *KafkaPubSub) ensureTopic() error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             k.config.Topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}

	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("create topic %s: %s", r.Topic, r.Error.String())
		}
	}
	return nil
}

func (k *KafkaPubSub) deliveryReportHandler() {
	defer close(k.reportsDone)

	for e := range k.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			l := log.L()
			l.Error().Err(m.TopicPartition.Error).Str("key", string(m.Key)).Msg("kafka relay delivery failed")
		}
	}
}

// Publish produces event keyed by the room encoded in channel.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	room, ok := RoomFromChannel(channel)
	if !ok {
		return fmt.Errorf("invalid relay channel: %s", channel)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.config.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(room),
		Value: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// SubscribePattern consumes the relay topic. Only the room relay pattern is
// served since every room shares the topic.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	if pattern != PatternRoomToGateway {
		return nil, fmt.Errorf("unsupported relay pattern: %s", pattern)
	}

	groupID := k.config.GroupID
	if groupID == "" {
		groupID = "chat-relay"
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  k.config.Brokers,
		"group.id":           sanitizeGroupID(groupID),
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(k.config.Topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", k.config.Topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	events := make(chan *Event, 100)

	k.mu.Lock()
	k.cancels = append(k.cancels, cancel)
	k.mu.Unlock()

	k.consumers.Add(1)
	go k.consume(subCtx, c, events)

	return events, nil
}

// consume polls until ctx ends and then closes its own consumer.
func (k *KafkaPubSub) consume(ctx context.Context, c *kafka.Consumer, events chan<- *Event) {
	defer k.consumers.Done()
	defer close(events)
	defer c.Close()

	for ctx.Err() == nil {
		switch e := c.Poll(500).(type) {
		case *kafka.Message:
			event, err := decodeEvent(e.Value, RoomToGatewayChannel(string(e.Key)))
			if err != nil {
				l := log.L()
				l.Warn().Err(err).Msg("kafka pubsub: failed to unmarshal event")
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			default:
				l := log.L()
				l.Warn().Str("room_id", event.RoomID).Msg("kafka pubsub: subscriber lagging, event dropped")
			}

		case kafka.Error:
			l := log.L()
			l.Error().Str("error", e.String()).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg("kafka pubsub error")
			if e.IsFatal() {
				return
			}
		}
	}
}

// Close stops every consumer, then flushes and closes the producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	for _, cancel := range k.cancels {
		cancel()
	}
	k.cancels = nil
	k.mu.Unlock()

	k.consumers.Wait()

	k.producer.Flush(5000)
	k.producer.Close()
	<-k.reportsDone
	return nil
}

func sanitizeGroupID(s string) string {
	out := []byte(s)
	for i, b := range out {
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9', b == '.', b == '_', b == '-':
		default:
			out[i] = '-'
		}
	}
	return string(out)
}
