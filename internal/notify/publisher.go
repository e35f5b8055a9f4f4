package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultTopic receives all notification events.
const DefaultTopic = "order-notifications"

// Publisher sends a single event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// KafkaPublisher writes events to a Kafka topic keyed by Event.Key, so the
// events of one order stay in one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           10 * time.Second,
	}}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg := kafka.Message{
		Key:   []byte(e.Key()),
		Value: e.Bytes(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher logs events instead of sending them. It is used when no
// brokers are configured.
type LogPublisher struct {
	lg *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(lg *zap.Logger) *LogPublisher {
	return &LogPublisher{lg: lg}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.lg.Info("Notification",
		zap.String("type", string(e.Type)),
		zap.String("key", e.Key()),
		zap.ByteString("payload", e.Bytes()),
	)
	return nil
}
