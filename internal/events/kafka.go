package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaNotifier.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes events as JSON keyed by aggregate id so all events
// of one booking land on the same partition in order.
type KafkaNotifier struct {
	Writer MessageWriter
}

// NewKafkaWriter builds a synchronous writer for topic.
func NewKafkaWriter(brokers []string, topic string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: kafka writer requires at least one broker")
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}, nil
}

func (n KafkaNotifier) Name() string { return "kafka" }

func (n KafkaNotifier) Notify(ctx context.Context, event Event) error {
	if n.Writer == nil {
		return errors.New("events: kafka writer not configured")
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode message: %w", err)
	}
	return n.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "topic", Value: []byte(event.Topic)},
			{Key: "event_id", Value: []byte(event.ID.String())},
		},
	})
}

// Close flushes and closes the underlying writer.
func (n KafkaNotifier) Close() error {
	if n.Writer == nil {
		return nil
	}
	return n.Writer.Close()
}
