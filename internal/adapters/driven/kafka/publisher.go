// Package kafka publishes index events to a Kafka topic using
// segmentio/kafka-go. Events are JSON encoded and keyed by resource type so
// consumers see the changes of one resource type in order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.EventPublisher = (*Publisher)(nil)

// messageWriter is the part of kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes IndexEvents to one topic
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a synchronous publisher for topic
func NewPublisher(brokers []string, topic string) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafkago.RequireAll,
	}
	return newPublisher(w, topic)
}

func newPublisher(w messageWriter, topic string) *Publisher {
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: slog.Default().With("component", "kafka-publisher", "topic", topic),
	}
}

// Publish serialises the event and writes it synchronously
func (p *Publisher) Publish(ctx context.Context, event domain.IndexEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(event.Key()),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing to kafka topic %s: %w", p.topic, err)
	}
	p.logger.Debug("event published", "type", event.Type, "key", event.Key())
	return nil
}

// Close flushes pending writes and closes the writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// DecodeEvent unmarshals a message value written by Publish
func DecodeEvent(value []byte) (domain.IndexEvent, error) {
	var event domain.IndexEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return event, fmt.Errorf("decoding index event: %w", err)
	}
	return event, nil
}
