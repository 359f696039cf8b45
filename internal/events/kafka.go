package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka writer defaults
const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	batchTimeout = 10 * time.Millisecond
)

// messageWriter is the part of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to a Kafka topic, keyed by identity
// name so one person's events stay in order on one partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one Kafka broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dialer := &kafka.Dialer{
		Timeout:   dialTimeout,
		DualStack: true,
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
		// Writes never block the frame loop; delivery failures surface here.
		Async: true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("failed to deliver attendance events", "topic", topic, "count", len(msgs), "error", err)
			}
		},
	}

	logger.Info("kafka publisher initialized", "brokers", brokers, "topic", topic)
	return newKafkaPublisher(w, topic, logger), nil
}

func newKafkaPublisher(w messageWriter, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

// Publish writes e to the topic. With the writer built by NewKafkaPublisher
// the message is queued and delivered in the background; Close flushes it.
func (p *KafkaPublisher) Publish(ctx context.Context, e *AttendanceRecorded) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.Name),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(e.EventType)},
			{Key: "schemaVersion", Value: []byte(e.SchemaVersion)},
		},
		Time: e.EmittedAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}

	p.logger.Debug("event published", "topic", p.topic, "eventId", e.EventID, "name", e.Name)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
