package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"fintherapy-backend/pkg/logger"
)

// Writer is the subset of kafka.Writer the publisher needs
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON events keyed by user id so one user's events stay ordered
type KafkaPublisher struct {
	writer Writer
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w, topic: topic}
}

func NewKafkaPublisherWithWriter(w Writer, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	msg := kafka.Message{Key: []byte(key), Value: value, Time: time.Now().UTC()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when no brokers are configured
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, key string, event interface{}) error {
	logger.Log.Debug("Analytics event dropped, no brokers configured", "key", key)
	return nil
}

func (NoopPublisher) Close() error { return nil }

// Publisher is what main wires in: Kafka when brokers are set, otherwise a no-op
type Publisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
	Close() error
}

func New(brokers []string, topic string) Publisher {
	var cleaned []string
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			cleaned = append(cleaned, b)
		}
	}
	if len(cleaned) == 0 {
		return NoopPublisher{}
	}
	return NewKafkaPublisher(cleaned, topic)
}
