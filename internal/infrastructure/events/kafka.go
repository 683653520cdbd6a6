// Package events publishes article lifecycle events to Kafka for downstream
// consumers (analytics, audit).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"VoiceScribe/internal/config"
	"VoiceScribe/internal/domain"
	"VoiceScribe/internal/ports"
)

// KafkaPublisher writes one message per lifecycle event, keyed by article id
// so per-article ordering is preserved within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

var _ ports.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher builds a publisher for the configured brokers and topic.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		logger: logger,
	}
}

// Publish emits one event.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ArticleID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}

	p.logger.Debug("event published", "type", event.Type, "article_id", event.ArticleID)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
