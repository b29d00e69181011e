// Package events publishes job lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"document-intelligence/internal/config"
	"document-intelligence/internal/domain/ports/adapter"
)

var (
	_ adapter.EventPublisher = (*KafkaPublisher)(nil)
	_ adapter.EventPublisher = NoopPublisher{}
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON job events keyed by document id, so the events
// of one document stay on one partition.
type KafkaPublisher struct {
	writer messageWriter
	log    *zerolog.Logger
}

func NewKafkaPublisher(cfg config.KafkaConfig, logger *zerolog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	l := logger.With().Str("component", "kafka-publisher").Str("topic", cfg.Topic).Logger()
	return &KafkaPublisher{writer: w, log: &l}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev adapter.JobEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	key := ev.DocumentID
	if key == "" {
		key = ev.JobID
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		p.log.Error().Err(err).Str("kind", string(ev.Kind)).Str("job_id", ev.JobID).Msg("publish failed")
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.log.Debug().Str("kind", string(ev.Kind)).Str("job_id", ev.JobID).Msg("event published")
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// NoopPublisher drops every event; used when kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, adapter.JobEvent) error { return nil }
func (NoopPublisher) Close() error                                    { return nil }
