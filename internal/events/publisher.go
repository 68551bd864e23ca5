// Package events publishes alert lifecycle and batch completion events to
// Kafka so downstream systems (buyers' inbox, ERP sync) can react.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/tracing"
	"github.com/segmentio/kafka-go"
)

// Event types.
const (
	AlertCreated   = "alert.created"
	AlertUpdated   = "alert.updated"
	AlertAssigned  = "alert.assigned"
	AlertResolved  = "alert.resolved"
	AlertIgnored   = "alert.ignored"
	BatchCompleted = "batch.completed"
)

// Event is the envelope written to the topic.
type Event struct {
	Type       string    `json:"type"`
	ProductID  int64     `json:"product_id,omitempty"`
	AlertID    int64     `json:"alert_id,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Key partitions events of one product (or one run) together.
func (e Event) Key() string {
	if e.ProductID != 0 {
		return strconv.FormatInt(e.ProductID, 10)
	}
	return e.RunID
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NewPublisher returns a Kafka publisher when events are enabled and a
// no-op one otherwise.
func NewPublisher(cfg config.EventsConfig) (Publisher, error) {
	if !cfg.Enabled {
		return NewNoopPublisher(), nil
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("events topic is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &kafkaPublisher{writer: writer}, nil
}

type kafkaPublisher struct {
	writer *kafka.Writer
}

func (p *kafkaPublisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.Key()),
		Value: data,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if traceID := tracing.TraceID(ctx); traceID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "trace_id", Value: []byte(traceID)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

type noopPublisher struct{}

func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, Event) error { return nil }
func (noopPublisher) Close() error                         { return nil }
