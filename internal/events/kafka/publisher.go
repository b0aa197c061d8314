// Package kafka publishes processing outcomes as events.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"fraclaims/internal/config"
	"fraclaims/internal/domain"
)

const eventType = "document.outcome"

// OutcomeEvent is the message value published for each outcome. Extracted text
// and entities stay in the document store.
type OutcomeEvent struct {
	DocumentID    string                    `json:"document_id"`
	State         domain.PipelineState      `json:"state"`
	Status        domain.VerificationStatus `json:"status"`
	Confidence    *float64                  `json:"confidence,omitempty"`
	EntityCount   int                       `json:"entity_count"`
	FailureKind   domain.FailureKind        `json:"failure_kind,omitempty"`
	FailureReason string                    `json:"failure_reason,omitempty"`
	CompletedAt   time.Time                 `json:"completed_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes outcome events keyed by document id. It implements port.OutcomeSink.
type Publisher struct {
	writer messageWriter
}

// NewPublisher creates a Publisher for the configured brokers and topic.
func NewPublisher(cfg *config.KafkaConfig) *Publisher {
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	})
}

func newPublisher(w messageWriter) *Publisher {
	return &Publisher{writer: w}
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Deliver(ctx context.Context, outcome *domain.ProcessingOutcome) error {
	value, err := json.Marshal(newOutcomeEvent(outcome))
	if err != nil {
		return fmt.Errorf("marshaling outcome event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(outcome.DocumentID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func newOutcomeEvent(o *domain.ProcessingOutcome) OutcomeEvent {
	ev := OutcomeEvent{
		DocumentID:    o.DocumentID,
		State:         o.State,
		Status:        o.Status,
		FailureKind:   o.FailureKind,
		FailureReason: o.FailureReason,
		CompletedAt:   o.CompletedAt,
	}
	if o.Result != nil {
		ev.Confidence = o.Result.OverallConfidence
		ev.EntityCount = len(o.Result.Entities)
	}
	return ev
}
