// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bus publishes domain events (retrievals finished, evaluations
// completed) to subscribers in-process or to Kafka.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// Topics.
const (
	TopicRetrievalCompleted  = "retrieval.completed"
	TopicRetrievalAborted    = "retrieval.aborted"
	TopicEvaluationCompleted = "evaluation.completed"
)

const source = "ads-query-eval"

// Event is one published message.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload"`
}

// NewEvent stamps payload with a fresh id and the current time.
func NewEvent(typ string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// RetrievalEvent is the payload of the retrieval topics.
type RetrievalEvent struct {
	RetrievalID  string `json:"retrieval_id"`
	QueryLiteral string `json:"query_literal"`
	StorageKey   string `json:"s3_key"`
	Date         string `json:"date"`
	Status       string `json:"status"`
	Outcome      string `json:"outcome"`
}

// EvaluationEvent is the payload of TopicEvaluationCompleted.
type EvaluationEvent struct {
	EvaluationID string   `json:"evaluation_id"`
	RetrievalID  string   `json:"retrieval_id"`
	Evaluator    string   `json:"evaluator"`
	PAt25        *float64 `json:"p_at_25,omitempty"`
	RAt1000      *float64 `json:"r_at_1000,omitempty"`
}

// Publisher sends events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error { return nil }
func (Nop) Close() error { return nil }

// New builds the publisher selected by cfg.
func New(cfg types.BusConfig) (Publisher, error) {
	switch cfg.Backend {
	case types.BusNone, "":
		return Nop{}, nil
	case types.BusMemory:
		return NewMemoryBus(), nil
	case types.BusKafka:
		return NewKafkaPublisher(KafkaConfig{
			Brokers:     cfg.Brokers,
			ClientID:    cfg.ClientID,
			TopicPrefix: cfg.TopicPrefix,
		})
	default:
		return nil, apperr.New(apperr.KindConfiguration, "unknown bus backend %q", cfg.Backend)
	}
}
