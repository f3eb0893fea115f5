// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
)

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers     []string
	ClientID    string
	TopicPrefix string // prepended to every topic, e.g. "adsqe."
	Version     string // Kafka protocol version (default "2.8.0")
}

// KafkaPublisher publishes events as JSON messages keyed by event id.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	prefix   string

	mu     sync.RWMutex
	closed bool
}

// SaramaConfig returns the producer configuration used by NewKafkaPublisher.
func SaramaConfig(cfg KafkaConfig) (*sarama.Config, error) {
	if cfg.Version == "" {
		cfg.Version = "2.8.0"
	}
	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, err, "invalid kafka version")
	}
	kc := sarama.NewConfig()
	kc.Version = version
	kc.ClientID = cfg.ClientID
	if kc.ClientID == "" {
		kc.ClientID = source
	}
	kc.Producer.Return.Successes = true
	kc.Producer.Return.Errors = true
	kc.Producer.Retry.Max = 3
	kc.Producer.RequiredAcks = sarama.WaitForAll
	kc.Net.DialTimeout = 10 * time.Second
	kc.Net.ReadTimeout = 10 * time.Second
	kc.Net.WriteTimeout = 10 * time.Second
	return kc, nil
}

// NewKafkaPublisher connects a synchronous producer to cfg.Brokers.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, apperr.New(apperr.KindConfiguration, "kafka brokers cannot be empty")
	}
	kc, err := SaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, kc)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "creating kafka producer")
	}
	return NewKafkaPublisherFromProducer(producer, cfg.TopicPrefix), nil
}

// NewKafkaPublisherFromProducer wraps an existing producer.
func NewKafkaPublisherFromProducer(p sarama.SyncProducer, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, prefix: topicPrefix}
}

// Publish sends event to prefix+topic and waits for the broker ack.
func (k *KafkaPublisher) Publish(ctx context.Context, topic string, event Event) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return apperr.New(apperr.KindInternal, "publisher is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return apperr.Wrap(apperr.KindSerialization, err, "encoding event %s", event.ID)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.prefix + topic,
		Key:   sarama.StringEncoder(event.ID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "publishing to %s", msg.Topic)
	}
	return nil
}

// Close closes the producer.
func (k *KafkaPublisher) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.producer.Close()
}
