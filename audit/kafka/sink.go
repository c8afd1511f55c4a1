// Package kafka publishes roleAuth audit events to a Kafka topic with
// franz-go. Records are keyed by subject so one user's events stay ordered
// within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/MrEthical07/roleAuth/internal/audit"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "roleauth.audit"

// Producer is the subset of *kgo.Client used by Sink.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Config configures a Sink.
type Config struct {
	Topic  string
	Logger *zap.Logger
}

// Sink is an audit sink that produces one JSON record per event. Produce
// is asynchronous; delivery failures are logged and counted.
type Sink struct {
	producer Producer
	topic    string
	log      *zap.Logger
	failed   atomic.Uint64
}

// NewSink wraps producer. Use NewClient to build a *kgo.Client.
func NewSink(producer Producer, cfg Config) (*Sink, error) {
	if producer == nil {
		return nil, errors.New("kafka: nil producer")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Sink{producer: producer, topic: cfg.Topic, log: cfg.Logger}, nil
}

// NewClient builds a franz-go producer client for brokers.
func NewClient(brokers []string, clientID string, opts ...kgo.Opt) (*kgo.Client, error) {
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.RequiredAcks(kgo.LeaderAck()),
		kgo.DisableIdempotentWrite(),
		kgo.ProducerLinger(0),
	}
	return kgo.NewClient(append(base, opts...)...)
}

// Emit implements the audit sink interface.
func (s *Sink) Emit(ctx context.Context, event audit.Event) {
	value, err := json.Marshal(event)
	if err != nil {
		s.failed.Add(1)
		s.log.Warn("audit event encode failed", zap.String("event_type", event.EventType), zap.Error(err))
		return
	}

	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Subject),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Timestamp: event.Timestamp,
	}
	s.producer.Produce(ctx, rec, func(r *kgo.Record, err error) {
		if err != nil {
			s.failed.Add(1)
			s.log.Warn("audit event produce failed",
				zap.String("topic", r.Topic),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
		}
	})
}

// Failed returns how many events could not be produced.
func (s *Sink) Failed() uint64 {
	return s.failed.Load()
}
