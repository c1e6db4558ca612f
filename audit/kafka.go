package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client used by KafkaEmitter.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaEmitter publishes events asynchronously. Delivery failures are logged
// and counted, never returned.
type KafkaEmitter struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	now      func() time.Time

	produced atomic.Uint64
	failed   atomic.Uint64
}

// NewKafkaClient opens a franz-go producer client for the audit topic.
func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("audit: no kafka brokers configured")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("audit: create kafka client: %w", err)
	}
	return client, nil
}

func NewKafkaEmitter(producer Producer, topic string, logger *slog.Logger) *KafkaEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaEmitter{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "audit-kafka"),
		now:      time.Now,
	}
}

func (e *KafkaEmitter) Emit(ctx context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now().UTC()
	}

	value, err := json.Marshal(ev)
	if err != nil {
		e.failed.Add(1)
		e.logger.Warn("marshal audit event", "action", ev.Action, "error", err)
		return
	}

	record := &kgo.Record{
		Topic: e.topic,
		Key:   []byte(recordKey(ev)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "resource", Value: []byte(ev.Resource)},
			{Key: "action", Value: []byte(ev.Action)},
		},
	}
	if ev.CorrelationID != "" {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: "correlation_id", Value: []byte(ev.CorrelationID)})
	}

	// The request context ends with the request; delivery must not.
	e.producer.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			e.failed.Add(1)
			e.logger.Warn("deliver audit event", "topic", r.Topic, "action", ev.Action, "error", err)
			return
		}
		e.produced.Add(1)
	})
}

// Stats returns delivered and failed counts.
func (e *KafkaEmitter) Stats() (produced, failed uint64) {
	return e.produced.Load(), e.failed.Load()
}

func recordKey(ev Event) string {
	if id, ok := ev.Metadata["caseId"].(string); ok && id != "" {
		return id
	}
	return ev.ActorID
}
