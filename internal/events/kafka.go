package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/efreitasn/minibroker/internal/domain"
)

// Counter records publish outcomes per sink.
type Counter interface {
	IncEventPublished(sink, status string)
}

// KafkaPublisher writes order events to a topic, keyed by customer id so
// that one customer's events stay on one partition in commit order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
	counter  Counter
}

// NewSyncProducer dials brokers with an idempotent, all-acks producer.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// NewKafkaPublisher creates a publisher over producer. counter may be nil.
func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger *slog.Logger, counter Counter) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
		counter:  counter,
	}
}

// Send writes one event and returns the partition and offset it landed on.
func (p *KafkaPublisher) Send(ctx context.Context, ev domain.OrderEvent) (int32, int64, error) {
	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	default:
	}

	env, err := NewOrderEnvelope(ev)
	if err != nil {
		return 0, 0, err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal kafka payload: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Order.CustomerID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
		},
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("kafka publish failed: %w", err)
	}
	return partition, offset, nil
}

// Publish sends ev and logs the outcome. The transition it describes has
// already committed, so failures are reported and dropped.
func (p *KafkaPublisher) Publish(ctx context.Context, ev domain.OrderEvent) {
	partition, offset, err := p.Send(context.WithoutCancel(ctx), ev)
	status := "ok"
	if err != nil {
		status = "error"
		p.logger.Error("publish order event",
			slog.String("topic", p.topic),
			slog.String("event_id", ev.EventID),
			slog.String("event_type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	} else {
		p.logger.Debug("order event published",
			slog.String("topic", p.topic),
			slog.String("event_id", ev.EventID),
			slog.Int("partition", int(partition)),
			slog.Int64("offset", offset),
		)
	}
	if p.counter != nil {
		p.counter.IncEventPublished("kafka", status)
	}
}

func (p *KafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
