package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/minibroker/internal/domain"
)

type countingCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingCounter) IncEventPublished(sink, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[sink+"/"+status]++
}

func mockConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	return cfg
}

func testEvent(typ domain.EventType) domain.OrderEvent {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.OrderEvent{
		EventID: "evt-1",
		Type:    typ,
		Order: &domain.Order{
			OrderID:    "ord-1",
			CustomerID: "cust-1",
			AssetName:  "AAPL",
			Side:       domain.OrderSideBuy,
			Size:       decimal.RequireFromString("10"),
			Price:      decimal.RequireFromString("150.5"),
			Status:     domain.OrderStatusPending,
			CreateDate: ts,
			UpdatedAt:  ts,
		},
		OccurredAt: ts,
	}
}

func TestKafkaPublisher_SendWritesEnvelope(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mockConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "brokerage.orders" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "cust-1" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})
	p := NewKafkaPublisher(producer, "brokerage.orders", nil, nil)
	defer p.Close()

	_, _, err := p.Send(context.Background(), testEvent(domain.EventOrderCreated))
	require.NoError(t, err)
}

func TestKafkaPublisher_PayloadShape(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mockConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env OrderEnvelope
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		if env.EventType != "order.matched" || env.EventVersion != EnvelopeVersion {
			return errors.New("unexpected envelope header")
		}
		if env.Order.Size != "10.00" || env.Order.Price != "150.50" {
			return errors.New("unexpected amounts " + env.Order.Size + " " + env.Order.Price)
		}
		if env.Order.CreateDate != "2026-03-01T10:00:00Z" {
			return errors.New("unexpected createDate " + env.Order.CreateDate)
		}
		return nil
	})
	p := NewKafkaPublisher(producer, "brokerage.orders", nil, nil)
	defer p.Close()

	_, _, err := p.Send(context.Background(), testEvent(domain.EventOrderMatched))
	require.NoError(t, err)
}

func TestKafkaPublisher_PublishCountsOutcomes(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mockConfig())
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	counter := &countingCounter{}
	p := NewKafkaPublisher(producer, "brokerage.orders", nil, counter)
	defer p.Close()

	p.Publish(context.Background(), testEvent(domain.EventOrderCreated))
	p.Publish(context.Background(), testEvent(domain.EventOrderCanceled))

	assert.Equal(t, 1, counter.counts["kafka/ok"])
	assert.Equal(t, 1, counter.counts["kafka/error"])
}

func TestKafkaPublisher_PublishIgnoresCanceledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mockConfig())
	producer.ExpectSendMessageAndSucceed()
	counter := &countingCounter{}
	p := NewKafkaPublisher(producer, "brokerage.orders", nil, counter)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Publish(ctx, testEvent(domain.EventOrderCreated))

	assert.Equal(t, 1, counter.counts["kafka/ok"])
}

func TestKafkaPublisher_SendRejectsCanceledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mockConfig())
	p := NewKafkaPublisher(producer, "brokerage.orders", nil, nil)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := p.Send(ctx, testEvent(domain.EventOrderCreated))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewOrderEnvelope_Validation(t *testing.T) {
	_, err := NewOrderEnvelope(domain.OrderEvent{Type: domain.EventOrderCreated})
	assert.Error(t, err)

	_, err = NewOrderEnvelope(domain.OrderEvent{EventID: "evt-1", Type: domain.EventOrderCreated})
	assert.Error(t, err)
}

func TestNewSyncProducer_RequiresBrokers(t *testing.T) {
	_, err := NewSyncProducer(nil)
	assert.Error(t, err)
}
