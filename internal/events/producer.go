// Package events publishes committed order transitions to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"storefront/internal/models"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const EventOrderSettled = "order.settled"

type OrderSettledEvent struct {
	EventType  string     `json:"event_type"`
	OutTradeNo string     `json:"out_trade_no"`
	TradeNo    string     `json:"trade_no,omitempty"`
	Status     string     `json:"status"`
	OrderType  string     `json:"order_type"`
	ProductID  uint       `json:"product_id"`
	UserID     uint       `json:"user_id"`
	Amount     string     `json:"amount"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

func InitProducer(brokers []string, logger *zap.Logger) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 5 * time.Second
	config.Net.DialTimeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka producer initialized", zap.Strings("brokers", brokers))
	return producer, nil
}

// Publisher sends order events. With a nil producer it only logs.
// OrderSettled sends in the background; Close waits for those sends.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, logger: logger.Named("events")}
}

func (p *Publisher) Publish(ctx context.Context, key string, event interface{}) error {
	if p.producer == nil {
		p.logger.Debug("no kafka producer, event dropped", zap.String("key", key))
		return nil
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(eventJSON),
	}

	carrier := make(headerCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	msg.Headers = []sarama.RecordHeader(carrier)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	traceID := ""
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
	}
	p.logger.Info("event published",
		zap.String("trace_id", traceID),
		zap.String("topic", p.topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// OrderSettled publishes the committed transition, keyed by out_trade_no so
// consumers see one order's events in order.
func (p *Publisher) OrderSettled(ctx context.Context, order *models.Order) {
	ev := OrderSettledEvent{
		EventType:  EventOrderSettled,
		OutTradeNo: order.OutTradeNo,
		Status:     string(order.Status),
		OrderType:  string(order.OrderType),
		ProductID:  order.ProductID,
		Amount:     order.Amount.StringFixed(2),
		PaidAt:     order.PaidAt,
		Timestamp:  time.Now().UTC(),
	}
	if order.TradeNo != nil {
		ev.TradeNo = *order.TradeNo
	}
	if order.UserID != nil {
		ev.UserID = *order.UserID
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("publisher closed, event dropped", zap.String("out_trade_no", order.OutTradeNo))
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	// The caller's deadline belongs to the request being acknowledged.
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer p.wg.Done()
		if err := p.Publish(ctx, ev.OutTradeNo, ev); err != nil {
			p.logger.Error("publish order settled", zap.String("out_trade_no", ev.OutTradeNo), zap.Error(err))
		}
	}()
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// headerCarrier adapts Kafka record headers to otel propagation.
type headerCarrier []sarama.RecordHeader

func (c headerCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if string(h.Key) == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
