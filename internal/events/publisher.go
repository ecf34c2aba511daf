package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/0xMgwan/BTCx/internal/models"
	"github.com/0xMgwan/BTCx/internal/telemetry"
)

// Publisher announces payment status transitions to downstream consumers.
type Publisher interface {
	PublishStatusChange(ctx context.Context, paymentID string, from, to models.PaymentStatus)
	Close() error
}

type statusChangedEvent struct {
	PaymentID      string    `json:"payment_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status"`
	Timestamp      time.Time `json:"timestamp"`
}

// KafkaPublisher writes one message per transition to payment.status.changed,
// keyed by payment id so transitions for one payment stay ordered.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers),
			Topic:    "payment.status.changed",
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishStatusChange is best-effort: a broker outage must never block or
// fail a settlement, so errors are logged and dropped.
func (p *KafkaPublisher) PublishStatusChange(ctx context.Context, paymentID string, from, to models.PaymentStatus) {
	event := statusChangedEvent{
		PaymentID:      paymentID,
		Status:         string(to),
		PreviousStatus: string(from),
		Timestamp:      time.Now(),
	}
	eventJSON, _ := json.Marshal(event)

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(paymentID),
		Value: eventJSON,
	}); err != nil {
		telemetry.Logger.Error("Failed to publish status change event",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when no broker is configured and in tests.
type NoopPublisher struct{}

func (NoopPublisher) PublishStatusChange(ctx context.Context, paymentID string, from, to models.PaymentStatus) {
}

func (NoopPublisher) Close() error { return nil }
