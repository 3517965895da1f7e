package services

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/walletpay/backend/internal/models"
)

// OperationEvent is the envelope published for every committed operation.
type OperationEvent struct {
	EventID        string    `json:"eventId"`
	UserID         int64     `json:"userId"`
	Amount         string    `json:"amount"`
	Type           string    `json:"type"`
	IdempotencyKey string    `json:"transactionId"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// OperationEvents publishes committed operations to Kafka for downstream
// consumers. Publication happens after commit and never affects the request.
type OperationEvents struct {
	writer *kafka.Writer
}

// NewOperationEvents returns nil when no brokers are configured.
func NewOperationEvents(brokers []string, topic string) *OperationEvents {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &OperationEvents{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish writes one event, keyed by user so per-user ordering survives
// partitioning.
func (e *OperationEvents) Publish(op *models.Operation) error {
	event := OperationEvent{
		EventID:        uuid.New().String(),
		UserID:         op.UserID,
		Amount:         op.Amount.String(),
		Type:           op.Type,
		IdempotencyKey: op.IdempotencyKey,
		OccurredAt:     op.CreatedAt,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return e.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(strconv.FormatInt(op.UserID, 10)),
		Value: data,
	})
}

func (e *OperationEvents) Close() error {
	return e.writer.Close()
}
