package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

const DefaultTopic = "leave.requests.v1"

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPayload is the JSON body of every published message.
type EventPayload struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	RequestID  string    `json:"request_id"`
	EmployeeID string    `json:"employee_id"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
	DedupKey   string    `json:"dedup_key"`
}

func NewEventPayload(e leave.Event) EventPayload {
	return EventPayload{
		ID:         e.ID,
		Type:       string(e.Type),
		RequestID:  string(e.RequestID),
		EmployeeID: string(e.EmployeeID),
		ActorID:    string(e.ActorID),
		OccurredAt: e.OccurredAt.UTC(),
		DedupKey:   e.DedupKey(),
	}
}

// KafkaSink publishes events keyed by request id, so every event of one
// request lands on the same partition in order.
type KafkaSink struct {
	writer MessageWriter
	topic  string
	logger *zap.Logger
}

func NewKafkaSink(writer MessageWriter, topic string, logger ...*zap.Logger) *KafkaSink {
	log := zap.L().Named("messaging.kafka")
	if len(logger) > 0 && logger[0] != nil {
		log = logger[0]
	}
	return &KafkaSink{writer: writer, topic: topic, logger: log}
}

// NewKafkaWriter builds a writer for brokers. The topic is left on the
// messages so one writer can serve several sinks.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
}

func (s *KafkaSink) Publish(ctx context.Context, e leave.Event) error {
	payload, err := json.Marshal(NewEventPayload(e))
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", e.ID, err)
	}

	msg := kafka.Message{
		Topic: s.topic,
		Key:   []byte(e.RequestID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "dedup_key", Value: []byte(e.DedupKey())},
		},
		Time: e.OccurredAt,
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event %s to %s: %w", e.ID, s.topic, err)
	}

	s.logger.Debug("event published",
		zap.String("topic", s.topic),
		zap.String("event_id", e.ID),
		zap.String("dedup_key", e.DedupKey()),
	)
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
