package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/models"
)

// MessageTypeFired is the type of the message published for every executed event.
const MessageTypeFired = "event.fired"

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// FiredMessage is the Kafka payload emitted when an event starts.
type FiredMessage struct {
	Type         string          `json:"type"`
	EventID      string          `json:"event_id"`
	ScheduleID   *string         `json:"schedule_id,omitempty"`
	PlanStart    int64           `json:"plan_start"`
	PlanEnd      *int64          `json:"plan_end,omitempty"`
	ActualStart  *int64          `json:"actual_start,omitempty"`
	UserID       *string         `json:"user_id,omitempty"`
	ObjectID     *string         `json:"object_id,omitempty"`
	Meta         json.RawMessage `json:"meta,omitempty"`
	ScheduleCron string          `json:"schedule_cron,omitempty"`
	FiredAt      time.Time       `json:"fired_at"`
}

// Publisher emits fired events to Kafka. It is the default execution
// callback of the reconciler.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
	now    func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// NewPublisher creates a publisher writing to topic on the given brokers.
func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}
	return newPublisher(writer, topic, logger)
}

func newPublisher(writer messageWriter, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{writer: writer, topic: topic, logger: logger, now: time.Now}
}

// Execute publishes an event.fired message keyed by event id so every
// message of one event lands on the same partition.
func (p *Publisher) Execute(ctx context.Context, event models.Event, schedule *models.Schedule) error {
	msg := FiredMessage{
		Type:        MessageTypeFired,
		EventID:     event.ID,
		ScheduleID:  event.ScheduleID,
		PlanStart:   event.PlanStart,
		PlanEnd:     event.PlanEnd,
		ActualStart: event.ActualStart,
		UserID:      event.UserID,
		ObjectID:    event.ObjectID,
		Meta:        event.Meta,
		FiredAt:     p.now().UTC(),
	}
	if schedule != nil {
		msg.ScheduleCron = schedule.Cron
	}
	return p.Publish(ctx, msg)
}

// Publish writes one message to the configured topic.
func (p *Publisher) Publish(ctx context.Context, msg FiredMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.EventID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(msg.Type)},
		},
	})
	if err != nil {
		p.logger.Error("failed to publish message",
			zap.String("topic", p.topic),
			zap.String("event_id", msg.EventID),
			zap.Error(err))
		return fmt.Errorf("publish %s for event %s: %w", msg.Type, msg.EventID, err)
	}

	p.logger.Debug("message published",
		zap.String("topic", p.topic),
		zap.String("event_id", msg.EventID))
	return nil
}

// Close flushes and closes the writer. Subsequent calls return the first result.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.writer.Close()
	})
	return p.closeErr
}
