package fakes

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"
)

// FakeKafkaWriter captures written messages and can simulate failures.
type FakeKafkaWriter struct {
	mu       sync.Mutex
	Messages []kafka.Message
	FailNext bool
	Closed   bool
}

func (w *FakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.FailNext {
		w.FailNext = false
		return errors.New("broker unavailable")
	}
	w.Messages = append(w.Messages, msgs...)
	return nil
}

func (w *FakeKafkaWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Closed = true
	return nil
}
