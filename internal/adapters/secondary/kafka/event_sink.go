// Package kafka streams domain events to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// messageWriter is the part of kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventSink writes shared events to a topic, keyed by resource so one
// resource's events stay ordered within a partition.
type EventSink struct {
	writer       messageWriter
	writeTimeout time.Duration
	logger       *slog.Logger
}

var _ ports.EventSink = (*EventSink)(nil)

// EventSinkParams defines the settings of an EventSink.
type EventSinkParams struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// NewEventSink creates a sink. It returns nil when no brokers are configured;
// a nil sink accepts and drops every event.
func NewEventSink(params EventSinkParams) *EventSink {
	if len(params.Brokers) == 0 || params.Topic == "" {
		return nil
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(params.Brokers...),
		Topic:        params.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: params.WriteTimeout,
	}
	return newEventSink(writer, params.WriteTimeout, params.Logger)
}

func newEventSink(writer messageWriter, writeTimeout time.Duration, logger *slog.Logger) *EventSink {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &EventSink{
		writer:       writer,
		writeTimeout: writeTimeout,
		logger:       logger.With("component", "event_sink"),
	}
}

// Emit encodes event and writes it to the topic.
func (s *EventSink) Emit(ctx context.Context, event domain.Event) error {
	if s == nil || s.writer == nil {
		return nil
	}

	payload, err := domain.EncodeEvent(event)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	err = s.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.Meta(domain.MetaResource)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "kafka emit failed", "event_type", event.Type, "error", err)
		return fmt.Errorf("emit %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the writer. Safe to call on a nil sink.
func (s *EventSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
