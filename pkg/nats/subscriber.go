package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventHandler is a function that processes an event.
type EventHandler func(ctx context.Context, event events.Event) error

// Subscriber handles listening for events from NATS.
type Subscriber struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log logger.ILogger
}

func NewSubscriber(url string, log logger.ILogger) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js, log: log}, nil
}

// Subscribe registers a handler for a subject pattern such as "events.ingestion.>".
// An empty durableName creates an ephemeral consumer that only sees new events.
// The returned function stops consumption.
func (s *Subscriber) Subscribe(ctx context.Context, subject, durableName string, handler EventHandler) (func(), error) {
	cfg := jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durableName == "" {
		cfg.DeliverPolicy = jetstream.DeliverNewPolicy
	}

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		event, err := decode(msg)
		if err != nil {
			s.log.Error("NATS", "Dropping undecodable event", map[string]interface{}{"subject": msg.Subject(), "error": err.Error()})
			_ = msg.Term()
			return
		}

		if err := handler(ctx, event); err != nil {
			s.log.Warn("NATS", "Handler failed", map[string]interface{}{"subject": msg.Subject(), "error": err.Error()})
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	s.log.Info("NATS", "Subscribed", map[string]interface{}{"subject": subject, "durable": durableName})
	return cc.Stop, nil
}

func decode(msg jetstream.Msg) (events.Event, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(msg.Data(), &payload); err != nil {
		return nil, err
	}

	eventType := msg.Headers().Get(headerEventType)
	if eventType == "" {
		eventType = strings.TrimPrefix(msg.Subject(), SubjectPrefix)
	}

	occurredAt := time.Now()
	if raw := msg.Headers().Get(headerOccurredAt); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			occurredAt = t
		}
	}

	return events.BaseEvent{Type: eventType, Data: payload, OccurredAt: occurredAt}, nil
}

// Close closes the connection.
func (s *Subscriber) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
