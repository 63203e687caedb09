package events

import (
	"context"
	"time"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the subject suffix, e.g. "ingestion.completed".
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

const (
	TypeIngestionCompleted = "ingestion.completed"
	TypeIngestionFailed    = "ingestion.failed"
	TypeUserRegistered     = "user.registered"
	TypeUserLoggedIn       = "user.login"
)

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error {
	return nil
}
