// Package pubsub fans finished turns out to interested consumers such as the
// history recorder.
package pubsub

import (
	"context"
	"time"
)

// EventType classifies a published event.
type EventType string

const (
	// TurnCompleted is published for a turn that reached Done.
	TurnCompleted EventType = "turn_completed"
	// TurnAborted is published for a turn cut short by a failed recording or an interrupt.
	TurnAborted EventType = "turn_aborted"
)

// Event wraps a payload with its type and publish time.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher publishes typed payloads.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T) int
}
