package ports

import (
	"context"
	"time"
)

// TopicCartChanged carries CartChanged events.
const TopicCartChanged = "cart.changed"

// CartChanged is published after every successful cart mutation so that
// badges and totals can refresh without polling.
type CartChanged struct {
	Lines int       `json:"lines"`
	Units int       `json:"units"`
	Total string    `json:"total"`
	At    time.Time `json:"at"`
}

// EventPublisher delivers events to in-process subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}
