// Package eventlog provides the fire-and-forget delegation event log.
package eventlog

import (
	"context"
	"time"
)

// Kind identifies the kind of delegation event.
type Kind string

const (
	KindTaskDelegated Kind = "task-delegated"
	KindTaskResolved  Kind = "task-resolved"
	KindAgentOffline  Kind = "agent-offline"
)

// Event is a single log entry about a delegation subject.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Subject   string    `json:"subject"` // task or agent ID
	Message   string    `json:"message"`
	Tags      []string  `json:"tags,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler processes events of a subscribed kind.
type Handler func(ctx context.Context, ev *Event) error

// Logger records delegation events. Implementations are best-effort
// collaborators: the engine never lets a Log failure affect an assignment.
type Logger interface {
	// Log records an event, filling in ID and Timestamp when unset.
	Log(ctx context.Context, ev *Event) error

	// Subscribe registers a handler for events of the given kind.
	// The returned function unsubscribes the handler.
	Subscribe(kind Kind, handler Handler) (unsubscribe func())

	// History returns up to limit recent events in chronological order.
	// limit <= 0 returns everything retained.
	History(limit int) ([]*Event, error)
}
