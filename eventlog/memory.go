package eventlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryLog is a thread-safe in-process event log.
type InMemoryLog struct {
	mu       sync.RWMutex
	handlers map[Kind][]handlerEntry
	history  []*Event
	maxHist  int

	nextEntry int
}

type handlerEntry struct {
	id      int
	handler Handler
}

// NewInMemoryLog creates an InMemoryLog with a 1000-event history cap.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{
		handlers: make(map[Kind][]handlerEntry),
		maxHist:  1000,
	}
}

// Log records the event and notifies subscribers of its kind.
func (l *InMemoryLog) Log(ctx context.Context, ev *Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	l.history = append(l.history, ev)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}
	// Collect handlers to invoke outside the lock
	var targets []Handler
	for _, e := range l.handlers[ev.Kind] {
		targets = append(targets, e.handler)
	}
	l.mu.Unlock()

	var errs []error
	for _, h := range targets {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("log: %d handler error(s): %v", len(errs), errs[0])
	}
	return nil
}

// Subscribe registers a handler for events of the given kind.
// The returned function unsubscribes the handler.
func (l *InMemoryLog) Subscribe(kind Kind, handler Handler) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextEntry++
	id := l.nextEntry
	l.handlers[kind] = append(l.handlers[kind], handlerEntry{id: id, handler: handler})

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		entries := l.handlers[kind]
		filtered := entries[:0]
		for _, e := range entries {
			if e.id != id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(l.handlers, kind)
		} else {
			l.handlers[kind] = filtered
		}
	}
}

// History returns up to limit recent events in chronological order.
func (l *InMemoryLog) History(limit int) ([]*Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if limit > 0 && len(l.history) > limit {
		start = len(l.history) - limit
	}
	out := make([]*Event, len(l.history)-start)
	copy(out, l.history[start:])
	return out, nil
}
