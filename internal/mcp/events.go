package mcp

import (
	"sync"
	"time"
)

// Event is a single entry on the audit event bus.
type Event struct {
	Timestamp string            `json:"ts"`
	Event     string            `json:"event"`
	Source    string            `json:"source"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// EventBus is a thread-safe, append-only event log for one audit session.
// Clients poll it with get_audit_events to follow cycle progress.
type EventBus struct {
	mu     sync.Mutex
	events []Event
}

func (b *EventBus) Emit(event, source string, meta map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Event:     event,
		Source:    source,
		Meta:      meta,
	})
}

func (b *EventBus) Since(idx int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx < 0 {
		idx = 0
	}
	if idx >= len(b.events) {
		return nil
	}
	out := make([]Event, len(b.events)-idx)
	copy(out, b.events[idx:])
	return out
}

func (b *EventBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
