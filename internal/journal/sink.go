package journal

import (
	"context"
	"errors"
	"sync"
)

type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Reader returns up to limit events of a session with Seq greater than
// afterSeq, oldest first. A limit of zero means no limit.
type Reader interface {
	SessionEvents(ctx context.Context, sessionID string, afterSeq, limit int) ([]Event, error)
}

// Fanout publishes to every sink and keeps going past failures.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const defaultMemoryLimit = 500

// MemorySink keeps the latest events of each session in memory.
type MemorySink struct {
	mu     sync.RWMutex
	limit  int
	events map[string][]Event
}

func NewMemorySink(limit int) *MemorySink {
	if limit <= 0 {
		limit = defaultMemoryLimit
	}
	return &MemorySink{limit: limit, events: make(map[string][]Event)}
}

func (m *MemorySink) Publish(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := append(m.events[event.SessionID], event)
	if len(events) > m.limit {
		events = append([]Event(nil), events[len(events)-m.limit:]...)
	}
	m.events[event.SessionID] = events
	return nil
}

func (m *MemorySink) SessionEvents(ctx context.Context, sessionID string, afterSeq, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, event := range m.events[sessionID] {
		if event.Seq <= afterSeq {
			continue
		}
		out = append(out, event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemorySink) Drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, sessionID)
}
