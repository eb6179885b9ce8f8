// Package session keeps independent admission sessions in memory. Each
// session carries its own triage queue, table waitlist and event journal.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"qms/admission-service/internal/journal"
	"qms/admission-service/internal/telemetry"
	"qms/admission-service/internal/triage"
	"qms/admission-service/internal/waitlist"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric/noop"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	CloseReasonRequested = "requested"
	CloseReasonIdle      = "idle"
)

type Options struct {
	Tables          map[int]int
	MinutesPerTable int
	Departments     []string
	// IdleTTL of zero keeps sessions until they are closed explicitly.
	IdleTTL time.Duration
	Now     func() time.Time
	// OnClose runs after a session has been removed.
	OnClose func(sessionID string)
	// Metrics defaults to instruments of the global meter provider.
	Metrics *telemetry.Metrics
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	sink     journal.Sink
	options  Options
	metrics  *telemetry.Metrics
	now      func() time.Time
}

func NewRegistry(sink journal.Sink, options Options) *Registry {
	now := options.Now
	if now == nil {
		now = time.Now
	}
	if options.Tables == nil {
		options.Tables = waitlist.DefaultTables()
	}
	metrics := options.Metrics
	if metrics == nil {
		var err error
		if metrics, err = telemetry.NewMetrics(telemetry.DefaultMeter()); err != nil {
			metrics, _ = telemetry.NewMetrics(noop.Meter{})
		}
	}
	return &Registry{
		sessions: make(map[string]*Session),
		sink:     sink,
		options:  options,
		metrics:  metrics,
		now:      now,
	}
}

func (r *Registry) Open(ctx context.Context) *Session {
	id := uuid.NewString()
	now := r.now()
	s := &Session{
		id:          id,
		createdAt:   now,
		lastUsed:    now,
		departments: append([]string(nil), r.options.Departments...),
		triage:      triage.New(triage.Options{Now: r.now}),
		waitlist: waitlist.New(waitlist.Options{
			Tables:          r.options.Tables,
			MinutesPerTable: r.options.MinutesPerTable,
		}),
		chain:   journal.NewChain(id, r.now),
		sink:    r.sink,
		metrics: r.metrics,
		now:     r.now,
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.metrics.SessionsOpen.Add(ctx, 1)
	s.mu.Lock()
	s.emit(ctx, journal.TypeSessionOpened, map[string]interface{}{})
	s.mu.Unlock()
	telemetry.LoggerFromContext(ctx).Info().Str("session_id", id).Msg("session opened")
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	r.finish(ctx, s, CloseReasonRequested)
	return nil
}

// Sweep closes every session idle for longer than IdleTTL and returns how
// many were removed.
func (r *Registry) Sweep(ctx context.Context) int {
	if r.options.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.options.IdleTTL)

	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.LastUsed().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		r.finish(ctx, s, CloseReasonIdle)
	}
	return len(expired)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the open session ids, oldest first.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].createdAt.Equal(sessions[j].createdAt) {
			return sessions[i].id < sessions[j].id
		}
		return sessions[i].createdAt.Before(sessions[j].createdAt)
	})
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.id
	}
	return ids
}

func (r *Registry) finish(ctx context.Context, s *Session, reason string) {
	r.metrics.SessionsOpen.Add(ctx, -1)
	s.mu.Lock()
	s.emit(ctx, journal.TypeSessionClosed, map[string]interface{}{"reason": reason})
	s.mu.Unlock()
	telemetry.LoggerFromContext(ctx).Info().
		Str("session_id", s.id).
		Str("reason", reason).
		Msg("session closed")
	if r.options.OnClose != nil {
		r.options.OnClose(s.id)
	}
}
