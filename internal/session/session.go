package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"qms/admission-service/internal/journal"
	"qms/admission-service/internal/models"
	"qms/admission-service/internal/telemetry"
	"qms/admission-service/internal/triage"
	"qms/admission-service/internal/waitlist"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	recentDispatchedLimit = 5
	publishTimeout        = 5 * time.Second
)

var tracer = otel.Tracer("qms/admission-service/session")

// Session owns one triage queue and one waitlist for its whole lifetime.
// Calls are serialised, so the structures underneath never see concurrency.
type Session struct {
	mu          sync.Mutex
	id          string
	createdAt   time.Time
	lastUsed    time.Time
	departments []string
	triage      *triage.Queue
	waitlist    *waitlist.Waitlist
	chain       *journal.Chain
	sink        journal.Sink
	metrics     *telemetry.Metrics
	now         func() time.Time
}

type DepartmentStats struct {
	Department         string  `json:"department"`
	Waiting            int     `json:"waiting"`
	Dispatched         int     `json:"dispatched"`
	AverageWaitMinutes float64 `json:"average_wait_minutes"`
}

type TriageReport struct {
	Waiting     int               `json:"waiting"`
	Dispatched  int               `json:"dispatched"`
	Recent      []models.Entrant  `json:"recent"`
	Departments []DepartmentStats `json:"departments"`
}

type WaitlistRow struct {
	Position int `json:"position"`
	models.WaitEntry
	EstimatedWaitMinutes int `json:"estimated_wait_minutes"`
}

type WaitlistView struct {
	Entries         []WaitlistRow  `json:"entries"`
	Tables          []models.Table `json:"tables"`
	MinutesPerTable int            `json:"minutes_per_table"`
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) RegisterEntrant(ctx context.Context, name, department string, priority models.Priority) (int, string) {
	ctx, span := s.start(ctx, "session.RegisterEntrant")
	defer span.End()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	id := s.triage.Register(name, department, priority)
	span.SetAttributes(attribute.Int("entrant.id", id))
	s.metrics.EntrantsRegistered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("department", department),
		attribute.String("priority", priority.String()),
	))
	message := s.emit(ctx, journal.TypeEntrantRegistered, map[string]interface{}{
		"entrant_id":     id,
		"name":           name,
		"department":     department,
		"priority":       priority.String(),
		"priority_level": int(priority),
	})
	return id, message
}

// DispatchNext dispatches across all departments when department is empty,
// otherwise within that department only.
func (s *Session) DispatchNext(ctx context.Context, department string) (models.Entrant, string, bool) {
	ctx, span := s.start(ctx, "session.DispatchNext")
	defer span.End()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	var entrant models.Entrant
	var ok bool
	if department == "" {
		entrant, ok = s.triage.DispatchNext()
	} else {
		entrant, ok = s.triage.DispatchNextIn(department)
	}
	if !ok {
		return models.Entrant{}, "", false
	}
	attrs := metric.WithAttributes(
		attribute.String("department", entrant.Department),
		attribute.String("priority", entrant.Priority.String()),
	)
	s.metrics.EntrantsDispatched.Add(ctx, 1, attrs)
	s.metrics.TriageWait.Record(ctx, entrant.WaitMinutes(), attrs)
	message := s.emit(ctx, journal.TypeEntrantDispatched, map[string]interface{}{
		"entrant_id":     entrant.EntrantID,
		"name":           entrant.Name,
		"department":     entrant.Department,
		"priority":       entrant.Priority.String(),
		"priority_level": int(entrant.Priority),
		"arrived_at":     entrant.ArrivedAt,
		"dispatched_at":  entrant.DispatchedAt,
	})
	return entrant, message, true
}

func (s *Session) PeekNext(department string) (models.Entrant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if department == "" {
		return s.triage.Peek()
	}
	return s.triage.PeekNext(department)
}

func (s *Session) TriageReport() TriageReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	dispatchedBy := make(map[string]int)
	for _, entrant := range s.triage.Dispatched() {
		dispatchedBy[entrant.Department]++
	}

	report := TriageReport{
		Waiting:    s.triage.CountWaiting(),
		Dispatched: s.triage.CountDispatched(),
		Recent:     s.triage.RecentlyDispatched(recentDispatchedLimit),
	}
	for _, department := range mergeDepartments(s.departments, s.triage.Departments()) {
		report.Departments = append(report.Departments, DepartmentStats{
			Department:         department,
			Waiting:            s.triage.CountWaitingIn(department),
			Dispatched:         dispatchedBy[department],
			AverageWaitMinutes: s.triage.AverageWaitMinutes(department),
		})
	}
	return report
}

func (s *Session) AddClient(ctx context.Context, name string, partySize int, requestedTime string) string {
	ctx, span := s.start(ctx, "session.AddClient")
	defer span.End()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	s.waitlist.AddClient(name, partySize, requestedTime)
	s.metrics.ClientsWaitlisted.Add(ctx, 1)
	return s.emit(ctx, journal.TypeClientAdded, map[string]interface{}{
		"client_name":    name,
		"party_size":     partySize,
		"requested_time": requestedTime,
		"position":       s.waitlist.Len(),
	})
}

func (s *Session) CallNextTable(ctx context.Context) (models.Seating, string, error) {
	ctx, span := s.start(ctx, "session.CallNextTable")
	defer span.End()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	seating, err := s.waitlist.CallNextTable()
	if err != nil {
		if errors.Is(err, waitlist.ErrNoTableAvailable) {
			s.metrics.SeatingRejected.Add(ctx, 1)
		}
		return models.Seating{}, "", err
	}
	s.metrics.ClientsSeated.Add(ctx, 1, metric.WithAttributes(attribute.Int("table_size", seating.TableSize)))
	message := s.emit(ctx, journal.TypeClientSeated, map[string]interface{}{
		"client_name": seating.ClientName,
		"party_size":  seating.PartySize,
		"table_size":  seating.TableSize,
	})
	return seating, message, nil
}

func (s *Session) CancelReservation(ctx context.Context, name string) (models.WaitEntry, string, error) {
	ctx, span := s.start(ctx, "session.CancelReservation")
	defer span.End()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	entry, err := s.waitlist.CancelReservation(name)
	if err != nil {
		return models.WaitEntry{}, "", err
	}
	message := s.emit(ctx, journal.TypeClientCancelled, map[string]interface{}{
		"client_name": entry.ClientName,
		"party_size":  entry.PartySize,
	})
	return entry, message, nil
}

func (s *Session) FreeTable(ctx context.Context, size int) (string, bool) {
	ctx, span := s.start(ctx, "session.FreeTable")
	defer span.End()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if !s.waitlist.FreeTable(size) {
		return "", false
	}
	return s.emit(ctx, journal.TypeTableFreed, map[string]interface{}{
		"table_size": size,
	}), true
}

// Tables returns the free tables per size, smallest first.
func (s *Session) Tables() []models.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.waitlist.Tables()
}

func (s *Session) EstimateWaitTime(partySize int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.waitlist.EstimateWaitTime(partySize)
}

func (s *Session) Waitlist() WaitlistView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	view := WaitlistView{
		Entries:         make([]WaitlistRow, 0, s.waitlist.Len()),
		Tables:          s.waitlist.Tables(),
		MinutesPerTable: s.waitlist.MinutesPerTable(),
	}
	for position, entry := range s.waitlist.All() {
		view.Entries = append(view.Entries, WaitlistRow{
			Position:             position,
			WaitEntry:            entry,
			EstimatedWaitMinutes: s.waitlist.EstimateWaitTime(entry.PartySize),
		})
	}
	return view
}

func (s *Session) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("session.id", s.id)))
}

func (s *Session) touch() {
	s.lastUsed = s.now()
}

// emit appends an event to the session journal. Sink failures are logged and
// never undo the operation that produced the event. The state change has
// already happened, so publishing is detached from the caller's cancellation
// to keep every sink's chain contiguous.
func (s *Session) emit(ctx context.Context, eventType string, payload map[string]interface{}) string {
	payload["session_id"] = s.id
	event, err := s.chain.Next(eventType, payload)
	if err != nil {
		telemetry.LoggerFromContext(ctx).Error().Err(err).Str("event_type", eventType).Msg("build journal event")
		return journal.Render(eventType, payload)
	}
	if s.sink != nil {
		publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		err := s.sink.Publish(publishCtx, event)
		cancel()
		if err != nil {
			telemetry.LoggerFromContext(ctx).Warn().Err(err).
				Str("session_id", s.id).
				Str("event_type", eventType).
				Int("seq", event.Seq).
				Msg("publish journal event")
		}
	}
	return event.Message
}

func mergeDepartments(configured, seen []string) []string {
	out := make([]string, 0, len(configured)+len(seen))
	index := make(map[string]struct{}, len(configured)+len(seen))
	for _, list := range [][]string{configured, seen} {
		for _, department := range list {
			if _, ok := index[department]; ok {
				continue
			}
			index[department] = struct{}{}
			out = append(out, department)
		}
	}
	return out
}
