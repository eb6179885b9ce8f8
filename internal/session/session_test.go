package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"qms/admission-service/internal/journal"
	"qms/admission-service/internal/models"
	"qms/admission-service/internal/waitlist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T, options Options) (*Registry, *journal.MemorySink, *manualClock) {
	t.Helper()
	clock := &manualClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	sink := journal.NewMemorySink(0)
	options.Now = clock.Now
	return NewRegistry(sink, options), sink, clock
}

func sessionEvents(t *testing.T, sink *journal.MemorySink, id string) []journal.Event {
	t.Helper()
	events, err := sink.SessionEvents(context.Background(), id, 0, 0)
	require.NoError(t, err)
	return events
}

func TestOpenEmitsSessionOpened(t *testing.T) {
	registry, sink, _ := newTestRegistry(t, Options{})
	s := registry.Open(context.Background())

	events := sessionEvents(t, sink, s.ID())
	require.Len(t, events, 1)
	assert.Equal(t, journal.TypeSessionOpened, events[0].Type)
	assert.Equal(t, "Session "+s.ID()+" opened.", events[0].Message)
	assert.Equal(t, 1, registry.Len())
}

func TestSessionsAreIndependent(t *testing.T) {
	registry, _, _ := newTestRegistry(t, Options{})
	ctx := context.Background()
	a := registry.Open(ctx)
	b := registry.Open(ctx)

	a.RegisterEntrant(ctx, "Ann", "general", models.PriorityUrgent)
	a.AddClient(ctx, "Smith", 2, "19:00")

	assert.Equal(t, 1, a.TriageReport().Waiting)
	assert.Zero(t, b.TriageReport().Waiting)
	assert.Len(t, a.Waitlist().Entries, 1)
	assert.Empty(t, b.Waitlist().Entries)

	_, _, ok := b.DispatchNext(ctx, "")
	assert.False(t, ok)
}

func TestTriageFlowJournalsMessages(t *testing.T) {
	registry, sink, clock := newTestRegistry(t, Options{})
	ctx := context.Background()
	s := registry.Open(ctx)

	id, message := s.RegisterEntrant(ctx, "Ann", "general", models.PriorityUrgent)
	assert.Equal(t, 1, id)
	assert.Equal(t, "Patient #1: Ann registered in general with urgent priority.", message)
	s.RegisterEntrant(ctx, "Bob", "general", models.PriorityNormal)

	clock.Advance(10 * time.Minute)
	entrant, message, ok := s.DispatchNext(ctx, "")
	require.True(t, ok)
	assert.Equal(t, "Ann", entrant.Name)
	assert.Equal(t, "Attending patient #1: Ann (general, urgent).", message)

	events := sessionEvents(t, sink, s.ID())
	require.Len(t, events, 4)
	assert.Equal(t, journal.TypeEntrantDispatched, events[3].Type)
	require.NoError(t, journal.VerifyChain(events))
}

func TestDispatchNextByDepartment(t *testing.T) {
	registry, _, _ := newTestRegistry(t, Options{})
	ctx := context.Background()
	s := registry.Open(ctx)

	s.RegisterEntrant(ctx, "Ann", "general", models.PriorityEmergency)
	s.RegisterEntrant(ctx, "Kid", "pediatrics", models.PriorityNormal)

	entrant, _, ok := s.DispatchNext(ctx, "pediatrics")
	require.True(t, ok)
	assert.Equal(t, "Kid", entrant.Name)

	_, _, ok = s.DispatchNext(ctx, "pediatrics")
	assert.False(t, ok)

	peeked, ok := s.PeekNext("")
	require.True(t, ok)
	assert.Equal(t, "Ann", peeked.Name)
}

func TestTriageReport(t *testing.T) {
	registry, _, clock := newTestRegistry(t, Options{Departments: []string{"emergency", "general"}})
	ctx := context.Background()
	s := registry.Open(ctx)

	s.RegisterEntrant(ctx, "Ann", "general", models.PriorityNormal)
	s.RegisterEntrant(ctx, "Bob", "general", models.PriorityNormal)
	s.RegisterEntrant(ctx, "Kid", "pediatrics", models.PriorityNormal)
	clock.Advance(20 * time.Minute)
	s.DispatchNext(ctx, "general")

	report := s.TriageReport()
	assert.Equal(t, 2, report.Waiting)
	assert.Equal(t, 1, report.Dispatched)
	require.Len(t, report.Recent, 1)
	assert.Equal(t, "Ann", report.Recent[0].Name)

	require.Len(t, report.Departments, 3)
	assert.Equal(t, "emergency", report.Departments[0].Department)
	assert.Zero(t, report.Departments[0].Waiting)
	assert.Equal(t, "general", report.Departments[1].Department)
	assert.Equal(t, 1, report.Departments[1].Waiting)
	assert.Equal(t, 1, report.Departments[1].Dispatched)
	assert.InDelta(t, 20.0, report.Departments[1].AverageWaitMinutes, 0.001)
	assert.Equal(t, "pediatrics", report.Departments[2].Department)
}

func TestWaitlistFlow(t *testing.T) {
	registry, sink, _ := newTestRegistry(t, Options{Tables: map[int]int{2: 1, 4: 1}})
	ctx := context.Background()
	s := registry.Open(ctx)

	assert.Equal(t, "Client Smith added to the waitlist.", s.AddClient(ctx, "Smith", 2, "19:00"))
	s.AddClient(ctx, "Jones", 3, "19:15")
	s.AddClient(ctx, "Lee", 2, "19:30")

	view := s.Waitlist()
	require.Len(t, view.Entries, 3)
	assert.Equal(t, 1, view.Entries[0].Position)
	assert.Equal(t, "Smith", view.Entries[0].ClientName)
	assert.Equal(t, 30, view.MinutesPerTable)

	seating, message, err := s.CallNextTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, seating.TableSize)
	assert.Equal(t, "Calling Smith for a table of 2.", message)

	entry, message, err := s.CancelReservation(ctx, "Lee")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.PartySize)
	assert.Equal(t, "Reservation for Lee cancelled.", message)

	_, _, err = s.CancelReservation(ctx, "Nobody")
	assert.ErrorIs(t, err, waitlist.ErrClientNotFound)

	message, ok := s.FreeTable(ctx, 2)
	assert.True(t, ok)
	assert.Equal(t, "Table for 2 freed.", message)
	_, ok = s.FreeTable(ctx, 8)
	assert.False(t, ok)

	events := sessionEvents(t, sink, s.ID())
	require.NoError(t, journal.VerifyChain(events))
	types := make([]string, len(events))
	for i, event := range events {
		types[i] = event.Type
	}
	assert.Equal(t, []string{
		journal.TypeSessionOpened,
		journal.TypeClientAdded,
		journal.TypeClientAdded,
		journal.TypeClientAdded,
		journal.TypeClientSeated,
		journal.TypeClientCancelled,
		journal.TypeTableFreed,
	}, types)
}

func TestCallNextTableFailureLeavesNoEvent(t *testing.T) {
	registry, sink, _ := newTestRegistry(t, Options{Tables: map[int]int{2: 1}})
	ctx := context.Background()
	s := registry.Open(ctx)

	_, _, err := s.CallNextTable(ctx)
	assert.ErrorIs(t, err, waitlist.ErrWaitlistEmpty)

	s.AddClient(ctx, "Big", 6, "20:00")
	_, _, err = s.CallNextTable(ctx)
	assert.ErrorIs(t, err, waitlist.ErrNoTableAvailable)
	assert.Len(t, s.Waitlist().Entries, 1)

	assert.Len(t, sessionEvents(t, sink, s.ID()), 2)
}

func TestEstimateWaitTime(t *testing.T) {
	registry, _, _ := newTestRegistry(t, Options{Tables: map[int]int{2: 0, 4: 1}, MinutesPerTable: 15})
	ctx := context.Background()
	s := registry.Open(ctx)

	s.AddClient(ctx, "A", 2, "18:00")
	s.AddClient(ctx, "B", 2, "18:00")
	assert.Equal(t, 30, s.EstimateWaitTime(2))
}

func TestGetAndClose(t *testing.T) {
	closed := make([]string, 0)
	registry, sink, _ := newTestRegistry(t, Options{OnClose: func(id string) { closed = append(closed, id) }})
	ctx := context.Background()
	s := registry.Open(ctx)

	got, err := registry.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, registry.Close(ctx, s.ID()))
	_, err = registry.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, registry.Close(ctx, s.ID()), ErrSessionNotFound)
	assert.Equal(t, []string{s.ID()}, closed)

	events := sessionEvents(t, sink, s.ID())
	require.Len(t, events, 2)
	assert.Equal(t, journal.TypeSessionClosed, events[1].Type)
	assert.JSONEq(t, `{"reason":"requested","session_id":"`+s.ID()+`"}`, string(events[1].Payload))
}

func TestSweepClosesIdleSessions(t *testing.T) {
	registry, _, clock := newTestRegistry(t, Options{IdleTTL: time.Hour})
	ctx := context.Background()
	idle := registry.Open(ctx)
	clock.Advance(30 * time.Minute)
	active := registry.Open(ctx)

	clock.Advance(45 * time.Minute)
	active.AddClient(ctx, "Smith", 2, "19:00")

	assert.Equal(t, 1, registry.Sweep(ctx))
	_, err := registry.Get(idle.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = registry.Get(active.ID())
	assert.NoError(t, err)
}

func TestSweepDisabledWithoutTTL(t *testing.T) {
	registry, _, clock := newTestRegistry(t, Options{})
	registry.Open(context.Background())
	clock.Advance(24 * time.Hour)
	assert.Zero(t, registry.Sweep(context.Background()))
	assert.Equal(t, 1, registry.Len())
}

func TestIDsOldestFirst(t *testing.T) {
	registry, _, clock := newTestRegistry(t, Options{})
	ctx := context.Background()
	first := registry.Open(ctx)
	clock.Advance(time.Second)
	second := registry.Open(ctx)

	assert.Equal(t, []string{first.ID(), second.ID()}, registry.IDs())
}

func TestConcurrentCallsAreSerialised(t *testing.T) {
	registry, sink, _ := newTestRegistry(t, Options{})
	ctx := context.Background()
	s := registry.Open(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RegisterEntrant(ctx, "P", "general", models.PriorityNormal)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, s.TriageReport().Waiting)
	require.NoError(t, journal.VerifyChain(sessionEvents(t, sink, s.ID())))
}

type recordingSink struct {
	mu     sync.Mutex
	events []journal.Event
}

// Publish refuses events once ctx is done, like a database or bus client.
func (s *recordingSink) Publish(ctx context.Context, event journal.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func TestCancelledCallerKeepsJournalContiguous(t *testing.T) {
	sink := &recordingSink{}
	registry := NewRegistry(sink, Options{})
	s := registry.Open(context.Background())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	s.RegisterEntrant(cancelled, "Ann", "general", models.PriorityUrgent)
	s.AddClient(cancelled, "Smith", 2, "19:00")
	s.RegisterEntrant(context.Background(), "Bob", "general", models.PriorityNormal)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, 4)
	require.NoError(t, journal.VerifyChain(sink.events))
}

func TestTablesSnapshot(t *testing.T) {
	registry, _, _ := newTestRegistry(t, Options{Tables: map[int]int{4: 1, 2: 0}})
	ctx := context.Background()
	s := registry.Open(ctx)
	s.FreeTable(ctx, 2)

	assert.Equal(t, []models.Table{{Size: 2, Available: 1}, {Size: 4, Available: 1}}, s.Tables())
}
