// Package triage holds the patient triage queue: urgent entrants are
// dispatched by priority, everyone else in arrival order.
package triage

import (
	"strings"
	"time"

	"qms/admission-service/internal/models"
)

type Options struct {
	// Now overrides the wall clock. Used by tests.
	Now func() time.Time
}

// Queue is not safe for concurrent use; the owning session serialises calls.
type Queue struct {
	now         func() time.Time
	nextID      int
	lastArrival time.Time
	lanes       map[string]*lane
	departments []string
	history     []*models.Entrant
}

func New(options Options) *Queue {
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Queue{
		now:    now,
		nextID: 1,
		lanes:  make(map[string]*lane),
	}
}

// Register queues a new entrant and returns its sequential id.
func (q *Queue) Register(name, department string, priority models.Priority) int {
	department = normalizeDepartment(department)
	if priority < models.PriorityNormal {
		priority = models.PriorityNormal
	}

	arrivedAt := q.now()
	if arrivedAt.Before(q.lastArrival) {
		arrivedAt = q.lastArrival
	}
	q.lastArrival = arrivedAt

	entrant := &models.Entrant{
		EntrantID:  q.nextID,
		Name:       name,
		Department: department,
		Priority:   priority,
		Status:     models.StatusQueued,
		ArrivedAt:  arrivedAt,
	}
	q.nextID++
	q.laneFor(department).add(entrant)
	return entrant.EntrantID
}

// DispatchNext removes the next entrant across all departments. Urgent
// entrants win over walk-ins regardless of department.
func (q *Queue) DispatchNext() (models.Entrant, bool) {
	l := q.nextLane()
	if l == nil {
		return models.Entrant{}, false
	}
	return q.dispatch(l), true
}

// DispatchNextIn removes the next entrant of a single department.
func (q *Queue) DispatchNextIn(department string) (models.Entrant, bool) {
	l, ok := q.lanes[normalizeDepartment(department)]
	if !ok || l.waiting() == 0 {
		return models.Entrant{}, false
	}
	return q.dispatch(l), true
}

func (q *Queue) Peek() (models.Entrant, bool) {
	l := q.nextLane()
	if l == nil {
		return models.Entrant{}, false
	}
	return *l.peek(), true
}

func (q *Queue) PeekNext(department string) (models.Entrant, bool) {
	l, ok := q.lanes[normalizeDepartment(department)]
	if !ok || l.waiting() == 0 {
		return models.Entrant{}, false
	}
	return *l.peek(), true
}

func (q *Queue) HasWaiting() bool {
	return q.CountWaiting() > 0
}

func (q *Queue) CountWaiting() int {
	total := 0
	for _, l := range q.lanes {
		total += l.waiting()
	}
	return total
}

func (q *Queue) CountWaitingIn(department string) int {
	l, ok := q.lanes[normalizeDepartment(department)]
	if !ok {
		return 0
	}
	return l.waiting()
}

func (q *Queue) CountDispatched() int {
	return len(q.history)
}

// AverageWaitMinutes is the mean arrival-to-dispatch time of a department's
// dispatched entrants, or 0 when none were dispatched yet.
func (q *Queue) AverageWaitMinutes(department string) float64 {
	l, ok := q.lanes[normalizeDepartment(department)]
	if !ok {
		return 0
	}
	return l.averageWaitMinutes()
}

// Dispatched returns the dispatch history, oldest first.
func (q *Queue) Dispatched() []models.Entrant {
	out := make([]models.Entrant, 0, len(q.history))
	for _, entrant := range q.history {
		out = append(out, *entrant)
	}
	return out
}

// RecentlyDispatched returns up to limit entrants, newest first.
func (q *Queue) RecentlyDispatched(limit int) []models.Entrant {
	if limit <= 0 || len(q.history) == 0 {
		return nil
	}
	if limit > len(q.history) {
		limit = len(q.history)
	}
	out := make([]models.Entrant, 0, limit)
	for i := len(q.history) - 1; i >= len(q.history)-limit; i-- {
		out = append(out, *q.history[i])
	}
	return out
}

// Departments lists every department seen so far in first-seen order.
func (q *Queue) Departments() []string {
	out := make([]string, len(q.departments))
	copy(out, q.departments)
	return out
}

func (q *Queue) dispatch(l *lane) models.Entrant {
	entrant := l.take()
	dispatchedAt := q.now()
	if dispatchedAt.Before(entrant.ArrivedAt) {
		dispatchedAt = entrant.ArrivedAt
	}
	entrant.DispatchedAt = &dispatchedAt
	entrant.Status = models.StatusDispatched
	l.dispatched = append(l.dispatched, entrant)
	q.history = append(q.history, entrant)
	return *entrant
}

// nextLane picks the lane holding the globally next entrant: the best urgent
// head if any lane has one, otherwise the earliest walk-in head.
func (q *Queue) nextLane() *lane {
	var best *lane
	for _, l := range q.lanes {
		if l.urgent.Len() == 0 {
			continue
		}
		if best == nil || ahead(l.urgent[0], best.urgent[0]) {
			best = l
		}
	}
	if best != nil {
		return best
	}
	for _, l := range q.lanes {
		head := l.walkIn.front()
		if head == nil {
			continue
		}
		if best == nil || arrivedFirst(head, best.walkIn.front()) {
			best = l
		}
	}
	return best
}

func (q *Queue) laneFor(department string) *lane {
	l, ok := q.lanes[department]
	if !ok {
		l = newLane()
		q.lanes[department] = l
		q.departments = append(q.departments, department)
	}
	return l
}

func normalizeDepartment(department string) string {
	return strings.ToLower(strings.TrimSpace(department))
}
