package triage

import (
	"container/heap"

	"qms/admission-service/internal/models"
)

// lane is one department's priority/FIFO pair plus its dispatch history.
type lane struct {
	urgent     urgentHeap
	walkIn     walkInQueue
	dispatched []*models.Entrant
}

func newLane() *lane {
	return &lane{}
}

func (l *lane) add(entrant *models.Entrant) {
	if entrant.Priority > models.PriorityNormal {
		heap.Push(&l.urgent, entrant)
		return
	}
	l.walkIn.push(entrant)
}

func (l *lane) waiting() int {
	return l.urgent.Len() + l.walkIn.len()
}

func (l *lane) peek() *models.Entrant {
	if l.urgent.Len() > 0 {
		return l.urgent[0]
	}
	return l.walkIn.front()
}

func (l *lane) take() *models.Entrant {
	if l.urgent.Len() > 0 {
		return heap.Pop(&l.urgent).(*models.Entrant)
	}
	return l.walkIn.pop()
}

func (l *lane) averageWaitMinutes() float64 {
	if len(l.dispatched) == 0 {
		return 0
	}
	var total float64
	for _, entrant := range l.dispatched {
		total += entrant.WaitMinutes()
	}
	return total / float64(len(l.dispatched))
}

// urgentHeap orders by priority descending, then arrival, then id.
type urgentHeap []*models.Entrant

func (h urgentHeap) Len() int           { return len(h) }
func (h urgentHeap) Less(i, j int) bool { return ahead(h[i], h[j]) }
func (h urgentHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *urgentHeap) Push(x any) {
	*h = append(*h, x.(*models.Entrant))
}

func (h *urgentHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

func ahead(a, b *models.Entrant) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return arrivedFirst(a, b)
}

func arrivedFirst(a, b *models.Entrant) bool {
	if !a.ArrivedAt.Equal(b.ArrivedAt) {
		return a.ArrivedAt.Before(b.ArrivedAt)
	}
	return a.EntrantID < b.EntrantID
}

const compactThreshold = 32

// walkInQueue is a slice-backed deque; popped slots are reclaimed once the
// dead prefix outgrows the live part.
type walkInQueue struct {
	items []*models.Entrant
	head  int
}

func (q *walkInQueue) len() int {
	return len(q.items) - q.head
}

func (q *walkInQueue) push(entrant *models.Entrant) {
	q.items = append(q.items, entrant)
}

func (q *walkInQueue) front() *models.Entrant {
	if q.len() == 0 {
		return nil
	}
	return q.items[q.head]
}

func (q *walkInQueue) pop() *models.Entrant {
	if q.len() == 0 {
		return nil
	}
	entrant := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head >= compactThreshold && q.head*2 >= len(q.items) {
		live := copy(q.items, q.items[q.head:])
		clear(q.items[live:])
		q.items = q.items[:live]
		q.head = 0
	}
	return entrant
}
