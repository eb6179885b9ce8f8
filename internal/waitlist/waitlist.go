// Package waitlist implements the restaurant waitlist: clients queue in
// strict arrival order and the head is seated at the smallest free table that
// fits the party.
package waitlist

import (
	"fmt"
	"iter"

	"qms/admission-service/internal/models"
)

const DefaultMinutesPerTable = 30

// DefaultTables is five two-seat, three four-seat and two six-seat tables.
func DefaultTables() map[int]int {
	return map[int]int{2: 5, 4: 3, 6: 2}
}

type Options struct {
	Tables          map[int]int
	MinutesPerTable int
}

type node struct {
	entry models.WaitEntry
	next  *node
}

// Waitlist owns its chain of entries; nothing outside holds a node.
// Not safe for concurrent use.
type Waitlist struct {
	head            *node
	tail            *node
	length          int
	pool            *Pool
	minutesPerTable int
}

func New(options Options) *Waitlist {
	tables := options.Tables
	if tables == nil {
		tables = DefaultTables()
	}
	minutes := options.MinutesPerTable
	if minutes <= 0 {
		minutes = DefaultMinutesPerTable
	}
	return &Waitlist{
		pool:            NewPool(tables),
		minutesPerTable: minutes,
	}
}

func (w *Waitlist) AddClient(name string, partySize int, requestedTime string) {
	n := &node{entry: models.WaitEntry{
		ClientName:    name,
		PartySize:     partySize,
		RequestedTime: requestedTime,
	}}
	if w.tail == nil {
		w.head = n
	} else {
		w.tail.next = n
	}
	w.tail = n
	w.length++
}

// CallNextTable seats the head of the list. When no table fits the head the
// list is left untouched and the head keeps blocking everyone behind it.
func (w *Waitlist) CallNextTable() (models.Seating, error) {
	if w.head == nil {
		return models.Seating{}, ErrWaitlistEmpty
	}
	entry := w.head.entry
	size, ok := w.pool.BestFit(entry.PartySize)
	if !ok || !w.pool.occupy(size) {
		return models.Seating{}, fmt.Errorf("%w for %s (party of %d)", ErrNoTableAvailable, entry.ClientName, entry.PartySize)
	}
	w.unlink(nil, w.head)
	return models.Seating{WaitEntry: entry, TableSize: size}, nil
}

// CancelReservation removes the first entry whose name matches exactly.
func (w *Waitlist) CancelReservation(name string) (models.WaitEntry, error) {
	if w.head == nil {
		return models.WaitEntry{}, ErrWaitlistEmpty
	}
	var prev *node
	for n := w.head; n != nil; prev, n = n, n.next {
		if n.entry.ClientName == name {
			w.unlink(prev, n)
			return n.entry, nil
		}
	}
	return models.WaitEntry{}, fmt.Errorf("%w: %s", ErrClientNotFound, name)
}

// EstimateWaitTime counts every waiting party no larger than partySize,
// wherever it sits in the list, and discounts the free tables of the best-fit
// size. It is a rough figure, not a position-based one.
func (w *Waitlist) EstimateWaitTime(partySize int) int {
	count := 0
	for n := w.head; n != nil; n = n.next {
		if n.entry.PartySize <= partySize {
			count++
		}
	}
	available := 0
	if size, ok := w.pool.BestFit(partySize); ok {
		available = w.pool.Available(size)
	}
	return max(0, (count-available)*w.minutesPerTable)
}

func (w *Waitlist) FreeTable(size int) bool {
	return w.pool.Release(size)
}

// All yields entries with their 1-based position, head first.
func (w *Waitlist) All() iter.Seq2[int, models.WaitEntry] {
	return func(yield func(int, models.WaitEntry) bool) {
		position := 1
		for n := w.head; n != nil; n = n.next {
			if !yield(position, n.entry) {
				return
			}
			position++
		}
	}
}

func (w *Waitlist) List() []models.WaitEntry {
	out := make([]models.WaitEntry, 0, w.length)
	for _, entry := range w.All() {
		out = append(out, entry)
	}
	return out
}

func (w *Waitlist) Len() int {
	return w.length
}

func (w *Waitlist) Tables() []models.Table {
	return w.pool.Tables()
}

func (w *Waitlist) MinutesPerTable() int {
	return w.minutesPerTable
}

func (w *Waitlist) unlink(prev, n *node) {
	if prev == nil {
		w.head = n.next
	} else {
		prev.next = n.next
	}
	if w.tail == n {
		w.tail = prev
	}
	n.next = nil
	w.length--
}
