package waitlist

import (
	"sort"

	"qms/admission-service/internal/models"
)

// Pool tracks free tables per table size.
type Pool struct {
	sizes     []int
	available map[int]int
}

// NewPool copies tables. Non-positive sizes are ignored and negative counts
// start at zero.
func NewPool(tables map[int]int) *Pool {
	p := &Pool{available: make(map[int]int, len(tables))}
	for size, count := range tables {
		if size <= 0 {
			continue
		}
		if count < 0 {
			count = 0
		}
		p.available[size] = count
		p.sizes = append(p.sizes, size)
	}
	sort.Ints(p.sizes)
	return p
}

// BestFit returns the smallest table size that seats partySize.
func (p *Pool) BestFit(partySize int) (int, bool) {
	for _, size := range p.sizes {
		if partySize <= size {
			return size, true
		}
	}
	return 0, false
}

func (p *Pool) Available(size int) int {
	return p.available[size]
}

func (p *Pool) Known(size int) bool {
	_, ok := p.available[size]
	return ok
}

func (p *Pool) occupy(size int) bool {
	if p.available[size] <= 0 {
		return false
	}
	p.available[size]--
	return true
}

// Release hands a table back. There is no ceiling: releasing a table that was
// never occupied still grows the pool.
func (p *Pool) Release(size int) bool {
	if !p.Known(size) {
		return false
	}
	p.available[size]++
	return true
}

func (p *Pool) Tables() []models.Table {
	out := make([]models.Table, 0, len(p.sizes))
	for _, size := range p.sizes {
		out = append(out, models.Table{Size: size, Available: p.available[size]})
	}
	return out
}
