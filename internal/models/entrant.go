package models

import "time"

type Priority int

const (
	PriorityNormal    Priority = 0
	PriorityUrgent    Priority = 1
	PriorityEmergency Priority = 2
)

func (p Priority) String() string {
	switch {
	case p <= PriorityNormal:
		return "normal"
	case p == PriorityUrgent:
		return "urgent"
	case p == PriorityEmergency:
		return "emergency"
	default:
		return "critical"
	}
}

type Entrant struct {
	EntrantID    int        `json:"entrant_id"`
	Name         string     `json:"name"`
	Department   string     `json:"department"`
	Priority     Priority   `json:"priority"`
	Status       string     `json:"status"`
	ArrivedAt    time.Time  `json:"arrived_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
}

const (
	StatusQueued     = "queued"
	StatusDispatched = "dispatched"
)

// WaitMinutes is the time between arrival and dispatch. Zero while queued.
func (e Entrant) WaitMinutes() float64 {
	if e.DispatchedAt == nil {
		return 0
	}
	return e.DispatchedAt.Sub(e.ArrivedAt).Minutes()
}
