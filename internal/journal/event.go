package journal

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TypeSessionOpened     = "session.opened"
	TypeSessionClosed     = "session.closed"
	TypeEntrantRegistered = "entrant.registered"
	TypeEntrantDispatched = "entrant.dispatched"
	TypeClientAdded       = "client.added"
	TypeClientSeated      = "client.seated"
	TypeClientCancelled   = "client.cancelled"
	TypeTableFreed        = "table.freed"
)

var ErrBrokenChain = errors.New("event chain broken")

type Event struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

func ComputeEventHash(prevHash, sessionID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, sessionID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// Chain stamps events of one session with a sequence number and links each
// to the hash of the previous one.
type Chain struct {
	sessionID string
	seq       int
	lastHash  string
	now       func() time.Time
}

func NewChain(sessionID string, now func() time.Time) *Chain {
	if now == nil {
		now = time.Now
	}
	return &Chain{sessionID: sessionID, now: now}
}

func (c *Chain) Next(eventType string, payload map[string]interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	createdAt := c.now().UTC().Truncate(time.Microsecond)
	seq := c.seq + 1
	hash := ComputeEventHash(c.lastHash, c.sessionID, eventType, raw, createdAt, seq)
	event := Event{
		EventID:   uuid.NewString(),
		SessionID: c.sessionID,
		Seq:       seq,
		Type:      eventType,
		Payload:   raw,
		Message:   Render(eventType, payload),
		CreatedAt: createdAt,
		PrevHash:  c.lastHash,
		Hash:      hash,
	}
	c.seq = seq
	c.lastHash = hash
	return event, nil
}

// VerifyChain checks that events form an unbroken chain starting at seq 1.
func VerifyChain(events []Event) error {
	prev := ""
	for i, event := range events {
		if event.Seq != i+1 {
			return fmt.Errorf("%w: expected seq %d, got %d", ErrBrokenChain, i+1, event.Seq)
		}
		if event.PrevHash != prev {
			return fmt.Errorf("%w: seq %d prev hash mismatch", ErrBrokenChain, event.Seq)
		}
		want := ComputeEventHash(prev, event.SessionID, event.Type, event.Payload, event.CreatedAt, event.Seq)
		if event.Hash != want {
			return fmt.Errorf("%w: seq %d hash mismatch", ErrBrokenChain, event.Seq)
		}
		prev = event.Hash
	}
	return nil
}
