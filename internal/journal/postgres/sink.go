// Package postgres writes journal events to an append-only audit table.
// Nothing is read back to rebuild queue state.
package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"qms/admission-service/internal/journal"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Sink struct {
	pool *pgxpool.Pool
}

func NewSink(pool *pgxpool.Pool) *Sink {
	return &Sink{pool: pool}
}

func (s *Sink) Publish(ctx context.Context, event journal.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admission_events (event_id, session_id, seq, type, payload_json, message, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
	`, event.EventID, event.SessionID, event.Seq, event.Type, []byte(event.Payload), event.Message, event.CreatedAt, event.PrevHash, event.Hash)
	if err != nil {
		return fmt.Errorf("insert admission event: %w", err)
	}
	return nil
}

func (s *Sink) SessionEvents(ctx context.Context, sessionID string, afterSeq, limit int) ([]journal.Event, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, session_id, seq, type, payload_json, message, created_at, prev_hash, hash
		FROM admission_events
		WHERE session_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`, sessionID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []journal.Event
	for rows.Next() {
		var event journal.Event
		var payload []byte
		if err := rows.Scan(&event.EventID, &event.SessionID, &event.Seq, &event.Type, &payload, &event.Message, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.Payload = payload
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

// Prune deletes events older than before and reports how many were removed.
func (s *Sink) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM admission_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
