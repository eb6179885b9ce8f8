package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"qms/admission-service/internal/journal"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestPublishAndReadBack(t *testing.T) {
	ctx := context.Background()
	sink, cleanup := setupTestSink(t, ctx)
	t.Cleanup(cleanup)

	sessionID := uuid.NewString()
	chain := journal.NewChain(sessionID, nil)
	var published []journal.Event
	for _, name := range []string{"Ana", "Luis"} {
		event, err := chain.Next(journal.TypeClientAdded, map[string]interface{}{"client_name": name})
		if err != nil {
			t.Fatalf("next event: %v", err)
		}
		if err := sink.Publish(ctx, event); err != nil {
			t.Fatalf("publish: %v", err)
		}
		published = append(published, event)
	}
	// Publishing twice must not duplicate.
	if err := sink.Publish(ctx, published[0]); err != nil {
		t.Fatalf("republish: %v", err)
	}

	events, err := sink.SessionEvents(ctx, sessionID, 0, 0)
	if err != nil {
		t.Fatalf("session events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Message != "Client Luis added to the waitlist." {
		t.Fatalf("unexpected message: %q", events[1].Message)
	}
	if err := journal.VerifyChain(events); err != nil {
		t.Fatalf("verify chain: %v", err)
	}

	removed, err := sink.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
}

func setupTestSink(t *testing.T, ctx context.Context) (*Sink, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execOnce(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = execOnce(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
	return NewSink(pool), cleanup
}

func execOnce(ctx context.Context, dsn, statement string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, statement)
	return err
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}
