package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeviewer/internal/repo"
	"github.com/hamed0406/uptimeviewer/internal/repo/repotest"
)

// resetSchema drops the tables so every subtest starts from an empty database.
func resetSchema(t *testing.T, dsn string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS ping_logs, state_logs, services`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	repotest.Run(t, func(t *testing.T) repo.Store {
		resetSchema(t, dsn)
		s, err := New(context.Background(), dsn, zap.NewNop())
		if err != nil {
			t.Fatalf("New store: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
