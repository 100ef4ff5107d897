package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeviewer/internal/domain"
	"github.com/hamed0406/uptimeviewer/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Schema is applied on every New; all statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS services (
  id   BIGSERIAL PRIMARY KEY,
  url  VARCHAR(2048) NOT NULL UNIQUE,
  name VARCHAR(255)
);

CREATE TABLE IF NOT EXISTS state_logs (
  id         BIGSERIAL PRIMARY KEY,
  service_id BIGINT NOT NULL REFERENCES services(id) ON DELETE CASCADE,
  state      BOOLEAN NOT NULL,
  start_time TIMESTAMP NOT NULL,
  end_time   TIMESTAMP NULL
);

CREATE INDEX IF NOT EXISTS idx_state_logs_service_start ON state_logs (service_id, start_time);
CREATE UNIQUE INDEX IF NOT EXISTS uq_state_logs_open ON state_logs (service_id) WHERE end_time IS NULL;

CREATE TABLE IF NOT EXISTS ping_logs (
  id         BIGSERIAL PRIMARY KEY,
  service_id BIGINT NOT NULL REFERENCES services(id) ON DELETE CASCADE,
  timestamp  TIMESTAMP NOT NULL,
  ping_ms    DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ping_logs_service_time ON ping_logs (service_id, timestamp);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	cfg := pool.Config().ConnConfig
	log.Info("store_schema_applied",
		zap.String("driver", "postgres"),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.log.Info("store_closed", zap.String("driver", "postgres"))
	}
	return nil
}

// ---- TargetStore ----

func (s *Store) EnsureTarget(ctx context.Context, url, name string) (*domain.Target, error) {
	// A concurrent insert of the same url loses on the unique constraint and
	// falls through to the select.
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO services (url, name) VALUES ($1, $2) ON CONFLICT (url) DO NOTHING`,
		url, name,
	); err != nil {
		return nil, fmt.Errorf("insert service: %w", err)
	}
	var t domain.Target
	err := s.pool.QueryRow(ctx,
		`SELECT id, url, COALESCE(name, '') FROM services WHERE url = $1`, url,
	).Scan(&t.ID, &t.URL, &t.Name)
	if err != nil {
		return nil, fmt.Errorf("select service: %w", err)
	}
	return &t, nil
}

func (s *Store) ListTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, url, COALESCE(name, '') FROM services ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var t domain.Target
		if err := rows.Scan(&t.ID, &t.URL, &t.Name); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---- transactions ----

func (s *Store) InTx(ctx context.Context, fn func(repo.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) AppendPingSample(ctx context.Context, p *domain.PingSample) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO ping_logs (service_id, timestamp, ping_ms) VALUES ($1, $2, $3) RETURNING id`,
		int64(p.TargetID), p.Timestamp.UTC(), p.LatencyMS,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert ping sample: %w", mapErr(err))
	}
	return nil
}

func (t *pgTx) GetOpenInterval(ctx context.Context, id domain.TargetID) (*domain.StateInterval, error) {
	iv := domain.StateInterval{TargetID: id}
	err := t.tx.QueryRow(ctx,
		`SELECT id, state, start_time
		   FROM state_logs
		  WHERE service_id = $1 AND end_time IS NULL
		  ORDER BY start_time DESC
		  LIMIT 1
		  FOR UPDATE`, int64(id),
	).Scan(&iv.ID, &iv.State, &iv.StartTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select open interval: %w", err)
	}
	return &iv, nil
}

func (t *pgTx) CloseInterval(ctx context.Context, intervalID int64, end time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE state_logs SET end_time = $2 WHERE id = $1 AND end_time IS NULL`,
		intervalID, end.UTC(),
	)
	if err != nil {
		return fmt.Errorf("close interval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrIntervalClosed
	}
	return nil
}

func (t *pgTx) OpenInterval(ctx context.Context, id domain.TargetID, state domain.State, start time.Time) (*domain.StateInterval, error) {
	iv := domain.StateInterval{TargetID: id, State: state, StartTime: start.UTC()}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO state_logs (service_id, state, start_time) VALUES ($1, $2, $3) RETURNING id`,
		int64(id), bool(state), iv.StartTime,
	).Scan(&iv.ID)
	if err != nil {
		return nil, fmt.Errorf("open interval: %w", mapErr(err))
	}
	return &iv, nil
}

// ---- QueryStore ----

func (s *Store) IntervalsSince(ctx context.Context, id domain.TargetID, since time.Time) ([]domain.StateInterval, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, state, start_time, end_time
		   FROM state_logs
		  WHERE service_id = $1 AND (end_time IS NULL OR end_time >= $2)
		  ORDER BY start_time ASC, id ASC`, int64(id), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query intervals: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StateInterval, 0)
	for rows.Next() {
		iv := domain.StateInterval{TargetID: id}
		if err := rows.Scan(&iv.ID, &iv.State, &iv.StartTime, &iv.EndTime); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (s *Store) HourlyLatency(ctx context.Context, id domain.TargetID, since time.Time) ([]domain.LatencyBucket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date_trunc('hour', timestamp) AS hour_time, AVG(ping_ms)
		   FROM ping_logs
		  WHERE service_id = $1 AND timestamp >= $2
		  GROUP BY hour_time
		  ORDER BY hour_time ASC`, int64(id), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query hourly latency: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LatencyBucket, 0)
	for rows.Next() {
		var b domain.LatencyBucket
		if err := rows.Scan(&b.Hour, &b.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("scan hourly latency: %w", err)
		}
		b.Hour = b.Hour.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return repo.ErrOpenIntervalExists
		case codeForeignKeyViolation:
			return repo.ErrNotFound
		}
	}
	return err
}
