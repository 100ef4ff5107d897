package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/uptimeviewer/internal/domain"
	"github.com/hamed0406/uptimeviewer/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// timeLayout is fixed width so stored timestamps sort and compare as text.
const timeLayout = "2006-01-02 15:04:05.000000"

// hourLayout matches substr(timestamp, 1, 13).
const hourLayout = "2006-01-02 15"

const schema = `
CREATE TABLE IF NOT EXISTS services (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	url  TEXT NOT NULL UNIQUE,
	name TEXT
);

CREATE TABLE IF NOT EXISTS state_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	service_id INTEGER NOT NULL,
	state      INTEGER NOT NULL,
	start_time TEXT NOT NULL,
	end_time   TEXT,
	FOREIGN KEY(service_id) REFERENCES services(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_state_logs_service_start ON state_logs (service_id, start_time);
CREATE UNIQUE INDEX IF NOT EXISTS uq_state_logs_open ON state_logs (service_id) WHERE end_time IS NULL;

CREATE TABLE IF NOT EXISTS ping_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	service_id INTEGER NOT NULL,
	timestamp  TEXT NOT NULL,
	ping_ms    REAL NOT NULL,
	FOREIGN KEY(service_id) REFERENCES services(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_ping_logs_service_time ON ping_logs (service_id, timestamp);
`

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens (or creates) the database file at path and applies the schema.
func New(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite allows a single writer and transactions must not
	// interleave.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Info("store_schema_applied", zap.String("driver", "sqlite"), zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	s.log.Info("store_closed", zap.String("driver", "sqlite"))
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(v string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}

// ---- TargetStore ----

func (s *Store) EnsureTarget(ctx context.Context, url, name string) (*domain.Target, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO services (url, name) VALUES (?, ?) ON CONFLICT(url) DO NOTHING`, url, name,
	); err != nil {
		return nil, fmt.Errorf("insert service: %w", err)
	}
	var t domain.Target
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, COALESCE(name, '') FROM services WHERE url = ?`, url,
	).Scan(&t.ID, &t.URL, &t.Name)
	if err != nil {
		return nil, fmt.Errorf("select service: %w", err)
	}
	return &t, nil
}

func (s *Store) ListTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, url, COALESCE(name, '') FROM services ORDER BY id`)
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) AppendPingSample(ctx context.Context, p *domain.PingSample) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO ping_logs (service_id, timestamp, ping_ms) VALUES (?, ?, ?)`,
		int64(p.TargetID), formatTime(p.Timestamp), p.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("insert ping sample: %w", mapErr(err))
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (t *sqlTx) GetOpenInterval(ctx context.Context, id domain.TargetID) (*domain.StateInterval, error) {
	var (
		ivID  int64
		state bool
		start string
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, state, start_time FROM state_logs
		  WHERE service_id = ? AND end_time IS NULL
		  ORDER BY start_time DESC LIMIT 1`, int64(id),
	).Scan(&ivID, &state, &start)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select open interval: %w", err)
	}
	startTime, err := parseTime(start)
	if err != nil {
		return nil, err
	}
	return &domain.StateInterval{ID: ivID, TargetID: id, State: domain.State(state), StartTime: startTime}, nil
}

func (t *sqlTx) CloseInterval(ctx context.Context, intervalID int64, end time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE state_logs SET end_time = ? WHERE id = ? AND end_time IS NULL`,
		formatTime(end), intervalID,
	)
	if err != nil {
		return fmt.Errorf("close interval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrIntervalClosed
	}
	return nil
}

func (t *sqlTx) OpenInterval(ctx context.Context, id domain.TargetID, state domain.State, start time.Time) (*domain.StateInterval, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO state_logs (service_id, state, start_time) VALUES (?, ?, ?)`,
		int64(id), bool(state), formatTime(start),
	)
	if err != nil {
		return nil, fmt.Errorf("open interval: %w", mapErr(err))
	}
	ivID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	startTime, _ := parseTime(formatTime(start))
	return &domain.StateInterval{ID: ivID, TargetID: id, State: state, StartTime: startTime}, nil
}

// ---- QueryStore ----

func (s *Store) IntervalsSince(ctx context.Context, id domain.TargetID, since time.Time) ([]domain.StateInterval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, state, start_time, end_time FROM state_logs
		  WHERE service_id = ? AND (end_time IS NULL OR end_time >= ?)
		  ORDER BY start_time ASC, id ASC`, int64(id), formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("query intervals: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StateInterval, 0)
	for rows.Next() {
		var (
			iv    = domain.StateInterval{TargetID: id}
			state bool
			start string
			end   sql.NullString
		)
		if err := rows.Scan(&iv.ID, &state, &start, &end); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		iv.State = domain.State(state)
		if iv.StartTime, err = parseTime(start); err != nil {
			return nil, err
		}
		if end.Valid {
			e, err := parseTime(end.String)
			if err != nil {
				return nil, err
			}
			iv.EndTime = &e
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (s *Store) HourlyLatency(ctx context.Context, id domain.TargetID, since time.Time) ([]domain.LatencyBucket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(timestamp, 1, 13) AS hour_time, AVG(ping_ms)
		   FROM ping_logs
		  WHERE service_id = ? AND timestamp >= ?
		  GROUP BY hour_time
		  ORDER BY hour_time ASC`, int64(id), formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("query hourly latency: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LatencyBucket, 0)
	for rows.Next() {
		var (
			hour string
			b    domain.LatencyBucket
		)
		if err := rows.Scan(&hour, &b.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("scan hourly latency: %w", err)
		}
		if b.Hour, err = time.ParseInLocation(hourLayout, hour, time.UTC); err != nil {
			return nil, fmt.Errorf("parse hour %q: %w", hour, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func mapErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return repo.ErrOpenIntervalExists
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return repo.ErrNotFound
	}
	return err
}
