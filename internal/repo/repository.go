package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/uptimeviewer/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrOpenIntervalExists is returned when opening an interval for a target
	// that still has one open.
	ErrOpenIntervalExists = errors.New("open interval already exists")
	// ErrIntervalClosed is returned when closing an interval that is not open.
	ErrIntervalClosed = errors.New("interval is not open")
)

// Ports (interfaces). The memory, postgres and sqlite adapters implement them.
type TargetStore interface {
	// EnsureTarget inserts url with name unless a row with that url exists,
	// and returns the stored row either way.
	EnsureTarget(ctx context.Context, url, name string) (*domain.Target, error)
	ListTargets(ctx context.Context) ([]domain.Target, error)
}

// Tx is one durable unit of work. Every write made through it is committed
// together or not at all.
type Tx interface {
	AppendPingSample(ctx context.Context, s *domain.PingSample) error
	// GetOpenInterval returns nil, nil when the target has no open interval.
	GetOpenInterval(ctx context.Context, id domain.TargetID) (*domain.StateInterval, error)
	CloseInterval(ctx context.Context, intervalID int64, end time.Time) error
	OpenInterval(ctx context.Context, id domain.TargetID, state domain.State, start time.Time) (*domain.StateInterval, error)
}

type QueryStore interface {
	// IntervalsSince returns intervals still open or ending at or after since,
	// ascending by start time.
	IntervalsSince(ctx context.Context, id domain.TargetID, since time.Time) ([]domain.StateInterval, error)
	// HourlyLatency averages samples at or after since per UTC hour, ascending.
	HourlyLatency(ctx context.Context, id domain.TargetID, since time.Time) ([]domain.LatencyBucket, error)
}

type Store interface {
	TargetStore
	QueryStore
	// InTx runs fn in a transaction. fn's error aborts every write it made.
	InTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
