package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/uptimeviewer/internal/domain"
	"github.com/hamed0406/uptimeviewer/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store keeps everything in process memory. Transactions hold the write lock
// for their whole duration and stage writes until fn returns nil.
type Store struct {
	mu        sync.RWMutex
	targets   []domain.Target
	byURL     map[string]domain.TargetID
	intervals []domain.StateInterval
	samples   []domain.PingSample
	nextID    int64
}

func New() *Store {
	return &Store{
		byURL:   make(map[string]domain.TargetID),
		samples: make([]domain.PingSample, 0, 128),
	}
}

func (m *Store) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Store) Close() error { return nil }

// ---- TargetStore ----

func (m *Store) EnsureTarget(ctx context.Context, url, name string) (*domain.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byURL[url]; ok {
		t := m.target(id)
		return &t, nil
	}
	t := domain.Target{ID: domain.TargetID(m.id()), URL: url, Name: name}
	m.targets = append(m.targets, t)
	m.byURL[url] = t.ID
	return &t, nil
}

func (m *Store) ListTargets(ctx context.Context) ([]domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Target, len(m.targets))
	copy(out, m.targets)
	return out, nil
}

func (m *Store) target(id domain.TargetID) domain.Target {
	for _, t := range m.targets {
		if t.ID == id {
			return t
		}
	}
	return domain.Target{}
}

func (m *Store) hasTarget(id domain.TargetID) bool {
	return m.target(id).ID == id && id != 0
}

// ---- transactions ----

func (m *Store) InTx(ctx context.Context, fn func(repo.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{s: m, closes: make(map[int64]time.Time)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	tx.commit()
	return nil
}

type memTx struct {
	s       *Store
	samples []domain.PingSample
	closes  map[int64]time.Time
	opens   []domain.StateInterval
}

func (t *memTx) AppendPingSample(ctx context.Context, p *domain.PingSample) error {
	if !t.s.hasTarget(p.TargetID) {
		return fmt.Errorf("append ping sample for target %d: %w", p.TargetID, repo.ErrNotFound)
	}
	p.ID = t.s.id()
	t.samples = append(t.samples, *p)
	return nil
}

func (t *memTx) GetOpenInterval(ctx context.Context, id domain.TargetID) (*domain.StateInterval, error) {
	for i := len(t.opens) - 1; i >= 0; i-- {
		iv := t.opens[i]
		if iv.TargetID == id && iv.EndTime == nil {
			return &iv, nil
		}
	}
	for _, iv := range t.s.intervals {
		if iv.TargetID != id || iv.EndTime != nil {
			continue
		}
		if _, closing := t.closes[iv.ID]; closing {
			continue
		}
		return &iv, nil
	}
	return nil, nil
}

func (t *memTx) CloseInterval(ctx context.Context, intervalID int64, end time.Time) error {
	for i := range t.opens {
		if t.opens[i].ID != intervalID {
			continue
		}
		if t.opens[i].EndTime != nil {
			return repo.ErrIntervalClosed
		}
		e := end
		t.opens[i].EndTime = &e
		return nil
	}
	for _, iv := range t.s.intervals {
		if iv.ID != intervalID {
			continue
		}
		if _, closing := t.closes[iv.ID]; closing || iv.EndTime != nil {
			return repo.ErrIntervalClosed
		}
		t.closes[iv.ID] = end
		return nil
	}
	return fmt.Errorf("close interval %d: %w", intervalID, repo.ErrNotFound)
}

func (t *memTx) OpenInterval(ctx context.Context, id domain.TargetID, state domain.State, start time.Time) (*domain.StateInterval, error) {
	if !t.s.hasTarget(id) {
		return nil, fmt.Errorf("open interval for target %d: %w", id, repo.ErrNotFound)
	}
	if open, _ := t.GetOpenInterval(ctx, id); open != nil {
		return nil, repo.ErrOpenIntervalExists
	}
	iv := domain.StateInterval{ID: t.s.id(), TargetID: id, State: state, StartTime: start}
	t.opens = append(t.opens, iv)
	return &iv, nil
}

func (t *memTx) commit() {
	for i := range t.s.intervals {
		if end, ok := t.closes[t.s.intervals[i].ID]; ok {
			e := end
			t.s.intervals[i].EndTime = &e
		}
	}
	t.s.intervals = append(t.s.intervals, t.opens...)
	t.s.samples = append(t.s.samples, t.samples...)
}

// SampleCount returns how many ping samples are stored for id.
func (m *Store) SampleCount(id domain.TargetID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.samples {
		if p.TargetID == id {
			n++
		}
	}
	return n
}

// ---- QueryStore ----

func (m *Store) IntervalsSince(ctx context.Context, id domain.TargetID, since time.Time) ([]domain.StateInterval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.StateInterval, 0)
	for _, iv := range m.intervals {
		if iv.TargetID != id {
			continue
		}
		if iv.EndTime == nil || !iv.EndTime.Before(since) {
			out = append(out, iv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *Store) HourlyLatency(ctx context.Context, id domain.TargetID, since time.Time) ([]domain.LatencyBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type acc struct {
		sum float64
		n   int
	}
	buckets := make(map[time.Time]*acc)
	for _, p := range m.samples {
		if p.TargetID != id || p.Timestamp.Before(since) {
			continue
		}
		h := p.Timestamp.UTC().Truncate(time.Hour)
		a := buckets[h]
		if a == nil {
			a = &acc{}
			buckets[h] = a
		}
		a.sum += p.LatencyMS
		a.n++
	}
	out := make([]domain.LatencyBucket, 0, len(buckets))
	for h, a := range buckets {
		out = append(out, domain.LatencyBucket{Hour: h, AvgLatencyMS: a.sum / float64(a.n)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out, nil
}
