// Package tracker turns probe observations into state intervals.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hamed0406/uptimeviewer/internal/domain"
	"github.com/hamed0406/uptimeviewer/internal/repo"
)

// Action is what an observation does to a target's intervals.
type Action int

const (
	// Keep leaves the open interval in effect.
	Keep Action = iota
	// Open starts the first interval of a target.
	Open
	// Flip closes the open interval and opens one with the new state.
	Flip
)

func (a Action) String() string {
	switch a {
	case Open:
		return "open"
	case Flip:
		return "flip"
	default:
		return "keep"
	}
}

// Decide maps the current open interval (nil when none) and a fresh
// observation to an Action.
func Decide(open *domain.StateInterval, observed domain.State) Action {
	switch {
	case open == nil:
		return Open
	case open.State == observed:
		return Keep
	default:
		return Flip
	}
}

// Result describes what Observe recorded.
type Result struct {
	Action Action
	Sample domain.PingSample
	Closed *domain.StateInterval
	Opened *domain.StateInterval
}

type Transactor interface {
	InTx(ctx context.Context, fn func(repo.Tx) error) error
}

type Tracker struct {
	store Transactor
	now   func() time.Time
	locks sync.Map // domain.TargetID -> *sync.Mutex
}

func New(store Transactor) *Tracker {
	return &Tracker{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source. Intended for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) lock(id domain.TargetID) func() {
	v, _ := t.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Observe records one ping sample for the target and applies the resulting
// interval change. Both happen in one transaction; on error nothing is kept.
// Calls for the same target are serialized.
func (t *Tracker) Observe(ctx context.Context, id domain.TargetID, state domain.State, latencyMS float64) (Result, error) {
	unlock := t.lock(id)
	defer unlock()

	if latencyMS < 0 {
		latencyMS = 0
	}
	now := t.now()
	var res Result
	err := t.store.InTx(ctx, func(tx repo.Tx) error {
		res = Result{Sample: domain.PingSample{TargetID: id, Timestamp: now, LatencyMS: latencyMS}}
		if err := tx.AppendPingSample(ctx, &res.Sample); err != nil {
			return err
		}

		open, err := tx.GetOpenInterval(ctx, id)
		if err != nil {
			return err
		}
		res.Action = Decide(open, state)
		switch res.Action {
		case Keep:
			return nil
		case Flip:
			if err := tx.CloseInterval(ctx, open.ID, now); err != nil {
				return err
			}
			closed := *open
			closed.EndTime = &now
			res.Closed = &closed
		}
		res.Opened, err = tx.OpenInterval(ctx, id, state, now)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("observe target %d: %w", id, err)
	}
	return res, nil
}
