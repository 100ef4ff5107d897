// Package repotest holds behaviour checks every repo.Store adapter must pass.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hamed0406/uptimeviewer/internal/domain"
	"github.com/hamed0406/uptimeviewer/internal/repo"
)

// Run exercises a store built fresh by newStore for every subtest.
func Run(t *testing.T, newStore func(t *testing.T) repo.Store) {
	t.Run("EnsureTargetIdempotent", func(t *testing.T) { testEnsureTargetIdempotent(t, newStore(t)) })
	t.Run("EnsureTargetConcurrent", func(t *testing.T) { testEnsureTargetConcurrent(t, newStore(t)) })
	t.Run("OpenCloseIntervals", func(t *testing.T) { testOpenClose(t, newStore(t)) })
	t.Run("SingleOpenInterval", func(t *testing.T) { testSingleOpen(t, newStore(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("IntervalsSince", func(t *testing.T) { testIntervalsSince(t, newStore(t)) })
	t.Run("HourlyLatency", func(t *testing.T) { testHourlyLatency(t, newStore(t)) })
	t.Run("UnknownTarget", func(t *testing.T) { testUnknownTarget(t, newStore(t)) })
}

// base is whole-second so every adapter's timestamp precision round-trips it.
var base = time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

func mustTarget(t *testing.T, s repo.Store, url string) *domain.Target {
	t.Helper()
	tgt, err := s.EnsureTarget(context.Background(), url, "name-"+url)
	if err != nil {
		t.Fatalf("EnsureTarget(%q): %v", url, err)
	}
	return tgt
}

func testEnsureTargetIdempotent(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a, err := s.EnsureTarget(ctx, "https://example.com", "example.com")
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	b, err := s.EnsureTarget(ctx, "https://example.com", "other")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if a.ID != b.ID || b.Name != "example.com" {
		t.Fatalf("want same row, got %+v and %+v", a, b)
	}
	if _, err := s.EnsureTarget(ctx, "https://example.com/", "example.com"); err != nil {
		t.Fatalf("third ensure: %v", err)
	}
	all, err := s.ListTargets(ctx)
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("want 2 targets (exact string match), got %d: %+v", len(all), all)
	}
}

func testEnsureTargetConcurrent(t *testing.T, s repo.Store) {
	ctx := context.Background()
	const n = 8
	ids := make([]domain.TargetID, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tgt, err := s.EnsureTarget(ctx, "https://race.example", "race.example")
			errs[i] = err
			if tgt != nil {
				ids[i] = tgt.ID
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("concurrent ensure %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("concurrent ensure returned different ids: %v", ids)
		}
	}
	all, _ := s.ListTargets(ctx)
	if len(all) != 1 {
		t.Fatalf("want exactly one target row, got %d", len(all))
	}
}

func testOpenClose(t *testing.T, s repo.Store) {
	ctx := context.Background()
	tgt := mustTarget(t, s, "https://a.example")

	var first *domain.StateInterval
	err := s.InTx(ctx, func(tx repo.Tx) error {
		open, err := tx.GetOpenInterval(ctx, tgt.ID)
		if err != nil {
			return err
		}
		if open != nil {
			return fmt.Errorf("fresh target has open interval %+v", open)
		}
		first, err = tx.OpenInterval(ctx, tgt.ID, domain.StateUp, base)
		return err
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	err = s.InTx(ctx, func(tx repo.Tx) error {
		open, err := tx.GetOpenInterval(ctx, tgt.ID)
		if err != nil {
			return err
		}
		if open == nil || open.ID != first.ID || open.State != domain.StateUp || !open.StartTime.Equal(base) {
			return fmt.Errorf("unexpected open interval %+v", open)
		}
		if err := tx.CloseInterval(ctx, open.ID, base.Add(time.Minute)); err != nil {
			return err
		}
		if again, err := tx.GetOpenInterval(ctx, tgt.ID); err != nil || again != nil {
			return fmt.Errorf("closed interval still open: %+v %v", again, err)
		}
		_, err = tx.OpenInterval(ctx, tgt.ID, domain.StateDown, base.Add(time.Minute))
		return err
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}

	err = s.InTx(ctx, func(tx repo.Tx) error {
		return tx.CloseInterval(ctx, first.ID, base.Add(2*time.Minute))
	})
	if !errors.Is(err, repo.ErrIntervalClosed) {
		t.Fatalf("closing a closed interval: want ErrIntervalClosed, got %v", err)
	}

	ivs, err := s.IntervalsSince(ctx, tgt.ID, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("IntervalsSince: %v", err)
	}
	if len(ivs) != 2 {
		t.Fatalf("want 2 intervals, got %+v", ivs)
	}
	if ivs[0].State != domain.StateUp || ivs[0].EndTime == nil || !ivs[0].EndTime.Equal(base.Add(time.Minute)) {
		t.Fatalf("first interval wrong: %+v", ivs[0])
	}
	if ivs[1].State != domain.StateDown || ivs[1].EndTime != nil {
		t.Fatalf("second interval wrong: %+v", ivs[1])
	}
}

func testSingleOpen(t *testing.T, s repo.Store) {
	ctx := context.Background()
	tgt := mustTarget(t, s, "https://b.example")
	if err := s.InTx(ctx, func(tx repo.Tx) error {
		_, err := tx.OpenInterval(ctx, tgt.ID, domain.StateUp, base)
		return err
	}); err != nil {
		t.Fatalf("open: %v", err)
	}
	err := s.InTx(ctx, func(tx repo.Tx) error {
		_, err := tx.OpenInterval(ctx, tgt.ID, domain.StateDown, base.Add(time.Minute))
		return err
	})
	if !errors.Is(err, repo.ErrOpenIntervalExists) {
		t.Fatalf("second open: want ErrOpenIntervalExists, got %v", err)
	}
}

func testRollback(t *testing.T, s repo.Store) {
	ctx := context.Background()
	tgt := mustTarget(t, s, "https://c.example")
	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx repo.Tx) error {
		if err := tx.AppendPingSample(ctx, &domain.PingSample{TargetID: tgt.ID, Timestamp: base, LatencyMS: 5}); err != nil {
			return err
		}
		if _, err := tx.OpenInterval(ctx, tgt.ID, domain.StateUp, base); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	ivs, err := s.IntervalsSince(ctx, tgt.ID, base.Add(-time.Hour))
	if err != nil || len(ivs) != 0 {
		t.Fatalf("rolled back interval visible: %+v %v", ivs, err)
	}
	buckets, err := s.HourlyLatency(ctx, tgt.ID, base.Add(-time.Hour))
	if err != nil || len(buckets) != 0 {
		t.Fatalf("rolled back sample visible: %+v %v", buckets, err)
	}
}

func testIntervalsSince(t *testing.T, s repo.Store) {
	ctx := context.Background()
	tgt := mustTarget(t, s, "https://d.example")
	other := mustTarget(t, s, "https://e.example")
	now := base.Add(48 * time.Hour)

	// old closed interval, one overlapping the window, and the open one.
	steps := []struct {
		state domain.State
		start time.Time
	}{
		{domain.StateUp, now.Add(-40 * time.Hour)},
		{domain.StateDown, now.Add(-30 * time.Hour)},
		{domain.StateUp, now.Add(-20 * time.Hour)},
	}
	for _, st := range steps {
		st := st
		if err := s.InTx(ctx, func(tx repo.Tx) error {
			if open, err := tx.GetOpenInterval(ctx, tgt.ID); err != nil {
				return err
			} else if open != nil {
				if err := tx.CloseInterval(ctx, open.ID, st.start); err != nil {
					return err
				}
			}
			_, err := tx.OpenInterval(ctx, tgt.ID, st.state, st.start)
			return err
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := s.InTx(ctx, func(tx repo.Tx) error {
		_, err := tx.OpenInterval(ctx, other.ID, domain.StateDown, now.Add(-50*time.Hour))
		return err
	}); err != nil {
		t.Fatalf("seed other: %v", err)
	}

	ivs, err := s.IntervalsSince(ctx, tgt.ID, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("IntervalsSince: %v", err)
	}
	if len(ivs) != 2 {
		t.Fatalf("want overlapping + open interval, got %+v", ivs)
	}
	if ivs[0].State != domain.StateDown || !ivs[0].StartTime.Equal(now.Add(-30*time.Hour)) {
		t.Fatalf("want overlapping DOWN interval first, got %+v", ivs[0])
	}
	if ivs[1].EndTime != nil {
		t.Fatalf("want open interval last, got %+v", ivs[1])
	}

	// An open interval that began before the window is always included.
	ivs, err = s.IntervalsSince(ctx, other.ID, now.Add(-24*time.Hour))
	if err != nil || len(ivs) != 1 || ivs[0].EndTime != nil {
		t.Fatalf("open interval outside window must be returned: %+v %v", ivs, err)
	}
}

func testHourlyLatency(t *testing.T, s repo.Store) {
	ctx := context.Background()
	tgt := mustTarget(t, s, "https://f.example")
	other := mustTarget(t, s, "https://g.example")
	samples := []domain.PingSample{
		{TargetID: tgt.ID, Timestamp: base.Add(-2 * time.Hour), LatencyMS: 1000},
		{TargetID: tgt.ID, Timestamp: base.Add(5 * time.Minute), LatencyMS: 10},
		{TargetID: tgt.ID, Timestamp: base.Add(50 * time.Minute), LatencyMS: 30},
		{TargetID: tgt.ID, Timestamp: base.Add(61 * time.Minute), LatencyMS: 7},
		{TargetID: other.ID, Timestamp: base.Add(10 * time.Minute), LatencyMS: 999},
	}
	if err := s.InTx(ctx, func(tx repo.Tx) error {
		for i := range samples {
			if err := tx.AppendPingSample(ctx, &samples[i]); err != nil {
				return err
			}
			if samples[i].ID == 0 {
				return fmt.Errorf("sample %d got no id", i)
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.HourlyLatency(ctx, tgt.ID, base)
	if err != nil {
		t.Fatalf("HourlyLatency: %v", err)
	}
	want := []domain.LatencyBucket{
		{Hour: base, AvgLatencyMS: 20},
		{Hour: base.Add(time.Hour), AvgLatencyMS: 7},
	}
	if len(got) != len(want) {
		t.Fatalf("want %d buckets, got %+v", len(want), got)
	}
	for i := range want {
		if !got[i].Hour.Equal(want[i].Hour) || got[i].AvgLatencyMS != want[i].AvgLatencyMS {
			t.Fatalf("bucket %d: want %+v, got %+v", i, want[i], got[i])
		}
	}
}

func testUnknownTarget(t *testing.T, s repo.Store) {
	ctx := context.Background()
	err := s.InTx(ctx, func(tx repo.Tx) error {
		return tx.AppendPingSample(ctx, &domain.PingSample{TargetID: 424242, Timestamp: base, LatencyMS: 1})
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown target, got %v", err)
	}
}
