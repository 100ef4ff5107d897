package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeviewer/internal/domain"
	"github.com/hamed0406/uptimeviewer/internal/metrics"
	"github.com/hamed0406/uptimeviewer/internal/probe"
	"github.com/hamed0406/uptimeviewer/internal/tracker"
)

const DefaultInterval = 60 * time.Second

type TargetLister interface {
	ListAll(ctx context.Context) ([]domain.Target, error)
}

type Observer interface {
	Observe(ctx context.Context, id domain.TargetID, state domain.State, latencyMS float64) (tracker.Result, error)
}

// Monitor probes every registered target once per tick. Ticks never overlap:
// the interval is measured from the end of one tick to the start of the next.
type Monitor struct {
	Logger      *zap.Logger
	Targets     TargetLister
	Prober      probe.Prober
	Tracker     Observer
	Metrics     *metrics.Metrics
	Resolver    probe.Resolver
	Interval    time.Duration
	Concurrency int // 0 means one goroutine per target with no cap
}

func NewMonitor(
	logger *zap.Logger,
	targets TargetLister,
	prober probe.Prober,
	tr Observer,
	m *metrics.Metrics,
	interval time.Duration,
	concurrency int,
) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if concurrency < 0 {
		concurrency = 0
	}
	return &Monitor{
		Logger:      logger,
		Targets:     targets,
		Prober:      prober,
		Tracker:     tr,
		Metrics:     m,
		Interval:    interval,
		Concurrency: concurrency,
	}
}

// Run ticks immediately, then again Interval after each tick completes.
// A failing tick is logged and the loop keeps going. Stops when ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Logger.Info("monitor_started", zap.Duration("interval", m.Interval))
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Logger.Info("monitor_stopped")
			return
		case <-timer.C:
		}
		if err := m.Tick(ctx); err != nil {
			m.Logger.Error("monitor_tick_error", zap.Error(err))
		}
		timer.Reset(m.Interval)
	}
}

// Tick probes all targets concurrently and feeds each outcome to the tracker
// as soon as it arrives. It returns once every probe has been processed.
func (m *Monitor) Tick(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = multierr.Append(err, fmt.Errorf("tick panic: %v", r))
		}
		m.Metrics.ObserveTick(time.Since(start), err != nil)
	}()
	if c, ok := m.Prober.(interface{ CloseIdleConnections() }); ok {
		defer c.CloseIdleConnections()
	}

	ts, err := m.Targets.ListAll(ctx)
	if err != nil {
		return err
	}
	if len(ts) == 0 {
		return nil
	}

	var sem chan struct{}
	if m.Concurrency > 0 {
		sem = make(chan struct{}, m.Concurrency)
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
fanout:
	for _, tgt := range ts {
		t := tgt // avoid loop var capture
		if sem != nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("tick cancelled: %w", ctx.Err()))
				mu.Unlock()
				break fanout
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				defer func() { <-sem }()
			}
			if err := m.check(ctx, t); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}

func (m *Monitor) check(ctx context.Context, t domain.Target) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("target %s: panic: %v", t.URL, r)
		}
	}()

	out := m.Prober.Probe(ctx, t.URL)
	m.Metrics.ObserveProbe(out.IsUp(), out.LatencyMS)

	res, err := m.Tracker.Observe(ctx, t.ID, domain.State(out.IsUp()), out.LatencyMS)
	if err != nil {
		return fmt.Errorf("target %s: %w", t.URL, err)
	}

	m.Logger.Debug("monitor_checked",
		zap.Int64("target_id", int64(t.ID)),
		zap.String("url", t.URL),
		zap.Stringer("kind", out.Kind),
		zap.Int("status", out.StatusCode),
		zap.Float64("latency_ms", out.LatencyMS),
		zap.String("reason", out.Reason),
	)

	if res.Action == tracker.Keep {
		return nil
	}
	m.Metrics.ObserveTransition(res.Opened.State.String())
	fields := []zap.Field{
		zap.Int64("target_id", int64(t.ID)),
		zap.String("url", t.URL),
		zap.Stringer("action", res.Action),
		zap.Stringer("state", res.Opened.State),
		zap.Int("status", out.StatusCode),
		zap.String("reason", out.Reason),
	}
	if !out.IsUp() && out.TransportFailure() {
		dns := probe.Diagnose(ctx, m.Resolver, t.URL)
		fields = append(fields,
			zap.String("dns_class", dns.Class),
			zap.Strings("nameservers", dns.Nameservers),
			zap.String("resolver_error", dns.ResolverError),
		)
	}
	m.Logger.Info("state_transition", fields...)
	return nil
}
