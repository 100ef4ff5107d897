package probe

import (
	"context"
	"time"
)

// RetryProber re-probes a down target up to Attempts times. It yields a single
// outcome, so a tick still records one sample per target.
type RetryProber struct {
	Inner    Prober
	Attempts int
	Backoff  time.Duration
}

func (r *RetryProber) Probe(ctx context.Context, target string) Outcome {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last Outcome
	for i := 0; i < attempts; i++ {
		last = r.Inner.Probe(ctx, target)
		if last.IsUp() || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return last
		case <-time.After(r.Backoff):
		}
	}
	if attempts > 1 && !last.IsUp() {
		last.Reason += " (after retries)"
	}
	return last
}

func (r *RetryProber) CloseIdleConnections() {
	if c, ok := r.Inner.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
