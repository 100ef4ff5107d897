package repo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Connect calls open up to attempts times with a fixed delay between tries.
// The last error is returned once attempts are exhausted.
func Connect(ctx context.Context, log *zap.Logger, attempts int, delay time.Duration, open func(context.Context) (Store, error)) (Store, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		s, err := open(ctx)
		if err == nil {
			log.Info("store_connected", zap.Int("attempt", i))
			return s, nil
		}
		lastErr = err
		log.Warn("store_connect_retry",
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect store: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("connect store after %d attempts: %w", attempts, lastErr)
}
