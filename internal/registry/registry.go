// Package registry keeps the deduplicated set of monitored endpoints. Rows
// live in the store; the registry holds no copy of its own.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeviewer/internal/domain"
	"github.com/hamed0406/uptimeviewer/internal/repo"
)

type Registry struct {
	store repo.TargetStore
	log   *zap.Logger
}

func New(store repo.TargetStore, log *zap.Logger) *Registry {
	return &Registry{store: store, log: log}
}

// EnsureRegistered returns the target stored for rawURL, creating it with
// the URL's host as display name when absent. Lookup is by exact string.
func (r *Registry) EnsureRegistered(ctx context.Context, rawURL string) (*domain.Target, error) {
	t, err := r.store.EnsureTarget(ctx, rawURL, DisplayName(rawURL))
	if err != nil {
		return nil, fmt.Errorf("ensure target %q: %w", rawURL, err)
	}
	return t, nil
}

// Seed registers every url, stopping at the first failure.
func (r *Registry) Seed(ctx context.Context, urls []string) ([]domain.Target, error) {
	out := make([]domain.Target, 0, len(urls))
	for _, u := range urls {
		t, err := r.EnsureRegistered(ctx, u)
		if err != nil {
			return out, err
		}
		r.log.Info("target_registered",
			zap.Int64("target_id", int64(t.ID)),
			zap.String("url", t.URL),
			zap.String("name", t.Name),
		)
		out = append(out, *t)
	}
	return out, nil
}

// ListAll returns a snapshot of every registered target.
func (r *Registry) ListAll(ctx context.Context) ([]domain.Target, error) {
	ts, err := r.store.ListTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return ts, nil
}

// DisplayName derives a target name from the host part of rawURL.
func DisplayName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	rest := rawURL
	if i := strings.Index(rest, "//"); i >= 0 {
		rest = rest[i+2:]
	}
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
