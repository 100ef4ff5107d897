package registry

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeviewer/internal/domain"
	"github.com/hamed0406/uptimeviewer/internal/repo/memory"
)

func TestDisplayName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://example.com", "example.com"},
		{"https://example.com/path?q=1", "example.com"},
		{"http://example.com:8080/x", "example.com:8080"},
		{"https://user@api.example.com/", "api.example.com"},
		{"example.com/health", "example.com"},
	}
	for _, c := range cases {
		if got := DisplayName(c.in); got != c.want {
			t.Fatalf("DisplayName(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestEnsureRegistered_Idempotent(t *testing.T) {
	ctx := context.Background()
	r := New(memory.New(), zap.NewNop())

	a, err := r.EnsureRegistered(ctx, "https://example.com/status")
	if err != nil {
		t.Fatalf("EnsureRegistered: %v", err)
	}
	if a.Name != "example.com" {
		t.Fatalf("want name from host, got %q", a.Name)
	}
	b, err := r.EnsureRegistered(ctx, "https://example.com/status")
	if err != nil {
		t.Fatalf("EnsureRegistered again: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("want same id, got %d and %d", a.ID, b.ID)
	}
	all, err := r.ListAll(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("want one target, got %+v %v", all, err)
	}
}

func TestSeed_RegistersEachURLOnce(t *testing.T) {
	ctx := context.Background()
	r := New(memory.New(), zap.NewNop())
	urls := []string{"https://a.example", "https://b.example"}

	for i := 0; i < 2; i++ {
		got, err := r.Seed(ctx, urls)
		if err != nil {
			t.Fatalf("Seed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("want 2 seeded targets, got %d", len(got))
		}
	}
	all, _ := r.ListAll(ctx)
	if len(all) != 2 {
		t.Fatalf("want 2 stored targets after reseeding, got %d", len(all))
	}
}

type failingTargets struct{}

func (failingTargets) EnsureTarget(ctx context.Context, url, name string) (*domain.Target, error) {
	return nil, errors.New("db down")
}

func (failingTargets) ListTargets(ctx context.Context) ([]domain.Target, error) {
	return nil, errors.New("db down")
}

func TestSeed_StopsOnStoreError(t *testing.T) {
	r := New(failingTargets{}, zap.NewNop())
	if _, err := r.Seed(context.Background(), []string{"https://a.example"}); err == nil {
		t.Fatalf("want error from failing store")
	}
	if _, err := r.ListAll(context.Background()); err == nil {
		t.Fatalf("want error from failing store")
	}
}
