package probe

import (
	"context"
	"strings"
	"testing"
	"time"
)

// fake prober you can control
type fakeProber struct {
	results []Outcome
	i       int
}

func (f *fakeProber) Probe(ctx context.Context, target string) Outcome {
	if f.i >= len(f.results) {
		return Outcome{Kind: Unreachable, Reason: "no more"}
	}
	r := f.results[f.i]
	f.i++
	return r
}

func TestRetryProber_SucceedsAfterRetry(t *testing.T) {
	f := &fakeProber{
		results: []Outcome{
			{Kind: Unreachable, Reason: "first fail"},
			{Kind: Reachable, StatusCode: 200, Reason: "ok"},
		},
	}
	rp := &RetryProber{Inner: f, Attempts: 3, Backoff: 10 * time.Millisecond}
	out := rp.Probe(context.Background(), "https://example.com")
	if !out.IsUp() {
		t.Fatalf("expected up after retry, got %+v", out)
	}
	if f.i != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.i)
	}
}

func TestRetryProber_AllFailAnnotates(t *testing.T) {
	f := &fakeProber{
		results: []Outcome{
			{Kind: Unreachable, Reason: "fail1"},
			{Kind: Unreachable, Reason: "fail2"},
		},
	}
	rp := &RetryProber{Inner: f, Attempts: 2}
	out := rp.Probe(context.Background(), "https://example.com")
	if out.IsUp() {
		t.Fatalf("expected down, got up")
	}
	if !strings.HasSuffix(out.Reason, "(after retries)") {
		t.Fatalf("expected retry annotation, got %q", out.Reason)
	}
}

func TestRetryProber_StopsOnCancel(t *testing.T) {
	f := &fakeProber{results: []Outcome{{Kind: Unreachable}, {Kind: Reachable}}}
	rp := &RetryProber{Inner: f, Attempts: 2, Backoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := rp.Probe(ctx, "https://example.com")
	if out.IsUp() || f.i != 1 {
		t.Fatalf("expected a single failed attempt, got %+v after %d attempts", out, f.i)
	}
}
