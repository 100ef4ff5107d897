package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeviewer/internal/domain"
	"github.com/hamed0406/uptimeviewer/internal/metrics"
	"github.com/hamed0406/uptimeviewer/internal/repo"
	"github.com/hamed0406/uptimeviewer/internal/repo/memory"
	"github.com/hamed0406/uptimeviewer/internal/tracker"
)

// ---- test helpers ----

var base = time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

type downStore struct{ *memory.Store }

var errDown = errors.New("connection refused")

func (downStore) Ping(context.Context) error { return errDown }
func (downStore) ListTargets(context.Context) ([]domain.Target, error) {
	return nil, errDown
}
func (downStore) IntervalsSince(context.Context, domain.TargetID, time.Time) ([]domain.StateInterval, error) {
	return nil, errDown
}
func (downStore) HourlyLatency(context.Context, domain.TargetID, time.Time) ([]domain.LatencyBucket, error) {
	return nil, errDown
}

func newTestServer(t *testing.T, store repo.Store, m *metrics.Metrics) *httptest.Server {
	t.Helper()
	srv := NewServer(zap.NewNop(), store, m)
	srv.now = func() time.Time { return base }
	ts := httptest.NewServer(srv.Router(Options{PublicRPM: 10_000, PublicBurst: 10_000}))
	t.Cleanup(ts.Close)
	return ts
}

// observeAt records one observation for id at the given time.
func observeAt(t *testing.T, store *memory.Store, id domain.TargetID, at time.Time, state domain.State, ms float64) {
	t.Helper()
	tr := tracker.New(store).WithClock(func() time.Time { return at })
	if _, err := tr.Observe(context.Background(), id, state, ms); err != nil {
		t.Fatalf("observe: %v", err)
	}
}

func getJSON(t *testing.T, url string, wantCode int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantCode {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: want %d, got %d (%s)", url, wantCode, resp.StatusCode, b)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}

// ---- tests ----

func TestServices_ListsRegisteredTargets(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	if _, err := store.EnsureTarget(ctx, "https://a.example", "a.example"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.EnsureTarget(ctx, "https://b.example/health", "b.example"); err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, store, nil)

	var got []map[string]any
	getJSON(t, ts.URL+"/api/services", http.StatusOK, &got)
	if len(got) != 2 {
		t.Fatalf("want 2 services, got %d", len(got))
	}
	if got[1]["name"] != "b.example" || got[1]["url"] != "https://b.example/health" {
		t.Fatalf("unexpected service: %v", got[1])
	}
	if _, ok := got[0]["id"].(float64); !ok {
		t.Fatalf("id missing: %v", got[0])
	}
}

func TestServices_EmptyIsArray(t *testing.T) {
	ts := newTestServer(t, memory.New(), nil)
	resp, err := http.Get(ts.URL + "/api/services")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(b)) != "[]" {
		t.Fatalf("want [], got %s", b)
	}
}

func TestStatus_RendersIntervalsInWindow(t *testing.T) {
	store := memory.New()
	target, err := store.EnsureTarget(context.Background(), "https://a.example", "a.example")
	if err != nil {
		t.Fatal(err)
	}
	observeAt(t, store, target.ID, base.Add(-48*time.Hour), domain.StateUp, 10)  // closed before window
	observeAt(t, store, target.ID, base.Add(-30*time.Hour), domain.StateDown, 0) // ends inside window
	observeAt(t, store, target.ID, base.Add(-2*time.Hour+500*time.Millisecond), domain.StateUp, 12)
	ts := newTestServer(t, store, nil)

	var got struct {
		Logs []struct {
			State     string  `json:"state"`
			StartTime string  `json:"start_time"`
			EndTime   *string `json:"end_time"`
		} `json:"logs"`
		PeriodHours int `json:"period_hours"`
	}
	getJSON(t, ts.URL+"/api/status/1?hours=24", http.StatusOK, &got)

	if got.PeriodHours != 24 {
		t.Fatalf("period_hours=%d", got.PeriodHours)
	}
	if len(got.Logs) != 2 {
		t.Fatalf("want 2 logs, got %+v", got.Logs)
	}
	down, up := got.Logs[0], got.Logs[1]
	if down.State != "DOWN" || down.StartTime != "2025-08-17T06:00:00Z" {
		t.Fatalf("unexpected first log: %+v", down)
	}
	if down.EndTime == nil || *down.EndTime != "2025-08-18T10:00:00.500000Z" {
		t.Fatalf("unexpected end_time: %v", down.EndTime)
	}
	if up.State != "UP" || up.EndTime != nil {
		t.Fatalf("open interval should have null end_time: %+v", up)
	}
}

func TestStatus_OpenIntervalOlderThanWindowIsReturned(t *testing.T) {
	store := memory.New()
	target, _ := store.EnsureTarget(context.Background(), "https://a.example", "a.example")
	observeAt(t, store, target.ID, base.Add(-30*time.Hour), domain.StateUp, 10)
	ts := newTestServer(t, store, nil)

	var got statusResponse
	getJSON(t, ts.URL+"/api/status/1?hours=24", http.StatusOK, &got)
	if len(got.Logs) != 1 || got.Logs[0].State != "UP" || got.Logs[0].EndTime != nil {
		t.Fatalf("want the open 30h interval, got %+v", got.Logs)
	}
}

func TestStatus_DefaultsAndBadHours(t *testing.T) {
	ts := newTestServer(t, memory.New(), nil)

	var got statusResponse
	getJSON(t, ts.URL+"/api/status/99", http.StatusOK, &got)
	if got.PeriodHours != 24 || got.Logs == nil || len(got.Logs) != 0 {
		t.Fatalf("unknown target should yield empty logs with default window: %+v", got)
	}

	for _, q := range []string{"0", "-3", "abc", "1.5"} {
		var e map[string]string
		getJSON(t, ts.URL+"/api/status/1?hours="+q, http.StatusBadRequest, &e)
		if e["error"] == "" {
			t.Fatalf("hours=%s: missing error body", q)
		}
	}

	resp, err := http.Get(ts.URL + "/api/status/abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("non-numeric id: want 404, got %d", resp.StatusCode)
	}
}

func TestPing_HourlyBuckets(t *testing.T) {
	store := memory.New()
	target, _ := store.EnsureTarget(context.Background(), "https://a.example", "a.example")
	h := base.Add(-3 * time.Hour)
	observeAt(t, store, target.ID, h.Add(5*time.Minute), domain.StateUp, 10)
	observeAt(t, store, target.ID, h.Add(40*time.Minute), domain.StateUp, 30)
	observeAt(t, store, target.ID, h.Add(70*time.Minute), domain.StateUp, 7)
	observeAt(t, store, target.ID, base.Add(-30*time.Hour), domain.StateUp, 999) // outside window
	ts := newTestServer(t, store, nil)

	var got pingResponse
	getJSON(t, ts.URL+"/api/ping/1", http.StatusOK, &got)
	want := []pingView{
		{Time: "2025-08-18T09:00:00Z", PingMS: 20},
		{Time: "2025-08-18T10:00:00Z", PingMS: 7},
	}
	if len(got.Pings) != len(want) {
		t.Fatalf("want %v, got %v", want, got.Pings)
	}
	for i := range want {
		if got.Pings[i] != want[i] {
			t.Fatalf("bucket %d: want %v, got %v", i, want[i], got.Pings[i])
		}
	}
}

func TestStoreDown_Returns503(t *testing.T) {
	ts := newTestServer(t, downStore{memory.New()}, nil)

	for _, path := range []string{"/api/services", "/api/status/1", "/api/ping/1"} {
		var e map[string]string
		getJSON(t, ts.URL+path, http.StatusServiceUnavailable, &e)
		if e["error"] != "store unavailable" {
			t.Fatalf("%s: unexpected body %v", path, e)
		}
	}

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("healthz: want 503, got %d", resp.StatusCode)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.ObserveProbe(true, 12)
	ts := newTestServer(t, memory.New(), m)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(b) != "ok" {
		t.Fatalf("healthz: %d %q", resp.StatusCode, b)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	b, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(b), "uptime_probes_total") {
		t.Fatalf("metrics: %d %s", resp.StatusCode, b)
	}
}

func TestCORS_RestrictsOrigins(t *testing.T) {
	srv := NewServer(zap.NewNop(), memory.New(), nil)
	h := srv.Router(Options{AllowedOrigins: []string{"https://ui.example"}})

	for origin, want := range map[string]string{
		"https://ui.example":   "https://ui.example",
		"https://evil.example": "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
		req.Header.Set("Origin", origin)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != want {
			t.Fatalf("origin %s: want %q, got %q", origin, want, got)
		}
	}
}

func TestFormatTime(t *testing.T) {
	cases := map[time.Time]string{
		time.Date(2025, 8, 18, 6, 0, 0, 0, time.UTC):          "2025-08-18T06:00:00Z",
		time.Date(2025, 8, 18, 6, 0, 0, 120_000_000, time.UTC): "2025-08-18T06:00:00.120000Z",
		time.Date(2025, 8, 18, 6, 0, 0, 999, time.UTC):        "2025-08-18T06:00:00Z",
	}
	for in, want := range cases {
		if got := formatTime(in); got != want {
			t.Fatalf("formatTime(%v)=%q want %q", in, got, want)
		}
	}
}

func TestWindow_HugeHoursWidensInsteadOfWrapping(t *testing.T) {
	store := memory.New()
	target, _ := store.EnsureTarget(context.Background(), "https://a.example", "a.example")
	observeAt(t, store, target.ID, base.Add(-2*time.Hour), domain.StateUp, 10)
	observeAt(t, store, target.ID, base.Add(-1*time.Hour), domain.StateDown, 0)
	ts := newTestServer(t, store, nil)

	for _, hours := range []string{"48", "2562047", "3000000", "9223372036854775807"} {
		var st statusResponse
		getJSON(t, ts.URL+"/api/status/1?hours="+hours, http.StatusOK, &st)
		if len(st.Logs) != 2 {
			t.Fatalf("hours=%s: want 2 logs, got %d", hours, len(st.Logs))
		}
		var p pingResponse
		getJSON(t, ts.URL+"/api/ping/1?hours="+hours, http.StatusOK, &p)
		if len(p.Pings) != 2 {
			t.Fatalf("hours=%s: want 2 pings, got %d", hours, len(p.Pings))
		}
	}
}

func TestCutoff_ClampsPastDurationRange(t *testing.T) {
	srv := NewServer(zap.NewNop(), memory.New(), nil)
	srv.now = func() time.Time { return base }

	if got := srv.cutoff(24); !got.Equal(base.Add(-24 * time.Hour)) {
		t.Fatalf("cutoff(24)=%v", got)
	}
	if got := srv.cutoff(int(maxWindowHours)); !got.Before(base) {
		t.Fatalf("cutoff at max window should be in the past, got %v", got)
	}
	if got := srv.cutoff(int(maxWindowHours) + 1); !got.IsZero() {
		t.Fatalf("cutoff past max window should be the zero time, got %v", got)
	}
}
