package probe

import (
	"context"
	"io"
	"net/http"
	"time"
)

const DefaultTimeout = 10 * time.Second

// drainLimit bounds how much of a body is read so the connection can be reused.
const drainLimit = 64 << 10

type HTTPProber struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProber{
		Client:  &http.Client{Timeout: timeout, Transport: http.DefaultTransport.(*http.Transport).Clone()},
		Timeout: timeout,
	}
}

func (h *HTTPProber) Probe(ctx context.Context, target string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Outcome{Kind: Unreachable, LatencyMS: sinceMS(start), Reason: err.Error()}
	}

	resp, err := h.Client.Do(req)
	latency := sinceMS(start)
	if err != nil {
		return Outcome{Kind: Unreachable, LatencyMS: latency, Reason: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

	return Outcome{
		Kind:       Classify(resp.StatusCode),
		StatusCode: resp.StatusCode,
		LatencyMS:  latency,
		Reason:     resp.Status,
	}
}

// CloseIdleConnections releases pooled connections. The scheduler calls it
// when a tick ends.
func (h *HTTPProber) CloseIdleConnections() {
	h.Client.CloseIdleConnections()
}

func sinceMS(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
