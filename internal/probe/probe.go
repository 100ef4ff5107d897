package probe

import (
	"context"
	"net/http"
)

// Kind classifies how a probe ended.
type Kind int

const (
	// Unreachable covers transport failures, timeouts and failing statuses.
	Unreachable Kind = iota
	// Reachable means the endpoint answered with a status below 400.
	Reachable
	// Rejected means the endpoint answered but refused the request for auth
	// or method reasons (401, 403, 405). It counts as up.
	Rejected
)

func (k Kind) String() string {
	switch k {
	case Reachable:
		return "reachable"
	case Rejected:
		return "rejected"
	default:
		return "unreachable"
	}
}

// Outcome is the unified result of a single probe.
//
// StatusCode is 0 when no HTTP response was received. LatencyMS is always
// set, including on failure, and holds the time spent up to the failure point.
type Outcome struct {
	Kind       Kind
	StatusCode int
	LatencyMS  float64
	Reason     string
}

func (o Outcome) IsUp() bool { return o.Kind != Unreachable }

// TransportFailure reports whether the probe never got an HTTP response.
func (o Outcome) TransportFailure() bool { return o.Kind == Unreachable && o.StatusCode == 0 }

// Classify maps an HTTP status code to an outcome kind.
func Classify(status int) Kind {
	switch {
	case status <= 0:
		return Unreachable
	case status < 400:
		return Reachable
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusMethodNotAllowed:
		return Rejected
	default:
		return Unreachable
	}
}

// Prober measures reachability and latency of one URL. It never returns an
// error: network failures are reported as an Unreachable outcome.
type Prober interface {
	Probe(ctx context.Context, target string) Outcome
}
