package domain

import "time"

type TargetID int64

// Target is a monitored endpoint. URL is the unique key.
type Target struct {
	ID   TargetID `json:"id"`
	URL  string   `json:"url"`
	Name string   `json:"name"`
}

// State is the observed reachability of a target.
type State bool

const (
	StateDown State = false
	StateUp   State = true
)

func (s State) String() string {
	if s {
		return "UP"
	}
	return "DOWN"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// StateInterval is a maximal period during which a target stayed in one state.
// EndTime is nil while the interval is still open.
type StateInterval struct {
	ID        int64      `json:"id"`
	TargetID  TargetID   `json:"target_id"`
	State     State      `json:"state"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

func (i StateInterval) Open() bool { return i.EndTime == nil }

// PingSample is one latency measurement, recorded once per probe.
type PingSample struct {
	ID        int64     `json:"id"`
	TargetID  TargetID  `json:"target_id"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMS float64   `json:"ping_ms"`
}

// LatencyBucket is the average latency of all samples within one hour.
type LatencyBucket struct {
	Hour         time.Time `json:"time"`
	AvgLatencyMS float64   `json:"ping_ms"`
}
