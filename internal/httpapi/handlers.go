package httpapi

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeviewer/internal/domain"
)

type serviceView struct {
	ID   domain.TargetID `json:"id"`
	Name string          `json:"name"`
	URL  string          `json:"url"`
}

type intervalView struct {
	State     string  `json:"state"`
	StartTime string  `json:"start_time"`
	EndTime   *string `json:"end_time"`
}

type statusResponse struct {
	Logs        []intervalView `json:"logs"`
	PeriodHours int            `json:"period_hours"`
}

type pingView struct {
	Time   string  `json:"time"`
	PingMS float64 `json:"ping_ms"`
}

type pingResponse struct {
	Pings []pingView `json:"pings"`
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Store.ListTargets(r.Context())
	if err != nil {
		s.storeUnavailable(w, "list_targets", err)
		return
	}
	out := make([]serviceView, 0, len(ts))
	for _, t := range ts {
		out = append(out, serviceView{ID: t.ID, Name: t.Name, URL: t.URL})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, hours, ok := s.queryParams(w, r)
	if !ok {
		return
	}
	ivs, err := s.Store.IntervalsSince(r.Context(), id, s.cutoff(hours))
	if err != nil {
		s.storeUnavailable(w, "intervals_since", err)
		return
	}
	resp := statusResponse{Logs: make([]intervalView, 0, len(ivs)), PeriodHours: hours}
	for _, iv := range ivs {
		v := intervalView{State: iv.State.String(), StartTime: formatTime(iv.StartTime)}
		if iv.EndTime != nil {
			end := formatTime(*iv.EndTime)
			v.EndTime = &end
		}
		resp.Logs = append(resp.Logs, v)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	id, hours, ok := s.queryParams(w, r)
	if !ok {
		return
	}
	buckets, err := s.Store.HourlyLatency(r.Context(), id, s.cutoff(hours))
	if err != nil {
		s.storeUnavailable(w, "hourly_latency", err)
		return
	}
	resp := pingResponse{Pings: make([]pingView, 0, len(buckets))}
	for _, b := range buckets {
		resp.Pings = append(resp.Pings, pingView{
			Time:   b.Hour.UTC().Format("2006-01-02T15:00:00") + "Z",
			PingMS: b.AvgLatencyMS,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// queryParams reads the {id} path segment and the hours window. It writes a
// 400 and returns ok=false on bad input.
func (s *Server) queryParams(w http.ResponseWriter, r *http.Request) (domain.TargetID, int, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return 0, 0, false
	}
	hours := defaultHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil || h <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return 0, 0, false
		}
		hours = h
	}
	return domain.TargetID(id), hours, true
}

// maxWindowHours is the widest window a time.Duration can hold. Wider
// windows start at the zero time.
const maxWindowHours = math.MaxInt64 / int64(time.Hour)

func (s *Server) cutoff(hours int) time.Time {
	if int64(hours) > maxWindowHours {
		return time.Time{}
	}
	return s.now().Add(-time.Duration(hours) * time.Hour)
}

func (s *Server) storeUnavailable(w http.ResponseWriter, op string, err error) {
	s.Logger.Error("store_query_failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusServiceUnavailable, "store unavailable")
}

// formatTime renders t as naive UTC ISO-8601 with a trailing Z. Fractional
// seconds appear only when non-zero, always with microsecond precision.
func formatTime(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 == 0 {
		return t.Format("2006-01-02T15:04:05") + "Z"
	}
	return t.Format("2006-01-02T15:04:05.000000") + "Z"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
