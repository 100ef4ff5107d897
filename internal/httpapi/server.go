package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	apimw "github.com/hamed0406/uptimeviewer/internal/httpapi/middleware"
	"github.com/hamed0406/uptimeviewer/internal/metrics"
	"github.com/hamed0406/uptimeviewer/internal/repo"
)

const defaultHours = 24

type Options struct {
	AllowedOrigins []string // empty allows all
	PublicRPM      int      // 0 disables rate limiting
	PublicBurst    int
}

type Server struct {
	Logger  *zap.Logger
	Store   repo.Store
	Metrics *metrics.Metrics

	now func() time.Time
}

func NewServer(l *zap.Logger, store repo.Store, m *metrics.Metrics) *Server {
	return &Server{
		Logger:  l,
		Store:   store,
		Metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if len(opts.AllowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(opts.PublicRPM, opts.PublicBurst))
		r.Get("/services", s.handleServices)
		r.Get("/status/{id:[0-9]+}", s.handleStatus)
		r.Get("/ping/{id:[0-9]+}", s.handlePing)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		s.Logger.Warn("healthz_store_unreachable", zap.Error(err))
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
