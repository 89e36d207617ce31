package metrics

// /metrics and /healthz listener

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	logging "ticker-bot/internal/infra/log"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// HealthFunc reports named component errors; an empty map is healthy.
type HealthFunc func(ctx context.Context) map[string]error

type Server struct {
	srv *http.Server
}

func NewRouter(health HealthFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Handle("/metrics", Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		body := map[string]any{"status": "ok"}
		code := http.StatusOK

		if health != nil {
			if problems := health(req.Context()); len(problems) > 0 {
				details := make(map[string]string, len(problems))
				for name, err := range problems {
					details[name] = err.Error()
				}
				body = map[string]any{"status": "unhealthy", "errors": details}
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	})
	return r
}

func NewServer(addr string, health HealthFunc) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(health),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start listens in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		logging.LogInfo("Metrics server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.LogError("Metrics server stopped", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
