// Package ops serves liveness and readiness probes for the bot process.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
)

const component = "ops"

// Config enables the ops listener. An empty Listen disables it.
type Config struct {
	Listen       string        `yaml:"listen" envconfig:"OPS_LISTEN"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// Check is one readiness probe, e.g. a database ping.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// Server is the ops HTTP server.
type Server struct {
	cfg    Config
	checks []Check
	http   *http.Server
	router *chi.Mux
}

// New builds the router. Stats, when set, is rendered as JSON on /statsz.
func New(cfg Config, checks []Check, stats func() map[string]any) *Server {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}
	s := &Server{cfg: cfg, checks: checks}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/readyz", s.ready)
	if stats != nil {
		r.Get("/statsz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, stats())
		})
	}

	s.router = r
	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReadyTimeout)
	defer cancel()

	results := make(map[string]string, len(s.checks))
	code := http.StatusOK
	for _, c := range s.checks {
		if err := c.Run(ctx); err != nil {
			results[c.Name] = err.Error()
			code = http.StatusServiceUnavailable
			logger.Warn(ctx, component, "ready.check",
				slog.String("status", "fail"),
				slog.String("cause", c.Name),
				logger.Err(err),
			)
			continue
		}
		results[c.Name] = "ok"
	}
	writeJSON(w, code, results)
}

// Start listens in the background. It returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	logger.Info(context.Background(), component, "ops.listen",
		slog.String("status", "ok"),
		slog.String("listen", ln.Addr().String()),
	)
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), component, "ops.serve", slog.String("status", "fail"), logger.Err(err))
		}
	}()
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
