package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/spyglass-home/spyglass-core/internal/bridge"
	"github.com/spyglass-home/spyglass-core/internal/history"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/config"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/logging"
	"github.com/spyglass-home/spyglass-core/internal/registry"
	"github.com/spyglass-home/spyglass-core/internal/trigger"
)

// Deps carries the API's read-only views of the running bridge.
// History may be nil, which disables the history endpoints.
type Deps struct {
	Registry *registry.Registry
	Engine   *trigger.Engine
	History  *history.Repository
	Health   func() bridge.HealthMessage
	Hub      *Hub
	Logger   *logging.Logger
}

// Server is the read-only HTTP surface: device snapshots, trigger
// registrations, history, health, and a websocket event feed. All
// writes go through MQTT commands, never HTTP.
type Server struct {
	cfg    config.APIConfig
	deps   Deps
	router chi.Router
	http   *http.Server
}

// NewServer builds the API server and its routes.
func NewServer(cfg config.APIConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}

	s := &Server{cfg: cfg, deps: deps}
	s.router = s.buildRouter()
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  timeoutOr(cfg.Timeouts.Read, 10),
		WriteTimeout: timeoutOr(cfg.Timeouts.Write, 30),
		IdleTimeout:  timeoutOr(cfg.Timeouts.Idle, 120),
	}
	return s
}

func timeoutOr(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/devices", s.handleDevices)
		r.Get("/devices/{address}", s.handleDevice)
		r.Get("/triggers", s.handleTriggers)

		if s.deps.History != nil {
			r.Route("/history", func(r chi.Router) {
				r.Get("/state", s.handleStateHistory)
				r.Get("/triggers", s.handleTriggerHistory)
				r.Get("/commands", s.handleCommandHistory)
			})
		}

		if s.deps.Hub != nil {
			r.Get("/ws", s.deps.Hub.ServeWS)
		}
	})

	return r
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the listener until ctx is cancelled, then drains with a
// short shutdown grace period. Returns nil on clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("api listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.deps.Hub != nil {
			s.deps.Hub.Close()
		}
		return s.http.Shutdown(shutdownCtx)
	}
}
