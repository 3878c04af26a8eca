package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes liveness and metrics endpoints for the daemon.
type Server struct {
	app    *App
	server *http.Server
}

// NewServer creates the daemon's HTTP server.
func NewServer(app *App, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		app: app,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if s.app.db != nil {
		if err := s.app.db.Health(r.Context()); err != nil {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	response := map[string]any{
		"status":        status,
		"authenticated": s.app.Session.Authenticated(),
		"wallets":       s.app.Registry.Size(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
