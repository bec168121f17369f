// Package httpapi implements the HTTP Frontend: per-application
// /predict and /update endpoints installed at runtime by the
// registrar, plus the shared /metrics endpoint. Handlers never block
// synchronously waiting out a full query lifecycle on the accept
// goroutine -- they arm the processor's Future and wait on a
// completion channel that is fed either by the worker's response or
// by the deadline timer, whichever fires first.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/clipper-ml/clipper/internal/logging"
	"github.com/clipper-ml/clipper/internal/metrics"
	"github.com/clipper-ml/clipper/internal/query"
	"github.com/clipper-ml/clipper/internal/types"
)

const logComponent = "httpapi"

// Server is the HTTP Frontend: a single http.Server whose mux gains
// new routes as applications are registered.
type Server struct {
	mux        *http.ServeMux
	httpServer *http.Server
	listener   net.Listener
	addr       string
	registry   *metrics.Registry
	processor  *query.Processor

	mu   sync.Mutex
	apps map[string]types.Application
}

// NewServer constructs a Server bound to addr and installs /metrics
// immediately; per-application routes arrive later via
// RegisterApplication.
func NewServer(addr string, registry *metrics.Registry, processor *query.Processor) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		addr:      addr,
		registry:  registry,
		processor: processor,
		apps:      make(map[string]types.Application),
	}
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	return s
}

// Start listens and serves until ctx is cancelled, then performs a
// graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen on %s: %w", s.addr, err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logging.Infof(logComponent, "shutting down")
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	logging.Infof(logComponent, "listening on %s", s.listener.Addr())
	err = s.httpServer.Serve(s.listener)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Addr returns the address the server is bound to.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// RegisterApplication installs /<app>/predict and /<app>/update for
// app.Name. Registration is idempotent: re-registering an
// already-installed application name is a no-op (first-writer-wins).
func (s *Server) RegisterApplication(app types.Application) {
	s.mu.Lock()
	if _, exists := s.apps[app.Name]; exists {
		s.mu.Unlock()
		return
	}
	s.apps[app.Name] = app
	s.mu.Unlock()

	s.mux.HandleFunc(fmt.Sprintf("POST /%s/predict", app.Name), s.handlePredict(app.Name))
	s.mux.HandleFunc(fmt.Sprintf("POST /%s/update", app.Name), s.handleUpdate(app.Name))
	logging.Infof(logComponent, "installed routes for application %q", app.Name)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	body, err := s.registry.ReportMetrics(false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render metrics", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func writeError(w http.ResponseWriter, status int, message string, cause error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	causeStr := message
	if cause != nil {
		causeStr = cause.Error()
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"cause": causeStr,
	})
}
