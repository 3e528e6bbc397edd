// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ctlplane exposes the daemon's HTTP control surface: pushing a
// new policy document, scraping Prometheus metrics, and a liveness
// probe. It stands in for the GUI/RPC transport spec.md places out of
// scope, present only so the daemon is runnable end to end.
package ctlplane

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/perimeterd/perimeterd/internal/engine"
	"github.com/perimeterd/perimeterd/internal/logging"
	"github.com/perimeterd/perimeterd/internal/policy"
)

// Server is the daemon's HTTP control plane.
type Server struct {
	engine *engine.Engine
	log    *logging.Logger

	mu         sync.Mutex
	router     *mux.Router
	httpServer *http.Server
}

// New builds a Server that pushes policy documents into eng.
func New(eng *engine.Engine) *Server {
	s := &Server{
		engine: eng,
		log:    logging.WithComponent("ctlplane"),
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/policy", s.handlePushPolicy).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Start begins serving on addr. It returns once the listener is
// accepting connections, or with the error if addr cannot be listened
// on; errors from serving afterwards are logged, not returned.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		s.log.Info("control plane listening", "addr", addr)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("control plane server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *Server) handlePushPolicy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	rules, err := policy.Unmarshal(body)
	if err != nil {
		http.Error(w, "malformed policy document: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.engine.SwapPolicy(rules); err != nil {
		http.Error(w, "policy rejected: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	id, _ := s.engine.CurrentGeneration()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"generation": id.String()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
