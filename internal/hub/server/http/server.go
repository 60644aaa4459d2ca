// Package http serves the operator-facing gateway: vehicle state queries,
// command dispatch and the health/metrics endpoints.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carlink-io/carlink/internal/hub/dispatch"
	"github.com/carlink-io/carlink/internal/hub/store"
	"github.com/carlink-io/carlink/pkg/log"
	"github.com/carlink-io/carlink/pkg/options"
)

type Server struct {
	server  *http.Server
	options *options.HttpOptions
}

// NewServer builds the gateway HTTP server with all routes registered.
func NewServer(opts *options.HttpOptions, st *store.Store, d *dispatch.Dispatcher) *Server {
	return &Server{
		server: &http.Server{
			Addr:         opts.Addr,
			Handler:      newRouter(st, d),
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		},
		options: opts,
	}
}

func newRouter(st *store.Store, d *dispatch.Dispatcher) *mux.Router {
	gw := &gateway{store: st, dispatcher: d}

	r := mux.NewRouter()
	r.HandleFunc("/api/cars", gw.listCars).Methods(http.MethodGet)
	r.HandleFunc("/api/cars/{plate}", gw.getCar).Methods(http.MethodGet)
	r.HandleFunc("/api/cars/{plate}/commands", gw.dispatchCommand).Methods(http.MethodPost)
	r.HandleFunc("/api/commands/{id}", gw.getCommand).Methods(http.MethodGet)

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Readiness Probe
	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting HTTP Server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
