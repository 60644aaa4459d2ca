// Package ws serves the vehicle-facing duplex link. Each vehicle keeps one
// WebSocket connection to the hub: telemetry and acks flow up it, commands
// flow down it.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/carlink-io/carlink/internal/hub/ingest"
	"github.com/carlink-io/carlink/internal/hub/router"
	"github.com/carlink-io/carlink/pkg/log"
	"github.com/carlink-io/carlink/pkg/options"
)

// AckSink consumes acknowledgements arriving over vehicle connections.
type AckSink interface {
	OnAck(ctx context.Context, commandID, vehicleID string) error
}

type Server struct {
	server   *http.Server
	options  *options.WebSocketOptions
	upgrader websocket.Upgrader

	ingest *ingest.Service
	router *router.Router
	acks   AckSink
}

// NewServer builds the vehicle WebSocket listener.
func NewServer(opts *options.WebSocketOptions, ing *ingest.Service, rt *router.Router, acks AckSink) *Server {
	s := &Server{
		options: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Vehicles connect directly, not from browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ingest: ing,
		router: rt,
		acks:   acks,
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws/vehicle/{plate}", s.handleVehicle)

	s.server = &http.Server{
		Addr:    opts.Addr,
		Handler: r,
	}
	return s
}

// Start runs the listener until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting WebSocket Server", "addr", s.server.Addr)

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

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	plate := mux.Vars(r)["plate"]
	if plate == "" {
		http.Error(w, "missing license plate", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("WebSocket upgrade failed", "vehicleID", plate, "err", err)
		return
	}

	vc := newVehicleConn(s, conn, plate)
	log.Info("Vehicle connected", "vehicleID", plate, "remote", conn.RemoteAddr().String())
	vc.run(r.Context())
}
