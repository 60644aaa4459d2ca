// Package server manages the lifecycle of the hub's protocol listeners.
package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/carlink-io/carlink/pkg/log"
)

// Server defines the common interface for all sub-servers (ws, http).
type Server interface {
	Start(ctx context.Context) error
}

// Manager runs a set of servers and stops them together: the first failure
// cancels the shared context and every other server shuts down.
type Manager struct {
	servers []Server
}

// NewManager creates a manager over the given servers.
func NewManager(servers ...Server) *Manager {
	return &Manager{servers: servers}
}

// Start launches all servers in parallel and waits for termination.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range m.servers {
		srv := s
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...")
	return g.Wait()
}
