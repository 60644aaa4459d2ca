// Package store is the single shared mutable resource of the hub: the latest
// telemetry snapshot per vehicle plus the command records owned by the
// dispatcher. Operations on one vehicle are serialized; operations on
// different vehicles never contend on the same lock.
package store

import (
	"sync"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"

	"github.com/carlink-io/carlink/internal/hub/core"
	"github.com/carlink-io/carlink/internal/hub/core/model"
)

// Store holds per-vehicle state. The zero value is not usable; use New.
type Store struct {
	mu       sync.RWMutex
	vehicles map[string]*vehicleState

	cmdMu   sync.RWMutex
	pending map[string]*model.Command

	// terminal commands stay queryable for a bounded window, then expire.
	done cache.Cache[string, *model.Command]
}

// vehicleState carries one vehicle's snapshot behind its own lock, so a busy
// vehicle never blocks reads or writes for any other vehicle.
type vehicleState struct {
	mu       sync.Mutex
	snapshot *model.Snapshot
}

// New creates an empty store. retention bounds how long terminal commands
// remain queryable.
func New(retention time.Duration) *Store {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Store{
		vehicles: make(map[string]*vehicleState),
		pending:  make(map[string]*model.Command),
		done:     cache.NewCache[string, *model.Command]().WithTTL(retention),
	}
}

func (s *Store) vehicle(id string) *vehicleState {
	s.mu.RLock()
	v, ok := s.vehicles[id]
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok = s.vehicles[id]; ok {
		return v
	}
	v = &vehicleState{}
	s.vehicles[id] = v
	return v
}

// PutSnapshot stores snap as the vehicle's latest state. Last-writer-wins by
// ObservedAt: a snapshot not strictly newer than the stored one is dropped
// and core.ErrStaleUpdate is returned, protecting against out-of-order
// delivery from unreliable transports.
func (s *Store) PutSnapshot(snap *model.Snapshot) error {
	v := s.vehicle(snap.VehicleID)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.snapshot != nil && !snap.ObservedAt.After(v.snapshot.ObservedAt) {
		return core.ErrStaleUpdate
	}
	v.snapshot = snap.Clone()
	return nil
}

// GetSnapshot returns the latest snapshot for a vehicle, or core.ErrNotFound
// if the vehicle has never reported.
func (s *Store) GetSnapshot(vehicleID string) (*model.Snapshot, error) {
	s.mu.RLock()
	v, ok := s.vehicles[vehicleID]
	s.mu.RUnlock()
	if !ok {
		return nil, core.ErrNotFound
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.snapshot == nil {
		return nil, core.ErrNotFound
	}
	return v.snapshot.Clone(), nil
}

// HasVehicle reports whether the vehicle has ever reported telemetry.
func (s *Store) HasVehicle(vehicleID string) bool {
	_, err := s.GetSnapshot(vehicleID)
	return err == nil
}

// ListSnapshots returns a point-in-time copy of every vehicle's latest
// snapshot. It is a snapshot-consistent read, never a live view.
func (s *Store) ListSnapshots() []*model.Snapshot {
	s.mu.RLock()
	states := make([]*vehicleState, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		states = append(states, v)
	}
	s.mu.RUnlock()

	out := make([]*model.Snapshot, 0, len(states))
	for _, v := range states {
		v.mu.Lock()
		if v.snapshot != nil {
			out = append(out, v.snapshot.Clone())
		}
		v.mu.Unlock()
	}
	return out
}

// PutCommand records a freshly dispatched (Pending) command.
func (s *Store) PutCommand(cmd *model.Command) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	s.pending[cmd.ID] = cmd.Clone()
}

// GetCommand returns a copy of the command, Pending or terminal, or
// core.ErrCommandNotFound once it has been expired.
func (s *Store) GetCommand(id string) (*model.Command, error) {
	s.cmdMu.RLock()
	if cmd, ok := s.pending[id]; ok {
		defer s.cmdMu.RUnlock()
		return cmd.Clone(), nil
	}
	s.cmdMu.RUnlock()

	if cmd, ok := s.done.Get(id); ok {
		return cmd.Clone(), nil
	}
	return nil, core.ErrCommandNotFound
}

// CompleteCommand transitions a Pending command into a terminal state.
// It returns the updated copy, or core.ErrTerminal if the command already
// completed, or core.ErrCommandNotFound if it never existed.
func (s *Store) CompleteCommand(id string, state model.CommandState, at time.Time) (*model.Command, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	cmd, ok := s.pending[id]
	if !ok {
		if _, found := s.done.Get(id); found {
			return nil, core.ErrTerminal
		}
		return nil, core.ErrCommandNotFound
	}

	cmd.State = state
	cmd.CompletedAt = at
	delete(s.pending, id)
	s.done.Set(id, cmd, 0)
	return cmd.Clone(), nil
}

// PendingCommands returns copies of the vehicle's non-terminal commands.
func (s *Store) PendingCommands(vehicleID string) []*model.Command {
	s.cmdMu.RLock()
	defer s.cmdMu.RUnlock()

	var out []*model.Command
	for _, cmd := range s.pending {
		if cmd.VehicleID == vehicleID {
			out = append(out, cmd.Clone())
		}
	}
	return out
}
