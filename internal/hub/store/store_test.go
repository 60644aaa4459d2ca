package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carlink-io/carlink/internal/hub/core"
	"github.com/carlink-io/carlink/internal/hub/core/model"
)

func snap(plate string, at time.Time) *model.Snapshot {
	return &model.Snapshot{
		VehicleID:   plate,
		IndoorTemp:  23.5,
		OutdoorTemp: 14.2,
		GPSLat:      60.1699,
		GPSLng:      24.9384,
		Extra:       map[string]float64{"tirePressureFrontLeft": 2.4},
		ObservedAt:  at,
	}
}

func TestPutGetSnapshot(t *testing.T) {
	s := New(time.Hour)
	t1 := time.Now()

	require.NoError(t, s.PutSnapshot(snap("ABC-123", t1)))

	got, err := s.GetSnapshot("ABC-123")
	require.NoError(t, err)
	require.Equal(t, "ABC-123", got.VehicleID)
	require.Equal(t, 23.5, got.IndoorTemp)
	require.Equal(t, 2.4, got.Extra["tirePressureFrontLeft"])
	require.True(t, got.ObservedAt.Equal(t1))
}

func TestGetSnapshotUnknownVehicle(t *testing.T) {
	s := New(time.Hour)

	_, err := s.GetSnapshot("NEVER-SEEN")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestStaleUpdateDropped(t *testing.T) {
	s := New(time.Hour)
	t1 := time.Now()
	t0 := t1.Add(-time.Minute)

	require.NoError(t, s.PutSnapshot(snap("ABC-123", t1)))

	// Older timestamp: dropped, store unchanged.
	err := s.PutSnapshot(snap("ABC-123", t0))
	require.ErrorIs(t, err, core.ErrStaleUpdate)

	// Equal timestamp counts as stale too.
	err = s.PutSnapshot(snap("ABC-123", t1))
	require.ErrorIs(t, err, core.ErrStaleUpdate)

	got, err := s.GetSnapshot("ABC-123")
	require.NoError(t, err)
	require.True(t, got.ObservedAt.Equal(t1))
}

func TestIncreasingTimestampsAlwaysLatest(t *testing.T) {
	s := New(time.Hour)
	base := time.Now()

	for i := 0; i < 100; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.PutSnapshot(snap("ABC-123", at)))

		got, err := s.GetSnapshot("ABC-123")
		require.NoError(t, err)
		require.True(t, got.ObservedAt.Equal(at))
	}
}

func TestStoredSnapshotNotAliased(t *testing.T) {
	s := New(time.Hour)
	in := snap("ABC-123", time.Now())
	require.NoError(t, s.PutSnapshot(in))

	// Mutating the caller's copy must not affect stored state.
	in.Extra["tirePressureFrontLeft"] = 0

	got, err := s.GetSnapshot("ABC-123")
	require.NoError(t, err)
	require.Equal(t, 2.4, got.Extra["tirePressureFrontLeft"])

	// Mutating a returned copy must not affect stored state either.
	got.Extra["tirePressureFrontLeft"] = 9

	again, err := s.GetSnapshot("ABC-123")
	require.NoError(t, err)
	require.Equal(t, 2.4, again.Extra["tirePressureFrontLeft"])
}

func TestVehiclesIndependentUnderConcurrency(t *testing.T) {
	s := New(time.Hour)
	base := time.Now()

	const vehicles = 8
	const writes = 200

	var wg sync.WaitGroup
	for v := 0; v < vehicles; v++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			plate := fmt.Sprintf("CAR-%03d", v)
			for i := 0; i < writes; i++ {
				_ = s.PutSnapshot(snap(plate, base.Add(time.Duration(i)*time.Millisecond)))
				_, _ = s.GetSnapshot(plate)
			}
		}(v)
	}
	wg.Wait()

	snaps := s.ListSnapshots()
	require.Len(t, snaps, vehicles)
	for _, got := range snaps {
		require.True(t, got.ObservedAt.Equal(base.Add((writes-1)*time.Millisecond)),
			"vehicle %s should hold the newest snapshot", got.VehicleID)
	}
}

func TestCommandLifecycleInStore(t *testing.T) {
	s := New(time.Hour)
	now := time.Now()

	cmd := &model.Command{
		ID:        "c1",
		VehicleID: "ABC-123",
		Type:      model.CommandStartAC,
		State:     model.CommandPending,
		IssuedAt:  now,
	}
	s.PutCommand(cmd)

	got, err := s.GetCommand("c1")
	require.NoError(t, err)
	require.Equal(t, model.CommandPending, got.State)

	require.Len(t, s.PendingCommands("ABC-123"), 1)
	require.Empty(t, s.PendingCommands("XYZ-789"))

	done, err := s.CompleteCommand("c1", model.CommandAcknowledged, now.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, model.CommandAcknowledged, done.State)

	// Terminal commands stay queryable but cannot complete twice.
	got, err = s.GetCommand("c1")
	require.NoError(t, err)
	require.Equal(t, model.CommandAcknowledged, got.State)

	_, err = s.CompleteCommand("c1", model.CommandTimedOut, now.Add(2*time.Second))
	require.ErrorIs(t, err, core.ErrTerminal)

	require.Empty(t, s.PendingCommands("ABC-123"))

	_, err = s.GetCommand("c999")
	require.ErrorIs(t, err, core.ErrCommandNotFound)
}
