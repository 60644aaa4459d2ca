package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carlink-io/carlink/internal/hub/core"
	"github.com/carlink-io/carlink/internal/hub/core/model"
	"github.com/carlink-io/carlink/internal/hub/router"
	"github.com/carlink-io/carlink/internal/hub/store"
	"github.com/carlink-io/carlink/pkg/topic"
)

func newTestDispatcher(t *testing.T, opts Options) (*Dispatcher, *router.Router, *store.Store) {
	t.Helper()
	st := store.New(time.Hour)
	rt := router.New(topic.NewBuilder(""), 16)
	d := New(st, rt, opts, nil)
	t.Cleanup(d.Stop)
	return d, rt, st
}

func TestDispatchAndAck(t *testing.T) {
	d, _, _ := newTestDispatcher(t, Options{AckTimeout: time.Minute})
	ctx := context.Background()

	cmd, err := d.Dispatch(ctx, "ABC-123", model.CommandStartAC)
	require.NoError(t, err)
	require.NotEmpty(t, cmd.ID)

	got, err := d.Status(cmd.ID)
	require.NoError(t, err)
	require.Equal(t, model.CommandPending, got.State)

	require.NoError(t, d.OnAck(ctx, cmd.ID, "ABC-123"))

	got, err = d.Status(cmd.ID)
	require.NoError(t, err)
	require.Equal(t, model.CommandAcknowledged, got.State)
	require.False(t, got.CompletedAt.IsZero())
}

func TestCommandIDsUnique(t *testing.T) {
	d, _, _ := newTestDispatcher(t, Options{AckTimeout: time.Minute})
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		cmd, err := d.Dispatch(ctx, "ABC-123", model.CommandLockDoors)
		require.NoError(t, err)
		require.False(t, seen[cmd.ID], "duplicate command ID %s", cmd.ID)
		seen[cmd.ID] = true
	}
}

func TestDispatchPublishesCommandFrame(t *testing.T) {
	d, rt, _ := newTestDispatcher(t, Options{AckTimeout: time.Minute})
	ctx := context.Background()

	sub := rt.Subscribe("vehicle-link", "ABC-123", model.ChannelCommands)

	cmd, err := d.Dispatch(ctx, "ABC-123", model.CommandUnlockDoors)
	require.NoError(t, err)

	select {
	case msg := <-sub.C():
		require.Equal(t, "car:ABC-123:commands", msg.Channel)
		var frame model.CommandMessage
		require.NoError(t, json.Unmarshal(msg.Payload, &frame))
		require.Equal(t, model.TypeCommand, frame.Type)
		require.Equal(t, "ABC-123", frame.LicensePlate)
		require.Equal(t, "unlock_doors", frame.Command)
		require.Equal(t, cmd.ID, frame.MessageID)
	case <-time.After(time.Second):
		t.Fatal("no command frame published")
	}
}

func TestTimeoutAfterDeadlineNotBefore(t *testing.T) {
	d, rt, _ := newTestDispatcher(t, Options{AckTimeout: 150 * time.Millisecond})
	ctx := context.Background()

	statusSub := rt.Subscribe("dash", "XYZ-789", model.ChannelStatus)

	cmd, err := d.Dispatch(ctx, "XYZ-789", model.CommandLockDoors)
	require.NoError(t, err)

	// Not timed out before the deadline.
	got, err := d.Status(cmd.ID)
	require.NoError(t, err)
	require.Equal(t, model.CommandPending, got.State)

	require.Eventually(t, func() bool {
		got, err := d.Status(cmd.ID)
		return err == nil && got.State == model.CommandTimedOut
	}, 2*time.Second, 10*time.Millisecond)

	// Timeout publishes a status event on the vehicle's status channel.
	select {
	case msg := <-statusSub.C():
		var ev model.StatusEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		require.Equal(t, cmd.ID, ev.MessageID)
		require.Equal(t, string(model.CommandTimedOut), ev.Status)
	case <-time.After(time.Second):
		t.Fatal("no status event published on timeout")
	}

	// Terminal idempotence: a late ack changes nothing.
	require.ErrorIs(t, d.OnAck(ctx, cmd.ID, "XYZ-789"), core.ErrUnmatchedAck)
	got, err = d.Status(cmd.ID)
	require.NoError(t, err)
	require.Equal(t, model.CommandTimedOut, got.State)
}

func TestAckStopsTimeout(t *testing.T) {
	d, _, _ := newTestDispatcher(t, Options{AckTimeout: 100 * time.Millisecond})
	ctx := context.Background()

	cmd, err := d.Dispatch(ctx, "ABC-123", model.CommandStopEngine)
	require.NoError(t, err)
	require.NoError(t, d.OnAck(ctx, cmd.ID, "ABC-123"))

	time.Sleep(300 * time.Millisecond)

	got, err := d.Status(cmd.ID)
	require.NoError(t, err)
	require.Equal(t, model.CommandAcknowledged, got.State, "timeout must not override an ack")
}

func TestUnmatchedAck(t *testing.T) {
	d, _, _ := newTestDispatcher(t, Options{AckTimeout: time.Minute})
	ctx := context.Background()

	// Never-dispatched command ID.
	require.ErrorIs(t, d.OnAck(ctx, "c999", "ABC-123"), core.ErrUnmatchedAck)

	// Wrong vehicle.
	cmd, err := d.Dispatch(ctx, "ABC-123", model.CommandStartEngine)
	require.NoError(t, err)
	require.ErrorIs(t, d.OnAck(ctx, cmd.ID, "XYZ-789"), core.ErrUnmatchedAck)

	got, err := d.Status(cmd.ID)
	require.NoError(t, err)
	require.Equal(t, model.CommandPending, got.State)

	// Duplicate ack.
	require.NoError(t, d.OnAck(ctx, cmd.ID, "ABC-123"))
	require.ErrorIs(t, d.OnAck(ctx, cmd.ID, "ABC-123"), core.ErrUnmatchedAck)
}

func TestRequireKnownVehicle(t *testing.T) {
	d, _, st := newTestDispatcher(t, Options{AckTimeout: time.Minute, RequireKnownVehicle: true})
	ctx := context.Background()

	_, err := d.Dispatch(ctx, "NEVER-SEEN", model.CommandLockDoors)
	require.ErrorIs(t, err, core.ErrUnknownVehicle)

	require.NoError(t, st.PutSnapshot(&model.Snapshot{
		VehicleID:  "NEVER-SEEN",
		ObservedAt: time.Now(),
	}))

	_, err = d.Dispatch(ctx, "NEVER-SEEN", model.CommandLockDoors)
	require.NoError(t, err)
}
