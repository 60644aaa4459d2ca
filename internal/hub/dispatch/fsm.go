package dispatch

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/carlink-io/carlink/internal/hub/core"
	"github.com/carlink-io/carlink/internal/hub/core/model"
	fsmutil "github.com/carlink-io/carlink/internal/pkg/util/fsm"
)

const (
	// EventAck fires when a matching acknowledgement arrives.
	EventAck = "event_ack"
	// EventTimeout fires when the deadline elapses with no ack.
	EventTimeout = "event_timeout"
)

// newCommandFSM builds the command lifecycle state machine seeded with the
// command's current state. Both events are valid only from Pending;
// Acknowledged and TimedOut accept nothing, which is what makes them
// terminal.
func newCommandFSM(initial model.CommandState) *fsm.FSM {
	events := fsm.Events{
		{Name: EventAck, Src: []string{string(model.CommandPending)}, Dst: string(model.CommandAcknowledged)},
		{Name: EventTimeout, Src: []string{string(model.CommandPending)}, Dst: string(model.CommandTimedOut)},
	}

	callbacks := fsm.Callbacks{
		// Guard: an ack must name the vehicle the command was issued to.
		"before_" + EventAck: fsmutil.WrapEvent(guardAckVehicle),
	}

	return fsm.NewFSM(string(initial), events, callbacks)
}

// guardAckVehicle cancels the ack transition when the acking vehicle does not
// match the command's recorded vehicle. Args: [command, ackVehicleID].
func guardAckVehicle(ctx context.Context, e *fsm.Event) error {
	if len(e.Args) < 2 {
		return nil
	}
	cmd := e.Args[0].(*model.Command)
	ackVehicle := e.Args[1].(string)
	if cmd.VehicleID != ackVehicle {
		e.Cancel(core.ErrUnmatchedAck)
	}
	return nil
}
