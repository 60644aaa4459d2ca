package model

import (
	"fmt"
	"time"
)

// CommandType defines the remote actions a caller can request on a vehicle.
type CommandType string

const (
	CommandStartAC      CommandType = "start_ac"
	CommandStopAC       CommandType = "stop_ac"
	CommandLockDoors    CommandType = "lock_doors"
	CommandUnlockDoors  CommandType = "unlock_doors"
	CommandStartEngine  CommandType = "start_engine"
	CommandStopEngine   CommandType = "stop_engine"
)

// ParseCommandType validates a caller-supplied command type string.
func ParseCommandType(s string) (CommandType, error) {
	switch t := CommandType(s); t {
	case CommandStartAC, CommandStopAC, CommandLockDoors,
		CommandUnlockDoors, CommandStartEngine, CommandStopEngine:
		return t, nil
	}
	return "", fmt.Errorf("unknown command type %q", s)
}

// CommandState defines the lifecycle phase of a command.
type CommandState string

const (
	// CommandPending means the command was dispatched and awaits an ack.
	CommandPending CommandState = "Pending"

	// CommandAcknowledged means a matching ack arrived within the deadline.
	// Terminal.
	CommandAcknowledged CommandState = "Acknowledged"

	// CommandTimedOut means no matching ack arrived within the deadline.
	// Terminal; the hub never redispatches on its own.
	CommandTimedOut CommandState = "TimedOut"
)

// IsTerminal reports whether no further transition is possible.
func (s CommandState) IsTerminal() bool {
	return s == CommandAcknowledged || s == CommandTimedOut
}

// Command is a requested remote action on a vehicle with tracked lifecycle.
// Commands are exclusively owned by the dispatcher; everyone else sees
// read-only copies.
type Command struct {
	// ID is the unique command identifier, generated at dispatch time.
	ID string

	// VehicleID is the target vehicle.
	VehicleID string

	// Type is the requested action.
	Type CommandType

	// State is the current lifecycle phase.
	State CommandState

	// IssuedAt is when the command was dispatched.
	IssuedAt time.Time

	// Deadline is when a still-Pending command times out.
	Deadline time.Time

	// CompletedAt is when the command reached a terminal state.
	CompletedAt time.Time
}

// Clone returns a copy safe to hand outside the dispatcher.
func (c *Command) Clone() *Command {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}
