// Package core holds the domain contracts shared by the hub components:
// the error taxonomy and the entity model (under core/model).
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the non-fatal signals the core reports. None of these
// indicate a crash condition; callers handle them locally (see the taxonomy
// in the gateway handlers and the ingest path).
var (
	// ErrNotFound is returned when querying a vehicle that has never reported.
	ErrNotFound = errors.New("vehicle not found")

	// ErrStaleUpdate is returned when a snapshot's observedAt is not newer
	// than the stored one. The store is left unchanged.
	ErrStaleUpdate = errors.New("stale telemetry update")

	// ErrCommandNotFound is returned when querying an unknown command ID.
	ErrCommandNotFound = errors.New("command not found")

	// ErrUnmatchedAck is returned for an acknowledgement that does not
	// correspond to any Pending command. Late and duplicate acks are normal,
	// so this is a signal, not a failure.
	ErrUnmatchedAck = errors.New("unmatched acknowledgement")

	// ErrUnknownVehicle is returned by dispatch when the hub is configured to
	// require a prior telemetry sighting and the vehicle has none.
	ErrUnknownVehicle = errors.New("unknown vehicle")

	// ErrTerminal is returned when attempting to transition a command that
	// already reached Acknowledged or TimedOut.
	ErrTerminal = errors.New("command already in terminal state")
)

// ValidationError describes a malformed or out-of-range telemetry field.
// It is reported to the sender and never propagated into the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid telemetry field %q: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
