package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DispatchOptions)(nil)

// DispatchOptions contains configuration for the command dispatcher.
type DispatchOptions struct {
	// AckTimeout is how long a command stays Pending before it times out.
	AckTimeout time.Duration `json:"ack-timeout" mapstructure:"ack-timeout"`

	// RequireKnownVehicle rejects dispatch to vehicles that have never
	// reported telemetry. Off by default: a vehicle may come online later.
	RequireKnownVehicle bool `json:"require-known-vehicle" mapstructure:"require-known-vehicle"`

	// Retention is how long terminal commands stay queryable.
	Retention time.Duration `json:"retention" mapstructure:"retention"`

	// SubscriberBuffer is the per-subscriber delivery buffer size.
	SubscriberBuffer int `json:"subscriber-buffer" mapstructure:"subscriber-buffer"`
}

// NewDispatchOptions creates a new DispatchOptions with default values.
func NewDispatchOptions() *DispatchOptions {
	return &DispatchOptions{
		AckTimeout:       30 * time.Second,
		Retention:        time.Hour,
		SubscriberBuffer: 64,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *DispatchOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.AckTimeout <= 0 {
		errors = append(errors, fmt.Errorf("dispatch.ack-timeout must be positive, got %s", o.AckTimeout))
	}
	if o.SubscriberBuffer <= 0 {
		errors = append(errors, fmt.Errorf("dispatch.subscriber-buffer must be positive, got %d", o.SubscriberBuffer))
	}

	return errors
}

// AddFlags adds flags for DispatchOptions to the specified FlagSet.
func (o *DispatchOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.AckTimeout, "dispatch.ack-timeout", o.AckTimeout, "How long a command stays Pending before timing out.")
	fs.BoolVar(&o.RequireKnownVehicle, "dispatch.require-known-vehicle", o.RequireKnownVehicle, "Reject dispatch to vehicles that never reported telemetry.")
	fs.DurationVar(&o.Retention, "dispatch.retention", o.Retention, "How long terminal commands stay queryable.")
	fs.IntVar(&o.SubscriberBuffer, "dispatch.subscriber-buffer", o.SubscriberBuffer, "Per-subscriber delivery buffer size.")
}
