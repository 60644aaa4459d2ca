package model

// Channel identifies a per-vehicle message category. A subscription is an
// ephemeral registration of one subscriber on one (vehicle, channel) pair;
// it is created on subscribe and destroyed on unsubscribe or disconnect, and
// the router owns its lifecycle.
type Channel string

const (
	// ChannelTelemetry carries accepted snapshots to dashboards.
	ChannelTelemetry Channel = "telemetry"

	// ChannelCommands carries dispatched commands to the vehicle.
	ChannelCommands Channel = "commands"

	// ChannelStatus carries command status changes (acked, timed out).
	ChannelStatus Channel = "status"
)
