// Package topic centralizes construction of the per-vehicle channel names
// used between the hub, vehicles and dashboards. The external contract is the
// colon-separated convention from the platform docs:
//
//	car:{plate}:telemetry   sensor snapshots      (hub -> subscribers)
//	car:{plate}:commands    command delivery      (hub -> vehicle)
//	car:{plate}:status      command status/acks   (hub -> subscribers)
//	car:{plate}:ack         acknowledgements      (vehicle -> hub)
//
// Changing these values breaks compatibility with deployed vehicles and
// dashboards.
package topic

import (
	"fmt"
	"strings"
)

const (
	// DefaultRoot is the namespace prefix shared by all channels.
	DefaultRoot = "car"

	SuffixTelemetry = "telemetry"
	SuffixCommands  = "commands"
	SuffixStatus    = "status"
	SuffixAck       = "ack"
)

// Builder constructs channel names and their broker-side topic forms.
type Builder struct {
	root string
}

// NewBuilder creates a Builder with the given root namespace. An empty root
// selects DefaultRoot.
func NewBuilder(root string) *Builder {
	if root == "" {
		root = DefaultRoot
	}
	return &Builder{root: root}
}

// Telemetry returns the telemetry channel name for a vehicle.
func (b *Builder) Telemetry(plate string) string {
	return b.build(plate, SuffixTelemetry)
}

// Commands returns the command-delivery channel name for a vehicle.
func (b *Builder) Commands(plate string) string {
	return b.build(plate, SuffixCommands)
}

// Status returns the command-status channel name for a vehicle.
func (b *Builder) Status(plate string) string {
	return b.build(plate, SuffixStatus)
}

// Ack returns the vehicle-to-hub acknowledgement channel name.
func (b *Builder) Ack(plate string) string {
	return b.build(plate, SuffixAck)
}

// build constructs the final name. Pattern: {root}:{plate}:{suffix}
func (b *Builder) build(plate, suffix string) string {
	return fmt.Sprintf("%s:%s:%s", b.root, plate, suffix)
}

// MQTTTopic maps a channel name to its MQTT topic form. MQTT separates levels
// with '/', and the broker side needs per-plate wildcards, so the colon
// convention is mapped 1:1 onto slash levels.
func (b *Builder) MQTTTopic(channel string) string {
	return strings.ReplaceAll(channel, ":", "/")
}

// MQTTAckFilter returns the wildcard filter the hub subscribes to for
// acknowledgements from every vehicle: {root}/+/ack
func (b *Builder) MQTTAckFilter() string {
	return fmt.Sprintf("%s/+/%s", b.root, SuffixAck)
}

// ParseMQTTTopic splits an MQTT topic of the form {root}/{plate}/{suffix}
// back into its parts. ok is false if the topic does not match the scheme.
func (b *Builder) ParseMQTTTopic(topic string) (plate, suffix string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != b.root {
		return "", "", false
	}
	return parts[1], parts[2], true
}
