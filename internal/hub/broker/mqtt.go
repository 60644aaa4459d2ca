// Package broker contains the external broker mirrors: MQTT for
// vehicle-facing traffic and Redis for dashboard-facing fan-out. Both
// implement router.Transport, so the router stays broker-agnostic.
package broker

import (
	"context"
	"encoding/json"

	"github.com/carlink-io/carlink/internal/hub/core/model"
	"github.com/carlink-io/carlink/internal/hub/router"
	"github.com/carlink-io/carlink/pkg/log"
	"github.com/carlink-io/carlink/pkg/mqtt"
	"github.com/carlink-io/carlink/pkg/topic"
)

// AckSink consumes acknowledgements arriving from a broker.
type AckSink interface {
	OnAck(ctx context.Context, commandID, vehicleID string) error
}

// MQTTTransport mirrors router traffic onto an MQTT broker and feeds
// broker-side acknowledgements back into the dispatcher. Channel names map
// onto slash-separated topic levels so the hub can subscribe with a single
// per-plate wildcard.
type MQTTTransport struct {
	client mqtt.Client
	topics *topic.Builder
	qos    int
}

// NewMQTT wraps an already-configured MQTT client.
func NewMQTT(client mqtt.Client, topics *topic.Builder, qos int) *MQTTTransport {
	return &MQTTTransport{client: client, topics: topics, qos: qos}
}

// Name implements router.Transport.
func (t *MQTTTransport) Name() string { return "mqtt" }

// Forward implements router.Transport.
func (t *MQTTTransport) Forward(ctx context.Context, msg router.Message) error {
	return t.client.Publish(ctx, t.topics.MQTTTopic(msg.Channel), t.qos, false, msg.Payload)
}

// SubscribeAcks subscribes to the acknowledgement topics of every vehicle and
// routes each ack into sink. The vehicle identity comes from the topic, never
// from the frame, so a vehicle cannot ack on another vehicle's behalf.
func (t *MQTTTransport) SubscribeAcks(ctx context.Context, sink AckSink) error {
	filter := t.topics.MQTTAckFilter()
	return t.client.Subscribe(ctx, filter, t.qos, func(ctx context.Context, tp string, payload []byte) {
		plate, suffix, ok := t.topics.ParseMQTTTopic(tp)
		if !ok || suffix != topic.SuffixAck {
			log.Warn("Ignoring message on unexpected topic", "topic", tp)
			return
		}

		var ack model.AckMessage
		if err := json.Unmarshal(payload, &ack); err != nil {
			log.Warn("Dropping malformed ack", "topic", tp, "err", err)
			return
		}
		if ack.Type != "" && ack.Type != model.TypeAck {
			log.Warn("Dropping non-ack frame on ack topic", "topic", tp, "type", ack.Type)
			return
		}

		if err := sink.OnAck(ctx, ack.MessageID, plate); err != nil {
			// Unmatched acks are expected noise (late, duplicate, or racing a
			// timeout); log at debug and move on.
			log.Debug("Ack not matched", "commandID", ack.MessageID, "vehicleID", plate, "err", err)
		}
	})
}
