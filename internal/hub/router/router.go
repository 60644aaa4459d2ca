// Package router decouples producers (ingest, dispatcher) from consumers
// (vehicle links, dashboards, broker mirrors) via per-vehicle, per-channel
// topics. Delivery is best-effort and at-most-once per subscriber: each
// subscription owns a bounded drop-oldest buffer, so a slow or stalled
// subscriber loses its own messages and never delays the publisher or any
// other subscriber.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/carlink-io/carlink/internal/hub/core/model"
	"github.com/carlink-io/carlink/internal/pkg/metrics"
	"github.com/carlink-io/carlink/pkg/log"
	"github.com/carlink-io/carlink/pkg/topic"
)

// Message is one published payload with its routing metadata.
type Message struct {
	// Channel is the full external channel name, e.g. "car:ABC-123:telemetry".
	Channel string

	VehicleID string
	Kind      model.Channel
	Payload   []byte
}

// Transport mirrors router publishes to an external broker.
// Implementations must tolerate being called concurrently.
type Transport interface {
	// Forward delivers one published message to the broker.
	Forward(ctx context.Context, msg Message) error

	// Name identifies the transport in logs and metrics.
	Name() string
}

type subKey struct {
	vehicleID string
	kind      model.Channel
}

// Subscription is one subscriber's handle on a (vehicle, channel) pair.
// Read messages from C; Done is closed when the subscription is cancelled.
type Subscription struct {
	SubscriberID string
	VehicleID    string
	Kind         model.Channel

	buf  chan Message
	done chan struct{}
	once sync.Once
}

// C returns the delivery channel. The channel is never closed; select on
// Done to detect cancellation.
func (s *Subscription) C() <-chan Message { return s.buf }

// Done is closed once the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) cancel() {
	s.once.Do(func() { close(s.done) })
}

// enqueue is non-blocking: when the buffer is full the oldest message is
// dropped to make room. Returns false if the message was dropped instead.
func (s *Subscription) enqueue(msg Message) bool {
	select {
	case s.buf <- msg:
		return true
	default:
	}

	select {
	case <-s.buf:
	default:
	}

	select {
	case s.buf <- msg:
		return true
	default:
		return false
	}
}

// Router routes published payloads to in-process subscribers and mirror
// transports.
type Router struct {
	topics  *topic.Builder
	bufSize int

	mu   sync.RWMutex
	subs map[subKey]map[string]*Subscription

	transports []*transportQueue
}

// New creates a Router. bufSize is the per-subscriber buffer capacity.
func New(topics *topic.Builder, bufSize int) *Router {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Router{
		topics:  topics,
		bufSize: bufSize,
		subs:    make(map[subKey]map[string]*Subscription),
	}
}

// Topics exposes the channel-name builder shared with the transports.
func (r *Router) Topics() *topic.Builder { return r.topics }

// AttachTransport registers a broker mirror. Each transport gets its own
// bounded queue and drain goroutine so broker slowness never reaches the
// publisher. Attach before the first Publish.
func (r *Router) AttachTransport(ctx context.Context, t Transport) {
	q := newTransportQueue(t, r.bufSize)
	r.transports = append(r.transports, q)
	go q.drain(ctx)
}

// Subscribe registers subscriberID on the vehicle's channel of the given
// kind. Subscribing to a vehicle with no prior telemetry is valid; it simply
// yields nothing until the first publish.
func (r *Router) Subscribe(subscriberID, vehicleID string, kind model.Channel) *Subscription {
	sub := &Subscription{
		SubscriberID: subscriberID,
		VehicleID:    vehicleID,
		Kind:         kind,
		buf:          make(chan Message, r.bufSize),
		done:         make(chan struct{}),
	}

	key := subKey{vehicleID: vehicleID, kind: kind}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.subs[key]
	if !ok {
		m = make(map[string]*Subscription)
		r.subs[key] = m
	}
	if prev, ok := m[subscriberID]; ok {
		prev.cancel()
	}
	m[subscriberID] = sub

	metrics.RouterSubscribers.Inc()
	return sub
}

// Unsubscribe removes the subscription; no further messages are enqueued
// once it returns. Messages already buffered may still be drained.
func (r *Router) Unsubscribe(subscriberID, vehicleID string, kind model.Channel) {
	key := subKey{vehicleID: vehicleID, kind: kind}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.subs[key]
	if !ok {
		return
	}
	sub, ok := m[subscriberID]
	if !ok {
		return
	}
	delete(m, subscriberID)
	if len(m) == 0 {
		delete(r.subs, key)
	}
	sub.cancel()
	metrics.RouterSubscribers.Dec()
}

// Publish delivers payload to every current subscriber of the vehicle's
// channel and to all attached transports. It never blocks on any consumer.
func (r *Router) Publish(ctx context.Context, vehicleID string, kind model.Channel, payload []byte) {
	msg := Message{
		Channel:   r.channelName(vehicleID, kind),
		VehicleID: vehicleID,
		Kind:      kind,
		Payload:   payload,
	}

	r.mu.RLock()
	subs := r.subs[subKey{vehicleID: vehicleID, kind: kind}]
	for _, sub := range subs {
		if sub.enqueue(msg) {
			metrics.RouterPublished.WithLabelValues(string(kind)).Inc()
		} else {
			metrics.RouterDropped.WithLabelValues(string(kind)).Inc()
		}
	}
	r.mu.RUnlock()

	for _, q := range r.transports {
		if !q.enqueue(msg) {
			metrics.RouterDropped.WithLabelValues(string(kind)).Inc()
		}
	}
}

func (r *Router) channelName(vehicleID string, kind model.Channel) string {
	switch kind {
	case model.ChannelTelemetry:
		return r.topics.Telemetry(vehicleID)
	case model.ChannelCommands:
		return r.topics.Commands(vehicleID)
	case model.ChannelStatus:
		return r.topics.Status(vehicleID)
	}
	return r.topics.Telemetry(vehicleID)
}

// transportQueue isolates a broker mirror behind its own bounded buffer,
// reusing the subscriber drop-oldest policy.
type transportQueue struct {
	t   Transport
	buf chan Message
}

func newTransportQueue(t Transport, size int) *transportQueue {
	return &transportQueue{t: t, buf: make(chan Message, size)}
}

func (q *transportQueue) enqueue(msg Message) bool {
	select {
	case q.buf <- msg:
		return true
	default:
	}
	select {
	case <-q.buf:
	default:
	}
	select {
	case q.buf <- msg:
		return true
	default:
		return false
	}
}

func (q *transportQueue) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-q.buf:
			fwdCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := q.t.Forward(fwdCtx, msg); err != nil {
				log.Warn("Transport forward failed", "transport", q.t.Name(), "channel", msg.Channel, "err", err)
			}
			cancel()
		}
	}
}
