package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carlink-io/carlink/internal/hub/core/model"
	"github.com/carlink-io/carlink/pkg/topic"
)

func newTestRouter(bufSize int) *Router {
	return New(topic.NewBuilder(""), bufSize)
}

func collect(sub *Subscription, n int, timeout time.Duration) []Message {
	var out []Message
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case msg := <-sub.C():
			out = append(out, msg)
		case <-deadline:
			return out
		}
	}
	return out
}

func TestFanOutToAllSubscribers(t *testing.T) {
	r := newTestRouter(16)
	ctx := context.Background()

	a := r.Subscribe("dash-a", "ABC-123", model.ChannelTelemetry)
	b := r.Subscribe("dash-b", "ABC-123", model.ChannelTelemetry)

	r.Publish(ctx, "ABC-123", model.ChannelTelemetry, []byte("m1"))
	r.Publish(ctx, "ABC-123", model.ChannelTelemetry, []byte("m2"))

	for _, sub := range []*Subscription{a, b} {
		msgs := collect(sub, 2, time.Second)
		require.Len(t, msgs, 2)
		require.Equal(t, "car:ABC-123:telemetry", msgs[0].Channel)
		require.Equal(t, []byte("m1"), msgs[0].Payload)
		require.Equal(t, []byte("m2"), msgs[1].Payload)
	}
}

func TestChannelsAreIsolated(t *testing.T) {
	r := newTestRouter(16)
	ctx := context.Background()

	tel := r.Subscribe("dash", "ABC-123", model.ChannelTelemetry)
	other := r.Subscribe("dash", "XYZ-789", model.ChannelTelemetry)
	status := r.Subscribe("dash", "ABC-123", model.ChannelStatus)

	r.Publish(ctx, "ABC-123", model.ChannelTelemetry, []byte("m1"))

	require.Len(t, collect(tel, 1, time.Second), 1)
	require.Empty(t, collect(other, 1, 50*time.Millisecond))
	require.Empty(t, collect(status, 1, 50*time.Millisecond))
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	r := newTestRouter(4)
	ctx := context.Background()

	// Never drained: its buffer fills and overflows.
	slow := r.Subscribe("slow", "ABC-123", model.ChannelTelemetry)
	fast := r.Subscribe("fast", "ABC-123", model.ChannelTelemetry)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			r.Publish(ctx, "ABC-123", model.ChannelTelemetry, []byte(fmt.Sprintf("m%d", i)))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}

	// The fast subscriber drains concurrently-capped at buffer size here
	// since it read nothing until now; it must still see the newest data.
	msgs := collect(fast, 4, time.Second)
	require.Len(t, msgs, 4)
	require.Equal(t, []byte("m99"), msgs[3].Payload, "drop-oldest keeps the newest messages")

	// Slow subscriber holds at most its buffer capacity.
	require.LessOrEqual(t, len(collect(slow, 100, 100*time.Millisecond)), 4)
}

func TestAtMostOncePerSubscriber(t *testing.T) {
	r := newTestRouter(128)
	ctx := context.Background()

	sub := r.Subscribe("dash", "ABC-123", model.ChannelTelemetry)
	const n = 50
	for i := 0; i < n; i++ {
		r.Publish(ctx, "ABC-123", model.ChannelTelemetry, []byte{byte(i)})
	}

	msgs := collect(sub, n+1, 200*time.Millisecond)
	require.Len(t, msgs, n, "no duplication, nothing dropped within buffer capacity")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := newTestRouter(16)
	ctx := context.Background()

	sub := r.Subscribe("dash", "ABC-123", model.ChannelTelemetry)
	r.Unsubscribe("dash", "ABC-123", model.ChannelTelemetry)

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed on unsubscribe")
	}

	r.Publish(ctx, "ABC-123", model.ChannelTelemetry, []byte("late"))
	require.Empty(t, collect(sub, 1, 50*time.Millisecond))
}

func TestSubscribeBeforeFirstTelemetry(t *testing.T) {
	r := newTestRouter(16)
	ctx := context.Background()

	sub := r.Subscribe("dash", "NEW-CAR", model.ChannelTelemetry)
	require.Empty(t, collect(sub, 1, 50*time.Millisecond))

	r.Publish(ctx, "NEW-CAR", model.ChannelTelemetry, []byte("first"))
	msgs := collect(sub, 1, time.Second)
	require.Len(t, msgs, 1)
	require.Equal(t, []byte("first"), msgs[0].Payload)
}

type captureTransport struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *captureTransport) Forward(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureTransport) Name() string { return "capture" }

func (c *captureTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestTransportMirroring(t *testing.T) {
	r := newTestRouter(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	capture := &captureTransport{}
	r.AttachTransport(ctx, capture)

	r.Publish(ctx, "ABC-123", model.ChannelCommands, []byte("cmd"))

	require.Eventually(t, func() bool { return capture.count() == 1 },
		time.Second, 10*time.Millisecond)

	capture.mu.Lock()
	defer capture.mu.Unlock()
	require.Equal(t, "car:ABC-123:commands", capture.msgs[0].Channel)
}
