package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carlink-io/carlink/internal/hub/core"
	"github.com/carlink-io/carlink/internal/hub/core/model"
	"github.com/carlink-io/carlink/internal/hub/router"
	"github.com/carlink-io/carlink/internal/hub/store"
	"github.com/carlink-io/carlink/pkg/topic"
)

func newTestService(t *testing.T) (*Service, *router.Router, *store.Store) {
	t.Helper()
	st := store.New(time.Hour)
	rt := router.New(topic.NewBuilder(""), 16)
	return New(st, rt, nil), rt, st
}

func frame(plate string, ts string, indoor float64) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"sensor_data","licensePlate":%q,"indoorTemp":%g,"outdoorTemp":14.2,"gps":{"lat":60.16,"lng":24.93},"timestamp":%q}`,
		plate, indoor, ts))
}

func TestHandleStoresAndPublishes(t *testing.T) {
	svc, rt, st := newTestService(t)
	ctx := context.Background()

	sub := rt.Subscribe("dash", "ABC-123", model.ChannelTelemetry)

	raw := frame("ABC-123", "2026-08-25T10:00:00Z", 23.5)
	require.NoError(t, svc.Handle(ctx, raw))

	snap, err := st.GetSnapshot("ABC-123")
	require.NoError(t, err)
	require.Equal(t, 23.5, snap.IndoorTemp)
	require.Equal(t, 14.2, snap.OutdoorTemp)
	require.Equal(t, 60.16, snap.GPSLat)
	require.Equal(t, 24.93, snap.GPSLng)
	require.False(t, snap.ReceivedAt.IsZero())

	select {
	case msg := <-sub.C():
		require.Equal(t, "car:ABC-123:telemetry", msg.Channel)
		require.Equal(t, raw, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("accepted frame not published")
	}
}

func TestHandleLastWriterWins(t *testing.T) {
	svc, rt, st := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Handle(ctx, frame("ABC-123", "2026-08-25T10:00:00Z", 20)))
	require.NoError(t, svc.Handle(ctx, frame("ABC-123", "2026-08-25T10:00:05Z", 25)))

	snap, err := st.GetSnapshot("ABC-123")
	require.NoError(t, err)
	require.Equal(t, 25.0, snap.IndoorTemp)

	sub := rt.Subscribe("dash", "ABC-123", model.ChannelTelemetry)

	// Older than the stored snapshot: dropped silently, no publish.
	require.NoError(t, svc.Handle(ctx, frame("ABC-123", "2026-08-25T09:59:59Z", 99)))

	snap, err = st.GetSnapshot("ABC-123")
	require.NoError(t, err)
	require.Equal(t, 25.0, snap.IndoorTemp, "stale frame must not overwrite newer state")

	select {
	case <-sub.C():
		t.Fatal("stale frame must not be published")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleRejectsInvalidFrames(t *testing.T) {
	svc, rt, st := newTestService(t)
	ctx := context.Background()

	sub := rt.Subscribe("dash", "BAD-1", model.ChannelTelemetry)

	cases := []struct {
		name  string
		raw   []byte
		field string
	}{
		{"not json", []byte(`{"type":`), "frame"},
		{"empty plate", frame("", "2026-08-25T10:00:00Z", 20), "licensePlate"},
		{"wrong type", []byte(`{"type":"command","licensePlate":"BAD-1"}`), "type"},
		{"lat out of range", []byte(`{"type":"sensor_data","licensePlate":"BAD-1","indoorTemp":20,"outdoorTemp":10,"gps":{"lat":91,"lng":0},"timestamp":"2026-08-25T10:00:00Z"}`), "gps.lat"},
		{"lng out of range", []byte(`{"type":"sensor_data","licensePlate":"BAD-1","indoorTemp":20,"outdoorTemp":10,"gps":{"lat":0,"lng":-181},"timestamp":"2026-08-25T10:00:00Z"}`), "gps.lng"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Handle(ctx, tc.raw)
			require.Error(t, err)
			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tc.field, ve.Field)
		})
	}

	_, err := st.GetSnapshot("BAD-1")
	require.ErrorIs(t, err, core.ErrNotFound, "rejected frames must not reach the store")

	select {
	case <-sub.C():
		t.Fatal("rejected frame must not be published")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleCapturesExtraSensorFields(t *testing.T) {
	svc, _, st := newTestService(t)
	ctx := context.Background()

	raw := []byte(`{"type":"sensor_data","licensePlate":"ABC-123","indoorTemp":21,"outdoorTemp":9,` +
		`"gps":{"lat":60.16,"lng":24.93},"timestamp":"2026-08-25T10:00:00Z",` +
		`"tirePressureFL":2.4,"batteryVoltage":12.6,"note":"ignored"}`)
	require.NoError(t, svc.Handle(ctx, raw))

	snap, err := st.GetSnapshot("ABC-123")
	require.NoError(t, err)
	require.Equal(t, 2.4, snap.Extra["tirePressureFL"])
	require.Equal(t, 12.6, snap.Extra["batteryVoltage"])
	require.NotContains(t, snap.Extra, "note")
}

func TestHandleEpochTimestamps(t *testing.T) {
	svc, _, st := newTestService(t)
	ctx := context.Background()

	raw := []byte(`{"type":"sensor_data","licensePlate":"EPO-1","indoorTemp":20,"outdoorTemp":10,` +
		`"gps":{"lat":0,"lng":0},"timestamp":1787997600000}`)
	require.NoError(t, svc.Handle(ctx, raw))

	snap, err := st.GetSnapshot("EPO-1")
	require.NoError(t, err)
	require.Equal(t, time.UnixMilli(1787997600000).UTC(), snap.ObservedAt.UTC())
}
