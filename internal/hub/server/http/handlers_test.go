package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carlink-io/carlink/internal/hub/core/model"
	"github.com/carlink-io/carlink/internal/hub/dispatch"
	"github.com/carlink-io/carlink/internal/hub/router"
	"github.com/carlink-io/carlink/internal/hub/store"
	"github.com/carlink-io/carlink/pkg/topic"
)

func newTestGateway(t *testing.T) (http.Handler, *store.Store, *dispatch.Dispatcher) {
	t.Helper()
	st := store.New(time.Hour)
	rt := router.New(topic.NewBuilder(""), 16)
	d := dispatch.New(st, rt, dispatch.Options{AckTimeout: time.Minute}, nil)
	t.Cleanup(d.Stop)
	return newRouter(st, d), st, d
}

func seedSnapshot(t *testing.T, st *store.Store, plate string) {
	t.Helper()
	require.NoError(t, st.PutSnapshot(&model.Snapshot{
		VehicleID:   plate,
		IndoorTemp:  22.5,
		OutdoorTemp: 11.0,
		GPSLat:      60.16,
		GPSLng:      24.93,
		ObservedAt:  time.Now(),
		ReceivedAt:  time.Now(),
	}))
}

func TestGetCar(t *testing.T) {
	h, st, _ := newTestGateway(t)
	seedSnapshot(t, st, "ABC-123")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cars/ABC-123", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var car carView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &car))
	require.Equal(t, "ABC-123", car.LicensePlate)
	require.Equal(t, 22.5, car.IndoorTemp)
	require.Equal(t, 60.16, car.GPS.Lat)
}

func TestGetCarNotFound(t *testing.T) {
	h, _, _ := newTestGateway(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cars/NOPE", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCars(t *testing.T) {
	h, st, _ := newTestGateway(t)
	seedSnapshot(t, st, "ABC-123")
	seedSnapshot(t, st, "XYZ-789")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cars", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var cars []carView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cars))
	require.Len(t, cars, 2)
}

func TestListCarsEmpty(t *testing.T) {
	h, _, _ := newTestGateway(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cars", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestDispatchCommand(t *testing.T) {
	h, _, d := newTestGateway(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cars/ABC-123/commands",
		strings.NewReader(`{"command":"lock_doors"}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var cmd commandView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmd))
	require.NotEmpty(t, cmd.MessageID)
	require.Equal(t, "ABC-123", cmd.LicensePlate)
	require.Equal(t, "lock_doors", cmd.Command)
	require.Equal(t, string(model.CommandPending), cmd.State)
	require.Nil(t, cmd.CompletedAt)

	// The record is queryable under the returned ID.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/commands/"+cmd.MessageID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// And reflects the ack once it arrives.
	require.NoError(t, d.OnAck(context.Background(), cmd.MessageID, "ABC-123"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/commands/"+cmd.MessageID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmd))
	require.Equal(t, string(model.CommandAcknowledged), cmd.State)
	require.NotNil(t, cmd.CompletedAt)
}

func TestDispatchCommandRejectsUnknownType(t *testing.T) {
	h, _, _ := newTestGateway(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cars/ABC-123/commands",
		strings.NewReader(`{"command":"self_destruct"}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatchCommandRejectsBadBody(t *testing.T) {
	h, _, _ := newTestGateway(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cars/ABC-123/commands",
		strings.NewReader(`{`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCommandNotFound(t *testing.T) {
	h, _, _ := newTestGateway(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/commands/c999", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	h, _, _ := newTestGateway(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}
