// Package ingest is the hub's single entry point for vehicle telemetry.
// Frames are decoded, validated and normalized here; only frames that pass
// validation and survive the store's staleness check reach subscribers, so a
// consumer never observes data the store rejected.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/carlink-io/carlink/internal/hub/core"
	"github.com/carlink-io/carlink/internal/hub/core/model"
	"github.com/carlink-io/carlink/internal/hub/router"
	"github.com/carlink-io/carlink/internal/hub/store"
	"github.com/carlink-io/carlink/internal/pkg/metrics"
	"github.com/carlink-io/carlink/pkg/log"
)

// Auditor receives accepted snapshots for the optional audit mirror.
type Auditor interface {
	RecordSnapshot(ctx context.Context, snap *model.Snapshot)
}

// Service normalizes and admits telemetry frames.
type Service struct {
	store  *store.Store
	router *router.Router
	audit  Auditor
}

// New creates the ingest service. audit may be nil.
func New(st *store.Store, rt *router.Router, audit Auditor) *Service {
	return &Service{store: st, router: rt, audit: audit}
}

// Handle processes one raw sensor_data frame. On success the snapshot is
// stored and the frame fans out on the vehicle's telemetry channel. A
// validation failure returns a *core.ValidationError and publishes nothing.
// A stale frame (ObservedAt not newer than the stored snapshot) is dropped
// silently: out-of-order delivery is expected from lossy transports and is
// not the sender's fault.
func (s *Service) Handle(ctx context.Context, raw []byte) error {
	var frame model.SensorData
	if err := json.Unmarshal(raw, &frame); err != nil {
		metrics.IngestRejected.WithLabelValues("frame").Inc()
		return &core.ValidationError{Field: "frame", Reason: err.Error()}
	}

	snap, err := s.normalize(&frame)
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			metrics.IngestRejected.WithLabelValues(ve.Field).Inc()
		}
		return err
	}

	if err := s.store.PutSnapshot(snap); err != nil {
		if errors.Is(err, core.ErrStaleUpdate) {
			metrics.IngestStale.Inc()
			log.Debug("Dropped stale telemetry", "vehicleID", snap.VehicleID, "observedAt", snap.ObservedAt)
			return nil
		}
		return err
	}

	metrics.IngestAccepted.Inc()
	s.router.Publish(ctx, snap.VehicleID, model.ChannelTelemetry, raw)

	if s.audit != nil {
		s.audit.RecordSnapshot(ctx, snap.Clone())
	}
	return nil
}

// normalize converts a decoded frame into the canonical snapshot, rejecting
// anything malformed or physically impossible before it can touch the store.
func (s *Service) normalize(frame *model.SensorData) (*model.Snapshot, error) {
	if frame.Type != "" && frame.Type != model.TypeSensorData {
		return nil, &core.ValidationError{Field: "type", Reason: fmt.Sprintf("unexpected message type %q", frame.Type)}
	}
	if frame.LicensePlate == "" {
		return nil, &core.ValidationError{Field: "licensePlate", Reason: "must not be empty"}
	}
	if err := checkFinite("indoorTemp", frame.IndoorTemp); err != nil {
		return nil, err
	}
	if err := checkFinite("outdoorTemp", frame.OutdoorTemp); err != nil {
		return nil, err
	}
	if err := checkFinite("gps.lat", frame.GPS.Lat); err != nil {
		return nil, err
	}
	if err := checkFinite("gps.lng", frame.GPS.Lng); err != nil {
		return nil, err
	}
	if frame.GPS.Lat < -90 || frame.GPS.Lat > 90 {
		return nil, &core.ValidationError{Field: "gps.lat", Reason: "latitude out of range [-90, 90]"}
	}
	if frame.GPS.Lng < -180 || frame.GPS.Lng > 180 {
		return nil, &core.ValidationError{Field: "gps.lng", Reason: "longitude out of range [-180, 180]"}
	}
	for k, v := range frame.Extra {
		if err := checkFinite(k, v); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	observed := frame.Timestamp.Time
	if observed.IsZero() {
		// Sensors without a clock: admission order is observation order.
		observed = now
	}

	return &model.Snapshot{
		VehicleID:   frame.LicensePlate,
		IndoorTemp:  frame.IndoorTemp,
		OutdoorTemp: frame.OutdoorTemp,
		GPSLat:      frame.GPS.Lat,
		GPSLng:      frame.GPS.Lng,
		Extra:       frame.Extra,
		ObservedAt:  observed,
		ReceivedAt:  now,
	}, nil
}

func checkFinite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &core.ValidationError{Field: field, Reason: "must be a finite number"}
	}
	return nil
}
