package model

import "time"

// Snapshot is the latest known sensor readings for one vehicle.
// A vehicle is identified by its license plate across the whole system.
type Snapshot struct {
	// VehicleID is the unique vehicle key (license plate).
	VehicleID string

	// IndoorTemp and OutdoorTemp in degrees Celsius.
	IndoorTemp  float64
	OutdoorTemp float64

	// GPS position.
	GPSLat float64
	GPSLng float64

	// Extra carries open-ended numeric sensor fields (e.g. tire pressures)
	// that are passed through without schema changes.
	Extra map[string]float64

	// ObservedAt is the sensor-side timestamp. The store only accepts
	// snapshots with strictly increasing ObservedAt per vehicle.
	ObservedAt time.Time

	// ReceivedAt is when the hub accepted the snapshot.
	ReceivedAt time.Time
}

// Clone returns a deep copy, so stored state is never aliased by callers.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	if s.Extra != nil {
		out.Extra = make(map[string]float64, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}
