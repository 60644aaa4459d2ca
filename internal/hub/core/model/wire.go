package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire message type tags, as documented in the platform message contract.
const (
	TypeSensorData = "sensor_data"
	TypeCommand    = "command"
	TypeAck        = "ack"
	TypeStatus     = "status"
	TypeError      = "error"
)

// Envelope is the minimal frame every wire message shares; transports peek at
// Type before full decoding.
type Envelope struct {
	Type string `json:"type"`
}

// GPS is the position block inside a sensor_data message.
type GPS struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SensorData is the inbound telemetry frame:
//
//	{"type":"sensor_data","licensePlate":"ABC-123","indoorTemp":23.5,
//	 "outdoorTemp":14.2,"gps":{"lat":60.16,"lng":24.93},"timestamp":...}
//
// plus an open-ended set of extra numeric sensor fields (e.g. tire
// pressures), captured in Extra without schema changes.
type SensorData struct {
	Type         string  `json:"type"`
	LicensePlate string  `json:"licensePlate"`
	IndoorTemp   float64 `json:"indoorTemp"`
	OutdoorTemp  float64 `json:"outdoorTemp"`
	GPS          GPS     `json:"gps"`
	Timestamp    WireTime `json:"timestamp"`

	Extra map[string]float64 `json:"-"`
}

// sensorKnownFields are the reserved sensor_data keys; everything else
// numeric lands in Extra.
var sensorKnownFields = map[string]struct{}{
	"type": {}, "licensePlate": {}, "indoorTemp": {},
	"outdoorTemp": {}, "gps": {}, "timestamp": {},
}

// UnmarshalJSON decodes the fixed fields and collects unknown numeric fields
// into Extra. Unknown non-numeric fields are ignored.
func (m *SensorData) UnmarshalJSON(data []byte) error {
	type alias SensorData
	var fixed alias
	if err := json.Unmarshal(data, &fixed); err != nil {
		return err
	}
	*m = SensorData(fixed)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if _, known := sensorKnownFields[k]; known {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]float64)
		}
		m.Extra[k] = f
	}
	return nil
}

// CommandMessage is the outbound command frame:
//
//	{"type":"command","licensePlate":"ABC-123","command":"lock_doors",
//	 "messageId":"...","timestamp":...}
type CommandMessage struct {
	Type         string    `json:"type"`
	LicensePlate string    `json:"licensePlate"`
	Command      string    `json:"command"`
	MessageID    string    `json:"messageId"`
	Timestamp    time.Time `json:"timestamp"`
}

// AckMessage is the vehicle-originated acknowledgement frame:
//
//	{"type":"ack","messageId":"...","status":"ok"}
//
// The vehicle identity comes from the transport (connection or topic), not
// from the frame itself.
type AckMessage struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// StatusEvent is published on the vehicle status channel whenever a command
// changes state.
type StatusEvent struct {
	Type         string    `json:"type"`
	LicensePlate string    `json:"licensePlate"`
	MessageID    string    `json:"messageId"`
	Command      string    `json:"command"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}

// ErrorMessage is returned to a sender whose frame was rejected.
type ErrorMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// WireTime accepts the timestamp shapes seen from deployed sensors: RFC3339
// strings, Unix seconds, or Unix milliseconds.
type WireTime struct {
	time.Time
}

func (t *WireTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid timestamp %s", data)
	}
	// Heuristic: epoch values beyond ~5138 AD in seconds must be milliseconds.
	if n > 1e11 {
		t.Time = time.UnixMilli(int64(n))
	} else {
		sec := int64(n)
		nsec := int64((n - float64(sec)) * float64(time.Second))
		t.Time = time.Unix(sec, nsec)
	}
	return nil
}

func (t WireTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
