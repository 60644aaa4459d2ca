package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/carlink-io/carlink/internal/hub/core"
	"github.com/carlink-io/carlink/internal/hub/core/model"
	"github.com/carlink-io/carlink/internal/hub/dispatch"
	"github.com/carlink-io/carlink/internal/hub/store"
	"github.com/carlink-io/carlink/pkg/log"
)

// gateway holds the handlers' dependencies. Handlers are read paths plus the
// single dispatch write path; none of them ever block on a vehicle.
type gateway struct {
	store      *store.Store
	dispatcher *dispatch.Dispatcher
}

// carView is the API shape of a vehicle snapshot.
type carView struct {
	LicensePlate string             `json:"licensePlate"`
	IndoorTemp   float64            `json:"indoorTemp"`
	OutdoorTemp  float64            `json:"outdoorTemp"`
	GPS          model.GPS          `json:"gps"`
	Extras       map[string]float64 `json:"extras,omitempty"`
	ObservedAt   time.Time          `json:"observedAt"`
	ReceivedAt   time.Time          `json:"receivedAt"`
}

// commandView is the API shape of a command record.
type commandView struct {
	MessageID    string     `json:"messageId"`
	LicensePlate string     `json:"licensePlate"`
	Command      string     `json:"command"`
	State        string     `json:"state"`
	IssuedAt     time.Time  `json:"issuedAt"`
	Deadline     time.Time  `json:"deadline"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

type dispatchRequest struct {
	Command string `json:"command"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newCarView(snap *model.Snapshot) carView {
	return carView{
		LicensePlate: snap.VehicleID,
		IndoorTemp:   snap.IndoorTemp,
		OutdoorTemp:  snap.OutdoorTemp,
		GPS:          model.GPS{Lat: snap.GPSLat, Lng: snap.GPSLng},
		Extras:       snap.Extra,
		ObservedAt:   snap.ObservedAt,
		ReceivedAt:   snap.ReceivedAt,
	}
}

func newCommandView(cmd *model.Command) commandView {
	v := commandView{
		MessageID:    cmd.ID,
		LicensePlate: cmd.VehicleID,
		Command:      string(cmd.Type),
		State:        string(cmd.State),
		IssuedAt:     cmd.IssuedAt,
		Deadline:     cmd.Deadline,
	}
	if !cmd.CompletedAt.IsZero() {
		completed := cmd.CompletedAt
		v.CompletedAt = &completed
	}
	return v
}

func (g *gateway) listCars(w http.ResponseWriter, r *http.Request) {
	snaps := g.store.ListSnapshots()
	out := make([]carView, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, newCarView(snap))
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *gateway) getCar(w http.ResponseWriter, r *http.Request) {
	plate := mux.Vars(r)["plate"]

	snap, err := g.store.GetSnapshot(plate)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vehicle not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newCarView(snap))
}

func (g *gateway) dispatchCommand(w http.ResponseWriter, r *http.Request) {
	plate := mux.Vars(r)["plate"]

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cmdType, err := model.ParseCommandType(req.Command)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cmd, err := g.dispatcher.Dispatch(r.Context(), plate, cmdType)
	if err != nil {
		if errors.Is(err, core.ErrUnknownVehicle) {
			writeError(w, http.StatusNotFound, "vehicle has never reported telemetry")
			return
		}
		log.Error(err, "Dispatch failed", "vehicleID", plate, "command", req.Command)
		writeError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	// Accepted, not completed: the ack arrives asynchronously. Callers poll
	// /api/commands/{id} or watch the status channel.
	writeJSON(w, http.StatusAccepted, newCommandView(cmd))
}

func (g *gateway) getCommand(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	cmd, err := g.dispatcher.Status(id)
	if err != nil {
		if errors.Is(err, core.ErrCommandNotFound) {
			writeError(w, http.StatusNotFound, "command not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newCommandView(cmd))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
