// Package dispatch issues commands to vehicles and tracks acknowledgement
// with a per-command deadline. Dispatch is non-blocking: callers always get a
// command ID synchronously and observe the eventual outcome via Status or the
// vehicle status channel. TimedOut is terminal and reported, never retried —
// redispatching a physical-world command is the caller's call.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carlink-io/carlink/internal/hub/core"
	"github.com/carlink-io/carlink/internal/hub/core/model"
	"github.com/carlink-io/carlink/internal/hub/router"
	"github.com/carlink-io/carlink/internal/hub/store"
	"github.com/carlink-io/carlink/internal/pkg/metrics"
	"github.com/carlink-io/carlink/pkg/log"
)

// Auditor receives command state transitions for the optional audit mirror.
type Auditor interface {
	RecordCommand(ctx context.Context, cmd *model.Command)
}

// Options configures dispatcher behavior.
type Options struct {
	// AckTimeout is how long a command stays Pending before it times out.
	AckTimeout time.Duration

	// RequireKnownVehicle rejects dispatch to vehicles that have never
	// reported telemetry. Default false: the vehicle may come online later.
	RequireKnownVehicle bool
}

// Dispatcher owns the full Command lifecycle. All other components see
// commands read-only through Status.
type Dispatcher struct {
	store  *store.Store
	router *router.Router
	opts   Options
	audit  Auditor

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a Dispatcher. audit may be nil.
func New(st *store.Store, rt *router.Router, opts Options, audit Auditor) *Dispatcher {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 30 * time.Second
	}
	return &Dispatcher{
		store:  st,
		router: rt,
		opts:   opts,
		audit:  audit,
		timers: make(map[string]*time.Timer),
	}
}

// Dispatch assigns a unique command ID, records the Pending command,
// publishes it on the vehicle's commands channel and arms the deadline
// timer. It returns immediately; it never waits for the ack.
func (d *Dispatcher) Dispatch(ctx context.Context, vehicleID string, cmdType model.CommandType) (*model.Command, error) {
	if d.opts.RequireKnownVehicle && !d.store.HasVehicle(vehicleID) {
		return nil, core.ErrUnknownVehicle
	}

	now := time.Now()
	cmd := &model.Command{
		ID:        uuid.NewString(),
		VehicleID: vehicleID,
		Type:      cmdType,
		State:     model.CommandPending,
		IssuedAt:  now,
		Deadline:  now.Add(d.opts.AckTimeout),
	}
	d.store.PutCommand(cmd)

	payload, err := json.Marshal(model.CommandMessage{
		Type:         model.TypeCommand,
		LicensePlate: vehicleID,
		Command:      string(cmd.Type),
		MessageID:    cmd.ID,
		Timestamp:    now,
	})
	if err != nil {
		return nil, err
	}
	d.router.Publish(ctx, vehicleID, model.ChannelCommands, payload)

	d.mu.Lock()
	d.timers[cmd.ID] = time.AfterFunc(d.opts.AckTimeout, func() {
		d.expire(cmd.ID)
	})
	d.mu.Unlock()

	if d.audit != nil {
		d.audit.RecordCommand(ctx, cmd.Clone())
	}

	log.Info("Command dispatched", "commandID", cmd.ID, "vehicleID", vehicleID, "type", string(cmdType))
	return cmd.Clone(), nil
}

// OnAck transitions the named command to Acknowledged if it is Pending and
// the vehicle matches. Anything else — unknown ID, wrong vehicle, late or
// duplicate ack — reports core.ErrUnmatchedAck and alters no state.
func (d *Dispatcher) OnAck(ctx context.Context, commandID, vehicleID string) error {
	cmd, err := d.store.GetCommand(commandID)
	if err != nil {
		return core.ErrUnmatchedAck
	}

	machine := newCommandFSM(cmd.State)
	if err := machine.Event(ctx, EventAck, cmd, vehicleID); err != nil {
		// Terminal state or vehicle mismatch; either way the ack is dropped.
		return core.ErrUnmatchedAck
	}

	now := time.Now()
	done, err := d.store.CompleteCommand(commandID, model.CommandAcknowledged, now)
	if err != nil {
		// The deadline timer won the race.
		return core.ErrUnmatchedAck
	}

	d.stopTimer(commandID)

	metrics.CommandOutcomes.WithLabelValues("acknowledged", string(done.Type)).Inc()
	metrics.AckLatency.Observe(now.Sub(done.IssuedAt).Seconds())

	d.publishStatus(ctx, done)
	if d.audit != nil {
		d.audit.RecordCommand(ctx, done)
	}

	log.Info("Command acknowledged", "commandID", commandID, "vehicleID", vehicleID)
	return nil
}

// Status returns the command's current state. It never blocks.
func (d *Dispatcher) Status(commandID string) (*model.Command, error) {
	return d.store.GetCommand(commandID)
}

// Stop cancels all outstanding deadline timers. Pending commands stay
// Pending; a restart would re-arm them in a durable deployment.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}

// expire runs on the deadline timer goroutine.
func (d *Dispatcher) expire(commandID string) {
	d.stopTimer(commandID)

	cmd, err := d.store.GetCommand(commandID)
	if err != nil {
		return
	}

	machine := newCommandFSM(cmd.State)
	if err := machine.Event(context.Background(), EventTimeout); err != nil {
		// Already acknowledged.
		return
	}

	done, err := d.store.CompleteCommand(commandID, model.CommandTimedOut, time.Now())
	if err != nil {
		if !errors.Is(err, core.ErrTerminal) {
			log.Error(err, "Failed to expire command", "commandID", commandID)
		}
		return
	}

	metrics.CommandOutcomes.WithLabelValues("timed_out", string(done.Type)).Inc()

	ctx := context.Background()
	d.publishStatus(ctx, done)
	if d.audit != nil {
		d.audit.RecordCommand(ctx, done)
	}

	log.Warn("Command timed out", "commandID", commandID, "vehicleID", done.VehicleID, "type", string(done.Type))
}

func (d *Dispatcher) stopTimer(commandID string) {
	d.mu.Lock()
	if t, ok := d.timers[commandID]; ok {
		t.Stop()
		delete(d.timers, commandID)
	}
	d.mu.Unlock()
}

func (d *Dispatcher) publishStatus(ctx context.Context, cmd *model.Command) {
	payload, err := json.Marshal(model.StatusEvent{
		Type:         model.TypeStatus,
		LicensePlate: cmd.VehicleID,
		MessageID:    cmd.ID,
		Command:      string(cmd.Type),
		Status:       string(cmd.State),
		Timestamp:    cmd.CompletedAt,
	})
	if err != nil {
		log.Error(err, "Failed to marshal status event", "commandID", cmd.ID)
		return
	}
	d.router.Publish(ctx, cmd.VehicleID, model.ChannelStatus, payload)
}
