package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carlink-io/carlink/internal/hub/core"
	"github.com/carlink-io/carlink/internal/hub/core/model"
	"github.com/carlink-io/carlink/internal/hub/router"
	"github.com/carlink-io/carlink/pkg/log"
)

// vehicleConn is one vehicle's live link. The read loop owns all inbound
// frames; the write loop owns the socket's write side, fed by the command
// subscription, so the two directions never contend.
type vehicleConn struct {
	srv   *Server
	conn  *websocket.Conn
	plate string

	// outbound serializes error frames from the read loop with command
	// frames from the router onto the single write loop.
	outbound chan []byte
}

func newVehicleConn(s *Server, conn *websocket.Conn, plate string) *vehicleConn {
	return &vehicleConn{
		srv:      s,
		conn:     conn,
		plate:    plate,
		outbound: make(chan []byte, 16),
	}
}

func (c *vehicleConn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.conn.Close()

	// The remote address disambiguates a reconnecting vehicle racing its own
	// stale connection.
	subID := "ws:" + c.conn.RemoteAddr().String()
	sub := c.srv.router.Subscribe(subID, c.plate, model.ChannelCommands)
	defer c.srv.router.Unsubscribe(subID, c.plate, model.ChannelCommands)

	go c.writeLoop(ctx, sub.C(), sub.Done())
	c.readLoop(ctx)
}

func (c *vehicleConn) readLoop(ctx context.Context) {
	opts := c.srv.options
	c.conn.SetReadLimit(opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("Vehicle connection lost", "vehicleID", c.plate, "err", err)
			} else {
				log.Info("Vehicle disconnected", "vehicleID", c.plate)
			}
			return
		}
		c.handleFrame(ctx, payload)
	}
}

func (c *vehicleConn) handleFrame(ctx context.Context, payload []byte) {
	var env model.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.sendError("malformed frame: not valid JSON")
		return
	}

	switch env.Type {
	case model.TypeSensorData:
		// The connection's plate is authoritative; a frame claiming another
		// vehicle's plate is rejected rather than trusted.
		var frame model.SensorData
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.sendError("malformed sensor_data frame")
			return
		}
		if frame.LicensePlate != c.plate {
			c.sendError("licensePlate does not match connection")
			return
		}
		if err := c.srv.ingest.Handle(ctx, payload); err != nil {
			if core.IsValidation(err) {
				c.sendError(err.Error())
				return
			}
			log.Error(err, "Telemetry ingest failed", "vehicleID", c.plate)
		}

	case model.TypeAck:
		var ack model.AckMessage
		if err := json.Unmarshal(payload, &ack); err != nil {
			c.sendError("malformed ack frame")
			return
		}
		if err := c.srv.acks.OnAck(ctx, ack.MessageID, c.plate); err != nil {
			// Late or duplicate acks are normal; nothing to tell the vehicle.
			log.Debug("Ack not matched", "commandID", ack.MessageID, "vehicleID", c.plate, "err", err)
		}

	default:
		c.sendError("unsupported message type: " + env.Type)
	}
}

func (c *vehicleConn) writeLoop(ctx context.Context, commands <-chan router.Message, done <-chan struct{}) {
	ticker := time.NewTicker(c.srv.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			_ = c.write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription replaced"))
			return
		case msg := <-commands:
			if err := c.write(websocket.TextMessage, msg.Payload); err != nil {
				log.Warn("Command delivery failed", "vehicleID", c.plate, "err", err)
				return
			}
		case payload := <-c.outbound:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *vehicleConn) write(messageType int, payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.options.WriteTimeout))
	return c.conn.WriteMessage(messageType, payload)
}

// sendError queues an error frame for the sender. Queued, not written:
// only the write loop touches the socket's write side.
func (c *vehicleConn) sendError(reason string) {
	payload, err := json.Marshal(model.ErrorMessage{Type: model.TypeError, Reason: reason})
	if err != nil {
		return
	}
	select {
	case c.outbound <- payload:
	default:
		log.Warn("Dropping error frame, outbound queue full", "vehicleID", c.plate)
	}
}
