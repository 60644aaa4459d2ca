package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*WebSocketOptions)(nil)

// WebSocketOptions contains configuration for the vehicle WebSocket listener.
type WebSocketOptions struct {
	// Addr with server address.
	Addr string `json:"addr" mapstructure:"addr"`

	// ReadLimit is the maximum inbound frame size in bytes.
	ReadLimit int64 `json:"read-limit" mapstructure:"read-limit"`

	// WriteTimeout bounds a single outbound frame write.
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`

	// PingInterval is how often the server pings an idle vehicle connection.
	PingInterval time.Duration `json:"ping-interval" mapstructure:"ping-interval"`

	// PongTimeout is how long to wait for a pong before dropping the connection.
	PongTimeout time.Duration `json:"pong-timeout" mapstructure:"pong-timeout"`
}

// NewWebSocketOptions creates a WebSocketOptions object with default parameters.
func NewWebSocketOptions() *WebSocketOptions {
	return &WebSocketOptions{
		Addr:         "0.0.0.0:8081",
		ReadLimit:    64 * 1024,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *WebSocketOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags related to the vehicle WebSocket listener to the
// specified FlagSet.
func (o *WebSocketOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Addr, "ws.addr", o.Addr, "Specify the WebSocket server bind address and port.")
	fs.Int64Var(&o.ReadLimit, "ws.read-limit", o.ReadLimit, "Maximum size in bytes of an inbound frame.")
	fs.DurationVar(&o.WriteTimeout, "ws.write-timeout", o.WriteTimeout, "Timeout for a single outbound frame write.")
	fs.DurationVar(&o.PingInterval, "ws.ping-interval", o.PingInterval, "Interval between pings to idle vehicle connections.")
	fs.DurationVar(&o.PongTimeout, "ws.pong-timeout", o.PongTimeout, "How long to wait for a pong before dropping a connection.")
}
