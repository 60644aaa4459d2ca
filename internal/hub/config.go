package hub

import (
	"fmt"

	"github.com/carlink-io/carlink/internal/hub/audit"
	"github.com/carlink-io/carlink/internal/hub/dispatch"
	"github.com/carlink-io/carlink/internal/hub/ingest"
	"github.com/carlink-io/carlink/internal/hub/router"
	"github.com/carlink-io/carlink/internal/hub/server"
	httpserver "github.com/carlink-io/carlink/internal/hub/server/http"
	wsserver "github.com/carlink-io/carlink/internal/hub/server/ws"
	"github.com/carlink-io/carlink/internal/hub/store"
	"github.com/carlink-io/carlink/pkg/mqtt"
	"github.com/carlink-io/carlink/pkg/options"
	"github.com/carlink-io/carlink/pkg/topic"
)

// Config aggregates every option group the hub needs.
type Config struct {
	HttpOptions      *options.HttpOptions
	WebSocketOptions *options.WebSocketOptions
	MqttOptions      *options.MqttOptions
	RedisOptions     *options.RedisOptions
	S3Options        *options.S3Options
	DispatchOptions  *options.DispatchOptions
}

// NewHubServer wires the core components and protocol servers. External
// connections (MQTT, Redis, bucket checks) are deferred to Run so that
// construction stays side-effect free.
func (cfg *Config) NewHubServer() (*HubServer, error) {
	topics := topic.NewBuilder(topic.DefaultRoot)
	st := store.New(cfg.DispatchOptions.Retention)
	rt := router.New(topics, cfg.DispatchOptions.SubscriberBuffer)

	var recorder *audit.Recorder
	if cfg.S3Options.Enabled {
		var err error
		recorder, err = audit.NewRecorder(cfg.S3Options)
		if err != nil {
			return nil, fmt.Errorf("failed to init audit recorder: %w", err)
		}
	}

	// A typed nil inside the interface would defeat the nil checks in the
	// hot paths, so the interfaces are only assigned when auditing is on.
	var cmdAudit dispatch.Auditor
	var snapAudit ingest.Auditor
	if recorder != nil {
		cmdAudit = recorder
		snapAudit = recorder
	}

	d := dispatch.New(st, rt, dispatch.Options{
		AckTimeout:          cfg.DispatchOptions.AckTimeout,
		RequireKnownVehicle: cfg.DispatchOptions.RequireKnownVehicle,
	}, cmdAudit)
	ing := ingest.New(st, rt, snapAudit)

	var mqttClient mqtt.Client
	if cfg.MqttOptions.Enabled {
		var err error
		mqttClient, err = mqtt.NewClient(cfg.MqttOptions.ToClientConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
	}

	mgr := server.NewManager(
		wsserver.NewServer(cfg.WebSocketOptions, ing, rt, d),
		httpserver.NewServer(cfg.HttpOptions, st, d),
	)

	return &HubServer{
		cfg:        cfg,
		topics:     topics,
		store:      st,
		router:     rt,
		dispatcher: d,
		ingest:     ing,
		recorder:   recorder,
		mqttClient: mqttClient,
		manager:    mgr,
	}, nil
}
