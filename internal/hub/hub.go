// Package hub assembles the telemetry hub: the shared state store, the
// pub/sub router, ingest, the command dispatcher, the optional broker
// mirrors and the protocol servers.
package hub

import (
	"context"
	"fmt"

	"github.com/carlink-io/carlink/internal/hub/audit"
	"github.com/carlink-io/carlink/internal/hub/broker"
	"github.com/carlink-io/carlink/internal/hub/dispatch"
	"github.com/carlink-io/carlink/internal/hub/ingest"
	"github.com/carlink-io/carlink/internal/hub/router"
	"github.com/carlink-io/carlink/internal/hub/server"
	"github.com/carlink-io/carlink/internal/hub/store"
	"github.com/carlink-io/carlink/pkg/log"
	"github.com/carlink-io/carlink/pkg/mqtt"
	"github.com/carlink-io/carlink/pkg/topic"
)

// HubServer is the assembled hub. Build it with Config.NewHubServer.
type HubServer struct {
	cfg    *Config
	topics *topic.Builder

	store      *store.Store
	router     *router.Router
	dispatcher *dispatch.Dispatcher
	ingest     *ingest.Service
	recorder   *audit.Recorder
	mqttClient mqtt.Client
	manager    *server.Manager
}

// Run starts the broker mirrors and protocol servers and blocks until ctx is
// cancelled or a server fails.
func (s *HubServer) Run(ctx context.Context) error {
	defer s.dispatcher.Stop()

	if s.recorder != nil {
		if err := s.recorder.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("audit bucket check failed: %w", err)
		}
		go s.recorder.Run(ctx)
	}

	if s.mqttClient != nil {
		if err := s.startMQTT(ctx); err != nil {
			return err
		}
		defer s.mqttClient.Disconnect(context.Background())
	}

	if s.cfg.RedisOptions.Enabled {
		rd, err := broker.NewRedis(ctx, s.cfg.RedisOptions.Addr,
			s.cfg.RedisOptions.Password, s.cfg.RedisOptions.DB)
		if err != nil {
			return err
		}
		defer rd.Close()
		s.router.AttachTransport(ctx, rd)
		log.Info("Redis mirror attached", "addr", s.cfg.RedisOptions.Addr)
	}

	if err := s.manager.Start(ctx); err != nil {
		return err
	}

	log.Info("Hub stopped gracefully")
	return nil
}

// startMQTT connects the MQTT client, attaches the mirror transport and
// subscribes to the per-vehicle acknowledgement topics.
func (s *HubServer) startMQTT(ctx context.Context) error {
	if err := s.mqttClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mqtt client: %w", err)
	}
	if err := s.mqttClient.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("failed to establish initial mqtt connection: %w", err)
	}

	t := broker.NewMQTT(s.mqttClient, s.topics, 1)
	s.router.AttachTransport(ctx, t)
	if err := t.SubscribeAcks(ctx, s.dispatcher); err != nil {
		return fmt.Errorf("failed to subscribe to ack topics: %w", err)
	}

	log.Info("MQTT mirror attached", "broker", s.cfg.MqttOptions.Broker)
	return nil
}
