package app

import (
	"fmt"

	"github.com/carlink-io/carlink/cmd/carlink-hub/app/options"
	"github.com/carlink-io/carlink/pkg/app"
	"github.com/carlink-io/carlink/pkg/log"
)

const (
	commandName = "carlink-hub"
	commandDesc = `The carlink hub is the realtime message core of the connected-car
platform. It ingests vehicle telemetry over WebSocket, keeps the latest
snapshot per vehicle, fans telemetry and command status out to subscribers,
and dispatches remote commands with acknowledgement tracking. Optional MQTT
and Redis mirrors make the same channels available to off-box consumers.`
)

// NewApp builds the carlink-hub application.
func NewApp() *app.App {
	opts := options.NewHubOptions()
	return app.NewApp(
		commandName,
		"Launch the carlink telemetry hub",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.HubOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Sync()

		ctx := app.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewHubServer()
		if err != nil {
			return fmt.Errorf("failed to create hub server: %w", err)
		}

		return server.Run(ctx)
	}
}
