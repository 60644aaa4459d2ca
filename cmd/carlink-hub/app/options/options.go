// Package options aggregates all option groups of the carlink-hub binary.
package options

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/carlink-io/carlink/internal/hub"
	"github.com/carlink-io/carlink/pkg/app"
	"github.com/carlink-io/carlink/pkg/log"
	"github.com/carlink-io/carlink/pkg/options"
)

// HubOptions contains every configurable aspect of the hub.
type HubOptions struct {
	HttpOptions      *options.HttpOptions      `json:"http" mapstructure:"http"`
	WebSocketOptions *options.WebSocketOptions `json:"ws" mapstructure:"ws"`
	MqttOptions      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	RedisOptions     *options.RedisOptions     `json:"redis" mapstructure:"redis"`
	S3Options        *options.S3Options        `json:"s3" mapstructure:"s3"`
	DispatchOptions  *options.DispatchOptions  `json:"dispatch" mapstructure:"dispatch"`
	Log              *log.Options              `json:"log" mapstructure:"log"`
}

var _ app.CliOptions = (*HubOptions)(nil)

// NewHubOptions creates a HubOptions with all defaults applied.
func NewHubOptions() *HubOptions {
	return &HubOptions{
		HttpOptions:      options.NewHttpOptions(),
		WebSocketOptions: options.NewWebSocketOptions(),
		MqttOptions:      options.NewMqttOptions(),
		RedisOptions:     options.NewRedisOptions(),
		S3Options:        options.NewS3Options(),
		DispatchOptions:  options.NewDispatchOptions(),
		Log:              log.NewOptions(),
	}
}

// AddFlags registers all option flags on fs.
func (o *HubOptions) AddFlags(fs *pflag.FlagSet) {
	o.HttpOptions.AddFlags(fs)
	o.WebSocketOptions.AddFlags(fs)
	o.MqttOptions.AddFlags(fs)
	o.RedisOptions.AddFlags(fs)
	o.S3Options.AddFlags(fs)
	o.DispatchOptions.AddFlags(fs)
	o.Log.AddFlags(fs)
}

// Complete fills in any defaults that depend on other options.
func (o *HubOptions) Complete() error {
	return nil
}

// Validate checks every option group.
func (o *HubOptions) Validate() error {
	var errs []error
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.WebSocketOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.DispatchOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return errors.Join(errs...)
}

// Config builds the hub configuration from the validated options.
func (o *HubOptions) Config() (*hub.Config, error) {
	return &hub.Config{
		HttpOptions:      o.HttpOptions,
		WebSocketOptions: o.WebSocketOptions,
		MqttOptions:      o.MqttOptions,
		RedisOptions:     o.RedisOptions,
		S3Options:        o.S3Options,
		DispatchOptions:  o.DispatchOptions,
	}, nil
}
