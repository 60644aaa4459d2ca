// Package app provides the cobra/viper scaffolding shared by all binaries:
// flag registration, config-file loading, option validation and the run
// lifecycle.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFlagName = "config"

// RunFunc is the application's entry point, invoked after options are
// complete and validated.
type RunFunc func() error

// CliOptions is the aggregated option set of one binary.
type CliOptions interface {
	// AddFlags registers all option flags on the command's flag set.
	AddFlags(fs *pflag.FlagSet)

	// Complete fills in defaults that depend on other options.
	Complete() error

	// Validate checks the final option values.
	Validate() error
}

// App is a single command-line application.
type App struct {
	name        string
	shortDesc   string
	description string
	opts        CliOptions
	runFunc     RunFunc

	cmd        *cobra.Command
	configFile string
}

// Option configures an App during construction.
type Option func(*App)

// WithDescription sets the long help text.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithOptions binds the application's option set.
func WithOptions(opts CliOptions) Option {
	return func(a *App) { a.opts = opts }
}

// WithRunFunc sets the application's entry point.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// NewApp creates an App with the given name and short description.
func NewApp(name, shortDesc string, options ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
	}
	for _, opt := range options {
		opt(a)
	}
	a.buildCommand()
	return a
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          a.runCommand,
	}

	fs := cmd.Flags()
	fs.StringVarP(&a.configFile, configFlagName, "c", "", "Path to the configuration file.")
	if a.opts != nil {
		a.opts.AddFlags(fs)
	}

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, args []string) error {
	if a.opts != nil {
		if err := a.loadConfig(cmd.Flags()); err != nil {
			return err
		}
		if err := a.opts.Complete(); err != nil {
			return err
		}
		if err := a.opts.Validate(); err != nil {
			return err
		}
	}

	if a.runFunc != nil {
		return a.runFunc()
	}
	return nil
}

// loadConfig layers the configuration sources: defaults from the option
// constructors, then the config file, then environment variables, then
// explicit flags.
func (a *App) loadConfig(fs *pflag.FlagSet) error {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	v.SetEnvPrefix("CARLINK")
	v.AutomaticEnv()

	if a.configFile != "" {
		v.SetConfigFile(a.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", a.configFile, err)
		}
	}

	return v.Unmarshal(a.opts)
}

// Command exposes the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the application and reports a non-zero exit on error.
func (a *App) Run() error {
	return a.cmd.Execute()
}
