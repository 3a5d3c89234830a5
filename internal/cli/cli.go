// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     cli
// Description: Shared cobra setup of the sample binaries
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

// Package cli holds what every sample binary shares: the root command with
// config and logging flags, client flags, signal handling and output
// tables.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/msto63/grpc-sample/pkg/core/config"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"github.com/spf13/cobra"
)

// Env is filled before any subcommand runs
type Env struct {
	Config *config.Config

	cfgFile  string
	logLevel string
	closeLog func() error
}

// NewRoot creates the root command of a sample binary. Subcommands read
// the loaded configuration from the returned Env.
func NewRoot(use, short string) (*cobra.Command, *Env) {
	env := &Env{}
	root := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.load(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if env.closeLog != nil {
				return env.closeLog()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&env.cfgFile, "config", "", "config file (default: "+config.EnvConfigPath+" or ./configs/config.toml)")
	root.PersistentFlags().StringVar(&env.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	return root, env
}

func (e *Env) load(ctx context.Context) error {
	var (
		cfg *config.Config
		err error
	)
	if e.cfgFile != "" {
		cfg, err = config.Load(e.cfgFile)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.General.LogLevel = e.logLevel
	}
	e.Config = cfg

	logCfg := logging.LoggerConfig{
		Level:  cfg.General.LogLevel,
		Format: cfg.General.LogFormat,
		File:   cfg.General.LogFile,
	}
	if cfg.General.Cloud.Enabled {
		if ctx == nil {
			ctx = context.Background()
		}
		sink, err := logging.NewCloudSink(ctx, cfg.General.Cloud.Project, cfg.General.Cloud.LogID,
			map[string]string{"app": cfg.General.Name, "environment": cfg.General.Environment})
		if err != nil {
			return err
		}
		logCfg.Sinks = append(logCfg.Sinks, sink)
	}
	e.closeLog, err = logging.Configure(logCfg)
	return err
}

// ClientFlags are the flags of every client subcommand
type ClientFlags struct {
	Target   string
	Message  string
	Requests int
}

// Register adds the flags to cmd
func (f *ClientFlags) Register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Target, "target", "", "server address (default from config)")
	cmd.Flags().StringVarP(&f.Message, "message", "m", "", "message to send (default from config)")
	cmd.Flags().IntVarP(&f.Requests, "requests", "n", 0, "number of requests (default from config)")
}

// Options merges the flags over the client configuration
func (f *ClientFlags) Options(cfg *config.Config) samples.Options {
	opts := samples.OptionsFrom(cfg)
	if f.Target != "" {
		opts.Target = f.Target
	}
	if f.Message != "" {
		opts.Message = f.Message
	}
	if f.Requests > 0 {
		opts.Requests = f.Requests
	}
	return opts
}

// ClientCommand is the `client` subcommand of a sample. run receives the
// options merged from the configuration and the client flags.
func ClientCommand(env *Env, short string, run func(cmd *cobra.Command, opts samples.Options) error) *cobra.Command {
	var flags ClientFlags
	cmd := &cobra.Command{
		Use:   "client",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags.Options(env.Config))
		},
	}
	flags.Register(cmd)
	return cmd
}

// SignalContext is canceled on SIGINT or SIGTERM
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// Execute runs root and exits non-zero on error
func Execute(root *cobra.Command) {
	ctx, cancel := SignalContext(context.Background())
	defer cancel()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		cancel()
		os.Exit(1)
	}
}
