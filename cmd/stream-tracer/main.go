// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     main
// Description: Stats handler tracing sample with optional OpenTelemetry spans
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package main

import (
	"context"
	"os"
	"time"

	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/hello/server"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"github.com/msto63/grpc-sample/pkg/tracer"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/stats"
)

var withOtel bool

// setupTracing returns nil when neither the flag nor the configuration
// enables OpenTelemetry
func setupTracing(env *cli.Env, suffix string) (*tracer.Tracing, error) {
	if !withOtel && !env.Config.Tracing.Enabled {
		return nil, nil
	}
	return tracer.SetupTracing(env.Config.Tracing.ServiceName+"-"+suffix, os.Stdout)
}

func shutdown(t *tracer.Tracing) {
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	t.Shutdown(ctx)
}

func main() {
	root, env := cli.NewRoot("stream-tracer", "Stats handlers tracing every stream event")
	root.PersistentFlags().BoolVar(&withOtel, "otel", false, "also export OpenTelemetry spans to stdout")

	var tracing *tracer.Tracing
	srv := cli.ServerCommand(env, "Run the greeter server with the stream tracer", 1,
		func(i int, c *server.Config) error {
			handlers := []stats.Handler{tracer.NewLogHandler(logging.New("server-tracer"))}
			if i == 0 {
				var err error
				if tracing, err = setupTracing(env, "server"); err != nil {
					return err
				}
			}
			if tracing != nil {
				handlers = append(handlers, tracing.Server)
			}
			c.StatsHandlers = append(c.StatsHandlers, handlers...)
			return nil
		})
	srv.PostRun = func(*cobra.Command, []string) { shutdown(tracing) }

	client := cli.ClientCommand(env, "Call with the client stream tracer", func(cmd *cobra.Command, opts samples.Options) error {
		t, err := setupTracing(env, "client")
		if err != nil {
			return err
		}
		defer shutdown(t)
		replies, err := samples.RunStreamTracer(cmd.Context(), opts, logging.New("client-tracer"), t)
		if err != nil {
			return err
		}
		cli.PrintReplies(cmd.OutOrStdout(), "Replies", replies)
		return nil
	})

	root.AddCommand(srv, client)
	cli.Execute(root)
}
