// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     main
// Description: HTTP/JSON and websocket gateway in front of the greeter
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package main

import (
	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/gateway/server"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("gateway", "REST and websocket gateway for the hello service")

	var port int
	var backend string
	srv := &cobra.Command{
		Use:   "server",
		Short: "Serve /v1/hello, /v1/hello/ws, /healthz and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.ConfigFrom(env.Config)
			if port > 0 {
				cfg.Port = port
			}
			if backend != "" {
				cfg.Backend = backend
			}
			gw, err := server.New(cfg)
			if err != nil {
				return err
			}
			cli.PrintInfo(cmd.OutOrStdout(), "gateway on "+gw.Address()+" for "+cfg.Backend)
			return gw.Run(cmd.Context(), env.Config.Server.ShutdownTimeout.Duration)
		},
	}
	srv.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (default from config)")
	srv.Flags().StringVar(&backend, "backend", "", "greeter address (default from config)")

	root.AddCommand(srv)
	cli.Execute(root)
}
