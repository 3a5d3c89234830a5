// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     main
// Description: Custom round robin balancer sample with a live watch view
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package main

import (
	"time"

	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/msto63/grpc-sample/internal/tui/watch"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("load-balancer", "custom_round_robin over the registered backends")

	var interval time.Duration
	watchCmd := cli.BalancedClientCommand(env, "Call continuously and show which backend answers",
		func(cmd *cobra.Command, opts samples.Options, b samples.Balanced) error {
			b.Interval = interval
			return watch.Run(cmd.Context(), opts, b)
		})
	watchCmd.Use = "watch"
	watchCmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "pause between calls")

	root.AddCommand(
		cli.BalancedServerCommand(env, "Run greeters that register and reply with their address", 3),
		cli.BalancedClientCommand(env, "Spread the calls with custom_round_robin",
			func(cmd *cobra.Command, opts samples.Options, b samples.Balanced) error {
				d, err := samples.RunLoadBalancer(cmd.Context(), opts, b)
				if err != nil {
					return err
				}
				cli.PrintDistribution(cmd.OutOrStdout(), "Picks per backend", d)
				return nil
			}),
		watchCmd,
	)
	cli.Execute(root)
}
