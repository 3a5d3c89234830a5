package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/hello/server"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/msto63/grpc-sample/pkg/core/health"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"github.com/spf13/cobra"
)

var logger = logging.New("health-check")

// flapping reports unhealthy every other interval
func flapping(address string, interval time.Duration) health.Checker {
	start := time.Now()
	var last atomic.Bool
	last.Store(true)
	return health.NewChecker("flapping", func(context.Context) health.CheckResult {
		up := (time.Since(start)/interval)%2 == 0
		if last.Swap(up) != up {
			logger.Info("Serving state changed", "address", address, "serving", up)
		}
		if up {
			return health.CheckResult{Name: "flapping", Status: health.StatusHealthy, Message: "serving"}
		}
		return health.CheckResult{Name: "flapping", Status: health.StatusUnhealthy, Message: "not serving"}
	})
}

func main() {
	root, env := cli.NewRoot("health-check", "Client side health checking skips backends that are not serving")

	var flags cli.ServerFlags
	var toggle time.Duration
	srv := &cobra.Command{
		Use:   "server",
		Short: "Run greeters; the last one flips between SERVING and NOT_SERVING",
		RunE: func(cmd *cobra.Command, args []string) error {
			if toggle <= 0 {
				toggle = 10 * time.Second
			}
			hs, err := cli.NewHelloServers(env.Config, flags, func(_ int, c *server.Config) error {
				c.HealthInterval = toggle / 4
				return nil
			})
			if err != nil {
				return err
			}
			last := hs.Servers[len(hs.Servers)-1]
			last.HealthRegistry().Register(flapping(last.Address(), toggle))
			for _, addr := range hs.Addresses() {
				cli.PrintInfo(cmd.OutOrStdout(), "listening on "+addr)
			}
			cli.PrintInfo(cmd.OutOrStdout(), "flapping "+last.Address()+" every "+toggle.String())
			return hs.Run(cmd.Context(), env.Config.Server.ShutdownTimeout.Duration)
		},
	}
	flags.Register(srv, 2)
	cli.SetDefault(srv, "behavior", "address")
	cli.SetDefault(srv, "register", "true")
	srv.Flags().DurationVar(&toggle, "toggle", 10*time.Second, "how long the last server stays in each state")

	var scFile string
	var interval time.Duration
	client := cli.BalancedClientCommand(env, "Call with round_robin and health checking enabled",
		func(cmd *cobra.Command, opts samples.Options, b samples.Balanced) error {
			if scFile == "" {
				scFile = env.Config.Client.ServiceConfigFile
			}
			sc, err := samples.ServiceConfig(samples.HealthCheckConfig, scFile)
			if err != nil {
				return err
			}
			b.Interval = interval
			d, err := samples.RunHealthCheck(cmd.Context(), opts, b, sc.JSON())
			if err != nil {
				return err
			}
			cli.PrintDistribution(cmd.OutOrStdout(), "Healthy backends", d)
			return nil
		})
	client.Flags().StringVar(&scFile, "service-config", "", "service config JSON (default: built-in health check config)")
	client.Flags().DurationVar(&interval, "interval", time.Second, "pause between calls")

	root.AddCommand(srv, client)
	cli.Execute(root)
}
