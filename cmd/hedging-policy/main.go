package main

import (
	"fmt"

	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("hedging-policy", "Hedged calls racing a slow server")
	srv := cli.ServerCommand(env, "Run a greeter that delays most calls", 1)
	cli.SetDefault(srv, "behavior", "slow")

	var scFile string
	client := cli.ClientCommand(env, "Call with the hedging policy", func(cmd *cobra.Command, opts samples.Options) error {
		if scFile == "" {
			scFile = env.Config.Client.ServiceConfigFile
		}
		sc, err := samples.ServiceConfig(samples.HedgingConfig, scFile)
		if err != nil {
			return err
		}
		res, err := samples.RunHedging(cmd.Context(), opts, sc)
		cli.PrintReplies(cmd.OutOrStdout(), "Replies", res.Replies)
		cli.PrintInfo(cmd.OutOrStdout(), fmt.Sprintf("%d attempts for %d calls", res.Attempts, opts.Requests))
		return err
	})
	client.Flags().StringVar(&scFile, "service-config", "", "service config JSON (default: built-in hedging config)")

	root.AddCommand(srv, client)
	cli.Execute(root)
}
