package main

import (
	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("log", "gRPC internal logging routed through the sample logger")
	var level string
	client := cli.ClientCommand(env, "Call with grpc logging enabled", func(cmd *cobra.Command, opts samples.Options) error {
		lvl, err := logging.ParseLevel(level)
		if err != nil {
			return err
		}
		replies, err := samples.RunLog(cmd.Context(), opts, logging.New("grpc"), lvl)
		if err != nil {
			return err
		}
		cli.PrintReplies(cmd.OutOrStdout(), "Replies", replies)
		return nil
	})
	client.Flags().StringVar(&level, "grpc-level", "debug", "level down to which grpc messages are shown")

	root.AddCommand(cli.ServerCommand(env, "Run the greeter server", 1), client)
	cli.Execute(root)
}
