package main

import (
	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("server-stream", "Server streaming SayHello")
	root.AddCommand(
		cli.ServerCommand(env, "Run the greeter server", 1),
		cli.ClientCommand(env, "Receive the greeting stream", func(cmd *cobra.Command, opts samples.Options) error {
			replies, err := samples.RunServerStream(cmd.Context(), opts)
			if err != nil {
				return err
			}
			cli.PrintReplies(cmd.OutOrStdout(), "Streamed greetings", replies)
			return nil
		}),
	)
	cli.Execute(root)
}
