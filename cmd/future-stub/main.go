package main

import (
	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("future-stub", "SayHello through futures completed by listeners")
	root.AddCommand(
		cli.ServerCommand(env, "Run the greeter server", 1),
		cli.ClientCommand(env, "Send all requests as futures and wait for them", func(cmd *cobra.Command, opts samples.Options) error {
			replies, err := samples.RunFuture(cmd.Context(), opts)
			if err != nil {
				return err
			}
			cli.PrintReplies(cmd.OutOrStdout(), "Future replies", replies)
			return nil
		}),
	)
	cli.Execute(root)
}
