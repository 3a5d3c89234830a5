package main

import (
	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("bidirectional-stream", "Bidirectional streaming SayHello")
	root.AddCommand(
		cli.ServerCommand(env, "Run the greeter server", 1),
		cli.ClientCommand(env, "Send and receive on one stream", func(cmd *cobra.Command, opts samples.Options) error {
			replies, err := samples.RunBidiStream(cmd.Context(), opts)
			if err != nil {
				return err
			}
			cli.PrintReplies(cmd.OutOrStdout(), "Bidi replies", replies)
			return nil
		}),
	)
	cli.Execute(root)
}
