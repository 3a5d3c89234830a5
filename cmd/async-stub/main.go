package main

import (
	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("async-stub", "SayHello through an async stub with a response observer")
	var queue int
	client := cli.ClientCommand(env, "Send requests without blocking and collect the replies", func(cmd *cobra.Command, opts samples.Options) error {
		if queue <= 0 {
			queue = env.Config.Client.QueueSize
		}
		replies, err := samples.RunAsync(cmd.Context(), opts, queue)
		if err != nil {
			return err
		}
		cli.PrintReplies(cmd.OutOrStdout(), "Async replies", replies)
		return nil
	})
	client.Flags().IntVar(&queue, "queue", 0, "pending call queue size (default from config)")

	root.AddCommand(cli.ServerCommand(env, "Run the greeter server", 1), client)
	cli.Execute(root)
}
