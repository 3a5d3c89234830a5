package main

import (
	"fmt"

	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("client-stream", "Client streaming SayHello")
	root.AddCommand(
		cli.ServerCommand(env, "Run the greeter server", 1),
		cli.ClientCommand(env, "Stream the messages and print the summary", func(cmd *cobra.Command, opts samples.Options) error {
			res, err := samples.RunClientStream(cmd.Context(), opts)
			if err != nil {
				return err
			}
			cli.PrintTable(cmd.OutOrStdout(), "Client stream", []string{"Reply", "Count"},
				[][]string{{res.Reply, fmt.Sprint(res.Count)}})
			return nil
		}),
	)
	cli.Execute(root)
}
