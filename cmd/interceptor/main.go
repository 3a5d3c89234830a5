package main

import (
	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/hello/server"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("interceptor", "Client and server interceptors logging every call phase")
	root.AddCommand(
		cli.ServerCommand(env, "Run the greeter server with the call tracer", 1,
			func(_ int, c *server.Config) error {
				c.CallTrace = true
				return nil
			}),
		cli.ClientCommand(env, "Call through the tracing interceptors", func(cmd *cobra.Command, opts samples.Options) error {
			replies, err := samples.RunInterceptor(cmd.Context(), opts, logging.New("interceptor"))
			if err != nil {
				return err
			}
			cli.PrintReplies(cmd.OutOrStdout(), "Replies", replies)
			return nil
		}),
	)
	cli.Execute(root)
}
