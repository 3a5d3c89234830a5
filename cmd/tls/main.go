package main

import (
	"time"

	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/hello/server"
	"github.com/msto63/grpc-sample/internal/samples"
	coregrpc "github.com/msto63/grpc-sample/pkg/core/grpc"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("tls", "Hello world over TLS")

	var generate string
	srv := cli.ServerCommand(env, "Run the greeter server with TLS", 1,
		func(i int, c *server.Config) error {
			tls := env.Config.TLS
			c.CertFile, c.KeyFile = tls.CertFile, tls.KeyFile
			if generate == "" || i > 0 {
				return nil
			}
			cert, key, err := coregrpc.GenerateSelfSignedCert(generate, []string{"localhost", "127.0.0.1"}, 365*24*time.Hour)
			if err != nil {
				return err
			}
			env.Config.TLS.CertFile, env.Config.TLS.KeyFile = cert, key
			c.CertFile, c.KeyFile = cert, key
			return nil
		})
	srv.Flags().StringVar(&generate, "generate", "", "write a self-signed certificate into this directory and use it")

	var caFile string
	client := cli.ClientCommand(env, "Greet the server over TLS", func(cmd *cobra.Command, opts samples.Options) error {
		tls := env.Config.TLS
		if caFile == "" {
			caFile = tls.CAFile
		}
		if caFile == "" {
			// a self-signed server certificate is its own CA
			caFile = tls.CertFile
		}
		replies, err := samples.RunTLS(cmd.Context(), opts, caFile, tls.ServerNameOverride)
		if err != nil {
			return err
		}
		cli.PrintReplies(cmd.OutOrStdout(), "Greetings over TLS", replies)
		return nil
	})
	client.Flags().StringVar(&caFile, "ca", "", "CA certificate (default from config)")

	root.AddCommand(srv, client)
	cli.Execute(root)
}
