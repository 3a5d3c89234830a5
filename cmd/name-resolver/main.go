package main

import (
	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("name-resolver", "Resolve backends through the service registry")
	root.AddCommand(
		cli.BalancedServerCommand(env, "Run greeters that register and reply with their address", 2),
		cli.BalancedClientCommand(env, "Call registry:///<service> with round_robin",
			func(cmd *cobra.Command, opts samples.Options, b samples.Balanced) error {
				d, err := samples.RunNameResolver(cmd.Context(), opts, b)
				if err != nil {
					return err
				}
				cli.PrintDistribution(cmd.OutOrStdout(), "Resolved backends", d)
				return nil
			}),
	)
	cli.Execute(root)
}
