package main

import (
	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/hello/server"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("reflection", "List and describe services through server reflection")
	root.AddCommand(
		cli.ServerCommand(env, "Run the greeter server with reflection", 1,
			func(_ int, c *server.Config) error {
				c.Reflection = true
				return nil
			}),
		cli.ClientCommand(env, "Describe every service the server exposes", func(cmd *cobra.Command, opts samples.Options) error {
			services, err := samples.RunReflection(cmd.Context(), opts)
			if err != nil {
				return err
			}
			for _, svc := range services {
				rows := make([][]string, 0, len(svc.Methods))
				for _, m := range svc.Methods {
					rows = append(rows, []string{m.Name, m.Kind(), m.Input, m.Output})
				}
				cli.PrintTable(cmd.OutOrStdout(), svc.Name+" ("+svc.File+")",
					[]string{"Method", "Kind", "Input", "Output"}, rows)
			}
			return nil
		}),
	)
	cli.Execute(root)
}
