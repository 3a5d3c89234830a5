// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     main
// Description: Unary hello world sample
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package main

import (
	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("helloworld", "Unary SayHello with a blocking stub")
	root.AddCommand(
		cli.ServerCommand(env, "Run the greeter server", 1),
		cli.ClientCommand(env, "Greet the server", func(cmd *cobra.Command, opts samples.Options) error {
			replies, err := samples.RunHelloWorld(cmd.Context(), opts)
			if err != nil {
				return err
			}
			cli.PrintReplies(cmd.OutOrStdout(), "Greetings", replies)
			return nil
		}),
	)
	cli.Execute(root)
}
