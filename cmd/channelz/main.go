package main

import (
	"fmt"

	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/hello/server"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("channelz", "Inspect channels and servers through channelz")

	var admin string
	client := cli.ClientCommand(env, "Call, then print what channelz reports", func(cmd *cobra.Command, opts samples.Options) error {
		report, err := samples.RunChannelz(cmd.Context(), opts, admin)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		cli.PrintReplies(out, "Replies", report.Replies)

		rows := make([][]string, 0, len(report.Channels))
		for _, ch := range report.Channels {
			rows = append(rows, []string{fmt.Sprint(ch.ID), ch.Target, ch.State,
				fmt.Sprint(ch.Started), fmt.Sprint(ch.Succeeded), fmt.Sprint(ch.Failed)})
		}
		cli.PrintTable(out, "Top channels", []string{"ID", "Target", "State", "Started", "Succeeded", "Failed"}, rows)

		rows = rows[:0]
		for _, s := range report.Servers {
			rows = append(rows, []string{fmt.Sprint(s.ID), fmt.Sprint(s.Listeners),
				fmt.Sprint(s.Started), fmt.Sprint(s.Succeeded), fmt.Sprint(s.Failed)})
		}
		cli.PrintTable(out, "Servers", []string{"ID", "Listeners", "Started", "Succeeded", "Failed"}, rows)
		return nil
	})
	client.Flags().StringVar(&admin, "admin", "", "channelz service address (default: the target)")

	root.AddCommand(
		cli.ServerCommand(env, "Run the greeter server with the channelz service", 1,
			func(_ int, c *server.Config) error {
				c.Channelz = true
				return nil
			}),
		client,
	)
	cli.Execute(root)
}
