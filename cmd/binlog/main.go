package main

import (
	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/hello/server"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/msto63/grpc-sample/pkg/binlog"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("binlog", "Binary logging of calls to a file")
	var path, filter string
	var shared *server.BinlogConfig

	srv := cli.ServerCommand(env, "Run the greeter server writing a binary log", 1,
		func(i int, c *server.Config) error {
			if c.Binlog != nil {
				return nil
			}
			if shared != nil {
				c.Binlog = shared
				return nil
			}
			f, err := binlog.ParseFilter(pick(filter, env.Config.Binlog.Filter))
			if err != nil {
				return err
			}
			sink, err := binlog.NewFileSink(pick(path, env.Config.Binlog.Path))
			if err != nil {
				return err
			}
			shared = &server.BinlogConfig{Sink: sink, Filter: f}
			c.Binlog = shared
			return nil
		})
	srv.Flags().StringVar(&path, "path", "", "binary log file (default from config)")
	srv.Flags().StringVar(&filter, "filter", "", "methods to log, e.g. \"*\" or \"helloworld.HelloService/SayHello{h:256;m:1024}\"")

	var cpath, cfilter string
	client := cli.ClientCommand(env, "Call and print the client side binary log", func(cmd *cobra.Command, opts samples.Options) error {
		res, err := samples.RunBinlog(cmd.Context(), opts, pick(cpath, env.Config.Binlog.Path), pick(cfilter, env.Config.Binlog.Filter))
		if err != nil {
			return err
		}
		cli.PrintReplies(cmd.OutOrStdout(), "Replies", res.Replies)
		cli.PrintReplies(cmd.OutOrStdout(), "Binary log", res.Entries)
		return nil
	})
	client.Flags().StringVar(&cpath, "path", "", "binary log file (default from config)")
	client.Flags().StringVar(&cfilter, "filter", "", "methods to log")

	root.AddCommand(srv, client)
	cli.Execute(root)
}

func pick(flag, cfg string) string {
	if flag != "" {
		return flag
	}
	return cfg
}
