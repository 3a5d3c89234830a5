package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/msto63/grpc-sample/internal/cli"
	"github.com/msto63/grpc-sample/internal/registry/server"
	"github.com/msto63/grpc-sample/internal/registry/store"
	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/msto63/grpc-sample/pkg/core/discovery"
	"github.com/spf13/cobra"
)

func main() {
	root, env := cli.NewRoot("registry", "Service registry the resolver samples discover backends from")

	var port int
	var storeKind string
	srv := &cobra.Command{
		Use:   "server",
		Short: "Run the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			regCfg := env.Config.Registry
			if storeKind != "" {
				regCfg.Store = storeKind
			}
			st, err := store.Open(regCfg)
			if err != nil {
				return err
			}
			cfg := server.ConfigFrom(env.Config)
			cfg.Store = st
			if port > 0 {
				cfg.Port = port
			}
			reg, err := server.New(cfg)
			if err != nil {
				st.Close()
				return err
			}
			cli.PrintInfo(cmd.OutOrStdout(), "registry on "+reg.Address()+" ("+regCfg.Store+" store)")
			return reg.Run(cmd.Context(), env.Config.Server.ShutdownTimeout.Duration)
		},
	}
	srv.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	srv.Flags().StringVar(&storeKind, "store", "", "memory, sqlite or redis (default from config)")

	var address, service string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the registered instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			if address == "" {
				address = env.Config.Registry.Address
			}
			fetch := samples.ListInstances
			if service != "" {
				fetch = func(ctx context.Context, address string) ([]*discovery.ServiceInfo, error) {
					return samples.LocateInstances(ctx, address, service)
				}
			}
			instances, err := fetch(cmd.Context(), address)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(instances))
			for _, inst := range instances {
				rows = append(rows, []string{
					inst.ID, inst.Name, inst.FullAddress(), string(inst.Status),
					strings.Join(inst.Tags, ","),
					inst.LastHeartbeat.Format("15:04:05"),
				})
			}
			cli.PrintTable(cmd.OutOrStdout(), fmt.Sprintf("%d instances", len(instances)),
				[]string{"ID", "Service", "Address", "Status", "Tags", "Heartbeat"}, rows)
			return nil
		},
	}
	list.Flags().StringVar(&address, "address", "", "registry address (default from config)")
	list.Flags().StringVar(&service, "service", "", "only the healthy instances of this service")

	root.AddCommand(srv, list)
	cli.Execute(root)
}
