package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/msto63/grpc-sample/internal/hello/server"
	"github.com/msto63/grpc-sample/internal/hello/service"
	"github.com/msto63/grpc-sample/pkg/binlog"
	"github.com/msto63/grpc-sample/pkg/core/config"
	"github.com/msto63/grpc-sample/pkg/core/discovery"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serverLogger = logging.New("cli-server")

// ServerFlags are the flags of every server subcommand
type ServerFlags struct {
	Port            int
	Count           int
	Behavior        string
	RegisterServers bool
}

// Register adds the flags to cmd. count is the default number of servers.
func (f *ServerFlags) Register(cmd *cobra.Command, count int) {
	cmd.Flags().IntVarP(&f.Port, "port", "p", 0, "first listen port (default from config)")
	cmd.Flags().IntVar(&f.Count, "count", count, "number of servers on consecutive ports")
	cmd.Flags().StringVar(&f.Behavior, "behavior", "", "reply behavior: plain, flaky, slow or address")
	cmd.Flags().BoolVar(&f.RegisterServers, "register", false, "register the servers with the registry")
}

// ServerSetup adjusts the config of the i-th server before it is created
type ServerSetup func(i int, c *server.Config) error

// HelloServers are the servers one command runs
type HelloServers struct {
	Servers []*server.Server

	metrics  *http.Server
	registry *discovery.RemoteClient
	closers  []func() error
}

// NewHelloServers creates the hello servers the flags and configuration
// describe. Binary logging, metrics and registration follow the
// configuration sections of the same name.
func NewHelloServers(cfg *config.Config, f ServerFlags, setups ...ServerSetup) (*HelloServers, error) {
	behavior, err := service.ParseBehavior(f.Behavior)
	if err != nil {
		return nil, err
	}
	count := f.Count
	if count <= 0 {
		count = 1
	}
	port := cfg.Server.Port
	if f.Port > 0 {
		port = f.Port
	}

	hs := &HelloServers{}
	ok := false
	defer func() {
		if !ok {
			hs.close()
		}
	}()

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		hs.metrics = &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	var bl *server.BinlogConfig
	if cfg.Binlog.Enabled {
		filter, err := binlog.ParseFilter(cfg.Binlog.Filter)
		if err != nil {
			return nil, err
		}
		sink, err := binlog.NewFileSink(cfg.Binlog.Path)
		if err != nil {
			return nil, err
		}
		hs.closers = append(hs.closers, sink.Close)
		bl = &server.BinlogConfig{Sink: sink, Filter: filter}
	}

	if f.RegisterServers || cfg.Server.Register {
		hs.registry, err = discovery.NewRemoteClient(cfg.Registry.Address)
		if err != nil {
			return nil, err
		}
	}

	for i := 0; i < count; i++ {
		c := server.ConfigFrom(cfg, behavior)
		if port > 0 {
			c.Port = port + i
		}
		c.Metrics = metricsFor(reg, i)
		c.Binlog = bl
		if hs.registry != nil {
			c.Register = &server.RegisterConfig{
				Client:            hs.registry,
				ServiceName:       cfg.Server.ServiceName,
				AdvertiseHost:     cfg.Server.AdvertiseHost,
				HeartbeatInterval: cfg.Registry.HeartbeatInterval.Duration,
			}
		}
		for _, setup := range setups {
			if err := setup(i, &c); err != nil {
				return nil, err
			}
		}
		srv, err := server.New(c)
		if err != nil {
			return nil, err
		}
		hs.Servers = append(hs.Servers, srv)
	}
	ok = true
	return hs, nil
}

// metricsFor labels the collectors of every server with its index so
// several servers can share one registry
func metricsFor(reg *prometheus.Registry, i int) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return prometheus.WrapRegistererWith(prometheus.Labels{"server": strconv.Itoa(i)}, reg)
}

// Run starts every server and blocks until ctx is done or one fails
func (hs *HelloServers) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	defer hs.close()
	var lis net.Listener
	if hs.metrics != nil {
		var err error
		if lis, err = net.Listen("tcp", hs.metrics.Addr); err != nil {
			return err
		}
		serverLogger.Info("Serving metrics", "address", lis.Addr().String())
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range hs.Servers {
		srv := srv
		g.Go(func() error { return srv.Run(ctx, shutdownTimeout) })
	}
	if lis != nil {
		g.Go(func() error {
			if err := hs.metrics.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return hs.metrics.Shutdown(stopCtx)
		})
	}
	return g.Wait()
}

// Addresses returns the bound addresses in server order
func (hs *HelloServers) Addresses() []string {
	out := make([]string, 0, len(hs.Servers))
	for _, srv := range hs.Servers {
		out = append(out, srv.Address())
	}
	return out
}

func (hs *HelloServers) close() {
	for _, c := range hs.closers {
		if err := c(); err != nil {
			serverLogger.Warn("Close failed", "error", err)
		}
	}
	hs.closers = nil
	if hs.registry != nil {
		hs.registry.Close()
		hs.registry = nil
	}
}

// ServerCommand is the `server` subcommand most samples share. count is
// the default number of servers.
func ServerCommand(env *Env, short string, count int, setups ...ServerSetup) *cobra.Command {
	var flags ServerFlags
	cmd := &cobra.Command{
		Use:   "server",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := NewHelloServers(env.Config, flags, setups...)
			if err != nil {
				return err
			}
			for _, addr := range hs.Addresses() {
				PrintInfo(cmd.OutOrStdout(), "listening on "+addr)
			}
			return hs.Run(cmd.Context(), env.Config.Server.ShutdownTimeout.Duration)
		},
	}
	flags.Register(cmd, count)
	return cmd
}
