package server

import (
	"context"
	"net"
	"strconv"
	"time"

	registrypb "github.com/msto63/grpc-sample/api/registry"
	"github.com/msto63/grpc-sample/internal/registry/service"
	"github.com/msto63/grpc-sample/internal/registry/store"
	"github.com/msto63/grpc-sample/pkg/core/config"
	coreerrors "github.com/msto63/grpc-sample/pkg/core/errors"
	coregrpc "github.com/msto63/grpc-sample/pkg/core/grpc"
	"github.com/msto63/grpc-sample/pkg/core/health"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"github.com/msto63/grpc-sample/pkg/core/version"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server is the registry gRPC server
type Server struct {
	service  *service.Service
	store    store.Store
	grpc     *coregrpc.Server
	listener net.Listener
	health   *health.Registry
	reporter *health.Reporter
	logger   *logging.Logger
	config   Config
}

// Config holds server configuration
type Config struct {
	Host     string
	Port     int
	Listener net.Listener
	Service  service.Config
	// Store defaults to a memory store; the server closes it on Stop
	Store store.Store
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    9100,
		Service: service.DefaultConfig(),
	}
}

// ConfigFrom maps the file configuration onto a server config. The store
// is opened by the caller (see store.Open).
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.Host = cfg.Registry.Host
	c.Port = cfg.Registry.Port
	c.Service.HealthCheckInterval = cfg.Registry.HealthCheckInterval.Duration
	c.Service.HealthCheckTimeout = cfg.Registry.HealthCheckTimeout.Duration
	c.Service.HeartbeatTimeout = cfg.Registry.HeartbeatTimeout.Duration
	c.Service.CleanupInterval = cfg.Registry.CleanupInterval.Duration
	return c
}

// New creates the registry server and binds its listener
func New(cfg Config) (*Server, error) {
	logger := logging.New("registry-server")

	st := cfg.Store
	if st == nil {
		st = store.NewMemoryStore()
	}

	lis := cfg.Listener
	if lis == nil {
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		var err error
		lis, err = net.Listen("tcp", addr)
		if err != nil {
			return nil, coreerrors.Wrap(err, "failed to listen").
				WithCode(coreerrors.CodeConnectionFailed).
				WithOperation("server.New").
				WithDetail("address", addr)
		}
	}

	grpcCfg := coregrpc.DefaultServerConfig()
	grpcCfg.Host = cfg.Host
	grpcCfg.Port = cfg.Port
	grpcServer := coregrpc.NewServer(grpcCfg)

	server := &Server{
		service:  service.New(st, cfg.Service),
		store:    st,
		grpc:     grpcServer,
		listener: lis,
		logger:   logger,
		config:   cfg,
	}
	registrypb.RegisterRegistryServer(grpcServer.GRPCServer(), server)

	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer.GRPCServer(), healthServer)
	server.health = health.NewRegistry("registry", version.ServiceVersion("registry"))
	server.health.RegisterFunc("store", func(ctx context.Context) health.CheckResult {
		if _, err := st.List(ctx); err != nil {
			return health.CheckResult{Name: "store", Status: health.StatusUnhealthy, Message: err.Error()}
		}
		return health.CheckResult{Name: "store", Status: health.StatusHealthy, Message: "store reachable"}
	})
	server.reporter = health.NewReporter(server.health, healthServer, 10*time.Second, "registry.v1.Registry")

	return server, nil
}

// Start serves in the background and starts the instance checks
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting registry server", "address", s.Address())
	s.grpc.ServeAsync(s.listener)
	s.service.Start(ctx)
	s.reporter.Start(ctx)
	return nil
}

// Run starts the server and blocks until ctx is done
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.Stop(stopCtx)
	return nil
}

// Stop stops checks, the gRPC server and closes the store
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("Stopping registry server")
	s.reporter.Stop()
	s.service.Stop()
	s.grpc.StopWithTimeout(ctx)
	if err := s.store.Close(); err != nil {
		s.logger.Warn("Failed to close store", "error", err)
	}
}

// Address returns the bound listen address
func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// Service returns the registry logic
func (s *Server) Service() *service.Service {
	return s.service
}

// GRPCServer returns the underlying gRPC server
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpc.GRPCServer()
}
