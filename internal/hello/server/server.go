package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	helloworld "github.com/msto63/grpc-sample/api/hello"
	"github.com/msto63/grpc-sample/internal/hello/service"
	"github.com/msto63/grpc-sample/pkg/binlog"
	"github.com/msto63/grpc-sample/pkg/core/config"
	"github.com/msto63/grpc-sample/pkg/core/discovery"
	coreerrors "github.com/msto63/grpc-sample/pkg/core/errors"
	coregrpc "github.com/msto63/grpc-sample/pkg/core/grpc"
	"github.com/msto63/grpc-sample/pkg/core/health"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"github.com/msto63/grpc-sample/pkg/core/registration"
	"github.com/msto63/grpc-sample/pkg/core/version"
	"github.com/msto63/grpc-sample/pkg/tracer"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/binarylog"
	channelzsvc "google.golang.org/grpc/channelz/service"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/stats"
)

// Server is the hello gRPC server one sample runs
type Server struct {
	greeter  *service.Greeter
	grpc     *coregrpc.Server
	listener net.Listener
	health   *health.Registry
	healthSv *grpchealth.Server
	reporter *health.Reporter
	reg      *registration.ServiceRegistration
	logger   *logging.Logger
	config   Config
}

// BinlogConfig enables binary logging of every call
type BinlogConfig struct {
	Sink   binarylog.Sink
	Filter *binlog.Filter
}

// RegisterConfig makes the server announce itself to a registry
type RegisterConfig struct {
	Client            discovery.Client
	ServiceName       string
	AdvertiseHost     string
	HeartbeatInterval time.Duration
	Tags              []string
}

// Config holds server configuration
type Config struct {
	Host     string
	Port     int
	Greeter  service.Config
	Listener net.Listener

	Reflection     bool
	Channelz       bool
	HealthInterval time.Duration

	// CertFile and KeyFile enable TLS when both are set
	CertFile string
	KeyFile  string

	CallTrace     bool
	StatsHandlers []stats.Handler
	Metrics       prometheus.Registerer
	Binlog        *BinlogConfig
	Register      *RegisterConfig

	UnaryInterceptors  []grpc.UnaryServerInterceptor
	StreamInterceptors []grpc.StreamServerInterceptor

	MaxRecvMsgSize   int
	MaxSendMsgSize   int
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// ServiceVersion is the version the servers announce in their registry
// metadata
const ServiceVersion = "1.0"

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           9090,
		Greeter:        service.DefaultConfig(),
		HealthInterval: 10 * time.Second,
	}
}

// ConfigFrom maps the file configuration onto a server config
func ConfigFrom(cfg *config.Config, behavior service.Behavior) Config {
	c := DefaultConfig()
	c.Host = cfg.Server.Host
	c.Port = cfg.Server.Port
	c.Reflection = cfg.Server.Reflection
	c.Channelz = cfg.Server.Channelz
	c.MaxRecvMsgSize = cfg.Server.MaxRecvMsgSize
	c.MaxSendMsgSize = cfg.Server.MaxSendMsgSize
	c.KeepaliveTime = cfg.Server.KeepaliveTime.Duration
	c.KeepaliveTimeout = cfg.Server.KeepaliveTimeout.Duration
	c.Greeter = service.Config{
		Behavior:    behavior,
		StreamCount: cfg.Hello.StreamCount,
		FailureRate: cfg.Hello.FailureRate,
		SlowRate:    cfg.Hello.SlowRate,
		SlowDelay:   cfg.Hello.SlowDelay.Duration,
	}
	if cfg.TLS.Enabled {
		c.CertFile = cfg.TLS.CertFile
		c.KeyFile = cfg.TLS.KeyFile
	}
	return c
}

// New creates the server and binds its listener, so Address is known
// before Start.
func New(cfg Config) (*Server, error) {
	logger := logging.New("hello-server")

	grpcCfg := coregrpc.DefaultServerConfig()
	grpcCfg.Host = cfg.Host
	grpcCfg.Port = cfg.Port
	grpcCfg.EnableReflection = cfg.Reflection
	if cfg.MaxRecvMsgSize > 0 {
		grpcCfg.MaxRecvMsgSize = cfg.MaxRecvMsgSize
	}
	if cfg.MaxSendMsgSize > 0 {
		grpcCfg.MaxSendMsgSize = cfg.MaxSendMsgSize
	}
	if cfg.KeepaliveTime > 0 {
		grpcCfg.KeepaliveInterval = cfg.KeepaliveTime
	}
	if cfg.KeepaliveTimeout > 0 {
		grpcCfg.KeepaliveTimeout = cfg.KeepaliveTimeout
	}

	opts, err := serverOptions(cfg)
	if err != nil {
		return nil, err
	}

	lis := cfg.Listener
	if lis == nil {
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		lis, err = net.Listen("tcp", addr)
		if err != nil {
			return nil, coreerrors.Wrap(err, "failed to listen").
				WithCode(coreerrors.CodeConnectionFailed).
				WithOperation("server.New").
				WithDetail("address", addr)
		}
	}

	greeterCfg := cfg.Greeter
	if greeterCfg.Address == "" {
		greeterCfg.Address = advertised(cfg, lis)
	}
	greeter := service.New(greeterCfg)

	grpcServer := coregrpc.NewServer(grpcCfg, opts...)
	helloworld.RegisterHelloServiceServer(grpcServer.GRPCServer(), greeter)

	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer.GRPCServer(), healthServer)
	healthRegistry := health.NewRegistry("hello", version.ServiceVersion("hello"))
	healthRegistry.Register(health.AlwaysHealthy("greeter"))

	if cfg.Channelz {
		channelzsvc.RegisterChannelzServiceToServer(grpcServer.GRPCServer())
	}

	interval := cfg.HealthInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &Server{
		greeter:  greeter,
		grpc:     grpcServer,
		listener: lis,
		health:   healthRegistry,
		healthSv: healthServer,
		reporter: health.NewReporter(healthRegistry, healthServer, interval, helloworld.ServiceName),
		logger:   logger,
		config:   cfg,
	}, nil
}

func serverOptions(cfg Config) ([]grpc.ServerOption, error) {
	var opts []grpc.ServerOption
	var unary []grpc.UnaryServerInterceptor
	var stream []grpc.StreamServerInterceptor

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		creds, err := coregrpc.ServerTLSCredentials(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(creds))
		u, s := coregrpc.TLSStateInterceptor()
		unary = append(unary, u)
		stream = append(stream, s)
	}

	if cfg.Binlog != nil && cfg.Binlog.Sink != nil {
		filter := cfg.Binlog.Filter
		if filter == nil {
			filter = binlog.MustParseFilter("*")
		}
		u, s := binlog.ServerInterceptors(cfg.Binlog.Sink, filter)
		unary = append(unary, u)
		stream = append(stream, s)
	}

	if cfg.CallTrace {
		u, s := coregrpc.ServerCallTracer(nil)
		unary = append(unary, u)
		stream = append(stream, s)
	}

	unary = append(unary, cfg.UnaryInterceptors...)
	stream = append(stream, cfg.StreamInterceptors...)
	if len(unary) > 0 {
		opts = append(opts, grpc.ChainUnaryInterceptor(unary...))
	}
	if len(stream) > 0 {
		opts = append(opts, grpc.ChainStreamInterceptor(stream...))
	}

	handlers := append([]stats.Handler(nil), cfg.StatsHandlers...)
	if cfg.Metrics != nil {
		handlers = append(handlers, tracer.NewMetricsHandler(cfg.Metrics))
	}
	switch len(handlers) {
	case 0:
	case 1:
		opts = append(opts, grpc.StatsHandler(handlers[0]))
	default:
		opts = append(opts, grpc.StatsHandler(tracer.NewMultiHandler(handlers...)))
	}

	return opts, nil
}

func advertised(cfg Config, lis net.Listener) string {
	host := cfg.Host
	if cfg.Register != nil && cfg.Register.AdvertiseHost != "" {
		host = cfg.Register.AdvertiseHost
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	port := cfg.Port
	if tcp, ok := lis.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Start serves in the background, starts health reporting and registers
// with the registry when configured.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting hello server",
		"address", s.Address(),
		"behavior", string(s.greeter.Config().Behavior),
		"tls", s.config.CertFile != "",
	)
	s.grpc.ServeAsync(s.listener)
	s.reporter.Start(ctx)

	if r := s.config.Register; r != nil && r.Client != nil {
		host, portStr, _ := net.SplitHostPort(s.greeter.Config().Address)
		port, _ := strconv.Atoi(portStr)
		name := r.ServiceName
		if name == "" {
			name = "grpc-server"
		}
		tags := r.Tags
		if len(tags) == 0 {
			tags = []string{"server"}
		}
		meta := map[string]string{discovery.MetadataVersion: ServiceVersion, "behavior": string(s.greeter.Config().Behavior)}
		s.reg = registration.New(r.Client, registration.Config{
			Name:              name,
			IDPrefix:          "Server-",
			Version:           version.ServiceVersion("hello"),
			Address:           host,
			Port:              port,
			Tags:              tags,
			Metadata:          meta,
			Check:             &discovery.HealthCheck{Type: discovery.CheckGRPC, Service: helloworld.ServiceName},
			HeartbeatInterval: r.HeartbeatInterval,
		})
		if err := s.reg.Register(ctx); err != nil {
			s.grpc.Stop()
			s.reporter.Stop()
			return fmt.Errorf("failed to register hello server: %w", err)
		}
		s.reg.StartHeartbeat(ctx)
	}
	return nil
}

// Run starts the server and blocks until ctx is done, then stops it
// within shutdownTimeout.
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

// Stop deregisters, marks the server not serving and stops it
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("Stopping hello server")
	if s.reg != nil {
		if err := s.reg.Stop(ctx); err != nil {
			s.logger.Warn("Failed to deregister", "error", err)
		}
	}
	s.reporter.Stop()
	s.grpc.StopWithTimeout(ctx)
}

// Address returns the bound listen address
func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// Greeter returns the service implementation
func (s *Server) Greeter() *service.Greeter {
	return s.greeter
}

// GRPCServer returns the underlying gRPC server
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpc.GRPCServer()
}

// HealthServer returns the gRPC health service the reporter updates
func (s *Server) HealthServer() *grpchealth.Server {
	return s.healthSv
}

// HealthRegistry returns the health check registry
func (s *Server) HealthRegistry() *health.Registry {
	return s.health
}

// RegistrationID returns the registry id, empty when not registered
func (s *Server) RegistrationID() string {
	if s.reg == nil {
		return ""
	}
	return s.reg.ID()
}
