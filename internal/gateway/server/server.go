// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     server
// Description: HTTP gateway in front of a HelloService backend
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	helloworld "github.com/msto63/grpc-sample/api/hello"
	"github.com/msto63/grpc-sample/internal/gateway/handler"
	"github.com/msto63/grpc-sample/pkg/core/config"
	coreerrors "github.com/msto63/grpc-sample/pkg/core/errors"
	coregrpc "github.com/msto63/grpc-sample/pkg/core/grpc"
	"github.com/msto63/grpc-sample/pkg/core/health"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"github.com/msto63/grpc-sample/pkg/core/version"
	"github.com/msto63/grpc-sample/pkg/tracer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server is the HTTP gateway server
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	conn       *grpc.ClientConn
	health     *health.Registry
	logger     *logging.Logger
	config     Config
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	Backend      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Listener     net.Listener

	// Conn replaces the dialed backend connection; the caller owns it
	Conn grpc.ClientConnInterface
	// Metrics defaults to a fresh registry served on /metrics
	Metrics *prometheus.Registry
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8090,
		Backend:      "localhost:9090",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

// ConfigFrom maps the file configuration onto a gateway config
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.Host = cfg.Gateway.Host
	c.Port = cfg.Gateway.Port
	c.Backend = cfg.Gateway.Backend
	c.ReadTimeout = cfg.Gateway.ReadTimeout.Duration
	c.WriteTimeout = cfg.Gateway.WriteTimeout.Duration
	return c
}

// New creates the gateway and binds its listener. The backend connection is
// lazy, so a backend that is down only shows up in /healthz and call errors.
func New(cfg Config) (*Server, error) {
	logger := logging.New("gateway-server")

	reg := cfg.Metrics
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{logger: logger, config: cfg}

	backend := cfg.Conn
	if backend == nil {
		conn, err := coregrpc.Dial(coregrpc.DefaultClientConfig(cfg.Backend),
			grpc.WithStatsHandler(tracer.NewMetricsHandler(reg)))
		if err != nil {
			return nil, coreerrors.Wrap(err, "failed to create backend client").
				WithCode(coreerrors.CodeConnectionFailed).
				WithOperation("gateway.New").
				WithDetail("backend", cfg.Backend)
		}
		s.conn = conn
		backend = conn
	}

	lis := cfg.Listener
	if lis == nil {
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		var err error
		lis, err = net.Listen("tcp", addr)
		if err != nil {
			s.closeConn()
			return nil, coreerrors.Wrap(err, "failed to listen").
				WithCode(coreerrors.CodeConnectionFailed).
				WithOperation("gateway.New").
				WithDetail("address", addr)
		}
	}
	s.listener = lis

	client := helloworld.NewHelloServiceClient(backend)
	healthClient := healthpb.NewHealthClient(backend)

	s.health = health.NewRegistry("gateway", version.ServiceVersion("gateway"))
	s.health.RegisterFunc("backend", func(ctx context.Context) health.CheckResult {
		result := health.CheckResult{Name: "backend", Details: map[string]interface{}{"backend": cfg.Backend}}
		resp, err := healthClient.Check(ctx, &healthpb.HealthCheckRequest{Service: helloworld.ServiceName})
		switch {
		case err != nil:
			result.Status = health.StatusUnhealthy
			result.Message = err.Error()
		case resp.Status != healthpb.HealthCheckResponse_SERVING:
			result.Status = health.StatusUnhealthy
			result.Message = resp.Status.String()
		default:
			result.Status = health.StatusHealthy
			result.Message = "backend serving"
		}
		return result
	})

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(metricsMiddleware(reg))
	router.Use(loggingMiddleware(logger))

	router.Get("/healthz", s.handleHealth)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	router.Handle("/v1/hello/ws", handler.NewWebSocketHandler(client))
	router.Mount("/v1", handler.NewHelloHandler(client))

	s.httpServer = &http.Server{
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	report := s.health.Check(ctx)

	code := http.StatusOK
	if report.Status != health.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}

// loggingMiddleware logs every request once it completed
func loggingMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", middleware.GetReqID(r.Context()),
				"duration", time.Since(start),
			)
		})
	}
}

// metricsMiddleware counts requests by route pattern, so path parameters do
// not blow up the label space
func metricsMiddleware(reg prometheus.Registerer) func(http.Handler) http.Handler {
	f := promauto.With(reg)
	requests := f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grpc_sample",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)
	latency := f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grpc_sample",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			requests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
			latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Start serves in the background
func (s *Server) Start() {
	s.logger.Info("Starting gateway", "address", s.Address(), "backend", s.config.Backend)
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.Start()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

// Stop gracefully stops the server and closes the backend connection
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping gateway")
	err := s.httpServer.Shutdown(ctx)
	s.closeConn()
	return err
}

func (s *Server) closeConn() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Warn("Error closing backend connection", "error", err)
	}
}

// Address returns the bound listen address
func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// Handler returns the HTTP handler, for tests without a listener
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HealthRegistry returns the health check registry
func (s *Server) HealthRegistry() *health.Registry {
	return s.health
}
