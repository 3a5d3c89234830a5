package health

import (
	"context"
	"sync"
	"time"

	"github.com/msto63/grpc-sample/pkg/core/logging"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var reporterLogger = logging.New("health")

// Reporter periodically runs a Registry and publishes the outcome as the
// serving status of the gRPC health service.
type Reporter struct {
	registry *Registry
	server   *grpchealth.Server
	services []string
	interval time.Duration

	mu     sync.RWMutex
	last   *Report
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReporter creates a reporter updating services ("" is the whole
// server and is always included) on server.
func NewReporter(registry *Registry, server *grpchealth.Server, interval time.Duration, services ...string) *Reporter {
	all := append([]string{""}, services...)
	return &Reporter{
		registry: registry,
		server:   server,
		services: all,
		interval: interval,
	}
}

// Start runs the first check synchronously, then checks every interval
// until Stop.
func (r *Reporter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	r.RunOnce(ctx)

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce checks the registry and updates the serving status
func (r *Reporter) RunOnce(ctx context.Context) *Report {
	checkCtx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()
	report := r.registry.Check(checkCtx)

	r.mu.Lock()
	prev := r.last
	r.last = report
	r.mu.Unlock()

	servingStatus := healthpb.HealthCheckResponse_SERVING
	if report.Status == StatusUnhealthy {
		servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}
	for _, svc := range r.services {
		r.server.SetServingStatus(svc, servingStatus)
	}

	if prev == nil || prev.Status != report.Status {
		reporterLogger.Info("Health status changed", "service", report.Service, "status", report.Status)
	}
	return report
}

// Last returns the most recent report, nil before the first check
func (r *Reporter) Last() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Stop ends periodic checks and marks every service NOT_SERVING
func (r *Reporter) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	r.server.Shutdown()
}
