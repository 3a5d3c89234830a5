// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     service
// Description: Registry logic: registration, heartbeats, probes, cleanup
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/msto63/grpc-sample/internal/registry/store"
	"github.com/msto63/grpc-sample/pkg/core/discovery"
	coreerrors "github.com/msto63/grpc-sample/pkg/core/errors"
	coregrpc "github.com/msto63/grpc-sample/pkg/core/grpc"
	"github.com/msto63/grpc-sample/pkg/core/health"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"golang.org/x/sync/errgroup"
)

// Config holds the registry timing
type Config struct {
	// HealthCheckInterval and HealthCheckTimeout apply to registrations
	// that do not set their own
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	// HeartbeatTimeout marks instances unhealthy when their last heartbeat
	// is older; CleanupInterval later they are removed
	HeartbeatTimeout time.Duration
	CleanupInterval  time.Duration
	// SweepInterval is how often Start evaluates every instance
	SweepInterval       time.Duration
	MaxConcurrentProbes int
}

// DefaultConfig returns the default registry timing
func DefaultConfig() Config {
	return Config{
		HealthCheckInterval: 10 * time.Second,
		HealthCheckTimeout:  3 * time.Second,
		HeartbeatTimeout:    30 * time.Second,
		CleanupInterval:     60 * time.Second,
		SweepInterval:       time.Second,
		MaxConcurrentProbes: 16,
	}
}

// Prober reports whether an instance passes its health check
type Prober func(ctx context.Context, info *discovery.ServiceInfo) (bool, string)

type probeState struct {
	at time.Time
	ok bool
}

// Service implements the registry on top of a Store
type Service struct {
	store  store.Store
	config Config
	logger *logging.Logger
	pool   *coregrpc.ConnectionPool
	probe  Prober
	now    func() time.Time

	// mu serializes read-modify-write cycles on the store
	mu     sync.Mutex
	probes map[string]probeState

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a registry service; zero config values take the defaults
func New(st store.Store, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = def.HealthCheckInterval
	}
	if cfg.HealthCheckTimeout <= 0 {
		cfg.HealthCheckTimeout = def.HealthCheckTimeout
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.MaxConcurrentProbes <= 0 {
		cfg.MaxConcurrentProbes = def.MaxConcurrentProbes
	}

	s := &Service{
		store:  st,
		config: cfg,
		logger: logging.New("registry"),
		pool:   coregrpc.NewConnectionPool(coregrpc.DefaultClientConfig("")),
		now:    time.Now,
		probes: make(map[string]probeState),
	}
	s.probe = s.defaultProbe
	return s
}

// SetProber replaces the health probe
func (s *Service) SetProber(p Prober) {
	s.probe = p
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func invalid(format string, args ...interface{}) error {
	return coreerrors.Newf(format, args...).WithCode(coreerrors.CodeInvalidInput)
}

func (s *Service) normalizeCheck(c *discovery.HealthCheck) (*discovery.HealthCheck, error) {
	if c == nil {
		c = &discovery.HealthCheck{Type: discovery.CheckTCP}
	} else {
		cp := *c
		c = &cp
	}
	switch c.Type {
	case "":
		c.Type = discovery.CheckTCP
	case discovery.CheckTCP, discovery.CheckGRPC, discovery.CheckHTTP, discovery.CheckNone:
	default:
		return nil, invalid("unknown health check type %q", c.Type)
	}
	if c.Interval <= 0 {
		c.Interval = s.config.HealthCheckInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = s.config.HealthCheckTimeout
	}
	return c, nil
}

// Register validates and stores info, assigning an id when it has none.
// Registering an existing id replaces the instance.
func (s *Service) Register(ctx context.Context, info *discovery.ServiceInfo) (string, error) {
	if info == nil || info.Name == "" {
		return "", invalid("service name is required")
	}
	if info.Address == "" {
		return "", invalid("address is required")
	}
	if info.Port <= 0 || info.Port > 65535 {
		return "", invalid("invalid port %d", info.Port)
	}
	check, err := s.normalizeCheck(info.Check)
	if err != nil {
		return "", err
	}

	inst := info.Clone()
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	now := s.now()
	inst.Check = check
	inst.Status = discovery.ServiceStatusHealthy
	inst.RegisteredAt = now
	inst.LastHeartbeat = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Put(ctx, inst); err != nil {
		return "", err
	}
	delete(s.probes, inst.ID)

	s.logger.Info("Instance registered",
		"service", inst.Name,
		"id", inst.ID,
		"address", inst.FullAddress(),
		"check", check.Type,
	)
	return inst.ID, nil
}

// Deregister removes an instance; unknown ids are not an error
func (s *Service) Deregister(ctx context.Context, id string) error {
	if id == "" {
		return invalid("id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	delete(s.probes, id)
	s.logger.Info("Instance deregistered", "id", id)
	return nil
}

// Heartbeat refreshes an instance. It is healthy again unless its last
// probe failed.
func (s *Service) Heartbeat(ctx context.Context, id string) (discovery.ServiceStatus, error) {
	if id == "" {
		return "", invalid("id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	inst.LastHeartbeat = s.now()
	inst.Status = discovery.ServiceStatusHealthy
	if p, ok := s.probes[id]; ok && !p.ok {
		inst.Status = discovery.ServiceStatusUnhealthy
	}
	if err := s.store.Put(ctx, inst); err != nil {
		return "", err
	}
	return inst.Status, nil
}

// Discover returns the instances of name, healthy ones unless
// includeUnhealthy, restricted to tag when set, sorted by id.
func (s *Service) Discover(ctx context.Context, name, tag string, includeUnhealthy bool) ([]*discovery.ServiceInfo, error) {
	if name == "" {
		return nil, invalid("service name is required")
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*discovery.ServiceInfo
	for _, inst := range all {
		if inst.Name != name {
			continue
		}
		if !includeUnhealthy && inst.Status != discovery.ServiceStatusHealthy {
			continue
		}
		if tag != "" && !inst.HasTag(tag) {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// Get returns one instance
func (s *Service) Get(ctx context.Context, id string) (*discovery.ServiceInfo, error) {
	return s.store.Get(ctx, id)
}

// List returns every instance
func (s *Service) List(ctx context.Context) ([]*discovery.ServiceInfo, error) {
	return s.store.List(ctx)
}

// Sweep runs one evaluation pass: due probes first, then status updates,
// expiry and cleanup.
func (s *Service) Sweep(ctx context.Context) error {
	all, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	now := s.now()

	s.mu.Lock()
	var due []*discovery.ServiceInfo
	for _, inst := range all {
		if inst.Check == nil || inst.Check.Type == discovery.CheckNone {
			continue
		}
		if p, ok := s.probes[inst.ID]; !ok || now.Sub(p.at) >= inst.Check.Interval {
			due = append(due, inst)
		}
	}
	s.mu.Unlock()

	results := s.runProbes(ctx, due)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ok := range results {
		s.probes[id] = probeState{at: now, ok: ok}
	}

	for _, listed := range all {
		// reread: a heartbeat may have landed while probing
		inst, err := s.store.Get(ctx, listed.ID)
		if discovery.IsNotFound(err) {
			delete(s.probes, listed.ID)
			continue
		}
		if err != nil {
			return err
		}

		age := now.Sub(inst.LastHeartbeat)
		if age > s.config.HeartbeatTimeout+s.config.CleanupInterval {
			if err := s.store.Delete(ctx, inst.ID); err != nil {
				return err
			}
			delete(s.probes, inst.ID)
			s.logger.Info("Instance removed", "service", inst.Name, "id", inst.ID, "last_heartbeat", inst.LastHeartbeat)
			continue
		}

		status := discovery.ServiceStatusHealthy
		reason := "healthy"
		if age > s.config.HeartbeatTimeout {
			status, reason = discovery.ServiceStatusUnhealthy, "heartbeat timeout"
		} else if p, ok := s.probes[inst.ID]; ok && !p.ok {
			status, reason = discovery.ServiceStatusUnhealthy, "health check failed"
		}
		if status == inst.Status {
			continue
		}
		inst.Status = status
		if err := s.store.Put(ctx, inst); err != nil {
			return err
		}
		s.logger.Info("Instance status changed", "service", inst.Name, "id", inst.ID, "status", string(status), "reason", reason)
	}
	return nil
}

func (s *Service) runProbes(ctx context.Context, due []*discovery.ServiceInfo) map[string]bool {
	results := make(map[string]bool, len(due))
	if len(due) == 0 {
		return results
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrentProbes)
	for _, inst := range due {
		inst := inst
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, inst.Check.Timeout)
			defer cancel()
			ok, msg := s.probe(pctx, inst)
			if !ok {
				s.logger.Debug("Health check failed", "id", inst.ID, "check", inst.Check.Type, "message", msg)
			}
			mu.Lock()
			results[inst.ID] = ok
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

func (s *Service) defaultProbe(ctx context.Context, inst *discovery.ServiceInfo) (bool, string) {
	target := inst.Check.Target
	if target == "" {
		target = inst.FullAddress()
	}

	var checker health.Checker
	switch inst.Check.Type {
	case discovery.CheckGRPC:
		checker = health.GRPCCheck(inst.ID, target, inst.Check.Service, inst.Check.Timeout, s.pool)
	case discovery.CheckHTTP:
		checker = health.HTTPCheck(inst.ID, fmt.Sprintf("http://%s%s", target, inst.Check.Path), inst.Check.Timeout)
	default:
		checker = health.TCPCheck(inst.ID, target, inst.Check.Timeout)
	}
	result := checker.Check(ctx)
	return result.Status == health.StatusHealthy, result.Message
}

// Start sweeps every SweepInterval until Stop
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.config.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("Registry sweep failed", "error", err)
				}
			}
		}
	}()
	s.logger.Info("Registry checks started",
		"sweep_interval", s.config.SweepInterval,
		"heartbeat_timeout", s.config.HeartbeatTimeout,
		"cleanup_interval", s.config.CleanupInterval,
	)
}

// Stop ends the sweep loop and closes probe connections
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	s.pool.Close()
}
