// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     registration
// Description: Keeps a service instance registered with the registry
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package registration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/msto63/grpc-sample/pkg/core/discovery"
	"github.com/msto63/grpc-sample/pkg/core/logging"
)

// ServiceRegistration handles registration with the registry
type ServiceRegistration struct {
	client       discovery.Client
	info         *discovery.ServiceInfo
	idPrefix     string
	logger       *logging.Logger
	mu           sync.Mutex
	serviceID    string
	lost         bool // the registry dropped the instance, register on the next tick
	stopped      bool
	stopCh       chan struct{}
	stopOnce     sync.Once
	heartbeatInt time.Duration
}

// Config holds registration configuration
type Config struct {
	Name              string
	// IDPrefix makes the client pick the id as prefix plus a uuid; empty
	// leaves the id to the registry
	IDPrefix          string
	Version           string
	Address           string
	Port              int
	Tags              []string
	Metadata          map[string]string
	Check             *discovery.HealthCheck
	HeartbeatInterval time.Duration
}

// New creates a new service registration on client
func New(client discovery.Client, cfg Config) *ServiceRegistration {
	if cfg.Address == "" {
		cfg.Address = "localhost"
	}
	if cfg.Version == "" {
		cfg.Version = "0.0.0"
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}

	return &ServiceRegistration{
		client: client,
		info: &discovery.ServiceInfo{
			Name:     cfg.Name,
			Version:  cfg.Version,
			Address:  cfg.Address,
			Port:     cfg.Port,
			Tags:     cfg.Tags,
			Metadata: cfg.Metadata,
			Check:    cfg.Check,
		},
		idPrefix:     cfg.IDPrefix,
		logger:       logging.New("registration"),
		stopCh:       make(chan struct{}),
		heartbeatInt: cfg.HeartbeatInterval,
	}
}

// ID returns the id assigned by the registry, empty when not registered
func (sr *ServiceRegistration) ID() string {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.serviceID
}

// Register registers the service with the registry
func (sr *ServiceRegistration) Register(ctx context.Context) error {
	id, err := sr.register(ctx)
	if err != nil {
		return err
	}
	sr.mu.Lock()
	sr.serviceID = id
	sr.lost = false
	sr.mu.Unlock()
	return nil
}

func (sr *ServiceRegistration) register(ctx context.Context) (string, error) {
	info := sr.info.Clone()
	info.ID = ""
	if sr.idPrefix != "" {
		info.ID = sr.idPrefix + uuid.New().String()
	}
	if err := sr.client.Register(ctx, info); err != nil {
		return "", fmt.Errorf("failed to register %s: %w", sr.info.Name, err)
	}

	sr.logger.Info("Service registered",
		"service", info.Name,
		"id", info.ID,
		"address", info.FullAddress(),
	)
	return info.ID, nil
}

// Deregister removes the service from the registry
func (sr *ServiceRegistration) Deregister(ctx context.Context) error {
	sr.mu.Lock()
	id := sr.serviceID
	sr.serviceID = ""
	sr.lost = false
	sr.mu.Unlock()

	if id == "" {
		return nil
	}

	if err := sr.client.Deregister(ctx, id); err != nil {
		sr.mu.Lock()
		if sr.serviceID == "" {
			sr.serviceID = id
		}
		sr.mu.Unlock()
		return fmt.Errorf("failed to deregister: %w", err)
	}

	sr.logger.Info("Service deregistered", "id", id)
	return nil
}

// StartHeartbeat starts the heartbeat goroutine
func (sr *ServiceRegistration) StartHeartbeat(ctx context.Context) {
	go sr.heartbeatLoop(ctx)
}

// StopHeartbeat stops the heartbeat goroutine
func (sr *ServiceRegistration) StopHeartbeat() {
	sr.mu.Lock()
	sr.stopped = true
	sr.lost = false
	sr.mu.Unlock()
	sr.stopOnce.Do(func() { close(sr.stopCh) })
}

// Stop ends the heartbeat and deregisters
func (sr *ServiceRegistration) Stop(ctx context.Context) error {
	sr.StopHeartbeat()
	return sr.Deregister(ctx)
}

func (sr *ServiceRegistration) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(sr.heartbeatInt)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sr.stopCh:
			return
		case <-ticker.C:
			sr.sendHeartbeat(ctx)
		}
	}
}

// sendHeartbeat sends one heartbeat. A NotFound answer means the registry
// dropped the instance; it is registered again on this and every following
// tick until that succeeds.
func (sr *ServiceRegistration) sendHeartbeat(ctx context.Context) {
	sr.mu.Lock()
	id, lost, stopped := sr.serviceID, sr.lost, sr.stopped
	sr.mu.Unlock()

	if stopped {
		return
	}
	if id == "" {
		if lost {
			sr.reregister(ctx)
		}
		return
	}

	err := sr.client.Heartbeat(ctx, id)
	switch {
	case err == nil:
	case discovery.IsNotFound(err):
		sr.logger.Warn("Heartbeat rejected, registering again", "id", id)
		sr.mu.Lock()
		if sr.serviceID != id {
			// deregistered or replaced meanwhile
			sr.mu.Unlock()
			return
		}
		sr.serviceID = ""
		sr.lost = true
		sr.mu.Unlock()
		sr.reregister(ctx)
	default:
		sr.logger.Warn("Heartbeat failed", "id", id, "error", err)
	}
}

func (sr *ServiceRegistration) reregister(ctx context.Context) {
	id, err := sr.register(ctx)
	if err != nil {
		sr.logger.Error("Re-registration failed, retrying on next heartbeat", "error", err)
		return
	}

	sr.mu.Lock()
	if sr.stopped || !sr.lost {
		sr.mu.Unlock()
		// stopped meanwhile, undo
		if err := sr.client.Deregister(ctx, id); err != nil {
			sr.logger.Warn("Deregister after stop failed", "id", id, "error", err)
		}
		return
	}
	sr.serviceID = id
	sr.lost = false
	sr.mu.Unlock()
}

// RegisterService registers once and starts the heartbeat
func RegisterService(ctx context.Context, client discovery.Client, cfg Config) (*ServiceRegistration, error) {
	reg := New(client, cfg)

	if err := reg.Register(ctx); err != nil {
		return nil, err
	}

	reg.StartHeartbeat(ctx)
	return reg, nil
}
