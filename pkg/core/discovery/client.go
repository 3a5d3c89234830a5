package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	coreerrors "github.com/msto63/grpc-sample/pkg/core/errors"
	"github.com/msto63/grpc-sample/pkg/core/logging"
)

var discoveryLogger = logging.New("discovery")

// ServiceStatus represents the status of a service
type ServiceStatus string

const (
	ServiceStatusHealthy   ServiceStatus = "healthy"
	ServiceStatusUnhealthy ServiceStatus = "unhealthy"
	ServiceStatusStarting  ServiceStatus = "starting"
	ServiceStatusStopping  ServiceStatus = "stopping"
	ServiceStatusUnknown   ServiceStatus = "unknown"
)

// Health check types understood by the registry
const (
	CheckTCP  = "tcp"
	CheckGRPC = "grpc"
	CheckHTTP = "http"
	CheckNone = "none"
)

// HealthCheck describes how the registry probes an instance. An empty
// Target means the instance address.
type HealthCheck struct {
	Type     string
	Target   string
	Service  string
	Path     string
	Interval time.Duration
	Timeout  time.Duration
}

// ServiceInfo represents information about a registered service
type ServiceInfo struct {
	ID            string
	Name          string
	Version       string
	Address       string
	Port          int
	Status        ServiceStatus
	Metadata      map[string]string
	Tags          []string
	Check         *HealthCheck
	LastHeartbeat time.Time
	RegisteredAt  time.Time
}

// FullAddress returns the full address of the service
func (s *ServiceInfo) FullAddress() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// HasTag reports whether tag is among the service tags
func (s *ServiceInfo) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (s *ServiceInfo) Clone() *ServiceInfo {
	if s == nil {
		return nil
	}
	c := *s
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	if s.Tags != nil {
		c.Tags = append([]string(nil), s.Tags...)
	}
	if s.Check != nil {
		check := *s.Check
		c.Check = &check
	}
	return &c
}

// MetadataVersion is the metadata key an instance announces its
// application version under
const MetadataVersion = "version"

// AppVersion returns the announced application version, falling back to
// Version
func (s *ServiceInfo) AppVersion() string {
	if v := s.Metadata[MetadataVersion]; v != "" {
		return v
	}
	return s.Version
}

// ErrNotFound is returned for unknown service ids
var ErrNotFound = coreerrors.New("service not found").WithCode(coreerrors.CodeNotFound)

// IsNotFound reports whether err means the registry does not know the id
func IsNotFound(err error) bool {
	return coreerrors.HasCode(err, coreerrors.CodeNotFound)
}

func notFound(id string) error {
	return coreerrors.Wrap(ErrNotFound, id).WithOperation("discovery")
}

// Client is the service discovery client interface
type Client interface {
	// Register registers a service instance and returns its id
	Register(ctx context.Context, info *ServiceInfo) error

	// Deregister removes a service instance from the registry
	Deregister(ctx context.Context, id string) error

	// Heartbeat keeps the registration alive
	Heartbeat(ctx context.Context, id string) error

	// Discover finds healthy services by name
	Discover(ctx context.Context, name string) ([]*ServiceInfo, error)

	// Get returns a specific service by ID
	Get(ctx context.Context, id string) (*ServiceInfo, error)

	// List returns all registered services
	List(ctx context.Context) ([]*ServiceInfo, error)

	// Close closes the client connection
	Close() error
}

// LocalRegistry is an in-memory service registry for local development
// and tests.
type LocalRegistry struct {
	mu       sync.RWMutex
	services map[string]*ServiceInfo
}

// NewLocalRegistry creates a new local registry
func NewLocalRegistry() *LocalRegistry {
	return &LocalRegistry{
		services: make(map[string]*ServiceInfo),
	}
}

// Register registers a service. A missing ID is generated and written
// back to info.
func (r *LocalRegistry) Register(ctx context.Context, info *ServiceInfo) error {
	if info.Name == "" {
		return coreerrors.New("service name is required").WithCode(coreerrors.CodeInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if info.ID == "" {
		info.ID = uuid.New().String()
	}
	now := time.Now()
	info.RegisteredAt = now
	info.LastHeartbeat = now
	if info.Status == "" {
		info.Status = ServiceStatusHealthy
	}

	r.services[info.ID] = info.Clone()
	return nil
}

// Deregister removes a service
func (r *LocalRegistry) Deregister(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.services, id)
	return nil
}

// Heartbeat updates the heartbeat timestamp
func (r *LocalRegistry) Heartbeat(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.services[id]; ok {
		svc.LastHeartbeat = time.Now()
		return nil
	}
	return notFound(id)
}

// SetStatus changes the status of a registered service
func (r *LocalRegistry) SetStatus(id string, status ServiceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.services[id]; ok {
		svc.Status = status
		return nil
	}
	return notFound(id)
}

// Discover finds healthy services by name, ordered by id
func (r *LocalRegistry) Discover(ctx context.Context, name string) ([]*ServiceInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*ServiceInfo
	for _, svc := range r.services {
		if svc.Name == name && svc.Status == ServiceStatusHealthy {
			results = append(results, svc.Clone())
		}
	}
	SortByID(results)
	return results, nil
}

// Get returns a specific service
func (r *LocalRegistry) Get(ctx context.Context, id string) (*ServiceInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if svc, ok := r.services[id]; ok {
		return svc.Clone(), nil
	}
	return nil, notFound(id)
}

// List returns all services, ordered by id
func (r *LocalRegistry) List(ctx context.Context) ([]*ServiceInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*ServiceInfo, 0, len(r.services))
	for _, svc := range r.services {
		results = append(results, svc.Clone())
	}
	SortByID(results)
	return results, nil
}

// Close closes the registry (no-op for local)
func (r *LocalRegistry) Close() error {
	return nil
}

// SortByID orders services by id for stable output
func SortByID(services []*ServiceInfo) {
	sort.Slice(services, func(i, j int) bool {
		return services[i].ID < services[j].ID
	})
}

// ServiceLocator provides cached service lookup
type ServiceLocator struct {
	client     Client
	mu         sync.RWMutex
	cache      map[string][]*ServiceInfo
	lastUpdate map[string]time.Time
	ttl        time.Duration
	next       map[string]int
}

// NewServiceLocator creates a new service locator
func NewServiceLocator(client Client, cacheTTL time.Duration) *ServiceLocator {
	return &ServiceLocator{
		client:     client,
		cache:      make(map[string][]*ServiceInfo),
		lastUpdate: make(map[string]time.Time),
		ttl:        cacheTTL,
		next:       make(map[string]int),
	}
}

// Locate returns one healthy instance of name, rotating over the cached
// instances on every call.
func (l *ServiceLocator) Locate(ctx context.Context, name string) (*ServiceInfo, error) {
	services, err := l.LocateAll(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, coreerrors.Newf("no healthy instances found for service: %s", name).
			WithCode(coreerrors.CodeServiceUnavailable)
	}

	l.mu.Lock()
	i := l.next[name] % len(services)
	l.next[name] = i + 1
	l.mu.Unlock()
	return services[i], nil
}

// LocateAll finds all healthy instances of a service
func (l *ServiceLocator) LocateAll(ctx context.Context, name string) ([]*ServiceInfo, error) {
	l.mu.RLock()
	cached, ok := l.cache[name]
	lastUpdate := l.lastUpdate[name]
	l.mu.RUnlock()

	if ok && time.Since(lastUpdate) < l.ttl {
		return cached, nil
	}

	services, err := l.client.Discover(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", name, err)
	}

	l.mu.Lock()
	l.cache[name] = services
	l.lastUpdate[name] = time.Now()
	l.mu.Unlock()

	return services, nil
}

// InvalidateCache clears the cache for a service
func (l *ServiceLocator) InvalidateCache(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, name)
	delete(l.lastUpdate, name)
}

// ClearCache clears all cached entries
func (l *ServiceLocator) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string][]*ServiceInfo)
	l.lastUpdate = make(map[string]time.Time)
}
