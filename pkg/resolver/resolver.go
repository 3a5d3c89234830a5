// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     resolver
// Description: Name resolver backed by the service registry
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

// Package resolver resolves "registry:///<service>" targets to the healthy
// instances known to the service registry.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/msto63/grpc-sample/pkg/core/discovery"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/attributes"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/resolver"
	"google.golang.org/grpc/status"
)

// Scheme is the target scheme handled by the builder
const Scheme = "registry"

// Address attribute keys
const (
	AttrServiceID = "service_id"
	AttrVersion   = "version"
)

var resolverLogger = logging.New("resolver")

// Config controls polling
type Config struct {
	// RefreshInterval between polls of the registry
	RefreshInterval time.Duration
	// MinResolveInterval limits how often ResolveNow triggers a poll
	MinResolveInterval time.Duration
}

// DefaultConfig polls every 10s and allows ResolveNow once a second
func DefaultConfig() Config {
	return Config{
		RefreshInterval:    10 * time.Second,
		MinResolveInterval: time.Second,
	}
}

// Builder creates registry resolvers
type Builder struct {
	client discovery.Client
	config Config
}

// NewBuilder creates a builder discovering through client
func NewBuilder(client discovery.Client, cfg Config) *Builder {
	def := DefaultConfig()
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = def.RefreshInterval
	}
	if cfg.MinResolveInterval <= 0 {
		cfg.MinResolveInterval = def.MinResolveInterval
	}
	return &Builder{client: client, config: cfg}
}

// Register installs the builder globally; call before creating clients
func (b *Builder) Register() {
	resolver.Register(b)
}

func (b *Builder) Scheme() string {
	return Scheme
}

func (b *Builder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	service := target.Endpoint()
	if service == "" {
		return nil, status.Errorf(codes.InvalidArgument, "registry target %q names no service", target.URL.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &registryResolver{
		service: service,
		client:  b.client,
		cc:      cc,
		config:  b.config,
		limiter: rate.NewLimiter(rate.Every(b.config.MinResolveInterval), 1),
		trigger: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	r.wg.Add(1)
	go r.watch()
	resolverLogger.Info("Resolver started", "service", service, "refresh", b.config.RefreshInterval.String())
	return r, nil
}

type registryResolver struct {
	service string
	client  discovery.Client
	cc      resolver.ClientConn
	config  Config
	limiter *rate.Limiter
	trigger chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ResolveNow asks for a poll; requests are coalesced and rate limited
func (r *registryResolver) ResolveNow(resolver.ResolveNowOptions) {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *registryResolver) Close() {
	r.cancel()
	r.wg.Wait()
	resolverLogger.Info("Resolver closed", "service", r.service)
}

func (r *registryResolver) watch() {
	defer r.wg.Done()

	// the first poll consumes the limiter token
	r.limiter.Allow()
	r.resolve()

	ticker := time.NewTicker(r.config.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.resolve()
		case <-r.trigger:
			if err := r.limiter.Wait(r.ctx); err != nil {
				return
			}
			r.resolve()
		}
	}
}

func (r *registryResolver) resolve() {
	ctx, cancel := context.WithTimeout(r.ctx, r.config.RefreshInterval)
	defer cancel()

	instances, err := r.client.Discover(ctx, r.service)
	if r.ctx.Err() != nil {
		return
	}
	if err != nil {
		resolverLogger.Warn("Discovery failed", "service", r.service, "error", err)
		r.cc.ReportError(status.Errorf(codes.Unavailable, "discover %s: %v", r.service, err))
		return
	}
	if len(instances) == 0 {
		resolverLogger.Warn("No available instances", "service", r.service)
		r.cc.ReportError(status.Error(codes.Unavailable, "no available instances"))
		return
	}

	addrs := Addresses(instances)
	if err := r.cc.UpdateState(resolver.State{Addresses: addrs}); err != nil {
		resolverLogger.Warn("Resolver state rejected", "service", r.service, "error", err)
		return
	}
	resolverLogger.Debug("Resolved", "service", r.service, "addresses", len(addrs))
}

// Addresses converts instances into resolver addresses carrying the
// service id and version as attributes.
func Addresses(instances []*discovery.ServiceInfo) []resolver.Address {
	addrs := make([]resolver.Address, 0, len(instances))
	for _, inst := range instances {
		addrs = append(addrs, resolver.Address{
			Addr:       inst.FullAddress(),
			Attributes: attributes.New(AttrServiceID, inst.ID).WithValue(AttrVersion, inst.AppVersion()),
		})
	}
	return addrs
}

// ServiceID returns the service id attribute of addr
func ServiceID(addr resolver.Address) string {
	if v, ok := addr.Attributes.Value(AttrServiceID).(string); ok {
		return v
	}
	return ""
}

// Target builds a registry target for service
func Target(service string) string {
	return Scheme + ":///" + service
}
