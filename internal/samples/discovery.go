package samples

import (
	"context"
	"sort"
	"time"

	helloworld "github.com/msto63/grpc-sample/api/hello"
	"github.com/msto63/grpc-sample/pkg/balancer"
	"github.com/msto63/grpc-sample/pkg/core/discovery"
	"github.com/msto63/grpc-sample/pkg/resolver"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/health" // client side health checking
)

// RoundRobinConfig selects grpc's built-in round_robin policy
const RoundRobinConfig = `{"loadBalancingConfig": [{"round_robin": {}}]}`

// Distribution records which backend answered each call. The servers of
// these samples reply with their own address.
type Distribution struct {
	Replies []string
	Counts  map[string]int
	Errors  int
}

// Backends returns the answering addresses in sorted order
func (d Distribution) Backends() []string {
	out := make([]string, 0, len(d.Counts))
	for addr := range d.Counts {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Balanced names the resolver and balancing setup of a run
type Balanced struct {
	// Registry is queried by the registry resolver
	Registry discovery.Client
	// Service is the registered service name
	Service  string
	Resolver resolver.Config
	// ServiceConfig selects the balancer and optional health checking
	ServiceConfig string
	// Interval between calls; zero sends them back to back
	Interval time.Duration
}

func (b Balanced) dial(opts Options) (helloworld.HelloServiceClient, func() error, error) {
	opts.Target = resolver.Target(b.Service)
	conn, err := opts.dial(
		grpc.WithResolvers(resolver.NewBuilder(b.Registry, b.Resolver)),
		grpc.WithDefaultServiceConfig(b.ServiceConfig),
	)
	if err != nil {
		return nil, nil, err
	}
	return helloworld.NewHelloServiceClient(conn), conn.Close, nil
}

// runBalanced sends opts.Requests calls through the registry resolver.
// Failed calls are counted, not returned, so a backend going away
// mid-run shows up in the distribution.
func runBalanced(ctx context.Context, opts Options, b Balanced) (Distribution, error) {
	dist := Distribution{Counts: map[string]int{}}
	client, closeConn, err := b.dial(opts)
	if err != nil {
		return dist, err
	}
	defer closeConn()

	for i, msg := range opts.messages() {
		if i > 0 && b.Interval > 0 {
			select {
			case <-ctx.Done():
				return dist, ctx.Err()
			case <-time.After(b.Interval):
			}
		}
		callCtx, cancel := opts.context(ctx)
		resp, err := client.SayHello(callCtx, helloworld.NewMessage(msg), grpc.WaitForReady(true))
		cancel()
		if err != nil {
			dist.Errors++
			samplesLogger.Warn("Balanced call failed", "error", err)
			continue
		}
		dist.Replies = append(dist.Replies, resp.GetValue())
		dist.Counts[resp.GetValue()]++
	}
	samplesLogger.Info("Balanced run finished", "service", b.Service, "backends", len(dist.Counts), "errors", dist.Errors)
	return dist, nil
}

// RunNameResolver resolves the service through the registry and spreads
// the calls with round_robin
func RunNameResolver(ctx context.Context, opts Options, b Balanced) (Distribution, error) {
	b.ServiceConfig = RoundRobinConfig
	return runBalanced(ctx, opts, b)
}

// RunLoadBalancer spreads the calls with custom_round_robin
func RunLoadBalancer(ctx context.Context, opts Options, b Balanced) (Distribution, error) {
	b.ServiceConfig = balancer.ServiceConfig
	return runBalanced(ctx, opts, b)
}

// RunHealthCheck uses round_robin with client side health checking, so
// backends reporting NOT_SERVING are skipped
func RunHealthCheck(ctx context.Context, opts Options, b Balanced, sc string) (Distribution, error) {
	b.ServiceConfig = sc
	return runBalanced(ctx, opts, b)
}

// Pick is one call of a watch
type Pick struct {
	At      time.Time
	Backend string
	Err     error
}

// WatchLoadBalancer calls every b.Interval until ctx is done and reports
// each pick to fn
func WatchLoadBalancer(ctx context.Context, opts Options, b Balanced, fn func(Pick)) error {
	if b.ServiceConfig == "" {
		b.ServiceConfig = balancer.ServiceConfig
	}
	if b.Interval <= 0 {
		b.Interval = time.Second
	}
	client, closeConn, err := b.dial(opts)
	if err != nil {
		return err
	}
	defer closeConn()

	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()
	for {
		callCtx, cancel := opts.context(ctx)
		resp, err := client.SayHello(callCtx, helloworld.NewMessage(opts.Message))
		cancel()
		if ctx.Err() != nil {
			return nil
		}
		fn(Pick{At: time.Now(), Backend: resp.GetValue(), Err: err})

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
