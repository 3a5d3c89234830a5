package samples

import (
	"context"
	"embed"
	"sync/atomic"

	"github.com/msto63/grpc-sample/pkg/policy"
	"google.golang.org/grpc"
	"google.golang.org/grpc/stats"
)

//go:embed serviceconfig/*.json
var serviceConfigs embed.FS

// Names of the built-in service configs
const (
	RetryConfig       = "retry"
	HedgingConfig     = "hedging"
	HealthCheckConfig = "health_check"
)

// ServiceConfig loads path, or the built-in config name when path is empty
func ServiceConfig(name, path string) (*policy.ServiceConfig, error) {
	if path != "" {
		return policy.Load(path)
	}
	data, err := serviceConfigs.ReadFile("serviceconfig/" + name + ".json")
	if err != nil {
		return nil, err
	}
	return policy.Parse(data)
}

// PolicyResult holds the replies and how many attempts reached the wire
type PolicyResult struct {
	Replies  []string
	Attempts int
}

// attemptCounter counts client attempts. grpc starts a new attempt (with
// its own Begin event) for every retry and every hedged call.
type attemptCounter struct {
	n atomic.Int64
}

func (c *attemptCounter) TagRPC(ctx context.Context, _ *stats.RPCTagInfo) context.Context {
	return ctx
}

func (c *attemptCounter) HandleRPC(_ context.Context, s stats.RPCStats) {
	if b, ok := s.(*stats.Begin); ok && b.IsClient() {
		c.n.Add(1)
	}
}

func (c *attemptCounter) TagConn(ctx context.Context, _ *stats.ConnTagInfo) context.Context {
	return ctx
}

func (c *attemptCounter) HandleConn(context.Context, stats.ConnStats) {}

func runWithPolicy(ctx context.Context, opts Options, sc *policy.ServiceConfig) (PolicyResult, error) {
	counter := &attemptCounter{}
	extra := append(sc.DialOptions(), grpc.WithStatsHandler(counter))
	replies, err := RunHelloWorld(ctx, opts.with(extra...))
	result := PolicyResult{Replies: replies, Attempts: int(counter.n.Load())}
	samplesLogger.Info("Policy run finished", "replies", len(replies), "attempts", result.Attempts, "error", err)
	return result, err
}

// RunRetry calls a flaky server with the retry policy of sc; grpc itself
// retries UNAVAILABLE answers
func RunRetry(ctx context.Context, opts Options, sc *policy.ServiceConfig) (PolicyResult, error) {
	return runWithPolicy(ctx, opts, sc)
}

// RunHedging calls a slow server with the hedging policy of sc; the
// hedging interceptor sends extra attempts while the first one stalls
func RunHedging(ctx context.Context, opts Options, sc *policy.ServiceConfig) (PolicyResult, error) {
	return runWithPolicy(ctx, opts, sc)
}
