package samples

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	helloworld "github.com/msto63/grpc-sample/api/hello"
	helloserver "github.com/msto63/grpc-sample/internal/hello/server"
	"github.com/msto63/grpc-sample/internal/hello/service"
	registryserver "github.com/msto63/grpc-sample/internal/registry/server"
	"github.com/msto63/grpc-sample/pkg/core/discovery"
	coregrpc "github.com/msto63/grpc-sample/pkg/core/grpc"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"github.com/msto63/grpc-sample/pkg/resolver"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// sequence returns the values in order, then the last one forever
func sequence(values ...float64) func() float64 {
	var mu sync.Mutex
	i := 0
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

func startServer(t *testing.T, mutate func(*helloserver.Config)) *helloserver.Server {
	t.Helper()
	cfg := helloserver.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.HealthInterval = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := helloserver.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	return srv
}

func optionsFor(srv *helloserver.Server, requests int) Options {
	opts := DefaultOptions()
	opts.Target = srv.Address()
	opts.Requests = requests
	opts.Timeout = 5 * time.Second
	return opts
}

func equal(a, b []string) bool {
	return strings.Join(a, "|") == strings.Join(b, "|")
}

func TestRunHelloWorld(t *testing.T) {
	srv := startServer(t, nil)
	got, err := RunHelloWorld(context.Background(), optionsFor(srv, 2))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Hello World 0", "Hello World 1"}; !equal(got, want) {
		t.Errorf("RunHelloWorld() = %v, want %v", got, want)
	}
}

func TestRunFuture(t *testing.T) {
	srv := startServer(t, nil)
	got, err := RunFuture(context.Background(), optionsFor(srv, 3))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Hello World 0", "Hello World 1", "Hello World 2"}; !equal(got, want) {
		t.Errorf("RunFuture() = %v, want %v", got, want)
	}
}

func TestRunAsync(t *testing.T) {
	srv := startServer(t, nil)
	got, err := RunAsync(context.Background(), optionsFor(srv, 5), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 || got[4] != "Hello World 4" {
		t.Errorf("RunAsync() = %v", got)
	}
}

func TestRunAsync_Failure(t *testing.T) {
	srv := startServer(t, func(c *helloserver.Config) {
		c.Greeter.Behavior = service.BehaviorFlaky
		c.Greeter.FailureRate = 1
		c.Greeter.Rand = func() float64 { return 0 }
	})
	if _, err := RunAsync(context.Background(), optionsFor(srv, 2), 10); err == nil {
		t.Error("RunAsync() against a failing server should fail")
	}
}

func TestRunStreams(t *testing.T) {
	srv := startServer(t, func(c *helloserver.Config) { c.Greeter.StreamCount = 5 })
	ctx := context.Background()

	replies, err := RunServerStream(ctx, optionsFor(srv, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 5 || replies[0] != "0: Hello World" || replies[4] != "4: Hello World" {
		t.Errorf("RunServerStream() = %v", replies)
	}

	cs, err := RunClientStream(ctx, optionsFor(srv, 3))
	if err != nil {
		t.Fatal(err)
	}
	if cs.Reply != "Hello World 0, World 1, World 2" || cs.Count != 3 {
		t.Errorf("RunClientStream() = %+v", cs)
	}

	bidi, err := RunBidiStream(ctx, optionsFor(srv, 3))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Hello World 0", "Hello World 1", "Hello World 2"}; !equal(bidi, want) {
		t.Errorf("RunBidiStream() = %v, want %v", bidi, want)
	}
}

func TestRunInterceptor(t *testing.T) {
	srv := startServer(t, nil)
	buf := &syncBuffer{}
	logger := logging.NewWithOutput("interceptor", buf, logging.LevelDebug, logging.FormatText)

	replies, err := RunInterceptor(context.Background(), optionsFor(srv, 1), logger)
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 2 {
		t.Errorf("replies = %v, want unary and bidi reply", replies)
	}
	for _, phase := range []string{"call started", "half close"} {
		if !strings.Contains(buf.String(), phase) {
			t.Errorf("log misses %q:\n%s", phase, buf.String())
		}
	}
}

func TestRunStreamTracer(t *testing.T) {
	srv := startServer(t, nil)
	buf := &syncBuffer{}
	logger := logging.NewWithOutput("stream-tracer", buf, logging.LevelDebug, logging.FormatText)

	if _, err := RunStreamTracer(context.Background(), optionsFor(srv, 1), logger, nil); err != nil {
		t.Fatal(err)
	}
	// the last events are logged after the reply reached the caller
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && strings.Count(buf.String(), "stream closed") < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	for _, ev := range []string{"stream begin", "outbound message", "inbound message", "stream closed"} {
		if !strings.Contains(buf.String(), ev) {
			t.Errorf("trace misses %q", ev)
		}
	}
}

func TestRunBinlog(t *testing.T) {
	srv := startServer(t, nil)
	path := filepath.Join(t.TempDir(), "binlog.bin")

	result, err := RunBinlog(context.Background(), optionsFor(srv, 1), path, "*")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Replies) != 2 {
		t.Errorf("Replies = %v", result.Replies)
	}
	joined := strings.Join(result.Entries, "\n")
	for _, ev := range []string{"EVENT_TYPE_CLIENT_HEADER", "EVENT_TYPE_CLIENT_MESSAGE", "EVENT_TYPE_SERVER_TRAILER"} {
		if !strings.Contains(joined, ev) {
			t.Errorf("binlog misses %s:\n%s", ev, joined)
		}
	}

	if _, err := RunBinlog(context.Background(), optionsFor(srv, 1), path, "nomethod"); err == nil {
		t.Error("RunBinlog() with an invalid filter should fail")
	}
}

func TestServiceConfig_BuiltIns(t *testing.T) {
	for _, name := range []string{RetryConfig, HedgingConfig, HealthCheckConfig} {
		if _, err := ServiceConfig(name, ""); err != nil {
			t.Errorf("ServiceConfig(%s) error = %v", name, err)
		}
	}
	if _, err := ServiceConfig("missing", ""); err == nil {
		t.Error("ServiceConfig(missing) should fail")
	}
}

func TestRunRetry(t *testing.T) {
	srv := startServer(t, func(c *helloserver.Config) {
		c.Greeter.Behavior = service.BehaviorFlaky
		c.Greeter.Rand = sequence(0, 0, 0.9)
	})
	sc, err := ServiceConfig(RetryConfig, "")
	if err != nil {
		t.Fatal(err)
	}

	result, err := RunRetry(context.Background(), optionsFor(srv, 1), sc)
	if err != nil {
		t.Fatalf("RunRetry() error = %v", err)
	}
	if !equal(result.Replies, []string{"Retry Success: World"}) || result.Attempts != 3 {
		t.Errorf("RunRetry() = %+v, want one success after 3 attempts", result)
	}
}

func TestRunHedging(t *testing.T) {
	srv := startServer(t, func(c *helloserver.Config) {
		c.Greeter.Behavior = service.BehaviorSlow
		c.Greeter.SlowDelay = 3 * time.Second
		c.Greeter.Rand = sequence(0, 0.9)
	})
	sc, err := ServiceConfig(HedgingConfig, "")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	result, err := RunHedging(context.Background(), optionsFor(srv, 1), sc)
	if err != nil {
		t.Fatalf("RunHedging() error = %v", err)
	}
	if !equal(result.Replies, []string{"Hedging Success: World"}) || result.Attempts < 2 {
		t.Errorf("RunHedging() = %+v", result)
	}
	if elapsed := time.Since(start); elapsed >= 3*time.Second {
		t.Errorf("hedged call took %v, the slow attempt was not bypassed", elapsed)
	}
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}
	return host, p
}

// startBackends starts n address-echoing servers registered as grpc-server
func startBackends(t *testing.T, n int) (*discovery.LocalRegistry, []*helloserver.Server) {
	t.Helper()
	reg := discovery.NewLocalRegistry()
	var servers []*helloserver.Server
	for i := 0; i < n; i++ {
		srv := startServer(t, func(c *helloserver.Config) { c.Greeter.Behavior = service.BehaviorAddress })
		host, port := splitAddr(t, srv.Address())
		if err := reg.Register(context.Background(), &discovery.ServiceInfo{Name: "grpc-server", Address: host, Port: port}); err != nil {
			t.Fatal(err)
		}
		servers = append(servers, srv)
	}
	return reg, servers
}

func balanced(reg discovery.Client) Balanced {
	return Balanced{
		Registry: reg,
		Service:  "grpc-server",
		Resolver: resolver.Config{RefreshInterval: 50 * time.Millisecond, MinResolveInterval: 10 * time.Millisecond},
	}
}

// untilBackends repeats run until it saw want backends or two seconds passed
func untilBackends(t *testing.T, want int, run func() (Distribution, error)) Distribution {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		dist, err := run()
		if err != nil {
			t.Fatal(err)
		}
		if len(dist.Counts) >= want || time.Now().After(deadline) {
			return dist
		}
	}
}

func TestRunLoadBalancer(t *testing.T) {
	reg, servers := startBackends(t, 2)
	opts := optionsFor(servers[0], 10)

	dist := untilBackends(t, 2, func() (Distribution, error) {
		return RunLoadBalancer(context.Background(), opts, balanced(reg))
	})
	if got, want := dist.Backends(), []string{servers[0].Address(), servers[1].Address()}; len(got) != 2 || !contains(want, got[0]) || !contains(want, got[1]) {
		t.Errorf("Backends() = %v, want %v", got, want)
	}
	if len(dist.Replies) != 10 || dist.Errors != 0 {
		t.Errorf("distribution = %+v", dist)
	}
}

func TestRunNameResolver(t *testing.T) {
	reg, servers := startBackends(t, 2)
	dist := untilBackends(t, 2, func() (Distribution, error) {
		return RunNameResolver(context.Background(), optionsFor(servers[0], 10), balanced(reg))
	})
	if len(dist.Counts) != 2 {
		t.Errorf("round_robin used %v, want both backends", dist.Counts)
	}
}

func TestRunHealthCheck_SkipsNotServing(t *testing.T) {
	reg, servers := startBackends(t, 2)
	servers[1].HealthServer().SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	sc, err := ServiceConfig(HealthCheckConfig, "")
	if err != nil {
		t.Fatal(err)
	}
	dist, err := RunHealthCheck(context.Background(), optionsFor(servers[0], 10), balanced(reg), sc.JSON())
	if err != nil {
		t.Fatal(err)
	}
	if dist.Counts[servers[1].Address()] != 0 || dist.Counts[servers[0].Address()] != 10 {
		t.Errorf("distribution = %v, want every call on %s", dist.Counts, servers[0].Address())
	}
}

func TestWatchLoadBalancer(t *testing.T) {
	reg, servers := startBackends(t, 1)
	b := balanced(reg)
	b.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var picks []Pick
	err := WatchLoadBalancer(ctx, optionsFor(servers[0], 1), b, func(p Pick) {
		picks = append(picks, p)
		if len(picks) == 3 {
			cancel()
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(picks) != 3 || picks[0].Backend != servers[0].Address() || picks[0].Err != nil {
		t.Errorf("picks = %+v", picks)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestRunChannelz(t *testing.T) {
	srv := startServer(t, func(c *helloserver.Config) { c.Channelz = true })
	report, err := RunChannelz(context.Background(), optionsFor(srv, 2), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Replies) != 2 {
		t.Errorf("Replies = %v", report.Replies)
	}
	if len(report.Servers) == 0 || len(report.Channels) == 0 {
		t.Fatalf("report = %+v, want servers and channels", report)
	}
	var started int64
	for _, s := range report.Servers {
		started += s.Started
	}
	if started < 2 {
		t.Errorf("servers started %d calls, want at least 2", started)
	}
}

func TestRunReflection(t *testing.T) {
	srv := startServer(t, func(c *helloserver.Config) { c.Reflection = true })
	services, err := RunReflection(context.Background(), optionsFor(srv, 1))
	if err != nil {
		t.Fatal(err)
	}
	var hello *ServiceDescription
	for i := range services {
		if services[i].Name == helloworld.ServiceName {
			hello = &services[i]
		}
	}
	if hello == nil {
		t.Fatalf("services = %+v, want %s", services, helloworld.ServiceName)
	}
	if hello.File != helloworld.FileName || len(hello.Methods) != 4 {
		t.Errorf("hello = %+v", hello)
	}
	kinds := map[string]string{}
	for _, m := range hello.Methods {
		kinds[m.Name] = m.Kind()
		if m.Input != "google.protobuf.StringValue" {
			t.Errorf("%s input = %s", m.Name, m.Input)
		}
	}
	want := map[string]string{
		"SayHello":             "unary",
		"SayHelloServerStream": "server-stream",
		"SayHelloClientStream": "client-stream",
		"SayHelloBidiStream":   "bidi-stream",
	}
	for name, kind := range want {
		if kinds[name] != kind {
			t.Errorf("%s kind = %q, want %q", name, kinds[name], kind)
		}
	}
}

func TestRunTLS(t *testing.T) {
	cert, key, err := coregrpc.GenerateSelfSignedCert(t.TempDir(), []string{"localhost", "127.0.0.1"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	srv := startServer(t, func(c *helloserver.Config) {
		c.CertFile = cert
		c.KeyFile = key
	})

	got, err := RunTLS(context.Background(), optionsFor(srv, 1), cert, "localhost")
	if err != nil {
		t.Fatal(err)
	}
	if !equal(got, []string{"Hello World"}) {
		t.Errorf("RunTLS() = %v", got)
	}

	// plaintext against a TLS server fails
	if _, err := RunHelloWorld(context.Background(), optionsFor(srv, 1)); err == nil {
		t.Error("plaintext call to a TLS server should fail")
	}
}

func TestListAndLocateInstances(t *testing.T) {
	cfg := registryserver.DefaultConfig()
	cfg.Host, cfg.Port = "127.0.0.1", 0
	cfg.Service.SweepInterval = time.Hour
	reg, err := registryserver.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	reg.Service().SetProber(func(context.Context, *discovery.ServiceInfo) (bool, string) { return true, "" })
	ctx := context.Background()
	if err := reg.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		reg.Stop(stopCtx)
	})

	client, err := discovery.NewRemoteClient(reg.Address())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	for i, name := range []string{"grpc-server", "grpc-server", "other"} {
		if err := client.Register(ctx, &discovery.ServiceInfo{Name: name, Address: "localhost", Port: 50051 + i}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := ListInstances(ctx, reg.Address())
	if err != nil || len(all) != 3 {
		t.Fatalf("ListInstances() = %v, %v", all, err)
	}
	located, err := LocateInstances(ctx, reg.Address(), "grpc-server")
	if err != nil || len(located) != 2 {
		t.Fatalf("LocateInstances() = %v, %v", located, err)
	}
	for _, inst := range located {
		if inst.Name != "grpc-server" {
			t.Errorf("located %s", inst.Name)
		}
	}
}
