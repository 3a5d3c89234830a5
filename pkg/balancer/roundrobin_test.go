package balancer

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	helloworld "github.com/msto63/grpc-sample/api/hello"
	"github.com/msto63/grpc-sample/pkg/core/discovery"
	registryresolver "github.com/msto63/grpc-sample/pkg/resolver"
	"google.golang.org/grpc"
	"google.golang.org/grpc/balancer"
	"google.golang.org/grpc/balancer/base"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/resolver"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type fakeSubConn struct {
	balancer.SubConn
	name string
}

func TestPicker_RoundRobin(t *testing.T) {
	a, b, c := &fakeSubConn{name: "a"}, &fakeSubConn{name: "b"}, &fakeSubConn{name: "c"}
	info := base.PickerBuildInfo{ReadySCs: map[balancer.SubConn]base.SubConnInfo{
		c: {Address: resolver.Address{Addr: "host:3"}},
		a: {Address: resolver.Address{Addr: "host:1"}},
		b: {Address: resolver.Address{Addr: "host:2"}},
	}}

	p := (&pickerBuilder{}).Build(info)
	var got string
	for i := 0; i < 7; i++ {
		res, err := p.Pick(balancer.PickInfo{FullMethodName: "/svc/M"})
		if err != nil {
			t.Fatalf("Pick() error = %v", err)
		}
		got += res.SubConn.(*fakeSubConn).name
	}
	if got != "abcabca" {
		t.Errorf("picks = %s, want abcabca", got)
	}
}

func TestPicker_NoneReady(t *testing.T) {
	p := (&pickerBuilder{}).Build(base.PickerBuildInfo{})
	if _, err := p.Pick(balancer.PickInfo{}); err != balancer.ErrNoSubConnAvailable {
		t.Errorf("Pick() error = %v, want ErrNoSubConnAvailable", err)
	}
}

func TestRegistered(t *testing.T) {
	if balancer.Get(Name) == nil {
		t.Fatalf("balancer %s not registered", Name)
	}
}

type addressGreeter struct {
	helloworld.UnimplementedHelloServiceServer
	addr string
}

func (g *addressGreeter) SayHello(context.Context, *helloworld.HelloMessage) (*helloworld.HelloResponse, error) {
	return wrapperspb.String(g.addr), nil
}

func startBackend(t *testing.T, reg *discovery.LocalRegistry) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	srv := grpc.NewServer()
	helloworld.RegisterHelloServiceServer(srv, &addressGreeter{addr: addr})
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	port := lis.Addr().(*net.TCPAddr).Port
	reg.Register(context.Background(), &discovery.ServiceInfo{
		ID: strconv.Itoa(port), Name: "grpc-server", Address: "127.0.0.1", Port: port,
	})
	return addr
}

func TestRoundRobinOverRegistry(t *testing.T) {
	reg := discovery.NewLocalRegistry()
	first := startBackend(t, reg)
	second := startBackend(t, reg)

	builder := registryresolver.NewBuilder(reg, registryresolver.Config{RefreshInterval: time.Minute})
	conn, err := grpc.NewClient(registryresolver.Target("grpc-server"),
		grpc.WithResolvers(builder),
		grpc.WithDefaultServiceConfig(ServiceConfig),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	client := helloworld.NewHelloServiceClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// wait until both backends are ready so the picker holds both
	deadline := time.Now().Add(3 * time.Second)
	seen := map[string]int{}
	for time.Now().Before(deadline) && len(seen) < 2 {
		resp, err := client.SayHello(ctx, helloworld.NewMessage("x"), grpc.WaitForReady(true))
		if err != nil {
			t.Fatalf("SayHello() error = %v", err)
		}
		seen[resp.GetValue()]++
	}
	if seen[first] == 0 || seen[second] == 0 {
		t.Fatalf("backends seen = %v, want both %s and %s", seen, first, second)
	}

	// with both ready, consecutive calls alternate
	var prev string
	for i := 0; i < 4; i++ {
		resp, err := client.SayHello(ctx, helloworld.NewMessage("x"))
		if err != nil {
			t.Fatal(err)
		}
		if resp.GetValue() == prev {
			t.Errorf("call %d hit %s twice in a row", i, prev)
		}
		prev = resp.GetValue()
	}
}
