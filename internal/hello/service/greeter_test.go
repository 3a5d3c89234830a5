package service

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	helloworld "github.com/msto63/grpc-sample/api/hello"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func fixed(v float64) func() float64 {
	return func() float64 { return v }
}

func startGreeter(t *testing.T, g *Greeter) helloworld.HelloServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	helloworld.RegisterHelloServiceServer(srv, g)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return helloworld.NewHelloServiceClient(conn)
}

func TestParseBehavior(t *testing.T) {
	tests := []struct {
		in      string
		want    Behavior
		wantErr bool
	}{
		{"", BehaviorPlain, false},
		{"plain", BehaviorPlain, false},
		{"Flaky", BehaviorFlaky, false},
		{" slow ", BehaviorSlow, false},
		{"address", BehaviorAddress, false},
		{"chaos", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBehavior(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBehavior(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseBehavior(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	g := New(Config{})
	cfg := g.Config()
	if cfg.Behavior != BehaviorPlain || cfg.StreamCount != 100 || cfg.SlowDelay != time.Second {
		t.Errorf("Config() = %+v", cfg)
	}
	if cfg.FailureRate != 0.7 || cfg.SlowRate != 0.7 {
		t.Errorf("rates = %v/%v, want 0.7/0.7", cfg.FailureRate, cfg.SlowRate)
	}
}

func TestNew_DefaultRatesApply(t *testing.T) {
	_, err := New(Config{Behavior: BehaviorFlaky, Rand: fixed(0.5)}).
		SayHello(context.Background(), helloworld.NewMessage("x"))
	if status.Code(err) != codes.Unavailable {
		t.Errorf("flaky with default rate: error = %v, want Unavailable", err)
	}

	g := New(Config{Behavior: BehaviorSlow, SlowDelay: 30 * time.Millisecond, Rand: fixed(0.5)})
	start := time.Now()
	if _, err := g.SayHello(context.Background(), helloworld.NewMessage("x")); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("slow with default rate returned after %v, want the delay", elapsed)
	}
}

func TestSayHello(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		want     string
		wantCode codes.Code
	}{
		{"plain", Config{}, "Hello world", codes.OK},
		{"flaky fails", Config{Behavior: BehaviorFlaky, FailureRate: 0.7, Rand: fixed(0.5)}, "", codes.Unavailable},
		{"flaky succeeds", Config{Behavior: BehaviorFlaky, FailureRate: 0.7, Rand: fixed(0.9)}, "Retry Success: world", codes.OK},
		{"slow fast path", Config{Behavior: BehaviorSlow, SlowRate: 0.7, Rand: fixed(0.9)}, "Hedging Success: world", codes.OK},
		{"slow delayed", Config{Behavior: BehaviorSlow, SlowRate: 0.7, SlowDelay: 20 * time.Millisecond, Rand: fixed(0.1)}, "Hedging Success: world", codes.OK},
		{"address", Config{Behavior: BehaviorAddress, Address: "localhost:50051"}, "localhost:50051", codes.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := New(tt.cfg).SayHello(context.Background(), helloworld.NewMessage("world"))
			if status.Code(err) != tt.wantCode {
				t.Fatalf("SayHello() error = %v, want %v", err, tt.wantCode)
			}
			if resp.GetValue() != tt.want {
				t.Errorf("SayHello() = %q, want %q", resp.GetValue(), tt.want)
			}
		})
	}
}

func TestSayHello_FlakyMessage(t *testing.T) {
	_, err := New(Config{Behavior: BehaviorFlaky, FailureRate: 1, Rand: fixed(0)}).
		SayHello(context.Background(), helloworld.NewMessage("x"))
	if status.Convert(err).Message() != "For retry" {
		t.Errorf("message = %q, want For retry", status.Convert(err).Message())
	}
}

func TestSayHello_SlowHonorsCancellation(t *testing.T) {
	g := New(Config{Behavior: BehaviorSlow, SlowRate: 1, SlowDelay: time.Hour, Rand: fixed(0)})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.SayHello(ctx, helloworld.NewMessage("x"))
	if status.Code(err) != codes.DeadlineExceeded {
		t.Errorf("SayHello() error = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("SayHello() ignored cancellation")
	}
}

func TestServerStream(t *testing.T) {
	client := startGreeter(t, New(Config{StreamCount: 5}))
	stream, err := client.SayHelloServerStream(context.Background(), helloworld.NewMessage("world"))
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, resp.GetValue())
	}
	if len(got) != 5 || got[0] != "0: Hello world" || got[4] != "4: Hello world" {
		t.Errorf("stream = %v", got)
	}
}

func TestClientStream(t *testing.T) {
	g := New(Config{})
	client := startGreeter(t, g)
	stream, err := client.SayHelloClientStream(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a", "b", "c"} {
		if err := stream.Send(helloworld.NewMessage(name)); err != nil {
			t.Fatal(err)
		}
	}
	resp, err := stream.CloseAndRecv()
	if err != nil {
		t.Fatal(err)
	}
	if resp.GetValue() != "Hello a, b, c" {
		t.Errorf("reply = %q", resp.GetValue())
	}
	if got := stream.Trailer().Get(CountTrailer); len(got) != 1 || got[0] != "3" {
		t.Errorf("trailer %s = %v, want [3]", CountTrailer, got)
	}
	if g.Streamed() != 3 {
		t.Errorf("Streamed() = %d, want 3", g.Streamed())
	}
}

func TestBidiStream(t *testing.T) {
	client := startGreeter(t, New(Config{}))
	stream, err := client.SayHelloBidiStream(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	names := []string{"a", "b", "c"}
	for _, name := range names {
		if err := stream.Send(helloworld.NewMessage(name)); err != nil {
			t.Fatal(err)
		}
		resp, err := stream.Recv()
		if err != nil {
			t.Fatal(err)
		}
		if resp.GetValue() != "Hello "+name {
			t.Errorf("reply = %q", resp.GetValue())
		}
	}
	stream.CloseSend()
	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("Recv() after CloseSend error = %v, want EOF", err)
	}
}

func TestServerStream_Cancelled(t *testing.T) {
	client := startGreeter(t, New(Config{StreamCount: 1 << 20}))
	ctx, cancel := context.WithCancel(metadata.AppendToOutgoingContext(context.Background(), "k", "v"))
	stream, err := client.SayHelloServerStream(ctx, helloworld.NewMessage("x"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Recv(); err != nil {
		t.Fatal(err)
	}
	cancel()
	for {
		_, err := stream.Recv()
		if err == nil {
			continue
		}
		if status.Code(err) != codes.Canceled && !strings.Contains(err.Error(), "canceled") {
			t.Errorf("Recv() error = %v, want Canceled", err)
		}
		break
	}
}
