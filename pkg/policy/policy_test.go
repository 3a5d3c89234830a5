package policy

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	helloworld "github.com/msto63/grpc-sample/api/hello"
	coreerrors "github.com/msto63/grpc-sample/pkg/core/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const retryConfig = `{
  "methodConfig": [{
    "name": [{"service": "helloworld.HelloService", "method": "SayHello"}],
    "retryPolicy": {
      "maxAttempts": 5,
      "initialBackoff": "0.01s",
      "maxBackoff": "0.05s",
      "backoffMultiplier": 2,
      "retryableStatusCodes": ["UNAVAILABLE"]
    }
  }],
  "retryThrottling": {"maxTokens": 10, "tokenRatio": 0.1}
}`

const hedgingConfig = `{
  "methodConfig": [{
    "name": [{"service": "helloworld.HelloService"}],
    "hedgingPolicy": {
      "maxAttempts": 3,
      "hedgingDelay": "0.05s",
      "nonFatalStatusCodes": ["UNAVAILABLE", "DEADLINE_EXCEEDED"]
    }
  }]
}`

func TestParse(t *testing.T) {
	sc, err := Parse([]byte(retryConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	rp := sc.MethodConfig[0].RetryPolicy
	if rp.MaxAttempts != 5 || rp.InitialBackoff.Std() != 10*time.Millisecond || rp.BackoffMultiplier != 2 {
		t.Errorf("retryPolicy = %+v", rp)
	}
	if len(rp.RetryableStatusCodes) != 1 || rp.RetryableStatusCodes[0] != codes.Unavailable {
		t.Errorf("RetryableStatusCodes = %v", rp.RetryableStatusCodes)
	}
	if sc.JSON() != retryConfig {
		t.Error("JSON() should return the parsed document")
	}
	if sc.HasHedging() {
		t.Error("HasHedging() = true for a retry config")
	}

	hc, err := Parse([]byte(hedgingConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	hp := hc.MethodConfig[0].HedgingPolicy
	if hp.HedgingDelay.Std() != 50*time.Millisecond || !hp.NonFatal(codes.DeadlineExceeded) || hp.NonFatal(codes.Internal) {
		t.Errorf("hedgingPolicy = %+v", hp)
	}
	if len(hc.DialOptions()) != 2 {
		t.Errorf("DialOptions() = %d options, want 2", len(hc.DialOptions()))
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"syntax", `{`},
		{"bad duration", `{"methodConfig":[{"name":[{}],"timeout":"10"}]}`},
		{"one attempt", `{"methodConfig":[{"name":[{}],"retryPolicy":{"maxAttempts":1,"initialBackoff":"1s","maxBackoff":"1s","backoffMultiplier":1,"retryableStatusCodes":["UNAVAILABLE"]}}]}`},
		{"zero backoff", `{"methodConfig":[{"name":[{}],"retryPolicy":{"maxAttempts":2,"initialBackoff":"0s","maxBackoff":"1s","backoffMultiplier":1,"retryableStatusCodes":["UNAVAILABLE"]}}]}`},
		{"zero multiplier", `{"methodConfig":[{"name":[{}],"retryPolicy":{"maxAttempts":2,"initialBackoff":"1s","maxBackoff":"1s","backoffMultiplier":0,"retryableStatusCodes":["UNAVAILABLE"]}}]}`},
		{"no codes", `{"methodConfig":[{"name":[{}],"retryPolicy":{"maxAttempts":2,"initialBackoff":"1s","maxBackoff":"1s","backoffMultiplier":1,"retryableStatusCodes":[]}}]}`},
		{"both policies", `{"methodConfig":[{"name":[{}],"retryPolicy":{"maxAttempts":2,"initialBackoff":"1s","maxBackoff":"1s","backoffMultiplier":1,"retryableStatusCodes":["UNAVAILABLE"]},"hedgingPolicy":{"maxAttempts":2}}]}`},
		{"hedging one attempt", `{"methodConfig":[{"name":[{}],"hedgingPolicy":{"maxAttempts":1}}]}`},
		{"throttling tokens", `{"retryThrottling":{"maxTokens":2000,"tokenRatio":0.1}}`},
		{"unknown code", `{"methodConfig":[{"name":[{}],"hedgingPolicy":{"maxAttempts":2,"nonFatalStatusCodes":["NOPE"]}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			if err == nil {
				t.Fatal("Parse() should fail")
			}
			if !coreerrors.HasCode(err, coreerrors.CodeInvalidConfig) {
				t.Errorf("error code = %v, want INVALID_CONFIG", coreerrors.GetCode(err))
			}
		})
	}
}

func TestValidate_CapsAttempts(t *testing.T) {
	sc, err := Parse([]byte(`{"methodConfig":[{"name":[{}],"hedgingPolicy":{"maxAttempts":9}}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := sc.MethodConfig[0].HedgingPolicy.MaxAttempts; got != MaxAttemptsLimit {
		t.Errorf("MaxAttempts = %d, want %d", got, MaxAttemptsLimit)
	}
}

func TestLookup(t *testing.T) {
	sc, err := Parse([]byte(`{"methodConfig":[
		{"name":[{}], "timeout":"1s"},
		{"name":[{"service":"svc"}], "timeout":"2s"},
		{"name":[{"service":"svc","method":"Exact"}], "timeout":"3s"}
	]}`))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		method string
		want   time.Duration
	}{
		{"/svc/Exact", 3 * time.Second},
		{"/svc/Other", 2 * time.Second},
		{"/other/Method", time.Second},
	}
	for _, tt := range tests {
		mc := sc.Lookup(tt.method)
		if mc == nil || mc.Timeout.Std() != tt.want {
			t.Errorf("Lookup(%s) = %+v, want timeout %v", tt.method, mc, tt.want)
		}
	}

	empty, _ := Parse([]byte(`{}`))
	if empty.Lookup("/svc/Exact") != nil {
		t.Error("Lookup() on empty config should be nil")
	}
}

func TestDuration_JSON(t *testing.T) {
	d := Duration(1500 * time.Millisecond)
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"1.5s"` {
		t.Errorf("MarshalJSON() = %s, want \"1.5s\"", b)
	}
}

// fakeInvoker answers each attempt through fn and records the
// previous-attempts header.
type fakeInvoker struct {
	mu      sync.Mutex
	headers []string
	calls   atomic.Int32
	fn      func(ctx context.Context, attempt int) (string, error)
}

func (f *fakeInvoker) invoke(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
	n := int(f.calls.Add(1)) - 1
	md, _ := metadata.FromOutgoingContext(ctx)
	f.mu.Lock()
	f.headers = append(f.headers, append(md.Get(PreviousAttemptsHeader), "")[0])
	f.mu.Unlock()

	v, err := f.fn(ctx, n)
	if err != nil {
		return err
	}
	reply.(*wrapperspb.StringValue).Value = v
	return nil
}

func mustParse(t *testing.T, s string) *ServiceConfig {
	t.Helper()
	sc, err := Parse([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return sc
}

const sayHello = "/helloworld.HelloService/SayHello"

func TestHedging_SecondAttemptWins(t *testing.T) {
	inv := &fakeInvoker{fn: func(ctx context.Context, attempt int) (string, error) {
		if attempt == 0 {
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return "", status.FromContextError(ctx.Err()).Err()
			}
		}
		return "Hedging Success: attempt " + string(rune('0'+attempt)), nil
	}}

	reply := &wrapperspb.StringValue{}
	start := time.Now()
	err := HedgingInterceptor(mustParse(t, hedgingConfig))(context.Background(), sayHello,
		wrapperspb.String("World"), reply, nil, inv.invoke)
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if reply.Value != "Hedging Success: attempt 1" {
		t.Errorf("reply = %q", reply.Value)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("elapsed = %v, hedged attempt should win quickly", elapsed)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	if len(inv.headers) < 2 || inv.headers[0] != "" || inv.headers[1] != "1" {
		t.Errorf("previous attempt headers = %q", inv.headers)
	}
}

func TestHedging_FatalStops(t *testing.T) {
	inv := &fakeInvoker{fn: func(ctx context.Context, attempt int) (string, error) {
		return "", status.Error(codes.InvalidArgument, "bad request")
	}}
	err := HedgingInterceptor(mustParse(t, hedgingConfig))(context.Background(), sayHello,
		wrapperspb.String("x"), &wrapperspb.StringValue{}, nil, inv.invoke)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", status.Code(err))
	}
	if n := inv.calls.Load(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestHedging_AllNonFatalFail(t *testing.T) {
	sc := mustParse(t, `{"methodConfig":[{"name":[{}],"hedgingPolicy":{"maxAttempts":3,"hedgingDelay":"3600s","nonFatalStatusCodes":["UNAVAILABLE"]}}]}`)
	inv := &fakeInvoker{fn: func(ctx context.Context, attempt int) (string, error) {
		return "", status.Errorf(codes.Unavailable, "attempt %d", attempt)
	}}

	start := time.Now()
	err := HedgingInterceptor(sc)(context.Background(), sayHello,
		wrapperspb.String("x"), &wrapperspb.StringValue{}, nil, inv.invoke)
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("code = %v, want Unavailable", status.Code(err))
	}
	if n := inv.calls.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
	// non-fatal failures start the next attempt without waiting for the delay
	if time.Since(start) > time.Second {
		t.Error("attempts waited for hedgingDelay")
	}
}

func TestHedging_PassThrough(t *testing.T) {
	inv := &fakeInvoker{fn: func(ctx context.Context, attempt int) (string, error) {
		return "", status.Error(codes.Unavailable, "down")
	}}
	err := HedgingInterceptor(mustParse(t, retryConfig))(context.Background(), sayHello,
		wrapperspb.String("x"), &wrapperspb.StringValue{}, nil, inv.invoke)
	if status.Code(err) != codes.Unavailable || inv.calls.Load() != 1 {
		t.Errorf("err = %v, calls = %d; want a single pass-through call", err, inv.calls.Load())
	}
}

func TestHedging_ParentCancelled(t *testing.T) {
	inv := &fakeInvoker{fn: func(ctx context.Context, attempt int) (string, error) {
		<-ctx.Done()
		return "", status.FromContextError(ctx.Err()).Err()
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := HedgingInterceptor(mustParse(t, hedgingConfig))(ctx, sayHello,
		wrapperspb.String("x"), &wrapperspb.StringValue{}, nil, inv.invoke)
	if status.Code(err) != codes.DeadlineExceeded {
		t.Errorf("code = %v, want DeadlineExceeded", status.Code(err))
	}
}

type flakyGreeter struct {
	helloworld.UnimplementedHelloServiceServer
	calls atomic.Int32
}

func (g *flakyGreeter) SayHello(ctx context.Context, in *helloworld.HelloMessage) (*helloworld.HelloResponse, error) {
	if g.calls.Add(1) < 3 {
		return nil, status.Error(codes.Unavailable, "For retry")
	}
	return wrapperspb.String("Retry Success: " + in.GetValue()), nil
}

func TestRetryThroughGRPC(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	greeter := &flakyGreeter{}
	helloworld.RegisterHelloServiceServer(srv, greeter)
	go srv.Serve(lis)
	defer srv.Stop()

	sc := mustParse(t, retryConfig)
	opts := append(sc.DialOptions(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	conn, err := grpc.NewClient("passthrough:///bufnet", opts...)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	resp, err := helloworld.NewHelloServiceClient(conn).SayHello(context.Background(), helloworld.NewMessage("World"))
	if err != nil {
		t.Fatalf("SayHello() error = %v", err)
	}
	if resp.GetValue() != "Retry Success: World" {
		t.Errorf("reply = %q", resp.GetValue())
	}
	if n := greeter.calls.Load(); n != 3 {
		t.Errorf("server calls = %d, want 3", n)
	}
}
