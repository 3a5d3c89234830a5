package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestNewChecker(t *testing.T) {
	checker := NewChecker("test-checker", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy, Message: "test passed"}
	})

	if checker.Name() != "test-checker" {
		t.Errorf("Name() = %v, want test-checker", checker.Name())
	}
	if result := checker.Check(context.Background()); result.Status != StatusHealthy {
		t.Errorf("Status = %v, want healthy", result.Status)
	}
}

func TestRegistry_OverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
		{"unknown counts as unhealthy", []Status{StatusHealthy, StatusUnknown}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry("svc", "1.0")
			for i, s := range tt.statuses {
				s := s
				registry.RegisterFunc(string(rune('a'+i)), func(ctx context.Context) CheckResult {
					return CheckResult{Status: s}
				})
			}

			report := registry.Check(context.Background())
			if report.Status != tt.want {
				t.Errorf("Status = %v, want %v", report.Status, tt.want)
			}
			if len(report.Checks) != len(tt.statuses) {
				t.Errorf("Checks = %d, want %d", len(report.Checks), len(tt.statuses))
			}
		})
	}
}

func TestRegistry_SortedAndNamed(t *testing.T) {
	registry := NewRegistry("svc", "1.0")
	registry.Register(AlwaysHealthy("zeta"))
	registry.RegisterFunc("alpha", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	registry.Register(AlwaysHealthy("gone"))
	registry.Unregister("gone")

	report := registry.CheckWithTimeout(time.Second)
	if len(report.Checks) != 2 {
		t.Fatalf("Checks = %d, want 2", len(report.Checks))
	}
	if report.Checks[0].Name != "alpha" || report.Checks[1].Name != "zeta" {
		t.Errorf("check order = %s,%s, want alpha,zeta", report.Checks[0].Name, report.Checks[1].Name)
	}
	if report.Checks[0].Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestTCPCheck(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()

	if r := TCPCheck("tcp", addr, time.Second).Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("open port: Status = %v (%s), want healthy", r.Status, r.Message)
	}

	lis.Close()
	if r := TCPCheck("tcp", addr, time.Second).Check(context.Background()); r.Status != StatusUnhealthy {
		t.Errorf("closed port: Status = %v, want unhealthy", r.Status)
	}
}

func TestHTTPCheck(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	if r := HTTPCheck("ok", ok.URL, time.Second).Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("Status = %v, want healthy", r.Status)
	}
	r := HTTPCheck("bad", bad.URL, time.Second).Check(context.Background())
	if r.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", r.Status)
	}
	if r.Details["status_code"] != http.StatusServiceUnavailable {
		t.Errorf("status_code = %v", r.Details["status_code"])
	}
}

func startHealthServer(t *testing.T) (*grpchealth.Server, string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return hs, lis.Addr().String()
}

func TestGRPCCheck(t *testing.T) {
	hs, addr := startHealthServer(t)
	hs.SetServingStatus("hello", healthpb.HealthCheckResponse_NOT_SERVING)

	ctx := context.Background()
	if r := GRPCCheck("server", addr, "", time.Second, nil).Check(ctx); r.Status != StatusHealthy {
		t.Errorf("server: Status = %v (%s), want healthy", r.Status, r.Message)
	}
	if r := GRPCCheck("hello", addr, "hello", time.Second, nil).Check(ctx); r.Status != StatusUnhealthy {
		t.Errorf("hello: Status = %v, want unhealthy", r.Status)
	}
	// unregistered services are answered with NotFound
	if r := GRPCCheck("missing", addr, "missing", time.Second, nil).Check(ctx); r.Status != StatusUnhealthy {
		t.Errorf("missing: Status = %v, want unhealthy", r.Status)
	}
}

func TestReporter(t *testing.T) {
	published := grpchealth.NewServer()

	healthy := true
	registry := NewRegistry("hello", "1.0")
	registry.RegisterFunc("toggle", func(ctx context.Context) CheckResult {
		if healthy {
			return CheckResult{Status: StatusHealthy}
		}
		return CheckResult{Status: StatusUnhealthy}
	})

	reporter := NewReporter(registry, published, time.Hour, "helloworld.HelloService")
	ctx := context.Background()

	reporter.RunOnce(ctx)
	resp, err := published.Check(ctx, &healthpb.HealthCheckRequest{Service: "helloworld.HelloService"})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Status = %v, want SERVING", resp.Status)
	}

	healthy = false
	reporter.RunOnce(ctx)
	resp, _ = published.Check(ctx, &healthpb.HealthCheckRequest{})
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Status = %v, want NOT_SERVING", resp.Status)
	}
	if reporter.Last().Status != StatusUnhealthy {
		t.Errorf("Last().Status = %v, want unhealthy", reporter.Last().Status)
	}

	reporter.Start(ctx)
	reporter.Stop()
	resp, _ = published.Check(ctx, &healthpb.HealthCheckRequest{})
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("after Stop: Status = %v, want NOT_SERVING", resp.Status)
	}
}
