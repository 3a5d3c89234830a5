package binlog

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	binlogpb "google.golang.org/grpc/binarylog/grpc_binarylog_v1"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
)

const (
	checkMethod = "/grpc.health.v1.Health/Check"
	watchMethod = "/grpc.health.v1.Health/Watch"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		config  string
		method  string
		want    bool
		limits  Limits
		wantErr bool
	}{
		{config: "*", method: checkMethod, want: true, limits: Unlimited},
		{config: "", method: checkMethod, want: false},
		{config: "grpc.health.v1.Health/*", method: checkMethod, want: true, limits: Unlimited},
		{config: "grpc.health.v1.Health/*", method: "/other.Svc/Call", want: false},
		{config: "grpc.health.v1.Health/Check", method: watchMethod, want: false},
		{config: "*,-grpc.health.v1.Health/Check", method: checkMethod, want: false},
		{config: "*,-grpc.health.v1.Health/Check", method: watchMethod, want: true, limits: Unlimited},
		{config: "*{h:10;m:20}", method: checkMethod, want: true, limits: Limits{Header: 10, Message: 20}},
		{config: "*{h:5}", method: checkMethod, want: true, limits: Limits{Header: 5}},
		{config: "*{m}", method: checkMethod, want: true, limits: Limits{Message: Unlimited.Message}},
		{config: "*{h:1},grpc.health.v1.Health/Check{m:2}", method: checkMethod, want: true, limits: Limits{Message: 2}},
		{config: "*,*", wantErr: true},
		{config: "-grpc.health.v1.Health/*", wantErr: true},
		{config: "-grpc.health.v1.Health/Check{h:1}", wantErr: true},
		{config: "nomethod", wantErr: true},
		{config: "*{m:1;h:1}", wantErr: true},
		{config: "*{h:x}", wantErr: true},
		{config: "a/b,,c/d", wantErr: true},
		{config: "a/b,a/b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.config, func(t *testing.T) {
			f, err := ParseFilter(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFilter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			limits, ok := f.Match(tt.method)
			if ok != tt.want {
				t.Errorf("Match(%s) = %v, want %v", tt.method, ok, tt.want)
			}
			if ok && limits != tt.limits {
				t.Errorf("limits = %+v, want %+v", limits, tt.limits)
			}
		})
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "binlog.bin")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}

	for i := 1; i <= 3; i++ {
		err := sink.Write(&binlogpb.GrpcLogEntry{
			CallId:               7,
			SequenceIdWithinCall: uint64(i),
			Type:                 binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_MESSAGE,
		})
		if err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	// dropped, not an error
	if err := sink.Write(&binlogpb.GrpcLogEntry{CallId: 8}); err != nil {
		t.Errorf("Write() after Close error = %v", err)
	}

	entries, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	for i, e := range entries {
		if e.GetSequenceIdWithinCall() != uint64(i+1) || e.GetCallId() != 7 {
			t.Errorf("entry %d = %v", i, e)
		}
	}
}

func TestReadAll_Missing(t *testing.T) {
	if _, err := ReadAll(filepath.Join(t.TempDir(), "none.bin")); err == nil {
		t.Error("ReadAll() of missing file should fail")
	}
}

func TestReadAll_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	// length prefix promising more bytes than present
	os.WriteFile(path, []byte{0x10, 0x01}, 0o644)
	if _, err := ReadAll(path); err == nil {
		t.Error("ReadAll() of truncated file should fail")
	}
}

type memSink struct {
	mu      sync.Mutex
	entries []*binlogpb.GrpcLogEntry
}

func (s *memSink) Write(e *binlogpb.GrpcLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memSink) Close() error { return nil }

func (s *memSink) types() []binlogpb.GrpcLogEntry_EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]binlogpb.GrpcLogEntry_EventType, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.GetType()
	}
	return out
}

func (s *memSink) all() []*binlogpb.GrpcLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*binlogpb.GrpcLogEntry(nil), s.entries...)
}

func startServer(t *testing.T, serverSink, clientSink *memSink, filter *Filter) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	su, ss := ServerInterceptors(serverSink, filter)
	srv := grpc.NewServer(grpc.UnaryInterceptor(su), grpc.StreamInterceptor(ss))
	healthpb.RegisterHealthServer(srv, grpchealth.NewServer())
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	cu, cs := ClientInterceptors(clientSink, filter)
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(cu),
		grpc.WithStreamInterceptor(cs),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func sameTypes(got, want []binlogpb.GrpcLogEntry_EventType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestInterceptors_Unary(t *testing.T) {
	serverSink, clientSink := &memSink{}, &memSink{}
	client := startServer(t, serverSink, clientSink, MustParseFilter("*"))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-sample", "binlog")
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Check(ctx, &healthpb.HealthCheckRequest{}); err != nil {
		t.Fatal(err)
	}

	want := []binlogpb.GrpcLogEntry_EventType{
		binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_HEADER,
		binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_MESSAGE,
		binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_HALF_CLOSE,
		binlogpb.GrpcLogEntry_EVENT_TYPE_SERVER_HEADER,
		binlogpb.GrpcLogEntry_EVENT_TYPE_SERVER_MESSAGE,
		binlogpb.GrpcLogEntry_EVENT_TYPE_SERVER_TRAILER,
	}
	if got := serverSink.types(); !sameTypes(got, want) {
		t.Errorf("server events = %v, want %v", got, want)
	}
	if got := clientSink.types(); !sameTypes(got, want) {
		t.Errorf("client events = %v, want %v", got, want)
	}

	entries := serverSink.all()
	hdr := entries[0].GetClientHeader()
	if hdr.GetMethodName() != checkMethod {
		t.Errorf("MethodName = %s", hdr.GetMethodName())
	}
	if hdr.GetTimeout() == nil {
		t.Error("Timeout not logged")
	}
	found := false
	for _, e := range hdr.GetMetadata().GetEntry() {
		if e.GetKey() == "x-sample" && string(e.GetValue()) == "binlog" {
			found = true
		}
	}
	if !found {
		t.Error("client metadata not logged")
	}
	if entries[0].GetPeer() == nil {
		t.Error("server side should log the peer")
	}
	for i, e := range entries {
		if e.GetSequenceIdWithinCall() != uint64(i+1) || e.GetCallId() != entries[0].GetCallId() {
			t.Errorf("entry %d: call %d seq %d", i, e.GetCallId(), e.GetSequenceIdWithinCall())
		}
		if e.GetLogger() != binlogpb.GrpcLogEntry_LOGGER_SERVER {
			t.Errorf("entry %d logger = %v", i, e.GetLogger())
		}
	}
	if code := entries[5].GetTrailer().GetStatusCode(); code != 0 {
		t.Errorf("StatusCode = %d, want 0", code)
	}
}

func TestInterceptors_Truncation(t *testing.T) {
	serverSink, clientSink := &memSink{}, &memSink{}
	client := startServer(t, serverSink, clientSink, MustParseFilter("*{h:0;m:1}"))

	if _, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{}); err != nil {
		t.Fatal(err)
	}
	var msg *binlogpb.GrpcLogEntry
	for _, e := range clientSink.all() {
		if e.GetType() == binlogpb.GrpcLogEntry_EVENT_TYPE_SERVER_MESSAGE {
			msg = e
		}
	}
	if msg == nil {
		t.Fatal("no server message logged")
	}
	if !msg.GetPayloadTruncated() || len(msg.GetMessage().GetData()) != 1 || msg.GetMessage().GetLength() != 2 {
		t.Errorf("message = %v, want truncated to 1 of 2 bytes", msg)
	}
}

func TestInterceptors_Excluded(t *testing.T) {
	serverSink, clientSink := &memSink{}, &memSink{}
	client := startServer(t, serverSink, clientSink, MustParseFilter("*,-grpc.health.v1.Health/Check"))

	client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if n := len(serverSink.all()) + len(clientSink.all()); n != 0 {
		t.Errorf("logged %d entries for an excluded method", n)
	}
}

func TestInterceptors_StreamCancel(t *testing.T) {
	serverSink, clientSink := &memSink{}, &memSink{}
	client := startServer(t, serverSink, clientSink, MustParseFilter("grpc.health.v1.Health/*"))

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := client.Watch(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Recv(); err != nil {
		t.Fatal(err)
	}
	cancel()
	if _, err := stream.Recv(); err == nil {
		t.Fatal("Recv() after cancel should fail")
	}

	want := []binlogpb.GrpcLogEntry_EventType{
		binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_HEADER,
		binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_MESSAGE,
		binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_HALF_CLOSE,
		binlogpb.GrpcLogEntry_EVENT_TYPE_SERVER_HEADER,
		binlogpb.GrpcLogEntry_EVENT_TYPE_SERVER_MESSAGE,
		binlogpb.GrpcLogEntry_EVENT_TYPE_CANCEL,
	}
	if got := clientSink.types(); !sameTypes(got, want) {
		t.Errorf("client events = %v, want %v", got, want)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		types := serverSink.types()
		if len(types) > 0 && types[len(types)-1] == binlogpb.GrpcLogEntry_EVENT_TYPE_CANCEL {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("server events = %v, want trailing CANCEL", serverSink.types())
}

func TestSummary(t *testing.T) {
	e := &binlogpb.GrpcLogEntry{
		CallId:               255,
		SequenceIdWithinCall: 2,
		Logger:               binlogpb.GrpcLogEntry_LOGGER_CLIENT,
		Type:                 binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_MESSAGE,
		Payload:              &binlogpb.GrpcLogEntry_Message{Message: &binlogpb.Message{Length: 12}},
		PayloadTruncated:     true,
	}
	want := "ff#2 LOGGER_CLIENT EVENT_TYPE_CLIENT_MESSAGE len=12 (truncated)"
	if got := Summary(e); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}
