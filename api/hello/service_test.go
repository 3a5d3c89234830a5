package helloworld

import (
	"testing"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

func TestDescriptorRegistered(t *testing.T) {
	d, err := protoregistry.GlobalFiles.FindDescriptorByName(ServiceName)
	if err != nil {
		t.Fatalf("FindDescriptorByName() error = %v", err)
	}
	if d.ParentFile().Path() != FileName {
		t.Errorf("Path() = %s, want %s", d.ParentFile().Path(), FileName)
	}

	svc := File.Services().ByName("HelloService")
	tests := []struct {
		method          string
		client, server  bool
		fullMethodConst string
	}{
		{"SayHello", false, false, HelloService_SayHello_FullMethodName},
		{"SayHelloServerStream", false, true, HelloService_SayHelloServerStream_FullMethodName},
		{"SayHelloClientStream", true, false, HelloService_SayHelloClientStream_FullMethodName},
		{"SayHelloBidiStream", true, true, HelloService_SayHelloBidiStream_FullMethodName},
	}
	for _, tt := range tests {
		m := svc.Methods().ByName(protoreflect.Name(tt.method))
		if m == nil {
			t.Errorf("%s missing", tt.method)
			continue
		}
		if m.IsStreamingClient() != tt.client || m.IsStreamingServer() != tt.server {
			t.Errorf("%s streaming = %v/%v, want %v/%v", tt.method,
				m.IsStreamingClient(), m.IsStreamingServer(), tt.client, tt.server)
		}
		if m.Input().FullName() != "google.protobuf.StringValue" {
			t.Errorf("%s input = %s", tt.method, m.Input().FullName())
		}
		if want := "/" + ServiceName + "/" + tt.method; want != tt.fullMethodConst {
			t.Errorf("full method = %s, want %s", tt.fullMethodConst, want)
		}
	}
}

func TestServiceDescMatchesDescriptor(t *testing.T) {
	if HelloService_ServiceDesc.ServiceName != ServiceName {
		t.Errorf("ServiceName = %s", HelloService_ServiceDesc.ServiceName)
	}
	if len(HelloService_ServiceDesc.Methods)+len(HelloService_ServiceDesc.Streams) != File.Services().Get(0).Methods().Len() {
		t.Error("service desc and descriptor disagree on method count")
	}
}
