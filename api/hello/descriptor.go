// Package helloworld holds the helloworld.HelloService descriptor, its
// typed client and server interface. All messages are
// google.protobuf.StringValue.
package helloworld

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// FileName is the registered proto file path
	FileName = "helloworld/hello.proto"
	// ServiceName is the fully qualified service name
	ServiceName = "helloworld.HelloService"

	stringValue = ".google.protobuf.StringValue"
)

// HelloMessage is the request message
type HelloMessage = wrapperspb.StringValue

// HelloResponse is the response message
type HelloResponse = wrapperspb.StringValue

// NewMessage builds a request
func NewMessage(s string) *HelloMessage {
	return wrapperspb.String(s)
}

// File is the registered descriptor of helloworld/hello.proto
var File protoreflect.FileDescriptor

func method(name string, clientStreaming, serverStreaming bool) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:            proto.String(name),
		InputType:       proto.String(stringValue),
		OutputType:      proto.String(stringValue),
		ClientStreaming: proto.Bool(clientStreaming),
		ServerStreaming: proto.Bool(serverStreaming),
	}
}

func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(FileName),
		Package:    proto.String("helloworld"),
		Dependency: []string{"google/protobuf/wrappers.proto"},
		Syntax:     proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/msto63/grpc-sample/api/hello;helloworld"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("HelloService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("SayHello", false, false),
				method("SayHelloServerStream", false, true),
				method("SayHelloClientStream", true, false),
				method("SayHelloBidiStream", true, true),
			},
		}},
	}
}

func init() {
	// wrappers.proto registers itself through the wrapperspb import
	fd, err := protodesc.NewFile(fileDescriptorProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("helloworld: build descriptor: %v", err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("helloworld: register descriptor: %v", err))
	}
	File = fd
}
