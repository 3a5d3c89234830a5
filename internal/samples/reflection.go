package samples

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// MethodDescription describes one method found through reflection
type MethodDescription struct {
	Name            string
	Input           string
	Output          string
	ClientStreaming bool
	ServerStreaming bool
}

// Kind names the call shape
func (m MethodDescription) Kind() string {
	switch {
	case m.ClientStreaming && m.ServerStreaming:
		return "bidi-stream"
	case m.ClientStreaming:
		return "client-stream"
	case m.ServerStreaming:
		return "server-stream"
	default:
		return "unary"
	}
}

// ServiceDescription is a service with its defining file and methods
type ServiceDescription struct {
	Name    string
	File    string
	Methods []MethodDescription
}

// RunReflection lists the services of the server and describes each one
// from the file descriptors the reflection service returns
func RunReflection(ctx context.Context, opts Options) ([]ServiceDescription, error) {
	conn, err := opts.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ctx, cancel := opts.context(ctx)
	defer cancel()
	stream, err := grpc_reflection_v1.NewServerReflectionClient(conn).ServerReflectionInfo(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.CloseSend()

	ask := func(req *grpc_reflection_v1.ServerReflectionRequest) (*grpc_reflection_v1.ServerReflectionResponse, error) {
		if err := stream.Send(req); err != nil {
			return nil, err
		}
		resp, err := stream.Recv()
		if err != nil {
			return nil, err
		}
		if e := resp.GetErrorResponse(); e != nil {
			return nil, fmt.Errorf("reflection error %d: %s", e.GetErrorCode(), e.GetErrorMessage())
		}
		return resp, nil
	}

	listed, err := ask(&grpc_reflection_v1.ServerReflectionRequest{
		MessageRequest: &grpc_reflection_v1.ServerReflectionRequest_ListServices{ListServices: "*"},
	})
	if err != nil {
		return nil, err
	}

	// the server sends each file once per stream, so keep all of them
	var files [][]byte
	var out []ServiceDescription
	for _, svc := range listed.GetListServicesResponse().GetService() {
		resp, err := ask(&grpc_reflection_v1.ServerReflectionRequest{
			MessageRequest: &grpc_reflection_v1.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: svc.GetName()},
		})
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", svc.GetName(), err)
		}
		files = append(files, resp.GetFileDescriptorResponse().GetFileDescriptorProto()...)
		desc, err := describe(svc.GetName(), files)
		if err != nil {
			return nil, err
		}
		samplesLogger.Info("Service described", "service", desc.Name, "file", desc.File, "methods", len(desc.Methods))
		out = append(out, desc)
	}
	return out, nil
}

// describe finds service in the serialized files
func describe(service string, files [][]byte) (ServiceDescription, error) {
	for _, raw := range files {
		fd := &descriptorpb.FileDescriptorProto{}
		if err := proto.Unmarshal(raw, fd); err != nil {
			return ServiceDescription{}, fmt.Errorf("decode file descriptor: %w", err)
		}
		for _, sd := range fd.GetService() {
			full := sd.GetName()
			if fd.GetPackage() != "" {
				full = fd.GetPackage() + "." + full
			}
			if full != service {
				continue
			}
			desc := ServiceDescription{Name: full, File: fd.GetName()}
			for _, m := range sd.GetMethod() {
				desc.Methods = append(desc.Methods, MethodDescription{
					Name:            m.GetName(),
					Input:           strings.TrimPrefix(m.GetInputType(), "."),
					Output:          strings.TrimPrefix(m.GetOutputType(), "."),
					ClientStreaming: m.GetClientStreaming(),
					ServerStreaming: m.GetServerStreaming(),
				})
			}
			return desc, nil
		}
	}
	return ServiceDescription{}, fmt.Errorf("service %s not found in returned descriptors", service)
}
