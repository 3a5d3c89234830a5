package registry

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "registry.v1.Registry"

const (
	Registry_Register_FullMethodName   = "/registry.v1.Registry/Register"
	Registry_Deregister_FullMethodName = "/registry.v1.Registry/Deregister"
	Registry_Heartbeat_FullMethodName  = "/registry.v1.Registry/Heartbeat"
	Registry_Discover_FullMethodName   = "/registry.v1.Registry/Discover"
	Registry_Get_FullMethodName        = "/registry.v1.Registry/Get"
	Registry_List_FullMethodName       = "/registry.v1.Registry/List"
)

// RegistryServer is the server API for the registry service
type RegistryServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Deregister(context.Context, *DeregisterRequest) (*DeregisterResponse, error)
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
	Discover(context.Context, *DiscoverRequest) (*DiscoverResponse, error)
	Get(context.Context, *GetRequest) (*GetResponse, error)
	List(context.Context, *ListRequest) (*ListResponse, error)
}

// RegisterRegistryServer registers service handlers
func RegisterRegistryServer(s grpc.ServiceRegistrar, srv RegistryServer) {
	s.RegisterService(&Registry_ServiceDesc, srv)
}

// unaryHandler builds the method handler shared by every registry method.
func unaryHandler[Req any](fullMethod string, call func(RegistryServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RegistryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RegistryServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Registry_ServiceDesc is the grpc.ServiceDesc for the registry service
var Registry_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Register",
			Handler: unaryHandler(Registry_Register_FullMethodName, func(s RegistryServer, ctx context.Context, in *RegisterRequest) (any, error) {
				return s.Register(ctx, in)
			}),
		},
		{
			MethodName: "Deregister",
			Handler: unaryHandler(Registry_Deregister_FullMethodName, func(s RegistryServer, ctx context.Context, in *DeregisterRequest) (any, error) {
				return s.Deregister(ctx, in)
			}),
		},
		{
			MethodName: "Heartbeat",
			Handler: unaryHandler(Registry_Heartbeat_FullMethodName, func(s RegistryServer, ctx context.Context, in *HeartbeatRequest) (any, error) {
				return s.Heartbeat(ctx, in)
			}),
		},
		{
			MethodName: "Discover",
			Handler: unaryHandler(Registry_Discover_FullMethodName, func(s RegistryServer, ctx context.Context, in *DiscoverRequest) (any, error) {
				return s.Discover(ctx, in)
			}),
		},
		{
			MethodName: "Get",
			Handler: unaryHandler(Registry_Get_FullMethodName, func(s RegistryServer, ctx context.Context, in *GetRequest) (any, error) {
				return s.Get(ctx, in)
			}),
		},
		{
			MethodName: "List",
			Handler: unaryHandler(Registry_List_FullMethodName, func(s RegistryServer, ctx context.Context, in *ListRequest) (any, error) {
				return s.List(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "registry/v1/registry.json",
}

// RegistryClient is the client API for the registry service
type RegistryClient interface {
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error)
	Deregister(ctx context.Context, in *DeregisterRequest, opts ...grpc.CallOption) (*DeregisterResponse, error)
	Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error)
	Discover(ctx context.Context, in *DiscoverRequest, opts ...grpc.CallOption) (*DiscoverResponse, error)
	Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*GetResponse, error)
	List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error)
}

type registryClient struct {
	cc grpc.ClientConnInterface
}

// NewRegistryClient creates a client that always requests the JSON codec
func NewRegistryClient(cc grpc.ClientConnInterface) RegistryClient {
	return &registryClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(ContentSubtype)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *registryClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, Registry_Register_FullMethodName, in, opts)
}

func (c *registryClient) Deregister(ctx context.Context, in *DeregisterRequest, opts ...grpc.CallOption) (*DeregisterResponse, error) {
	return invoke[DeregisterResponse](ctx, c.cc, Registry_Deregister_FullMethodName, in, opts)
}

func (c *registryClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	return invoke[HeartbeatResponse](ctx, c.cc, Registry_Heartbeat_FullMethodName, in, opts)
}

func (c *registryClient) Discover(ctx context.Context, in *DiscoverRequest, opts ...grpc.CallOption) (*DiscoverResponse, error) {
	return invoke[DiscoverResponse](ctx, c.cc, Registry_Discover_FullMethodName, in, opts)
}

func (c *registryClient) Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*GetResponse, error) {
	return invoke[GetResponse](ctx, c.cc, Registry_Get_FullMethodName, in, opts)
}

func (c *registryClient) List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error) {
	return invoke[ListResponse](ctx, c.cc, Registry_List_FullMethodName, in, opts)
}
