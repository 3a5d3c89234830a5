package server

import (
	"context"

	registrypb "github.com/msto63/grpc-sample/api/registry"
	"github.com/msto63/grpc-sample/pkg/core/discovery"
	coreerrors "github.com/msto63/grpc-sample/pkg/core/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Register implements registrypb.RegistryServer
func (s *Server) Register(ctx context.Context, req *registrypb.RegisterRequest) (*registrypb.RegisterResponse, error) {
	if req.Instance == nil {
		return nil, status.Error(codes.InvalidArgument, "instance is required")
	}
	id, err := s.service.Register(ctx, discovery.FromInstance(req.Instance))
	if err != nil {
		return nil, toStatus(err)
	}
	return &registrypb.RegisterResponse{ID: id}, nil
}

// Deregister implements registrypb.RegistryServer
func (s *Server) Deregister(ctx context.Context, req *registrypb.DeregisterRequest) (*registrypb.DeregisterResponse, error) {
	if err := s.service.Deregister(ctx, req.ID); err != nil {
		return nil, toStatus(err)
	}
	return &registrypb.DeregisterResponse{}, nil
}

// Heartbeat implements registrypb.RegistryServer. Unknown ids answer
// NOT_FOUND so clients re-register.
func (s *Server) Heartbeat(ctx context.Context, req *registrypb.HeartbeatRequest) (*registrypb.HeartbeatResponse, error) {
	st, err := s.service.Heartbeat(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &registrypb.HeartbeatResponse{Status: string(st)}, nil
}

// Discover implements registrypb.RegistryServer
func (s *Server) Discover(ctx context.Context, req *registrypb.DiscoverRequest) (*registrypb.DiscoverResponse, error) {
	instances, err := s.service.Discover(ctx, req.Name, req.Tag, req.IncludeUnhealthy)
	if err != nil {
		return nil, toStatus(err)
	}
	return &registrypb.DiscoverResponse{Instances: toInstances(instances)}, nil
}

// Get implements registrypb.RegistryServer
func (s *Server) Get(ctx context.Context, req *registrypb.GetRequest) (*registrypb.GetResponse, error) {
	inst, err := s.service.Get(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &registrypb.GetResponse{Instance: discovery.ToInstance(inst)}, nil
}

// List implements registrypb.RegistryServer
func (s *Server) List(ctx context.Context, _ *registrypb.ListRequest) (*registrypb.ListResponse, error) {
	instances, err := s.service.List(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &registrypb.ListResponse{Instances: toInstances(instances)}, nil
}

func toInstances(in []*discovery.ServiceInfo) []*registrypb.Instance {
	out := make([]*registrypb.Instance, 0, len(in))
	for _, info := range in {
		out = append(out, discovery.ToInstance(info))
	}
	return out
}

func toStatus(err error) error {
	if st, ok := status.FromError(err); ok {
		return st.Err()
	}
	return coreerrors.ToStatus(err)
}
