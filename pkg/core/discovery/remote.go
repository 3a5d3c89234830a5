package discovery

import (
	"context"
	"fmt"

	registrypb "github.com/msto63/grpc-sample/api/registry"
	coreerrors "github.com/msto63/grpc-sample/pkg/core/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// RemoteClient implements Client against the registry gRPC service
type RemoteClient struct {
	conn   *grpc.ClientConn
	owned  bool
	client registrypb.RegistryClient
}

// NewRemoteClient connects to the registry at address
func NewRemoteClient(address string, opts ...grpc.DialOption) (*RemoteClient, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to registry at %s: %w", address, err)
	}
	discoveryLogger.Debug("Registry client created", "address", address)
	c := NewRemoteClientFromConn(conn)
	c.owned = true
	return c, nil
}

// NewRemoteClientFromConn uses an existing connection; Close leaves it open
func NewRemoteClientFromConn(conn *grpc.ClientConn) *RemoteClient {
	return &RemoteClient{
		conn:   conn,
		client: registrypb.NewRegistryClient(conn),
	}
}

// Register registers info and writes the assigned id back
func (c *RemoteClient) Register(ctx context.Context, info *ServiceInfo) error {
	resp, err := c.client.Register(ctx, &registrypb.RegisterRequest{Instance: ToInstance(info)})
	if err != nil {
		return remoteError("register", err)
	}
	info.ID = resp.ID
	return nil
}

func (c *RemoteClient) Deregister(ctx context.Context, id string) error {
	_, err := c.client.Deregister(ctx, &registrypb.DeregisterRequest{ID: id})
	return remoteError("deregister", err)
}

func (c *RemoteClient) Heartbeat(ctx context.Context, id string) error {
	_, err := c.client.Heartbeat(ctx, &registrypb.HeartbeatRequest{ID: id})
	return remoteError("heartbeat", err)
}

func (c *RemoteClient) Discover(ctx context.Context, name string) ([]*ServiceInfo, error) {
	resp, err := c.client.Discover(ctx, &registrypb.DiscoverRequest{Name: name})
	if err != nil {
		return nil, remoteError("discover", err)
	}
	return fromInstances(resp.Instances), nil
}

func (c *RemoteClient) Get(ctx context.Context, id string) (*ServiceInfo, error) {
	resp, err := c.client.Get(ctx, &registrypb.GetRequest{ID: id})
	if err != nil {
		return nil, remoteError("get", err)
	}
	return FromInstance(resp.Instance), nil
}

func (c *RemoteClient) List(ctx context.Context) ([]*ServiceInfo, error) {
	resp, err := c.client.List(ctx, &registrypb.ListRequest{})
	if err != nil {
		return nil, remoteError("list", err)
	}
	return fromInstances(resp.Instances), nil
}

// Close closes the connection when the client created it
func (c *RemoteClient) Close() error {
	if c.owned {
		return c.conn.Close()
	}
	return nil
}

// remoteError keeps the status code of err reachable through HasCode
func remoteError(op string, err error) error {
	if err == nil {
		return nil
	}
	return coreerrors.Wrap(err, "registry call failed").WithOperation(op)
}

// ToInstance converts a ServiceInfo to its wire form
func ToInstance(s *ServiceInfo) *registrypb.Instance {
	if s == nil {
		return nil
	}
	s = s.Clone()
	inst := &registrypb.Instance{
		ID:            s.ID,
		Name:          s.Name,
		Version:       s.Version,
		Address:       s.Address,
		Port:          s.Port,
		Status:        string(s.Status),
		Metadata:      s.Metadata,
		Tags:          s.Tags,
		LastHeartbeat: s.LastHeartbeat,
		RegisteredAt:  s.RegisteredAt,
	}
	if s.Check != nil {
		inst.Check = &registrypb.Check{
			Type:     s.Check.Type,
			Target:   s.Check.Target,
			Service:  s.Check.Service,
			Path:     s.Check.Path,
			Interval: s.Check.Interval,
			Timeout:  s.Check.Timeout,
		}
	}
	return inst
}

// FromInstance converts a wire instance to a ServiceInfo
func FromInstance(inst *registrypb.Instance) *ServiceInfo {
	if inst == nil {
		return nil
	}
	s := &ServiceInfo{
		ID:            inst.ID,
		Name:          inst.Name,
		Version:       inst.Version,
		Address:       inst.Address,
		Port:          inst.Port,
		Status:        ServiceStatus(inst.Status),
		Metadata:      inst.Metadata,
		Tags:          inst.Tags,
		LastHeartbeat: inst.LastHeartbeat,
		RegisteredAt:  inst.RegisteredAt,
	}
	if inst.Check != nil {
		s.Check = &HealthCheck{
			Type:     inst.Check.Type,
			Target:   inst.Check.Target,
			Service:  inst.Check.Service,
			Path:     inst.Check.Path,
			Interval: inst.Check.Interval,
			Timeout:  inst.Check.Timeout,
		}
	}
	return s.Clone()
}

func fromInstances(in []*registrypb.Instance) []*ServiceInfo {
	out := make([]*ServiceInfo, 0, len(in))
	for _, inst := range in {
		out = append(out, FromInstance(inst))
	}
	return out
}
