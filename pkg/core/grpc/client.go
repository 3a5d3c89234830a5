package grpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// ClientConfig holds gRPC client configuration
type ClientConfig struct {
	Target            string
	Timeout           time.Duration
	MaxRecvMsgSize    int
	MaxSendMsgSize    int
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration
	Block             bool // Block until connection is established
	Credentials       credentials.TransportCredentials
}

// DefaultClientConfig returns a default client configuration
func DefaultClientConfig(target string) ClientConfig {
	return ClientConfig{
		Target:            target,
		Timeout:           10 * time.Second,
		MaxRecvMsgSize:    16 * 1024 * 1024, // 16MB
		MaxSendMsgSize:    16 * 1024 * 1024, // 16MB
		KeepaliveInterval: 30 * time.Second,
		KeepaliveTimeout:  10 * time.Second,
		Block:             false,
	}
}

// Dial creates a new gRPC client connection. Request id propagation and
// logging interceptors always run first; options may chain more.
func Dial(cfg ClientConfig, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	creds := cfg.Credentials
	if creds == nil {
		creds = insecure.NewCredentials()
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(cfg.MaxRecvMsgSize),
			grpc.MaxCallSendMsgSize(cfg.MaxSendMsgSize),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveInterval,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithChainUnaryInterceptor(
			ClientRequestIDInterceptor(),
			ClientLoggingInterceptor(),
		),
		grpc.WithChainStreamInterceptor(
			ClientStreamRequestIDInterceptor(),
			ClientStreamLoggingInterceptor(),
		),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(cfg.Target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.Target, err)
	}

	if cfg.Block {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()
		if err := WaitForReady(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Target, err)
		}
	}

	return conn, nil
}

// DialSimple creates a simple gRPC client connection with minimal configuration
func DialSimple(target string) (*grpc.ClientConn, error) {
	return Dial(DefaultClientConfig(target))
}

// WaitForReady connects conn and waits until it is READY or ctx expires
func WaitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if state == connectivity.Shutdown {
			return fmt.Errorf("connection shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("connection state %s: %w", state, ctx.Err())
		}
	}
}

// ConnectionPool manages a pool of gRPC connections (thread-safe)
type ConnectionPool struct {
	mu          sync.RWMutex
	connections map[string]*grpc.ClientConn
	config      ClientConfig
	dialOpts    []grpc.DialOption
}

// NewConnectionPool creates a new connection pool
func NewConnectionPool(cfg ClientConfig, opts ...grpc.DialOption) *ConnectionPool {
	return &ConnectionPool{
		connections: make(map[string]*grpc.ClientConn),
		config:      cfg,
		dialOpts:    opts,
	}
}

// Get returns a connection to the target, creating one if necessary.
// The connection is checked for health before returning.
func (p *ConnectionPool) Get(target string) (*grpc.ClientConn, error) {
	p.mu.RLock()
	conn, exists := p.connections[target]
	p.mu.RUnlock()

	if exists && isConnectionHealthy(conn) {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if conn, exists := p.connections[target]; exists {
		if isConnectionHealthy(conn) {
			return conn, nil
		}
		conn.Close()
		delete(p.connections, target)
	}

	cfg := p.config
	cfg.Target = target
	newConn, err := Dial(cfg, p.dialOpts...)
	if err != nil {
		return nil, err
	}

	p.connections[target] = newConn
	return newConn, nil
}

// isConnectionHealthy checks if the connection is in a usable state
func isConnectionHealthy(conn *grpc.ClientConn) bool {
	state := conn.GetState()
	return state == connectivity.Ready || state == connectivity.Idle || state == connectivity.Connecting
}

// GetStatus returns the connection status for all targets
func (p *ConnectionPool) GetStatus() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := make(map[string]string, len(p.connections))
	for target, conn := range p.connections {
		status[target] = conn.GetState().String()
	}
	return status
}

// Close closes all connections in the pool
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for target, conn := range p.connections {
		if err := conn.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close connection to %s: %w", target, err)
		}
		delete(p.connections, target)
	}
	return lastErr
}
