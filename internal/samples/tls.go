package samples

import (
	"context"

	"github.com/msto63/grpc-sample/pkg/core/discovery"
	coregrpc "github.com/msto63/grpc-sample/pkg/core/grpc"
)

// RunTLS calls the server over TLS, trusting caFile (the self-signed
// server certificate works as its own CA)
func RunTLS(ctx context.Context, opts Options, caFile, serverName string) ([]string, error) {
	creds, err := coregrpc.ClientTLSCredentials(caFile, serverName)
	if err != nil {
		return nil, err
	}
	opts.Credentials = creds
	return RunHelloWorld(ctx, opts)
}

// ListInstances returns every instance the registry at address knows,
// unhealthy ones included
func ListInstances(ctx context.Context, address string) ([]*discovery.ServiceInfo, error) {
	client, err := discovery.NewRemoteClient(address)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.List(ctx)
}

// LocateInstances returns the healthy instances of service through a
// service locator over the registry at address
func LocateInstances(ctx context.Context, address, service string) ([]*discovery.ServiceInfo, error) {
	client, err := discovery.NewRemoteClient(address)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return discovery.NewServiceLocator(client, 0).LocateAll(ctx, service)
}
