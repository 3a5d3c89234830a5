// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     samples
// Description: Client side of every sample
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

// Package samples holds the client runs of the samples. Every run returns
// what it observed, so commands can print it and tests can check it.
package samples

import (
	"context"
	"fmt"
	"time"

	helloworld "github.com/msto63/grpc-sample/api/hello"
	"github.com/msto63/grpc-sample/pkg/core/config"
	coregrpc "github.com/msto63/grpc-sample/pkg/core/grpc"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

var samplesLogger = logging.New("samples")

// Options are shared by all client runs
type Options struct {
	Target   string
	Message  string
	Requests int
	Timeout  time.Duration
	// Credentials default to insecure
	Credentials credentials.TransportCredentials
	// DialOptions are appended to every connection of a run
	DialOptions []grpc.DialOption
}

// DefaultOptions targets a local server on 9090
func DefaultOptions() Options {
	return Options{
		Target:   "localhost:9090",
		Message:  "World",
		Requests: 1,
		Timeout:  10 * time.Second,
	}
}

// OptionsFrom maps the client section of the configuration
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Target:   cfg.Client.Target,
		Message:  cfg.Client.Message,
		Requests: cfg.Client.Requests,
		Timeout:  cfg.Client.Timeout.Duration,
	}
}

func (o Options) requests() int {
	if o.Requests < 1 {
		return 1
	}
	return o.Requests
}

// messages numbers the message when more than one request is sent
func (o Options) messages() []string {
	n := o.requests()
	if n == 1 {
		return []string{o.Message}
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s %d", o.Message, i)
	}
	return out
}

func (o Options) dial(extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	cfg := coregrpc.DefaultClientConfig(o.Target)
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
	}
	cfg.Credentials = o.Credentials

	opts := append(append([]grpc.DialOption{}, o.DialOptions...), extra...)
	return coregrpc.Dial(cfg, opts...)
}

func (o Options) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

// withClient dials, runs fn with a hello client and closes the connection
func (o Options) withClient(extra []grpc.DialOption, fn func(helloworld.HelloServiceClient) error) error {
	conn, err := o.dial(extra...)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(helloworld.NewHelloServiceClient(conn))
}
