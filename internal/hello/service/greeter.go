// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     service
// Description: Hello service implementation shared by all samples
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	helloworld "github.com/msto63/grpc-sample/api/hello"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Behavior selects how the unary SayHello answers
type Behavior string

const (
	BehaviorPlain   Behavior = "plain"
	BehaviorFlaky   Behavior = "flaky"
	BehaviorSlow    Behavior = "slow"
	BehaviorAddress Behavior = "address"
)

// CountTrailer carries the number of messages a client stream delivered
const CountTrailer = "x-count"

// Config holds the greeter settings
type Config struct {
	Behavior    Behavior
	StreamCount int
	FailureRate float64
	SlowRate    float64
	SlowDelay   time.Duration
	// Address is what BehaviorAddress replies with
	Address string
	// Rand returns values in [0,1); nil uses a time seeded source
	Rand func() float64
}

// DefaultConfig returns the plain greeter settings
func DefaultConfig() Config {
	return Config{
		Behavior:    BehaviorPlain,
		StreamCount: 100,
		FailureRate: 0.7,
		SlowRate:    0.7,
		SlowDelay:   time.Second,
	}
}

// ParseBehavior maps a name to a Behavior
func ParseBehavior(s string) (Behavior, error) {
	switch b := Behavior(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BehaviorPlain, nil
	case BehaviorPlain, BehaviorFlaky, BehaviorSlow, BehaviorAddress:
		return b, nil
	default:
		return "", fmt.Errorf("unknown behavior %q", s)
	}
}

// Greeter implements helloworld.HelloServiceServer
type Greeter struct {
	helloworld.UnimplementedHelloServiceServer

	config Config
	logger *logging.Logger

	randMu sync.Mutex
	rand   func() float64

	// counters for the samples' summaries
	unary    atomic.Int64
	streamed atomic.Int64
}

// New creates a Greeter, filling zero values from DefaultConfig. A rate of
// zero or less counts as unset, so it always gets the default.
func New(cfg Config) *Greeter {
	def := DefaultConfig()
	if cfg.Behavior == "" {
		cfg.Behavior = def.Behavior
	}
	if cfg.StreamCount <= 0 {
		cfg.StreamCount = def.StreamCount
	}
	if cfg.FailureRate <= 0 {
		cfg.FailureRate = def.FailureRate
	}
	if cfg.SlowRate <= 0 {
		cfg.SlowRate = def.SlowRate
	}
	if cfg.SlowDelay <= 0 {
		cfg.SlowDelay = def.SlowDelay
	}

	g := &Greeter{
		config: cfg,
		logger: logging.New("greeter").With("behavior", string(cfg.Behavior)),
		rand:   cfg.Rand,
	}
	if g.rand == nil {
		src := rand.New(rand.NewSource(time.Now().UnixNano()))
		g.rand = src.Float64
	}
	return g
}

// Config returns the effective settings
func (g *Greeter) Config() Config {
	return g.config
}

// Calls returns the number of unary calls served
func (g *Greeter) Calls() int64 {
	return g.unary.Load()
}

// Streamed returns the number of stream messages received
func (g *Greeter) Streamed() int64 {
	return g.streamed.Load()
}

func (g *Greeter) roll() float64 {
	g.randMu.Lock()
	defer g.randMu.Unlock()
	return g.rand()
}

// SayHello answers according to the configured behavior
func (g *Greeter) SayHello(ctx context.Context, req *helloworld.HelloMessage) (*helloworld.HelloResponse, error) {
	g.unary.Add(1)
	msg := req.GetValue()

	switch g.config.Behavior {
	case BehaviorFlaky:
		if g.roll() < g.config.FailureRate {
			g.logger.Info("Failing request", "message", msg)
			return nil, status.Error(codes.Unavailable, "For retry")
		}
		return helloworld.NewMessage("Retry Success: " + msg), nil

	case BehaviorSlow:
		if g.roll() < g.config.SlowRate {
			g.logger.Info("Delaying request", "message", msg, "delay", g.config.SlowDelay)
			timer := time.NewTimer(g.config.SlowDelay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				g.logger.Info("Delayed request cancelled", "message", msg)
				return nil, status.FromContextError(ctx.Err()).Err()
			}
		}
		return helloworld.NewMessage("Hedging Success: " + msg), nil

	case BehaviorAddress:
		return helloworld.NewMessage(g.config.Address), nil

	default:
		return helloworld.NewMessage("Hello " + msg), nil
	}
}

// SayHelloServerStream sends StreamCount numbered greetings
func (g *Greeter) SayHelloServerStream(req *helloworld.HelloMessage, stream grpc.ServerStreamingServer[helloworld.HelloResponse]) error {
	msg := req.GetValue()
	for i := 0; i < g.config.StreamCount; i++ {
		if err := stream.Context().Err(); err != nil {
			return status.FromContextError(err).Err()
		}
		if err := stream.Send(helloworld.NewMessage(fmt.Sprintf("%d: Hello %s", i, msg))); err != nil {
			return err
		}
	}
	return nil
}

// SayHelloClientStream greets every received name in a single reply
func (g *Greeter) SayHelloClientStream(stream grpc.ClientStreamingServer[helloworld.HelloMessage, helloworld.HelloResponse]) error {
	var names []string
	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		g.streamed.Add(1)
		names = append(names, req.GetValue())
	}

	stream.SetTrailer(metadata.Pairs(CountTrailer, strconv.Itoa(len(names))))
	return stream.SendAndClose(helloworld.NewMessage("Hello " + strings.Join(names, ", ")))
}

// SayHelloBidiStream greets every message until the client half-closes
func (g *Greeter) SayHelloBidiStream(stream grpc.BidiStreamingServer[helloworld.HelloMessage, helloworld.HelloResponse]) error {
	count := 0
	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			g.logger.Debug("Bidi stream completed", "messages", count)
			return nil
		}
		if err != nil {
			return err
		}
		count++
		g.streamed.Add(1)
		if err := stream.Send(helloworld.NewMessage("Hello " + req.GetValue())); err != nil {
			return err
		}
	}
}
