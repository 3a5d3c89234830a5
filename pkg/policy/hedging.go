package policy

import (
	"context"
	"reflect"
	"strconv"
	"time"

	"github.com/msto63/grpc-sample/pkg/core/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// PreviousAttemptsHeader carries the number of attempts made before this one
const PreviousAttemptsHeader = "grpc-previous-rpc-attempts"

var hedgingLogger = logging.New("hedging")

type attemptResult struct {
	attempt int
	reply   interface{}
	err     error
}

// HedgingInterceptor sends up to maxAttempts copies of a unary call, one
// every hedgingDelay. The first success wins and cancels the others. A
// failure with a fatal status ends the call; a non-fatal one starts the
// next attempt at once. When every attempt fails the last error is
// returned. Methods without a hedging policy pass through.
func HedgingInterceptor(sc *ServiceConfig) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		mc := sc.Lookup(method)
		if mc == nil || mc.HedgingPolicy == nil {
			return invoker(ctx, method, req, reply, cc, opts...)
		}
		return hedge(ctx, mc.HedgingPolicy, method, req, reply, cc, invoker, opts)
	}
}

func hedge(parent context.Context, hp *HedgingPolicy, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts []grpc.CallOption) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	results := make(chan attemptResult, hp.MaxAttempts)
	launched := 0
	launch := func() {
		n := launched
		launched++
		hedgingLogger.Debug("Starting attempt", "method", method, "attempt", n+1)
		go func() {
			actx := ctx
			if n > 0 {
				actx = metadata.AppendToOutgoingContext(ctx, PreviousAttemptsHeader, strconv.Itoa(n))
			}
			r := newReply(reply)
			err := invoker(actx, method, req, r, cc, opts...)
			results <- attemptResult{attempt: n, reply: r, err: err}
		}()
	}

	launch()
	timer := time.NewTimer(hp.HedgingDelay.Std())
	defer timer.Stop()

	var lastErr error
	finished := 0
	for {
		select {
		case <-timer.C:
			if launched < hp.MaxAttempts {
				launch()
				timer.Reset(hp.HedgingDelay.Std())
			}

		case r := <-results:
			finished++
			if r.err == nil {
				copyReply(reply, r.reply)
				hedgingLogger.Info("Hedged call succeeded",
					"method", method,
					"attempt", r.attempt+1,
					"launched", launched,
				)
				return nil
			}
			lastErr = r.err
			code := status.Code(r.err)
			if !hp.NonFatal(code) {
				hedgingLogger.Warn("Fatal status, stopping hedging", "method", method, "code", code.String())
				return r.err
			}
			if launched < hp.MaxAttempts {
				launch()
				timer.Reset(hp.HedgingDelay.Std())
			} else if finished == launched {
				hedgingLogger.Warn("All hedged attempts failed", "method", method, "attempts", launched)
				return lastErr
			}

		case <-parent.Done():
			return status.FromContextError(parent.Err()).Err()
		}
	}
}

// newReply allocates a value of the same type as reply for one attempt
func newReply(reply interface{}) interface{} {
	if m, ok := reply.(proto.Message); ok {
		return m.ProtoReflect().New().Interface()
	}
	return reflect.New(reflect.TypeOf(reply).Elem()).Interface()
}

func copyReply(dst, src interface{}) {
	if d, ok := dst.(proto.Message); ok {
		proto.Reset(d)
		proto.Merge(d, src.(proto.Message))
		return
	}
	reflect.ValueOf(dst).Elem().Set(reflect.ValueOf(src).Elem())
}
