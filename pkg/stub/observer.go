package stub

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
)

// Observer receives the messages of a call. Nil callbacks are skipped.
type Observer[T any] struct {
	OnNext      func(T)
	OnError     func(error)
	OnCompleted func()
}

func (o Observer[T]) next(v T) {
	if o.OnNext != nil {
		o.OnNext(v)
	}
}

func (o Observer[T]) fail(err error) {
	if o.OnError != nil {
		o.OnError(err)
	}
}

func (o Observer[T]) completed() {
	if o.OnCompleted != nil {
		o.OnCompleted()
	}
}

// UnaryCall is the shape of a generated unary client method
type UnaryCall[Req, Resp any] func(context.Context, Req, ...grpc.CallOption) (Resp, error)

// CallAsync runs a unary call in the background and reports to obs:
// OnNext then OnCompleted on success, OnError otherwise. The returned
// channel closes after the last callback.
func CallAsync[Req, Resp any](ctx context.Context, call UnaryCall[Req, Resp], req Req, obs Observer[Resp], opts ...grpc.CallOption) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := call(ctx, req, opts...)
		if err != nil {
			obs.fail(err)
			return
		}
		obs.next(resp)
		obs.completed()
	}()
	return done
}

// Receiver is implemented by server streams seen from the client and by
// client streams seen from the server.
type Receiver[T any] interface {
	Recv() (T, error)
}

// ReceiveAll drains r into obs until io.EOF (OnCompleted) or another
// error (OnError) and returns the number of messages.
func ReceiveAll[T any](r Receiver[T], obs Observer[T]) int {
	n := 0
	for {
		v, err := r.Recv()
		if errors.Is(err, io.EOF) {
			obs.completed()
			return n
		}
		if err != nil {
			obs.fail(err)
			return n
		}
		n++
		obs.next(v)
	}
}

// ServerStreamCall is the shape of a generated server streaming method
type ServerStreamCall[Req, Resp any] func(context.Context, Req, ...grpc.CallOption) (grpc.ServerStreamingClient[Resp], error)

// StreamAsync opens a server stream and drains it into obs in the
// background.
func StreamAsync[Req, Resp any](ctx context.Context, call ServerStreamCall[Req, Resp], req Req, obs Observer[*Resp], opts ...grpc.CallOption) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		stream, err := call(ctx, req, opts...)
		if err != nil {
			obs.fail(err)
			return
		}
		ReceiveAll[*Resp](stream, obs)
	}()
	return done
}
