package samples

import (
	"context"
	"strconv"

	helloworld "github.com/msto63/grpc-sample/api/hello"
	"github.com/msto63/grpc-sample/internal/hello/service"
	"github.com/msto63/grpc-sample/pkg/stub"
	"golang.org/x/sync/errgroup"
)

// RunServerStream reads the whole server stream through an observer
func RunServerStream(ctx context.Context, opts Options) ([]string, error) {
	var (
		replies []string
		failure error
	)
	err := opts.withClient(nil, func(client helloworld.HelloServiceClient) error {
		ctx, cancel := opts.context(ctx)
		defer cancel()

		call := stub.ServerStreamCall[*helloworld.HelloMessage, helloworld.HelloResponse](client.SayHelloServerStream)
		done := stub.StreamAsync(ctx, call, helloworld.NewMessage(opts.Message), stub.Observer[*helloworld.HelloResponse]{
			OnNext: func(resp *helloworld.HelloResponse) {
				samplesLogger.Debug("Stream reply", "reply", resp.GetValue())
				replies = append(replies, resp.GetValue())
			},
			OnError: func(err error) { failure = err },
			OnCompleted: func() {
				samplesLogger.Info("Server stream completed", "replies", len(replies))
			},
		})
		<-done
		return failure
	})
	return replies, err
}

// ClientStreamResult is the single reply of a client stream
type ClientStreamResult struct {
	Reply string
	// Count is the message count the server reported in its trailer
	Count int
}

// RunClientStream sends every message, half-closes and reads the reply
// and the x-count trailer
func RunClientStream(ctx context.Context, opts Options) (ClientStreamResult, error) {
	var result ClientStreamResult
	err := opts.withClient(nil, func(client helloworld.HelloServiceClient) error {
		ctx, cancel := opts.context(ctx)
		defer cancel()

		stream, err := client.SayHelloClientStream(ctx)
		if err != nil {
			return err
		}
		for _, msg := range opts.messages() {
			if err := stream.Send(helloworld.NewMessage(msg)); err != nil {
				return err
			}
		}
		resp, err := stream.CloseAndRecv()
		if err != nil {
			return err
		}
		result.Reply = resp.GetValue()
		if v := stream.Trailer().Get(service.CountTrailer); len(v) > 0 {
			result.Count, _ = strconv.Atoi(v[0])
		}
		samplesLogger.Info("Client stream completed", "reply", result.Reply, "count", result.Count)
		return nil
	})
	return result, err
}

// RunBidiStream sends the messages while it receives the replies
func RunBidiStream(ctx context.Context, opts Options) ([]string, error) {
	var replies []string
	err := opts.withClient(nil, func(client helloworld.HelloServiceClient) error {
		ctx, cancel := opts.context(ctx)
		defer cancel()

		stream, err := client.SayHelloBidiStream(ctx)
		if err != nil {
			return err
		}

		g := new(errgroup.Group)
		g.Go(func() error {
			for _, msg := range opts.messages() {
				if err := stream.Send(helloworld.NewMessage(msg)); err != nil {
					return err
				}
			}
			return stream.CloseSend()
		})

		var failure error
		stub.ReceiveAll[*helloworld.HelloResponse](stream, stub.Observer[*helloworld.HelloResponse]{
			OnNext:  func(resp *helloworld.HelloResponse) { replies = append(replies, resp.GetValue()) },
			OnError: func(err error) { failure = err },
		})
		if err := g.Wait(); err != nil && failure == nil {
			failure = err
		}
		samplesLogger.Info("Bidi stream completed", "replies", len(replies))
		return failure
	})
	return replies, err
}
