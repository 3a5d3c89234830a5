package samples

import (
	"context"
	"sync"

	helloworld "github.com/msto63/grpc-sample/api/hello"
	"github.com/msto63/grpc-sample/pkg/stub"
)

// RunHelloWorld sends every message with the blocking client
func RunHelloWorld(ctx context.Context, opts Options) ([]string, error) {
	var replies []string
	err := opts.withClient(nil, func(client helloworld.HelloServiceClient) error {
		for _, msg := range opts.messages() {
			callCtx, cancel := opts.context(ctx)
			resp, err := client.SayHello(callCtx, helloworld.NewMessage(msg))
			cancel()
			if err != nil {
				return err
			}
			samplesLogger.Info("Reply received", "reply", resp.GetValue())
			replies = append(replies, resp.GetValue())
		}
		return nil
	})
	return replies, err
}

// RunFuture starts all calls at once as futures and waits for them in
// order. A listener logs each reply as soon as it arrives.
func RunFuture(ctx context.Context, opts Options) ([]string, error) {
	var replies []string
	err := opts.withClient(nil, func(client helloworld.HelloServiceClient) error {
		ctx, cancel := opts.context(ctx)
		defer cancel()

		futures := make([]*stub.Future[string], 0, opts.requests())
		for _, msg := range opts.messages() {
			msg := msg
			f := stub.Go(ctx, func(ctx context.Context) (string, error) {
				resp, err := client.SayHello(ctx, helloworld.NewMessage(msg))
				if err != nil {
					return "", err
				}
				return resp.GetValue(), nil
			})
			f.AddListener(func(reply string, err error) {
				if err != nil {
					samplesLogger.Warn("Future failed", "message", msg, "error", err)
					return
				}
				samplesLogger.Info("Future completed", "reply", reply)
			})
			futures = append(futures, f)
		}

		var err error
		replies, err = stub.All(ctx, futures...)
		return err
	})
	return replies, err
}

// RunAsync queues every message on an AsyncClient and collects the
// observer callbacks. Replies keep the order of the messages.
func RunAsync(ctx context.Context, opts Options, queueSize int) ([]string, error) {
	var replies []string
	err := opts.withClient(nil, func(client helloworld.HelloServiceClient) error {
		ctx, cancel := opts.context(ctx)
		defer cancel()

		async := stub.NewAsyncClient(stub.UnaryCall[*helloworld.HelloMessage, *helloworld.HelloResponse](client.SayHello), queueSize, 1)
		defer async.Close()

		msgs := opts.messages()
		replies = make([]string, len(msgs))
		var (
			mu       sync.Mutex
			firstErr error
			wg       sync.WaitGroup
		)
		for i, msg := range msgs {
			i := i
			wg.Add(1)
			obs := stub.Observer[*helloworld.HelloResponse]{
				OnNext: func(resp *helloworld.HelloResponse) {
					mu.Lock()
					replies[i] = resp.GetValue()
					mu.Unlock()
				},
				OnError: func(err error) {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					wg.Done()
				},
				OnCompleted: func() {
					samplesLogger.Info("Async call completed", "index", i)
					wg.Done()
				},
			}
			if err := async.Submit(ctx, helloworld.NewMessage(msg), obs); err != nil {
				wg.Done()
				return err
			}
		}
		wg.Wait()
		return firstErr
	})
	return replies, err
}
