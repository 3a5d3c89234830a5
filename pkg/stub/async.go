package stub

import (
	"context"
	"sync"

	coreerrors "github.com/msto63/grpc-sample/pkg/core/errors"
	"github.com/msto63/grpc-sample/pkg/core/logging"
)

var stubLogger = logging.New("stub")

// WarnFill is the queue fill ratio at which Submit logs a warning
const WarnFill = 0.7

var (
	// ErrQueueFull is returned by Submit when no slot is free
	ErrQueueFull = coreerrors.New("async request queue is full").WithCode(coreerrors.CodeResourceExhausted)
	// ErrClosed is returned by Submit after Close
	ErrClosed = coreerrors.New("async client is closed").WithCode(coreerrors.CodeServiceUnavailable)
)

type asyncRequest[Req, Resp any] struct {
	ctx context.Context
	req Req
	obs Observer[Resp]
}

// AsyncClient feeds a bounded queue of requests to a fixed set of workers
// that run the unary call and report to each request's observer.
type AsyncClient[Req, Resp any] struct {
	call   UnaryCall[Req, Resp]
	queue  chan asyncRequest[Req, Resp]
	warnAt int
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	logger *logging.Logger
}

// NewAsyncClient starts workers goroutines serving a queue of queueSize
func NewAsyncClient[Req, Resp any](call UnaryCall[Req, Resp], queueSize, workers int) *AsyncClient[Req, Resp] {
	if queueSize <= 0 {
		queueSize = 100
	}
	if workers <= 0 {
		workers = 1
	}
	c := &AsyncClient[Req, Resp]{
		call:   call,
		queue:  make(chan asyncRequest[Req, Resp], queueSize),
		warnAt: max(1, int(float64(queueSize)*WarnFill)),
		logger: stubLogger,
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

func (c *AsyncClient[Req, Resp]) worker() {
	defer c.wg.Done()
	for r := range c.queue {
		if err := r.ctx.Err(); err != nil {
			r.obs.fail(err)
			continue
		}
		resp, err := c.call(r.ctx, r.req)
		if err != nil {
			r.obs.fail(err)
			continue
		}
		r.obs.next(resp)
		r.obs.completed()
	}
}

// Submit queues req without blocking
func (c *AsyncClient[Req, Resp]) Submit(ctx context.Context, req Req, obs Observer[Resp]) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	select {
	case c.queue <- asyncRequest[Req, Resp]{ctx: ctx, req: req, obs: obs}:
	default:
		return ErrQueueFull
	}

	if n := len(c.queue); n >= c.warnAt {
		c.logger.Warn("Async request queue filling up", "queued", n, "capacity", cap(c.queue))
	}
	return nil
}

// Pending returns the number of queued requests
func (c *AsyncClient[Req, Resp]) Pending() int {
	return len(c.queue)
}

// Close stops accepting requests and waits until the queue is drained
func (c *AsyncClient[Req, Resp]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()
	c.wg.Wait()
}
