// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     stub
// Description: Future and observer style wrappers around generated clients
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

// Package stub offers non-blocking ways to call generated gRPC clients:
// futures, observers and a queued async client.
package stub

import (
	"context"
	"sync"
)

// Future holds the result of a call running in the background
type Future[T any] struct {
	done      chan struct{}
	mu        sync.Mutex
	value     T
	err       error
	listeners []func(T, error)
}

// Go runs fn in a new goroutine and returns its future
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		v, err := fn(ctx)
		f.complete(v, err)
	}()
	return f
}

func (f *Future[T]) complete(v T, err error) {
	f.mu.Lock()
	f.value, f.err = v, err
	listeners := f.listeners
	f.listeners = nil
	close(f.done)
	f.mu.Unlock()

	for _, l := range listeners {
		l(v, err)
	}
}

// Done is closed once the result is available
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get waits for the result or for ctx to end
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AddListener runs fn with the result. Listeners added before completion
// run on the completing goroutine in order; later ones run immediately.
func (f *Future[T]) AddListener(fn func(T, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		v, err := f.value, f.err
		f.mu.Unlock()
		fn(v, err)
	default:
		f.listeners = append(f.listeners, fn)
		f.mu.Unlock()
	}
}

// All waits for every future and returns the values in order, or the
// first error.
func All[T any](ctx context.Context, futures ...*Future[T]) ([]T, error) {
	out := make([]T, 0, len(futures))
	for _, f := range futures {
		v, err := f.Get(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
