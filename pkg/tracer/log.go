// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     tracer
// Description: stats.Handler implementations for logging, metrics and tracing
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

// Package tracer provides grpc stats handlers. They observe every RPC at
// the transport level: headers, each message with its wire size, trailers
// and the final status.
package tracer

import (
	"context"
	"sync/atomic"

	"github.com/msto63/grpc-sample/pkg/core/logging"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/status"
)

type rpcKey struct{}

// rpcInfo is attached to the context in TagRPC
type rpcInfo struct {
	tag     *stats.RPCTagInfo
	method  string
	sentSeq atomic.Int64
	recvSeq atomic.Int64
}

// tagRPC attaches a fresh rpcInfo unless handlers tagging the same call,
// as inside a MultiHandler, already did. An rpcInfo inherited from an
// enclosing call, like a server handler's context used for an outbound
// call, is replaced.
func tagRPC(ctx context.Context, info *stats.RPCTagInfo) context.Context {
	if cur, ok := ctx.Value(rpcKey{}).(*rpcInfo); ok && cur.tag == info {
		return ctx
	}
	return context.WithValue(ctx, rpcKey{}, &rpcInfo{tag: info, method: info.FullMethodName})
}

func rpcFromContext(ctx context.Context) *rpcInfo {
	if info, ok := ctx.Value(rpcKey{}).(*rpcInfo); ok {
		return info
	}
	return &rpcInfo{}
}

// LogHandler logs the lifecycle of every RPC
type LogHandler struct {
	logger *logging.Logger
}

// NewLogHandler creates a handler logging through logger; nil uses the
// package logger named "stream-tracer".
func NewLogHandler(logger *logging.Logger) *LogHandler {
	if logger == nil {
		logger = logging.New("stream-tracer")
	}
	return &LogHandler{logger: logger}
}

// TagRPC attaches the per-call sequence counters; a MultiHandler shares
// them between handlers.
func (h *LogHandler) TagRPC(ctx context.Context, info *stats.RPCTagInfo) context.Context {
	return tagRPC(ctx, info)
}

func (h *LogHandler) HandleRPC(ctx context.Context, s stats.RPCStats) {
	info := rpcFromContext(ctx)
	log := h.logger.With("method", info.method, "side", side(s.IsClient()))

	switch ev := s.(type) {
	case *stats.Begin:
		log.Info("stream begin",
			"client_stream", ev.IsClientStream,
			"server_stream", ev.IsServerStream,
			"transparent_retry", ev.IsTransparentRetryAttempt,
		)
	case *stats.OutHeader:
		log.Info("outbound header", "headers", flatten(ev.Header), "compression", ev.Compression)
	case *stats.InHeader:
		log.Info("inbound header", "headers", flatten(ev.Header), "wire_size", ev.WireLength)
	case *stats.OutPayload:
		log.Info("outbound message",
			"seq", info.sentSeq.Add(1)-1,
			"wire_size", ev.WireLength,
			"size", ev.Length,
		)
	case *stats.InPayload:
		log.Info("inbound message",
			"seq", info.recvSeq.Add(1)-1,
			"wire_size", ev.WireLength,
			"size", ev.Length,
		)
	case *stats.OutTrailer:
		log.Info("outbound trailer", "trailers", flatten(ev.Trailer))
	case *stats.InTrailer:
		log.Info("inbound trailer", "trailers", flatten(ev.Trailer), "wire_size", ev.WireLength)
	case *stats.End:
		st := status.Convert(ev.Error)
		log.Info("stream closed",
			"status", st.Code().String(),
			"description", st.Message(),
			"duration", ev.EndTime.Sub(ev.BeginTime).String(),
		)
	}
}

func (h *LogHandler) TagConn(ctx context.Context, _ *stats.ConnTagInfo) context.Context {
	return ctx
}

func (h *LogHandler) HandleConn(_ context.Context, s stats.ConnStats) {
	switch s.(type) {
	case *stats.ConnBegin:
		h.logger.Debug("connection begin", "side", side(s.IsClient()))
	case *stats.ConnEnd:
		h.logger.Debug("connection end", "side", side(s.IsClient()))
	}
}

func side(client bool) string {
	if client {
		return "client"
	}
	return "server"
}

func flatten(md metadata.MD) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// MultiHandler fans events out to several handlers in order
type MultiHandler struct {
	handlers []stats.Handler
}

// NewMultiHandler skips nil handlers
func NewMultiHandler(handlers ...stats.Handler) *MultiHandler {
	m := &MultiHandler{}
	for _, h := range handlers {
		if h != nil {
			m.handlers = append(m.handlers, h)
		}
	}
	return m
}

func (m *MultiHandler) TagRPC(ctx context.Context, info *stats.RPCTagInfo) context.Context {
	for _, h := range m.handlers {
		ctx = h.TagRPC(ctx, info)
	}
	return ctx
}

func (m *MultiHandler) HandleRPC(ctx context.Context, s stats.RPCStats) {
	for _, h := range m.handlers {
		h.HandleRPC(ctx, s)
	}
}

func (m *MultiHandler) TagConn(ctx context.Context, info *stats.ConnTagInfo) context.Context {
	for _, h := range m.handlers {
		ctx = h.TagConn(ctx, info)
	}
	return ctx
}

func (m *MultiHandler) HandleConn(ctx context.Context, s stats.ConnStats) {
	for _, h := range m.handlers {
		h.HandleConn(ctx, s)
	}
}
