package grpc

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/msto63/grpc-sample/pkg/core/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ServerCallTracer returns interceptors logging every phase of a server
// call: headers, each message, half close, completion and cancellation.
func ServerCallTracer(logger *logging.Logger) (grpc.UnaryServerInterceptor, grpc.StreamServerInterceptor) {
	if logger == nil {
		logger = interceptorLogger.Named("server-call")
	}

	unary := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		logger.Info("call started", "method", info.FullMethod, "headers", flattenMD(md))
		logger.Info("message received", "method", info.FullMethod, "message", req)
		logger.Info("half close", "method", info.FullMethod)

		resp, err := handler(ctx, req)
		if err == nil {
			logger.Info("message sent", "method", info.FullMethod, "message", resp)
		}
		logCallEnd(logger, ctx, info.FullMethod, err)
		return resp, err
	}

	stream := func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		md, _ := metadata.FromIncomingContext(ss.Context())
		logger.Info("call started", "method", info.FullMethod, "headers", flattenMD(md))

		err := handler(srv, &tracingServerStream{ServerStream: ss, logger: logger, method: info.FullMethod})
		logCallEnd(logger, ss.Context(), info.FullMethod, err)
		return err
	}

	return unary, stream
}

func logCallEnd(logger *logging.Logger, ctx context.Context, method string, err error) {
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Warn("call cancelled", "method", method)
	}
	st := status.Convert(err)
	logger.Info("call closed", "method", method, "status", st.Code().String(), "description", st.Message())
}

type tracingServerStream struct {
	grpc.ServerStream
	logger *logging.Logger
	method string
}

func (s *tracingServerStream) SendHeader(md metadata.MD) error {
	s.logger.Info("headers sent", "method", s.method, "headers", flattenMD(md))
	return s.ServerStream.SendHeader(md)
}

func (s *tracingServerStream) SendMsg(m interface{}) error {
	err := s.ServerStream.SendMsg(m)
	s.logger.Info("message sent", "method", s.method, "message", m, "error", err)
	return err
}

func (s *tracingServerStream) RecvMsg(m interface{}) error {
	err := s.ServerStream.RecvMsg(m)
	switch {
	case err == io.EOF:
		s.logger.Info("half close", "method", s.method)
	case err != nil:
		s.logger.Warn("receive failed", "method", s.method, "error", err)
	default:
		s.logger.Info("message received", "method", s.method, "message", m)
	}
	return err
}

// ClientCallTracer returns interceptors logging every phase of a client
// call: start with headers, each message, half close, response headers and
// close with status and trailers.
func ClientCallTracer(logger *logging.Logger) (grpc.UnaryClientInterceptor, grpc.StreamClientInterceptor) {
	if logger == nil {
		logger = interceptorLogger.Named("client-call")
	}

	unary := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		logger.Info("call started", "method", method, "headers", flattenMD(md))
		logger.Info("message sent", "method", method, "message", req)
		logger.Info("half close", "method", method)

		var header, trailer metadata.MD
		opts = append(opts, grpc.Header(&header), grpc.Trailer(&trailer))
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)

		logger.Info("headers received", "method", method, "headers", flattenMD(header))
		if err == nil {
			logger.Info("message received", "method", method, "message", reply)
		}
		st := status.Convert(err)
		logger.Info("call closed", "method", method, "status", st.Code().String(),
			"description", st.Message(), "trailers", flattenMD(trailer), "duration", time.Since(start))
		return err
	}

	stream := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		md, _ := metadata.FromOutgoingContext(ctx)
		logger.Info("call started", "method", method, "headers", flattenMD(md))

		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			st := status.Convert(err)
			logger.Info("call closed", "method", method, "status", st.Code().String(), "description", st.Message())
			return nil, err
		}
		return &tracingClientStream{ClientStream: cs, logger: logger, method: method}, nil
	}

	return unary, stream
}

type tracingClientStream struct {
	grpc.ClientStream
	logger *logging.Logger
	method string

	headerOnce sync.Once
	closeOnce  sync.Once
}

func (s *tracingClientStream) Header() (metadata.MD, error) {
	md, err := s.ClientStream.Header()
	s.headerOnce.Do(func() {
		s.logger.Info("headers received", "method", s.method, "headers", flattenMD(md))
	})
	return md, err
}

func (s *tracingClientStream) SendMsg(m interface{}) error {
	err := s.ClientStream.SendMsg(m)
	s.logger.Info("message sent", "method", s.method, "message", m, "error", err)
	return err
}

func (s *tracingClientStream) CloseSend() error {
	s.logger.Info("half close", "method", s.method)
	return s.ClientStream.CloseSend()
}

func (s *tracingClientStream) RecvMsg(m interface{}) error {
	err := s.ClientStream.RecvMsg(m)
	if err == nil {
		s.Header()
		s.logger.Info("message received", "method", s.method, "message", m)
		return nil
	}
	s.closeOnce.Do(func() {
		var st *status.Status
		if err == io.EOF {
			st = status.New(codes.OK, "")
		} else {
			st = status.Convert(err)
		}
		s.logger.Info("call closed", "method", s.method, "status", st.Code().String(),
			"description", st.Message(), "trailers", flattenMD(s.ClientStream.Trailer()))
	})
	return err
}

// flattenMD renders metadata as a map for log fields, joining repeated
// values with a comma.
func flattenMD(md metadata.MD) map[string]string {
	out := make(map[string]string, len(md))
	for k, vs := range md {
		switch len(vs) {
		case 0:
		case 1:
			out[k] = vs[0]
		default:
			joined := vs[0]
			for _, v := range vs[1:] {
				joined += "," + v
			}
			out[k] = joined
		}
	}
	return out
}
