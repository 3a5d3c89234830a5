package binlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/binarylog"
	binlogpb "google.golang.org/grpc/binarylog/grpc_binarylog_v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// call emits the entries of one RPC with increasing sequence numbers
type call struct {
	sink   binarylog.Sink
	limits Limits
	side   binlogpb.GrpcLogEntry_Logger
	id     uint64
	seq    atomic.Uint64
}

func newCall(sink binarylog.Sink, limits Limits, side binlogpb.GrpcLogEntry_Logger) *call {
	u := uuid.New()
	return &call{
		sink:   sink,
		limits: limits,
		side:   side,
		id:     binary.BigEndian.Uint64(u[:8]),
	}
}

func (c *call) emit(entry *binlogpb.GrpcLogEntry) {
	entry.Timestamp = timestamppb.Now()
	entry.CallId = c.id
	entry.SequenceIdWithinCall = c.seq.Add(1)
	entry.Logger = c.side
	if err := c.sink.Write(entry); err != nil {
		binlogLogger.Warn("Binary log entry lost", "call_id", c.id, "error", err)
	}
}

func (c *call) clientHeader(ctx context.Context, method, authority string, md metadata.MD, p *peer.Peer) {
	hdr := &binlogpb.ClientHeader{MethodName: method, Authority: authority}
	var truncated bool
	hdr.Metadata, truncated = c.metadata(md)
	if deadline, ok := ctx.Deadline(); ok {
		hdr.Timeout = durationpb.New(time.Until(deadline))
	}
	c.emit(&binlogpb.GrpcLogEntry{
		Type:             binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_HEADER,
		Payload:          &binlogpb.GrpcLogEntry_ClientHeader{ClientHeader: hdr},
		PayloadTruncated: truncated,
		Peer:             toAddress(p),
	})
}

func (c *call) serverHeader(md metadata.MD, p *peer.Peer) {
	m, truncated := c.metadata(md)
	c.emit(&binlogpb.GrpcLogEntry{
		Type:             binlogpb.GrpcLogEntry_EVENT_TYPE_SERVER_HEADER,
		Payload:          &binlogpb.GrpcLogEntry_ServerHeader{ServerHeader: &binlogpb.ServerHeader{Metadata: m}},
		PayloadTruncated: truncated,
		Peer:             toAddress(p),
	})
}

func (c *call) message(t binlogpb.GrpcLogEntry_EventType, msg any) {
	data := marshal(msg)
	truncated := uint64(len(data)) > c.limits.Message
	length := uint32(len(data))
	if truncated {
		data = data[:c.limits.Message]
	}
	c.emit(&binlogpb.GrpcLogEntry{
		Type:             t,
		Payload:          &binlogpb.GrpcLogEntry_Message{Message: &binlogpb.Message{Length: length, Data: data}},
		PayloadTruncated: truncated,
	})
}

func (c *call) halfClose() {
	c.emit(&binlogpb.GrpcLogEntry{Type: binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_HALF_CLOSE})
}

// end logs CANCEL when ctx was cancelled and the call failed with
// Canceled, otherwise the trailer with the final status.
func (c *call) end(ctx context.Context, err error, trailer metadata.MD, p *peer.Peer) {
	st := status.Convert(err)
	if st.Code() == codes.Canceled && ctx.Err() != nil {
		c.emit(&binlogpb.GrpcLogEntry{Type: binlogpb.GrpcLogEntry_EVENT_TYPE_CANCEL})
		return
	}
	m, truncated := c.metadata(trailer)
	var details []byte
	if len(st.Proto().GetDetails()) > 0 {
		details, _ = proto.Marshal(st.Proto())
	}
	c.emit(&binlogpb.GrpcLogEntry{
		Type: binlogpb.GrpcLogEntry_EVENT_TYPE_SERVER_TRAILER,
		Payload: &binlogpb.GrpcLogEntry_Trailer{Trailer: &binlogpb.Trailer{
			Metadata:      m,
			StatusCode:    uint32(st.Code()),
			StatusMessage: st.Message(),
			StatusDetails: details,
		}},
		PayloadTruncated: truncated,
		Peer:             toAddress(p),
	})
}

// metadata converts md, dropping entries once the header limit is reached
func (c *call) metadata(md metadata.MD) (*binlogpb.Metadata, bool) {
	out := &binlogpb.Metadata{}
	var size uint64
	truncated := false
	for k, vs := range md {
		for _, v := range vs {
			n := uint64(len(k) + len(v))
			if size+n > c.limits.Header {
				truncated = true
				continue
			}
			size += n
			out.Entry = append(out.Entry, &binlogpb.MetadataEntry{Key: k, Value: []byte(v)})
		}
	}
	return out, truncated
}

func marshal(msg any) []byte {
	if m, ok := msg.(proto.Message); ok {
		data, _ := proto.Marshal(m)
		return data
	}
	data, _ := json.Marshal(msg)
	return data
}

func toAddress(p *peer.Peer) *binlogpb.Address {
	if p == nil || p.Addr == nil {
		return nil
	}
	switch a := p.Addr.(type) {
	case *net.TCPAddr:
		t := binlogpb.Address_TYPE_IPV6
		if a.IP.To4() != nil {
			t = binlogpb.Address_TYPE_IPV4
		}
		return &binlogpb.Address{Type: t, Address: a.IP.String(), IpPort: uint32(a.Port)}
	case *net.UnixAddr:
		return &binlogpb.Address{Type: binlogpb.Address_TYPE_UNIX, Address: a.Name}
	default:
		return &binlogpb.Address{Type: binlogpb.Address_TYPE_UNKNOWN, Address: a.String()}
	}
}

func authorityOf(md metadata.MD) string {
	if v := md.Get(":authority"); len(v) > 0 {
		return v[0]
	}
	return ""
}

// ServerInterceptors log the server side of every matching call
func ServerInterceptors(sink binarylog.Sink, filter *Filter) (grpc.UnaryServerInterceptor, grpc.StreamServerInterceptor) {
	unary := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		limits, ok := filter.Match(info.FullMethod)
		if !ok {
			return handler(ctx, req)
		}
		c := newCall(sink, limits, binlogpb.GrpcLogEntry_LOGGER_SERVER)
		md, _ := metadata.FromIncomingContext(ctx)
		p, _ := peer.FromContext(ctx)

		c.clientHeader(ctx, info.FullMethod, authorityOf(md), md, p)
		c.message(binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_MESSAGE, req)
		c.halfClose()

		ts := &recordingTransportStream{ServerTransportStream: grpc.ServerTransportStreamFromContext(ctx)}
		if ts.ServerTransportStream != nil {
			ctx = grpc.NewContextWithServerTransportStream(ctx, ts)
		}
		resp, err := handler(ctx, req)

		if err == nil {
			c.serverHeader(ts.header(), nil)
			c.message(binlogpb.GrpcLogEntry_EVENT_TYPE_SERVER_MESSAGE, resp)
		}
		c.end(ctx, err, ts.trailer(), nil)
		return resp, err
	}

	stream := func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		limits, ok := filter.Match(info.FullMethod)
		if !ok {
			return handler(srv, ss)
		}
		ctx := ss.Context()
		c := newCall(sink, limits, binlogpb.GrpcLogEntry_LOGGER_SERVER)
		md, _ := metadata.FromIncomingContext(ctx)
		p, _ := peer.FromContext(ctx)
		c.clientHeader(ctx, info.FullMethod, authorityOf(md), md, p)

		ls := &loggingServerStream{ServerStream: ss, call: c}
		err := handler(srv, ls)
		ls.flushHeader()
		c.end(ctx, err, ls.trailerMD(), nil)
		return err
	}

	return unary, stream
}

// recordingTransportStream remembers the headers and trailers a unary
// handler sets.
type recordingTransportStream struct {
	grpc.ServerTransportStream
	mu  sync.Mutex
	hdr metadata.MD
	trl metadata.MD
}

func (s *recordingTransportStream) SetHeader(md metadata.MD) error {
	s.mu.Lock()
	s.hdr = metadata.Join(s.hdr, md)
	s.mu.Unlock()
	return s.ServerTransportStream.SetHeader(md)
}

func (s *recordingTransportStream) SendHeader(md metadata.MD) error {
	s.mu.Lock()
	s.hdr = metadata.Join(s.hdr, md)
	s.mu.Unlock()
	return s.ServerTransportStream.SendHeader(md)
}

func (s *recordingTransportStream) SetTrailer(md metadata.MD) error {
	s.mu.Lock()
	s.trl = metadata.Join(s.trl, md)
	s.mu.Unlock()
	return s.ServerTransportStream.SetTrailer(md)
}

func (s *recordingTransportStream) header() metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hdr
}

func (s *recordingTransportStream) trailer() metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trl
}

type loggingServerStream struct {
	grpc.ServerStream
	call *call

	mu         sync.Mutex
	hdr        metadata.MD
	trl        metadata.MD
	headerSent bool
}

func (s *loggingServerStream) SetHeader(md metadata.MD) error {
	s.mu.Lock()
	s.hdr = metadata.Join(s.hdr, md)
	s.mu.Unlock()
	return s.ServerStream.SetHeader(md)
}

func (s *loggingServerStream) SendHeader(md metadata.MD) error {
	s.mu.Lock()
	s.hdr = metadata.Join(s.hdr, md)
	s.mu.Unlock()
	err := s.ServerStream.SendHeader(md)
	s.flushHeader()
	return err
}

func (s *loggingServerStream) SetTrailer(md metadata.MD) {
	s.mu.Lock()
	s.trl = metadata.Join(s.trl, md)
	s.mu.Unlock()
	s.ServerStream.SetTrailer(md)
}

func (s *loggingServerStream) flushHeader() {
	s.mu.Lock()
	if s.headerSent {
		s.mu.Unlock()
		return
	}
	s.headerSent = true
	hdr := s.hdr
	s.mu.Unlock()
	s.call.serverHeader(hdr, nil)
}

func (s *loggingServerStream) trailerMD() metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trl
}

func (s *loggingServerStream) SendMsg(m interface{}) error {
	s.flushHeader()
	err := s.ServerStream.SendMsg(m)
	if err == nil {
		s.call.message(binlogpb.GrpcLogEntry_EVENT_TYPE_SERVER_MESSAGE, m)
	}
	return err
}

func (s *loggingServerStream) RecvMsg(m interface{}) error {
	err := s.ServerStream.RecvMsg(m)
	switch {
	case err == nil:
		s.call.message(binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_MESSAGE, m)
	case errors.Is(err, io.EOF):
		s.call.halfClose()
	}
	return err
}

// ClientInterceptors log the client side of every matching call
func ClientInterceptors(sink binarylog.Sink, filter *Filter) (grpc.UnaryClientInterceptor, grpc.StreamClientInterceptor) {
	unary := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		limits, ok := filter.Match(method)
		if !ok {
			return invoker(ctx, method, req, reply, cc, opts...)
		}
		c := newCall(sink, limits, binlogpb.GrpcLogEntry_LOGGER_CLIENT)
		md, _ := metadata.FromOutgoingContext(ctx)
		c.clientHeader(ctx, method, cc.CanonicalTarget(), md, nil)
		c.message(binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_MESSAGE, req)
		c.halfClose()

		var hdr, trl metadata.MD
		var p peer.Peer
		opts = append(opts, grpc.Header(&hdr), grpc.Trailer(&trl), grpc.Peer(&p))
		err := invoker(ctx, method, req, reply, cc, opts...)

		if hdr != nil {
			c.serverHeader(hdr, &p)
		}
		if err == nil {
			c.message(binlogpb.GrpcLogEntry_EVENT_TYPE_SERVER_MESSAGE, reply)
		}
		c.end(ctx, err, trl, nil)
		return err
	}

	stream := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		limits, ok := filter.Match(method)
		if !ok {
			return streamer(ctx, desc, cc, method, opts...)
		}
		c := newCall(sink, limits, binlogpb.GrpcLogEntry_LOGGER_CLIENT)
		md, _ := metadata.FromOutgoingContext(ctx)
		c.clientHeader(ctx, method, cc.CanonicalTarget(), md, nil)

		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			c.end(ctx, err, nil, nil)
			return nil, err
		}
		return &loggingClientStream{ClientStream: cs, call: c, ctx: ctx}, nil
	}

	return unary, stream
}

type loggingClientStream struct {
	grpc.ClientStream
	call *call
	ctx  context.Context

	headerOnce sync.Once
	endOnce    sync.Once
}

func (s *loggingClientStream) logHeader() {
	s.headerOnce.Do(func() {
		if md, err := s.ClientStream.Header(); err == nil && md != nil {
			s.call.serverHeader(md, nil)
		}
	})
}

func (s *loggingClientStream) Header() (metadata.MD, error) {
	s.logHeader()
	return s.ClientStream.Header()
}

func (s *loggingClientStream) SendMsg(m interface{}) error {
	err := s.ClientStream.SendMsg(m)
	if err == nil {
		s.call.message(binlogpb.GrpcLogEntry_EVENT_TYPE_CLIENT_MESSAGE, m)
	}
	return err
}

func (s *loggingClientStream) CloseSend() error {
	err := s.ClientStream.CloseSend()
	if err == nil {
		s.call.halfClose()
	}
	return err
}

func (s *loggingClientStream) RecvMsg(m interface{}) error {
	err := s.ClientStream.RecvMsg(m)
	if err == nil {
		s.logHeader()
		s.call.message(binlogpb.GrpcLogEntry_EVENT_TYPE_SERVER_MESSAGE, m)
		return nil
	}
	s.endOnce.Do(func() {
		s.logHeader()
		final := err
		if errors.Is(err, io.EOF) {
			final = nil
		}
		s.call.end(s.ctx, final, s.ClientStream.Trailer(), nil)
	})
	return err
}

// Summary renders an entry as a one-line description for CLI output
func Summary(e *binlogpb.GrpcLogEntry) string {
	s := strconv.FormatUint(e.GetCallId(), 16) + "#" + strconv.FormatUint(e.GetSequenceIdWithinCall(), 10) +
		" " + e.GetLogger().String() + " " + e.GetType().String()
	switch p := e.GetPayload().(type) {
	case *binlogpb.GrpcLogEntry_ClientHeader:
		s += " " + p.ClientHeader.GetMethodName()
	case *binlogpb.GrpcLogEntry_Message:
		s += " len=" + strconv.FormatUint(uint64(p.Message.GetLength()), 10)
	case *binlogpb.GrpcLogEntry_Trailer:
		s += " status=" + codes.Code(p.Trailer.GetStatusCode()).String()
	}
	if e.GetPayloadTruncated() {
		s += " (truncated)"
	}
	return s
}
