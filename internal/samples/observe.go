package samples

import (
	"context"

	"github.com/msto63/grpc-sample/pkg/binlog"
	coregrpc "github.com/msto63/grpc-sample/pkg/core/grpc"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"github.com/msto63/grpc-sample/pkg/tracer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/stats"
)

// with returns a copy of o with more dial options
func (o Options) with(extra ...grpc.DialOption) Options {
	o.DialOptions = append(append([]grpc.DialOption{}, o.DialOptions...), extra...)
	return o
}

// unaryAndBidi runs the unary call and the bidi stream, the two shapes
// the call-phase samples print
func unaryAndBidi(ctx context.Context, opts Options) ([]string, error) {
	replies, err := RunHelloWorld(ctx, opts)
	if err != nil {
		return replies, err
	}
	bidi, err := RunBidiStream(ctx, opts)
	return append(replies, bidi...), err
}

// RunInterceptor logs every phase of the client calls (start, headers,
// messages, half close, close) with the call tracer interceptors
func RunInterceptor(ctx context.Context, opts Options, logger *logging.Logger) ([]string, error) {
	unary, stream := coregrpc.ClientCallTracer(logger)
	return unaryAndBidi(ctx, opts.with(
		grpc.WithChainUnaryInterceptor(unary),
		grpc.WithChainStreamInterceptor(stream),
	))
}

// RunStreamTracer installs client stats handlers: the log tracer and,
// when given, the OpenTelemetry handler
func RunStreamTracer(ctx context.Context, opts Options, logger *logging.Logger, tracing *tracer.Tracing) ([]string, error) {
	handlers := []stats.Handler{tracer.NewLogHandler(logger)}
	if tracing != nil {
		handlers = append(handlers, tracing.Client)
	}
	return unaryAndBidi(ctx, opts.with(grpc.WithStatsHandler(tracer.NewMultiHandler(handlers...))))
}

// RunLog routes grpc's own logging through logger before calling, so the
// channel and transport messages show up next to the sample's output
func RunLog(ctx context.Context, opts Options, logger *logging.Logger, level logging.Level) ([]string, error) {
	if logger == nil {
		logger = logging.New("grpc")
	}
	logging.InstallGRPCLogger(logger, level)
	return RunHelloWorld(ctx, opts)
}

// BinlogResult holds the replies and the decoded binary log
type BinlogResult struct {
	Replies []string
	Entries []string
}

// RunBinlog records the client side of the calls into a binary log file
// and reads it back
func RunBinlog(ctx context.Context, opts Options, path, filter string) (BinlogResult, error) {
	var result BinlogResult
	f, err := binlog.ParseFilter(filter)
	if err != nil {
		return result, err
	}
	sink, err := binlog.NewFileSink(path)
	if err != nil {
		return result, err
	}
	unary, stream := binlog.ClientInterceptors(sink, f)
	result.Replies, err = unaryAndBidi(ctx, opts.with(
		grpc.WithChainUnaryInterceptor(unary),
		grpc.WithChainStreamInterceptor(stream),
	))
	if cerr := sink.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return result, err
	}

	entries, err := binlog.ReadAll(path)
	if err != nil {
		return result, err
	}
	for _, e := range entries {
		result.Entries = append(result.Entries, binlog.Summary(e))
	}
	samplesLogger.Info("Binary log written", "path", path, "entries", len(entries))
	return result, nil
}
