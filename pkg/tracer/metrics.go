package tracer

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/status"
)

// MetricsHandler records RPC metrics in prometheus. One handler may be
// installed on both clients and servers; the side is a label.
type MetricsHandler struct {
	started  *prometheus.CounterVec
	handled  *prometheus.CounterVec
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetricsHandler registers the collectors on reg
func NewMetricsHandler(reg prometheus.Registerer) *MetricsHandler {
	f := promauto.With(reg)
	return &MetricsHandler{
		started: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grpc_sample",
				Subsystem: "rpc",
				Name:      "started_total",
				Help:      "Total number of RPCs started",
			},
			[]string{"side", "method"},
		),
		handled: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grpc_sample",
				Subsystem: "rpc",
				Name:      "handled_total",
				Help:      "Total number of RPCs completed, by status code",
			},
			[]string{"side", "method", "code"},
		),
		messages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grpc_sample",
				Subsystem: "rpc",
				Name:      "messages_total",
				Help:      "Total number of stream messages",
			},
			[]string{"side", "method", "direction"},
		),
		bytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grpc_sample",
				Subsystem: "rpc",
				Name:      "wire_bytes_total",
				Help:      "Total wire bytes of stream messages",
			},
			[]string{"side", "method", "direction"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "grpc_sample",
				Subsystem: "rpc",
				Name:      "duration_seconds",
				Help:      "RPC latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
			[]string{"side", "method"},
		),
	}
}

func (h *MetricsHandler) TagRPC(ctx context.Context, info *stats.RPCTagInfo) context.Context {
	return tagRPC(ctx, info)
}

func (h *MetricsHandler) HandleRPC(ctx context.Context, s stats.RPCStats) {
	method := rpcFromContext(ctx).method
	sd := side(s.IsClient())

	switch ev := s.(type) {
	case *stats.Begin:
		h.started.WithLabelValues(sd, method).Inc()
	case *stats.InPayload:
		h.messages.WithLabelValues(sd, method, "in").Inc()
		h.bytes.WithLabelValues(sd, method, "in").Add(float64(ev.WireLength))
	case *stats.OutPayload:
		h.messages.WithLabelValues(sd, method, "out").Inc()
		h.bytes.WithLabelValues(sd, method, "out").Add(float64(ev.WireLength))
	case *stats.End:
		h.handled.WithLabelValues(sd, method, status.Code(ev.Error).String()).Inc()
		h.latency.WithLabelValues(sd, method).Observe(ev.EndTime.Sub(ev.BeginTime).Seconds())
	}
}

func (h *MetricsHandler) TagConn(ctx context.Context, _ *stats.ConnTagInfo) context.Context {
	return ctx
}

func (h *MetricsHandler) HandleConn(context.Context, stats.ConnStats) {}
