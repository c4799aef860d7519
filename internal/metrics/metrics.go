// Package metrics provides the Prometheus collectors and exporter of the TTS backend.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const (
	namespace                = "tts_backend"
	defaultReadHeaderTimeout = 10 * time.Second
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the backend collectors.
type Metrics struct {
	RPCRequests *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec
	ModelLoads  *prometheus.CounterVec
	Syntheses   *prometheus.CounterVec
	AudioBytes  prometheus.Counter
	registry    *prometheus.Registry
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Backend RPCs handled, by method and status code.",
		}, []string{"method", "code"}),
		RPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Backend RPC latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"method"}),
		ModelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "LoadModel calls, by engine and outcome.",
		}, []string{"engine", "outcome"}),
		Syntheses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syntheses_total",
			Help:      "TTS calls, by outcome.",
		}, []string{"outcome"}),
		AudioBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Bytes of WAV audio produced.",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RPCRequests,
		m.RPCDuration,
		m.ModelLoads,
		m.Syntheses,
		m.AudioBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// UnaryServerInterceptor counts and times every unary RPC.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		m.RPCDuration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		m.RPCRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()

		return resp, err
	}
}

// Exporter serves /metrics over HTTP.
type Exporter struct {
	addr    string
	metrics *Metrics
	mu      sync.Mutex
	server  *http.Server
}

// NewExporter creates an exporter for m listening on addr.
func NewExporter(addr string, m *Metrics) *Exporter {
	return &Exporter{addr: addr, metrics: m}
}

// Serve listens on the exporter address and blocks until ctx is cancelled.
func (e *Exporter) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", e.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics address %s: %w", e.addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())

	e.mu.Lock()
	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	server := e.server
	e.mu.Unlock()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultReadHeaderTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	serveErr := server.Serve(listener)
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", serveErr)
	}

	return nil
}
