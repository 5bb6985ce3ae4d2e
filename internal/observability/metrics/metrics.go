// Package metrics exposes registry and HTTP metrics through the Prometheus
// client library. A nil *Recorder is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	xerrors "intel-registry/internal/errors"
)

const namespace = "intelreg"

// Recorder owns a dedicated Prometheus registry and the registry collectors.
type Recorder struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	operations   *prometheus.CounterVec
	opLatency    *prometheus.HistogramVec
	transitions  *prometheus.CounterVec
	confidence   prometheus.Histogram
	eventErrors  *prometheus.CounterVec
}

// New creates a Recorder with Go runtime and process collectors attached.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"handler", "method"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_operations_total",
			Help:      "Registry operations by outcome code.",
		}, []string{"operation", "code"}),
		opLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registry_operation_duration_seconds",
			Help:      "Registry operation duration in seconds, including the storage commit.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proof_status_transitions_total",
			Help:      "Proof verification status transitions.",
		}, []string{"from", "to"}),
		confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attestation_confidence",
			Help:      "Distribution of submitted attestation confidences.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		eventErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Registry events that could not be published.",
		}, []string{"type"}),
	}
}

// Registry returns the underlying Prometheus registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (r *Recorder) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveOperation records the outcome of a registry call. A nil error is
// recorded under code "OK".
func (r *Recorder) ObserveOperation(operation string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	code := "OK"
	if err != nil {
		code = string(xerrors.CodeOf(err))
	}
	r.operations.WithLabelValues(operation, code).Inc()
	r.opLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveTransition counts a proof status change. Unchanged statuses are ignored.
func (r *Recorder) ObserveTransition(from, to string) {
	if r == nil || from == to {
		return
	}
	r.transitions.WithLabelValues(from, to).Inc()
}

// ObserveConfidence records a submitted attestation confidence.
func (r *Recorder) ObserveConfidence(confidence uint8) {
	if r == nil {
		return
	}
	r.confidence.Observe(float64(confidence))
}

// ObserveEventFailure counts an event that could not be published.
func (r *Recorder) ObserveEventFailure(eventType string) {
	if r == nil {
		return
	}
	r.eventErrors.WithLabelValues(eventType).Inc()
}

// Handler exposes the metrics in Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// StartServer launches a standalone HTTP server exposing /metrics until ctx ends.
func (r *Recorder) StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
