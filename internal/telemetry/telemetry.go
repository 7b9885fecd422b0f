// Package telemetry records embedding latency and routing outcomes as
// Prometheus metrics and structured log lines.
//
// Metrics are registered on a package-owned registry rather than the global
// default so that tests and embedded uses do not collide. Serve it with
// Handler:
//
//	http.Handle("/metrics", telemetry.Handler())
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Recorder reports embedding calls and routing decisions
type Recorder struct {
	duration *prometheus.HistogramVec
	texts    *prometheus.CounterVec
	routes   *prometheus.CounterVec
	logger   *slog.Logger
}

var (
	registry = prometheus.NewRegistry()
	fallback = NewRecorder(registry, nil)
)

// NewRecorder creates a Recorder whose metrics are registered on reg.
// A nil logger means slog.Default().
func NewRecorder(reg prometheus.Registerer, logger *slog.Logger) *Recorder {
	r := &Recorder{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragroute",
			Name:      "embed_duration_seconds",
			Help:      "Latency of embedding backend calls.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"backend", "outcome"}),
		texts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragroute",
			Name:      "embed_texts_total",
			Help:      "Texts sent to embedding backends.",
		}, []string{"backend"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragroute",
			Name:      "route_decisions_total",
			Help:      "Routing decisions by route.",
		}, []string{"route"}),
		logger: logger,
	}
	if reg != nil {
		reg.MustRegister(r.duration, r.texts, r.routes)
	}
	return r
}

// Default returns the process-wide recorder backing Handler
func Default() *Recorder {
	return fallback
}

// Handler serves the process-wide registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveEmbed records one backend call
func (r *Recorder) ObserveEmbed(backend string, batchSize int, elapsed time.Duration, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.duration.WithLabelValues(backend, outcome).Observe(elapsed.Seconds())
	r.texts.WithLabelValues(backend).Add(float64(batchSize))

	logger := r.logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []slog.Attr{
		slog.String("backend", backend),
		slog.Int("batch", batchSize),
		slog.Duration("elapsed", elapsed),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	logger.LogAttrs(context.Background(), slog.LevelDebug, "embed call", attrs...)
}

// ObserveRoute counts one routing decision
func (r *Recorder) ObserveRoute(route string) {
	r.routes.WithLabelValues(route).Inc()
}
