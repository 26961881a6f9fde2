package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

const namespace = "folio"

// Registry holds the Prometheus metrics exported by folio. Each Registry owns its own
// prometheus.Registry so that tests and multiple servers never collide on registration.
type Registry struct {
	reg *prometheus.Registry

	OptimizationDuration *prometheus.HistogramVec
	Fallbacks            *prometheus.CounterVec
	CacheHits            *prometheus.CounterVec
	CacheMisses          *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
	BreakerState         *prometheus.GaugeVec
	QueueMessages        *prometheus.CounterVec
}

// New creates a Registry with every folio metric plus the Go runtime and process collectors.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		OptimizationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "optimization_duration_seconds",
				Help:      "Time spent computing strategy summaries or frontiers",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"strategy"},
		),

		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "marketdata_fallbacks_total",
				Help:      "Synthetic substitutions by kind (request, symbol, constant)",
			},
			[]string{"kind"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Return-series cache hits by layer",
			},
			[]string{"layer"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Return-series cache misses by layer",
			},
			[]string{"layer"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "method", "code"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),

		QueueMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_messages_total",
				Help:      "Queue requests handled by outcome",
			},
			[]string{"outcome"},
		),
	}

	r.reg.MustRegister(
		r.OptimizationDuration,
		r.Fallbacks,
		r.CacheHits,
		r.CacheMisses,
		r.HTTPRequests,
		r.HTTPDuration,
		r.BreakerState,
		r.QueueMessages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Gatherer exposes the underlying registry, e.g. for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// ObserveOptimization records how long a strategy run took.
func (r *Registry) ObserveOptimization(strategy string, d time.Duration) {
	r.OptimizationDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// Fallback counts a synthetic substitution.
func (r *Registry) Fallback(kind string) {
	r.Fallbacks.WithLabelValues(kind).Inc()
}

// CacheHit counts a hit in layer.
func (r *Registry) CacheHit(layer string) {
	r.CacheHits.WithLabelValues(layer).Inc()
}

// CacheMiss counts a miss in layer.
func (r *Registry) CacheMiss(layer string) {
	r.CacheMisses.WithLabelValues(layer).Inc()
}

// ObserveHTTP records one served request.
func (r *Registry) ObserveHTTP(route, method string, code int, d time.Duration) {
	r.HTTPRequests.WithLabelValues(route, method, statusLabel(code)).Inc()
	r.HTTPDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// BreakerTransition is a circuit.StateObserver.
func (r *Registry) BreakerTransition(name string, _, to gobreaker.State) {
	r.BreakerState.WithLabelValues(name).Set(breakerValue(to))
}

// QueueMessage counts a handled queue request.
func (r *Registry) QueueMessage(outcome string) {
	r.QueueMessages.WithLabelValues(outcome).Inc()
}

func breakerValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
