package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestLabels = []string{"service", "method", "path", "status"}

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricetracker_http_requests_total",
		Help: "HTTP requests served, streams included.",
	}, requestLabels)

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricetracker_http_request_duration_seconds",
		Help:    "Latency of non-streaming HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, requestLabels)

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricetracker_http_response_size_bytes",
		Help:    "Body size of non-streaming HTTP responses.",
		Buckets: prometheus.ExponentialBuckets(128, 4, 8),
	}, []string{"service", "path"})

	httpStreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricetracker_http_stream_duration_seconds",
		Help:    "How long event streams stayed open.",
		Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600},
	}, []string{"service", "path"})

	httpRequestsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pricetracker_http_requests_in_flight",
		Help: "HTTP requests currently being served, open streams included.",
	}, []string{"service"})
)

// PrometheusMetrics records per-route request metrics. Paths are labelled by
// chi route pattern. Server-Sent Event responses are timed in a separate
// histogram so open streams do not distort request latency.
func PrometheusMetrics(serviceName string) func(next http.Handler) http.Handler {
	inFlight := httpRequestsInFlight.WithLabelValues(serviceName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			inFlight.Inc()
			defer inFlight.Dec()

			rw := newStatusRecorder(w)
			next.ServeHTTP(rw, r)
			elapsed := time.Since(start).Seconds()

			path := routePattern(r)
			httpRequestsTotal.WithLabelValues(serviceName, r.Method, path, strconv.Itoa(rw.statusCode)).Inc()

			if isEventStream(rw.Header()) {
				httpStreamDuration.WithLabelValues(serviceName, path).Observe(elapsed)
				return
			}
			httpRequestDuration.WithLabelValues(serviceName, r.Method, path, strconv.Itoa(rw.statusCode)).Observe(elapsed)
			httpResponseSize.WithLabelValues(serviceName, path).Observe(float64(rw.bytes))
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unknown"
}

func isEventStream(h http.Header) bool {
	return strings.HasPrefix(h.Get("Content-Type"), "text/event-stream")
}
