package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observerMetric(t *testing.T, o prometheus.Observer) *dto.Metric {
	t.Helper()
	m, ok := o.(prometheus.Metric)
	require.True(t, ok)
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	return &out
}

func metricsRouter(service string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics(service))
	r.Post("/api/v1/dashboard/products/{id}/wishlist", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/api/v1/dashboard", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	return r
}

func TestPrometheusMetrics_LabelsByRoutePattern(t *testing.T) {
	const svc = "metrics-route"
	router := metricsRouter(svc)

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/products/"+id+"/wishlist", nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	pattern := "/api/v1/dashboard/products/{id}/wishlist"
	assert.Equal(t, 3.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(svc, http.MethodPost, pattern, "202")))

	hist := observerMetric(t, httpRequestDuration.WithLabelValues(svc, http.MethodPost, pattern, "202"))
	assert.Equal(t, uint64(3), hist.GetHistogram().GetSampleCount())
}

func TestPrometheusMetrics_ImplicitOK(t *testing.T) {
	const svc = "metrics-implicit"
	rec := httptest.NewRecorder()
	metricsRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(svc, http.MethodGet, "/api/v1/dashboard", "200")))
}

func TestPrometheusMetrics_UnmatchedRoute(t *testing.T) {
	const svc = "metrics-unmatched"
	rec := httptest.NewRecorder()
	PrometheusMetrics(svc)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(svc, http.MethodGet, "unknown", "404")))
}

func TestPrometheusMetrics_InFlight(t *testing.T) {
	const svc = "metrics-inflight"
	var during float64
	h := PrometheusMetrics(svc)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		during = testutil.ToFloat64(httpRequestsInFlight.WithLabelValues(svc))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1.0, during)
	assert.Equal(t, 0.0, testutil.ToFloat64(httpRequestsInFlight.WithLabelValues(svc)))
}

type noFlushWriter struct{ header http.Header }

func (w *noFlushWriter) Header() http.Header         { return w.header }
func (w *noFlushWriter) Write(b []byte) (int, error) { return len(b), nil }
func (w *noFlushWriter) WriteHeader(int)             {}

func TestStatusRecorder_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	newStatusRecorder(rec).Flush()
	assert.True(t, rec.Flushed)

	assert.NotPanics(t, newStatusRecorder(&noFlushWriter{header: http.Header{}}).Flush)
}

func TestPrometheusMetrics_EventStreamTimedSeparately(t *testing.T) {
	const svc = "metrics-sse"
	r := chi.NewRouter()
	r.Use(PrometheusMetrics(svc))
	r.Get("/api/v1/dashboard/events", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: toast\ndata: {}\n\n"))
		require.NoError(t, http.NewResponseController(w).Flush())
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/events", nil))
	assert.True(t, rec.Flushed)

	pattern := "/api/v1/dashboard/events"
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(svc, http.MethodGet, pattern, "200")))
	stream := observerMetric(t, httpStreamDuration.WithLabelValues(svc, pattern))
	assert.Equal(t, uint64(1), stream.GetHistogram().GetSampleCount())
	req := observerMetric(t, httpRequestDuration.WithLabelValues(svc, http.MethodGet, pattern, "200"))
	assert.Zero(t, req.GetHistogram().GetSampleCount())
}

func TestPrometheusMetrics_ResponseSize(t *testing.T) {
	const svc = "metrics-size"
	rec := httptest.NewRecorder()
	metricsRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))

	size := observerMetric(t, httpResponseSize.WithLabelValues(svc, "/api/v1/dashboard"))
	assert.Equal(t, uint64(1), size.GetHistogram().GetSampleCount())
	assert.Equal(t, float64(len(`{"data":{}}`)), size.GetHistogram().GetSampleSum())
}
