package httppresentation

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/libraryhold/internal/observability"
	"github.com/Zhima-Mochi/libraryhold/internal/observability/logctx"
)

type recorded struct {
	key    observability.MetricKey
	labels map[string]string
}

type recordingMetrics struct {
	mu   sync.Mutex
	seen []recorded
}

type recordingInstrument struct {
	m   *recordingMetrics
	key observability.MetricKey
}

func (i recordingInstrument) record(labels []observability.Label) {
	m := make(map[string]string, len(labels))
	for _, l := range labels {
		m[l.Key] = l.Value
	}
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	i.m.seen = append(i.m.seen, recorded{key: i.key, labels: m})
}

func (i recordingInstrument) Add(_ float64, labels ...observability.Label)     { i.record(labels) }
func (i recordingInstrument) Observe(_ float64, labels ...observability.Label) { i.record(labels) }

func (m *recordingMetrics) Counter(k observability.MetricKey) observability.Counter {
	return recordingInstrument{m: m, key: k}
}

func (m *recordingMetrics) Histogram(k observability.MetricKey) observability.Histogram {
	return recordingInstrument{m: m, key: k}
}

type metricsObs struct{ m *recordingMetrics }

func (metricsObs) Tracer() observability.Tracer    { return observability.NopTracer() }
func (metricsObs) Logger() observability.Logger    { return observability.NopLogger() }
func (o metricsObs) Metrics() observability.Metrics { return o.m }

func TestObservabilityMiddleware_RecordsRouteTemplate(t *testing.T) {
	metrics := &recordingMetrics{}
	b := newBase("test", nil, metricsObs{m: metrics})

	var sawLogger bool
	mux := http.NewServeMux()
	b.muxHandle(mux, http.MethodGet, "/items/{id}/availability", func(w http.ResponseWriter, r *http.Request) {
		sawLogger = logctx.From(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/items/42/availability", nil)
	req.Header.Set(headerRequestID, "req-1")
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(headerRequestID))
	assert.True(t, sawLogger)

	require.Len(t, metrics.seen, 2)
	for _, r := range metrics.seen {
		assert.Equal(t, map[string]string{
			"method": http.MethodGet,
			"route":  "GET /items/{id}/availability",
			"status": "418",
		}, r.labels)
	}
	assert.Equal(t, observability.MHTTPRequests, metrics.seen[0].key)
	assert.Equal(t, observability.MHTTPRequestDuration, metrics.seen[1].key)
}

func TestObservabilityMiddleware_GeneratesRequestID(t *testing.T) {
	b := newBase("test", nil, nil)
	mux := http.NewServeMux()
	b.muxHandle(mux, http.MethodGet, "/ping", func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
}
