package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestMeasure_CountsStatus(t *testing.T) {
	h := Measure(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	body := scrape(t)
	assert.Contains(t, body, `autoprofile_http_requests_total{code="418"}`)
	assert.Contains(t, body, "autoprofile_http_in_flight 0")
}

func TestMetricsHandler_ExposesEngineSeries(t *testing.T) {
	Evaluations.WithLabelValues("match").Inc()
	Switches.WithLabelValues("applied").Inc()

	body := scrape(t)
	assert.Contains(t, body, `autoprofile_evaluations_total{result="match"}`)
	assert.Contains(t, body, `autoprofile_switches_total{outcome="applied"}`)
}
