package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"factorcorr/internal/metrics"
	"factorcorr/internal/model"

	"github.com/stretchr/testify/assert"
)

type fixedState model.State

func (s fixedState) State() model.State { return model.State(s) }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, New(fixedState(model.StateReady)), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	rec := get(t, New(fixedState(model.StateUninitialized)), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = get(t, New(fixedState(model.StateError)), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"error"}`, rec.Body.String())
}

func TestMetricsExposed(t *testing.T) {
	metrics.PredictionsTotal.WithLabelValues("ok").Inc()
	rec := get(t, New(fixedState(model.StateReady)), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "factorcorr_predictions_total")
}

func TestProfilerMounted(t *testing.T) {
	rec := get(t, New(fixedState(model.StateReady)), "/debug/pprof/")
	assert.Equal(t, http.StatusOK, rec.Code)
}
