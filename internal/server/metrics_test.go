package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObserveExecution(t *testing.T) {
	m := NewMetrics()

	m.ObserveExecution("success", true, false, 5*time.Millisecond)
	m.ObserveExecution("success", true, false, 5*time.Millisecond)
	m.ObserveExecution("QUERY_EXECUTION_FAILED", false, true, time.Millisecond)

	if got := testutil.ToFloat64(m.executions.WithLabelValues("success", "true", "false")); got != 2 {
		t.Errorf("success counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.executions.WithLabelValues("QUERY_EXECUTION_FAILED", "false", "true")); got != 1 {
		t.Errorf("failure counter = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.executionDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.ObserveExecution("success", false, false, time.Millisecond)

	if got := testutil.ToFloat64(b.executions.WithLabelValues("success", "false", "false")); got != 0 {
		t.Errorf("metrics leaked across registries: %v", got)
	}
	if a.Registry() == b.Registry() {
		t.Error("each Metrics should own its registry")
	}
}

func TestMetrics_MiddlewareUsesRoutePattern(t *testing.T) {
	s := newTestServer()
	router := s.Router()

	for _, path := range []string{"/healthz", "/healthz", "/no/such/path"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	router.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/v1/execute", strings.NewReader(`{"db":"acme","query":"SELECT 1"}`)))

	m := s.metrics
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/healthz", "200")); got != 2 {
		t.Errorf("healthz counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/v1/execute", "200")); got != 1 {
		t.Errorf("execute counter = %v, want 1", got)
	}
}
