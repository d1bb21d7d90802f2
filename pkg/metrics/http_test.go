package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsRecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	route := "/api/v1/stocks/{stockId}"
	m.Observe(http.MethodGet, route, http.StatusOK, 20*time.Millisecond)
	m.Observe(http.MethodGet, route, http.StatusOK, 10*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "partsreserve_http_requests_total", "route", route); err != nil {
		t.Fatalf("fetch requests: %v", err)
	} else if got != 2 {
		t.Fatalf("expected requests=2, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "partsreserve_http_request_duration_seconds", "route", route); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.Observe(http.MethodGet, "", http.StatusOK, time.Millisecond)
	NewHTTPMetrics(nil).Observe(http.MethodGet, "", http.StatusOK, time.Millisecond)
}
