package middleware

import (
	"net/http"
	"time"

	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
)

// Metrics records each request under its chi route pattern once routing has
// finished.
func Metrics(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)
			m.Observe(r.Method, routePattern(r), rec.code(), time.Since(start))
		})
	}
}
