package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

const (
	CorrelationHeader       = "X-Correlation-Id"
	legacyCorrelationHeader = "X-Request-Id"
)

// Caller supplied ids end up in logs, so they are limited to a safe charset.
var correlationPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

type correlationKey struct{}

// Correlation tags the request with a correlation id, echoed in the response
// header and logged as correlation_id. The id is taken from the caller when
// well formed, otherwise generated.
func Correlation(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := incomingCorrelationID(r)
			w.Header().Set(CorrelationHeader, id)

			ctx := context.WithValue(r.Context(), correlationKey{}, id)
			if logg != nil {
				ctx = logg.WithCorrelationID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CorrelationID returns the id assigned by Correlation, or "" outside it.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

func incomingCorrelationID(r *http.Request) string {
	for _, header := range []string{CorrelationHeader, legacyCorrelationHeader} {
		if id := r.Header.Get(header); correlationPattern.MatchString(id) {
			return id
		}
	}
	return uuid.NewString()
}
