package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/cors"
)

var defaultCORSOrigins = []string{"http://localhost:3000"}

// CORS applies the allowed-origin policy. An empty list falls back to the
// local dev origin. A "*" entry opens the API to any origin but then drops
// credentials, which browsers refuse to pair with a wildcard.
func CORS(origins []string) func(http.Handler) http.Handler {
	origins = cleanOrigins(origins)
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	wildcard := slices.Contains(origins, "*")
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, CorrelationHeader, legacyCorrelationHeader},
		ExposedHeaders:   []string{CorrelationHeader, "Retry-After"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	}).Handler
}

func cleanOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" && !slices.Contains(out, origin) {
			out = append(out, origin)
		}
	}
	return out
}
