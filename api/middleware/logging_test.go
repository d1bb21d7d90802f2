package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

func accessLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		lines = append(lines, line)
	}
	return lines
}

func TestLoggingRecordsRouteStatusAndBytes(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf, Level: logger.ParseLevel("info")})

	r := chi.NewRouter()
	r.Use(Logging(logg))
	r.Get("/reservations/{id}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {})

	for _, path := range []string{"/reservations/abc", "/boom", "/health/live"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	lines := accessLines(t, buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "request", lines[0]["message"])
	assert.Equal(t, "/reservations/{id}", lines[0]["route"])
	assert.Equal(t, "/reservations/abc", lines[0]["path"])
	assert.EqualValues(t, 200, lines[0]["status"])
	assert.EqualValues(t, 5, lines[0]["bytes"])

	assert.Equal(t, "request failed", lines[1]["message"])
	assert.Equal(t, "warn", lines[1]["level"])
	assert.EqualValues(t, 502, lines[1]["status"])
}

func TestLoggingWithoutLoggerPassesThrough(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
	Logging(nil)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
