package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partsreserve-backend/api/responses"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

func TestCorrelationKeepsWellFormedCallerID(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	var seen string
	handler := Correlation(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
		logg.Info(r.Context(), "inside")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(legacyCorrelationHeader, "sc-42:retry.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "sc-42:retry.1", seen)
	assert.Equal(t, "sc-42:retry.1", rec.Header().Get(CorrelationHeader))
	assert.Contains(t, buf.String(), `"correlation_id":"sc-42:retry.1"`)
}

func TestCorrelationReplacesMalformedID(t *testing.T) {
	var seen string
	handler := Correlation(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))

	for _, bad := range []string{"", "has space", "x\ny", strings.Repeat("a", 129)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(CorrelationHeader, bad)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err, "header %q", bad)
	}
	assert.Empty(t, CorrelationID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestRecovererWritesInternalEnvelope(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	handler := Recoverer(logg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/stocks", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body responses.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	assert.NotContains(t, body.Error.Message, "nil map")
	assert.Contains(t, buf.String(), "handler panicked")
	assert.Contains(t, buf.String(), `"path":"/api/v1/stocks"`)
}

func TestRecovererReraisesAbort(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRecovererLeavesStartedResponsesAlone(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	handler := Recoverer(logg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"data":`))
		panic("encoder blew up")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, `{"data":`, rec.Body.String())
	assert.Contains(t, buf.String(), `"response_started":true`)
	assert.Contains(t, buf.String(), "panic_stack")
}
