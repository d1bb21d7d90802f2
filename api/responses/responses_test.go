package responses

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body SuccessBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "world", body.Data.(map[string]any)["hello"])
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "quantity"})
	WriteError(context.Background(), nil, w, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, string(pkgerrors.CodeValidation), body.Error.Code)
	assert.Equal(t, "bad input", body.Error.Message)
	assert.NotNil(t, body.Error.Details)
}

func TestWriteErrorCarriesPartialShipmentIDs(t *testing.T) {
	failed := uuid.New()
	w := httptest.NewRecorder()
	logg := logger.New(logger.Options{ServiceName: "responses-test", Output: io.Discard})
	WriteError(context.Background(), logg, w, pkgerrors.PartialShipment([]uuid.UUID{failed}))

	assert.Equal(t, http.StatusConflict, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, string(pkgerrors.CodePartialShipment), body.Error.Code)
	details, ok := body.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{failed.String()}, details["failed_reservation_ids"])
}

func TestWriteErrorHidesDependencyMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp"), "load stock"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	body := decodeError(t, w)
	assert.Equal(t, pkgerrors.MetadataFor(pkgerrors.CodeDependency).PublicMessage, body.Error.Message)
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	assert.Nil(t, body.Error.Details)
}

func TestWriteErrorNil(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
