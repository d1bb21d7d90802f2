package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/pagination"
)

type reserveBody struct {
	Quantity int    `json:"quantity" validate:"gt=0"`
	Reason   string `json:"reason" validate:"required,max=10"`
}

func assertValidation(t *testing.T, err error) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	return typed
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":2,"reason":"audit"}`))
	var body reserveBody
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Equal(t, 2, body.Quantity)
	assert.Equal(t, "audit", body.Reason)
}

func TestDecodeJSONBodyFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0}`))
	var body reserveBody
	typed := assertValidation(t, DecodeJSONBody(req, &body))
	details := typed.Details().(map[string]string)
	assert.Equal(t, "must be greater than 0", details["quantity"])
	assert.Equal(t, "is required", details["reason"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":1,"reason":"x","extra":true}`))
	var body reserveBody
	typed := assertValidation(t, DecodeJSONBody(req, &body))
	assert.Equal(t, "is not allowed", typed.Details().(map[string]string)["extra"])
}

type itemsBody struct {
	Note  string `json:"note" validate:"notblank"`
	Items []struct {
		Quantity int `json:"quantity" validate:"gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

func TestDecodeJSONBodyNestedPathsAndBlankStrings(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"note":"  ","items":[{"quantity":1},{"quantity":0}]}`))
	var body itemsBody
	typed := assertValidation(t, DecodeJSONBody(req, &body))
	details := typed.Details().(map[string]string)
	assert.Equal(t, "must not be blank", details["note"])
	assert.Equal(t, "must be greater than 0", details["items[1].quantity"])
	assert.NotContains(t, details, "items[0].quantity")
}

func TestDecodeJSONBodyShapeErrors(t *testing.T) {
	cases := map[string]string{
		"empty":     ``,
		"trailing":  `{"quantity":1,"reason":"x"} {"quantity":2}`,
		"truncated": `{"quantity":1,`,
		"syntax":    `{"quantity":1,,}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var body reserveBody
			assertValidation(t, DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw)), &body))
		})
	}

	var body reserveBody
	typed := assertValidation(t, DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":"two"}`)), &body))
	assert.Equal(t, "must be an integer", typed.Details().(map[string]string)["quantity"])

	big := `{"reason":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	typed = assertValidation(t, DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big)), &body))
	assert.Contains(t, typed.Message(), "exceeds")
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("stockId", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}

	got, err := ParseUUIDParam(withParam(id.String()), "stockId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(withParam("nope"), "stockId")
	assertValidation(t, err)

	_, err = ParseUUIDParam(withParam(""), "stockId")
	assertValidation(t, err)
}

func TestParseUUIDQuery(t *testing.T) {
	id := uuid.New()
	got, err := ParseUUIDQuery(httptest.NewRequest(http.MethodGet, "/?typeComponentId="+id.String(), nil), "typeComponentId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDQuery(httptest.NewRequest(http.MethodGet, "/", nil), "typeComponentId")
	assertValidation(t, err)
}

func TestParseQueryInt(t *testing.T) {
	got, err := ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=5", nil), "limit", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	got, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=500", nil), "limit", 10, 1, 100)
	assertValidation(t, err)
}

func TestParsePage(t *testing.T) {
	page, err := ParsePage(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, pagination.DefaultLimit, page.Limit)
	assert.Empty(t, page.Cursor)

	token := pagination.Cursor{CreatedAt: time.Now(), ID: uuid.New()}.Encode()
	page, err = ParsePage(httptest.NewRequest(http.MethodGet, "/?limit=10&cursor="+token, nil))
	require.NoError(t, err)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, token, page.Cursor)

	_, err = ParsePage(httptest.NewRequest(http.MethodGet, "/?cursor=%25%25", nil))
	typed := assertValidation(t, err)
	assert.Equal(t, "cursor", typed.Details().(map[string]any)["field"])
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	assert.Equal(t, "abc", SanitizeString("abc", 0))
	assert.Equal(t, "bad serial", SanitizeString("bad\x00 serial\x07", 0))
	assert.Equal(t, "filtro ñ", SanitizeString("filtro ñandú", 8))
	assert.Equal(t, "line1\nline2", SanitizeString("line1\nline2", 0))
}
