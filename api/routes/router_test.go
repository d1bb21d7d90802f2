package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/api/controllers"
	"github.com/angelmondragon/partsreserve-backend/api/middleware"
	"github.com/angelmondragon/partsreserve-backend/internal/engine"
	"github.com/angelmondragon/partsreserve-backend/internal/reservations"
	pkgAuth "github.com/angelmondragon/partsreserve-backend/pkg/auth"
	"github.com/angelmondragon/partsreserve-backend/pkg/config"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/dbtest"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox"
)

type memoryIdempotency struct {
	data map[string]string
}

func (m *memoryIdempotency) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryIdempotency) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryIdempotency) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = value.(string)
	return nil
}

func (m *memoryIdempotency) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryIdempotency) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type harness struct {
	db        *gorm.DB
	engine    *engine.Engine
	handler   http.Handler
	cfg       *config.Config
	requester *models.Warehouse
	source    *models.Warehouse
	typeID    uuid.UUID
	stock     *models.Stock
}

func newHarness(t *testing.T, ready map[string]controllers.Pinger) harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "routes-test", Output: io.Discard})
	cfg := &config.Config{
		App:    config.AppConfig{Env: "test"},
		JWT:    config.JWTConfig{Secret: "route-secret", Issuer: "partsreserve-test", ExpirationMinutes: 30},
		Redis:  config.RedisConfig{IdempotencyTTL: time.Hour},
		Engine: config.EngineConfig{OperationTimeout: 10 * time.Second, ShipmentConcurrency: 2, ComponentPageSize: 10},
	}
	reg := prometheus.NewRegistry()
	eng, err := engine.New(engine.Params{
		DB:      conn,
		Config:  cfg.Engine,
		Logger:  logg,
		Metrics: metrics.NewEngineMetrics(reg),
	})
	require.NoError(t, err)

	handler := NewRouter(Params{
		Config:      cfg,
		Logger:      logg,
		Engine:      eng,
		Idempotency: &memoryIdempotency{data: map[string]string{}},
		Ready:       ready,
		Gatherer:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
	})

	requester := dbtest.MustCreateWarehouse(t, conn, "Service Center", 5)
	source := dbtest.MustCreateWarehouse(t, conn, "Regional", 1)
	typeComponent := dbtest.MustCreateTypeComponent(t, conn, "RT-"+uuid.NewString()[:6], "12.50")
	row := dbtest.MustCreateStock(t, conn, source.ID, typeComponent.ID, 4)

	return harness{
		db:        conn,
		engine:    eng,
		handler:   handler,
		cfg:       cfg,
		requester: requester,
		source:    source,
		typeID:    typeComponent.ID,
		stock:     row,
	}
}

func (h harness) token(t *testing.T, role enums.ActorRole, userID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(h.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

func (h harness) do(t *testing.T, method, path, token string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)

	var env envelope
	if strings.HasPrefix(resp.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	}
	return resp, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, map[string]controllers.Pinger{
		"database": pingerFunc(func(context.Context) error { return nil }),
		"redis":    pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	resp, _ := h.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "test", resp.Header().Get("X-PartsReserve-Env"))

	resp, env := h.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeDependency), env.Error.Code)
	assert.Equal(t, "redis", env.Error.Details["dependency"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.do(t, http.MethodGet, "/health/live", "", nil)

	resp, _ := h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "partsreserve_http_requests_total")
}

func TestAPIRequiresToken(t *testing.T) {
	h := newHarness(t, nil)
	resp, env := h.do(t, http.MethodGet, "/api/v1/stocks/"+h.stock.ID.String(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeUnauthorized), env.Error.Code)
}

func TestRoleEnforcement(t *testing.T) {
	h := newHarness(t, nil)
	tech := h.token(t, enums.ActorRoleTechnician, uuid.New())

	resp, _ := h.do(t, http.MethodPost, "/api/v1/stocks/"+h.stock.ID.String()+"/adjustments", tech, map[string]any{
		"type": "IN", "quantity": 1, "reason": "MANUAL_COUNT",
	})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	admin := h.token(t, enums.ActorRoleAdmin, uuid.New())
	resp, _ = h.do(t, http.MethodGet, "/api/v1/stocks/"+h.stock.ID.String(), admin, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestStockEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	staff := h.token(t, enums.ActorRoleSCStaff, uuid.New())
	base := "/api/v1/stocks/" + h.stock.ID.String()

	resp, env := h.do(t, http.MethodPost, base+"/reserve", staff, map[string]int{"quantity": 3})
	require.Equal(t, http.StatusOK, resp.Code)
	got := decode[controllers.StockDTO](t, env)
	assert.Equal(t, 3, got.QuantityReserved)
	assert.Equal(t, 1, got.QuantityAvailable)

	resp, env = h.do(t, http.MethodPost, base+"/reserve", staff, map[string]int{"quantity": 2})
	assert.Equal(t, http.StatusConflict, resp.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeInsufficientStock), env.Error.Code)

	resp, env = h.do(t, http.MethodPost, base+"/release", staff, map[string]int{"quantity": 3})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 4, decode[controllers.StockDTO](t, env).QuantityAvailable)

	resp, env = h.do(t, http.MethodPost, base+"/adjustments", staff, map[string]any{
		"type": "IN", "quantity": 2, "reason": "SUPPLIER_DELIVERY", "note": "  restock  ",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 6, decode[controllers.StockDTO](t, env).QuantityInStock)

	resp, env = h.do(t, http.MethodPost, base+"/adjustments", staff, map[string]any{
		"type": "SIDEWAYS", "quantity": 2, "reason": "SUPPLIER_DELIVERY",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "type", env.Error.Details["field"])

	resp, env = h.do(t, http.MethodGet, base+"/adjustments", staff, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	adjustments := decode[controllers.AdjustmentPageDTO](t, env)
	require.Len(t, adjustments.Items, 1)
	assert.Equal(t, "restock", adjustments.Items[0].Note)
	assert.Empty(t, adjustments.NextCursor)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/stocks/not-a-uuid", staff, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/stocks/"+uuid.NewString(), staff, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestOpenStockIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	staff := h.token(t, enums.ActorRoleEVMStaff, uuid.New())
	body := map[string]string{"warehouse_id": h.requester.ID.String(), "type_component_id": h.typeID.String()}

	resp, env := h.do(t, http.MethodPost, "/api/v1/stocks", staff, body)
	require.Equal(t, http.StatusCreated, resp.Code)
	first := decode[controllers.StockDTO](t, env)

	resp, env = h.do(t, http.MethodPost, "/api/v1/stocks", staff, body)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, first.ID, decode[controllers.StockDTO](t, env).ID)
}

func TestAvailableComponentsAndSummary(t *testing.T) {
	h := newHarness(t, nil)
	staff := h.token(t, enums.ActorRoleSCStaff, uuid.New())

	path := fmt.Sprintf("/api/v1/warehouses/%s/components?typeComponentId=%s&limit=3", h.source.ID, h.typeID)
	resp, env := h.do(t, http.MethodGet, path, staff, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]controllers.ComponentDTO](t, env), 3)

	resp, _ = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/warehouses/%s/components", h.source.ID), staff, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/service-centers/"+uuid.NewString()+"/inventory-summary", staff, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestTransferRequestLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	sc := h.token(t, enums.ActorRoleSCStaff, uuid.New())
	evm := h.token(t, enums.ActorRoleEVMStaff, uuid.New())
	source := h.source.ID

	resp, env := h.do(t, http.MethodPost, "/api/v1/transfer-requests", sc, map[string]any{
		"requesting_warehouse_id": h.requester.ID,
		"items": []map[string]any{
			{"type_component_id": h.typeID, "quantity": 2, "source_warehouse_id": source},
		},
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	request := decode[controllers.TransferRequestDTO](t, env)
	assert.Equal(t, enums.TransferRequestStatusPendingApproval, request.Status)
	require.Len(t, request.Items, 1)
	require.NotNil(t, request.Items[0].ReservationID)
	reservationID := *request.Items[0].ReservationID
	base := "/api/v1/transfer-requests/" + request.ID.String()

	resp, _ = h.do(t, http.MethodPost, base+"/approve", sc, map[string]any{})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp, env = h.do(t, http.MethodPost, base+"/approve", evm, map[string]any{"expected_version": request.Version})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, enums.TransferRequestStatusApproved, decode[controllers.TransferRequestDTO](t, env).Status)

	resp, env = h.do(t, http.MethodPost, "/api/v1/reservations/"+reservationID.String()+"/cancel", sc, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeIllegalTransition), env.Error.Code)

	components := dbtest.ComponentIDs(t, h.db, h.source.ID, h.typeID, 2)
	resp, env = h.do(t, http.MethodPost, base+"/selection/validate", evm, map[string]any{
		"selection": map[string]any{reservationID.String(): components[:1]},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeIncompleteSelection), env.Error.Code)

	selection := map[string]any{reservationID.String(): components}
	resp, _ = h.do(t, http.MethodPost, base+"/selection/validate", evm, map[string]any{"selection": selection})
	require.Equal(t, http.StatusOK, resp.Code)

	resp, env = h.do(t, http.MethodPost, base+"/ship", evm, map[string]any{
		"selection":               selection,
		"estimated_delivery_date": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	outcome := decode[controllers.ShipOutcomeDTO](t, env)
	assert.Equal(t, enums.TransferRequestStatusShipped, outcome.Request.Status)
	require.NotNil(t, outcome.Result)
	assert.True(t, outcome.Result.AllBound)

	resp, env = h.do(t, http.MethodGet, base+"/shipments", sc, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]controllers.ShipmentDTO](t, env), 1)

	resp, env = h.do(t, http.MethodPost, base+"/receive", sc, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, enums.TransferRequestStatusReceived, decode[controllers.TransferRequestDTO](t, env).Status)

	resp, env = h.do(t, http.MethodPost, base+"/receive", sc, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, enums.TransferRequestStatusReceived, decode[controllers.TransferRequestDTO](t, env).Status)

	resp, env = h.do(t, http.MethodPost, base+"/cancel", sc, map[string]any{"reason": "too late"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeIllegalTransition), env.Error.Code)
}

func TestPartialShipmentReportsEachReservation(t *testing.T) {
	h := newHarness(t, nil)
	sc := h.token(t, enums.ActorRoleSCStaff, uuid.New())
	evm := h.token(t, enums.ActorRoleEVMStaff, uuid.New())
	source := h.source.ID

	resp, env := h.do(t, http.MethodPost, "/api/v1/transfer-requests", sc, map[string]any{
		"requesting_warehouse_id": h.requester.ID,
		"items": []map[string]any{
			{"type_component_id": h.typeID, "quantity": 2, "source_warehouse_id": source},
		},
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	request := decode[controllers.TransferRequestDTO](t, env)
	reservationID := *request.Items[0].ReservationID
	base := "/api/v1/transfer-requests/" + request.ID.String()

	resp, _ = h.do(t, http.MethodPost, base+"/approve", evm, map[string]any{})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	components := dbtest.ComponentIDs(t, h.db, h.source.ID, h.typeID, 2)
	require.NoError(t, h.db.Model(&models.Component{}).
		Where("id = ?", components[1]).
		Update("status", enums.ComponentStatusDefective).Error)

	resp, env = h.do(t, http.MethodPost, base+"/ship", evm, map[string]any{
		"selection":               map[string]any{reservationID.String(): components},
		"estimated_delivery_date": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodePartialShipment), env.Error.Code)
	assert.Equal(t, []any{reservationID.String()}, env.Error.Details["failed_reservation_ids"])

	result, ok := env.Error.Details["result"].(map[string]any)
	require.True(t, ok, "details carry the shipment result")
	assert.Equal(t, false, result["all_bound"])
	failed, ok := result["failed"].([]any)
	require.True(t, ok)
	require.Len(t, failed, 1)
	failure := failed[0].(map[string]any)
	assert.Equal(t, reservationID.String(), failure["reservation_id"])
	assert.NotEmpty(t, failure["code"])
	assert.NotEmpty(t, failure["message"])

	requestDetails, ok := env.Error.Details["request"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(enums.TransferRequestStatusApproved), requestDetails["status"])
}

func TestRejectRequiresReason(t *testing.T) {
	h := newHarness(t, nil)
	sc := h.token(t, enums.ActorRoleSCStaff, uuid.New())
	evm := h.token(t, enums.ActorRoleEVMStaff, uuid.New())
	source := h.source.ID

	resp, env := h.do(t, http.MethodPost, "/api/v1/transfer-requests", sc, map[string]any{
		"requesting_warehouse_id": h.requester.ID,
		"items":                   []map[string]any{{"type_component_id": h.typeID, "quantity": 1, "source_warehouse_id": source}},
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	request := decode[controllers.TransferRequestDTO](t, env)
	base := "/api/v1/transfer-requests/" + request.ID.String()

	resp, _ = h.do(t, http.MethodPost, base+"/reject", evm, map[string]any{"reason": ""})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp, env = h.do(t, http.MethodPost, base+"/reject", evm, map[string]any{"reason": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "must not be blank", env.Error.Details["reason"])

	resp, env = h.do(t, http.MethodPost, base+"/reject", evm, map[string]any{"reason": "not needed"})
	require.Equal(t, http.StatusOK, resp.Code)
	rejected := decode[controllers.TransferRequestDTO](t, env)
	assert.Equal(t, enums.TransferRequestStatusRejected, rejected.Status)
	require.NotNil(t, rejected.Reason)
	assert.Equal(t, "not needed", *rejected.Reason)
	assert.Equal(t, 0, dbtest.ReloadStock(t, h.db, h.stock.ID).QuantityReserved)
}

func (h harness) boundReservation(t *testing.T, techID *uuid.UUID) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	line := dbtest.MustCreateCaseLine(t, h.db, h.typeID, techID)
	reservation, err := h.engine.Reservations.Create(ctx, reservations.CreateInput{
		CaseLineID:      &line.ID,
		TypeComponentID: h.typeID,
		WarehouseID:     h.source.ID,
		Quantity:        1,
	})
	require.NoError(t, err)
	ids := dbtest.ComponentIDs(t, h.db, h.source.ID, h.typeID, 1)
	_, err = h.engine.Reservations.Bind(ctx, reservations.BindInput{ReservationID: reservation.ID, ComponentIDs: ids})
	require.NoError(t, err)
	return reservation.ID
}

func TestPickupAndInstall(t *testing.T) {
	h := newHarness(t, nil)
	techID := uuid.New()
	tech := h.token(t, enums.ActorRoleTechnician, techID)
	first := h.boundReservation(t, &techID)
	second := h.boundReservation(t, &techID)

	resp, env := h.do(t, http.MethodPost, "/api/v1/pickups", tech, map[string]any{
		"reservation_ids": []uuid.UUID{first, second},
		"technician_id":   uuid.New(),
	})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	require.NotNil(t, env.Error)

	resp, env = h.do(t, http.MethodPost, "/api/v1/pickups", tech, map[string]any{
		"reservation_ids": []uuid.UUID{first, second},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	pickup := decode[controllers.PickupDTO](t, env)
	require.Len(t, pickup.Reservations, 2)
	for _, row := range pickup.Reservations {
		assert.Equal(t, enums.ReservationStatusPickedUp, row.Status)
	}

	resp, env = h.do(t, http.MethodPost, "/api/v1/reservations/"+first.String()+"/install", tech, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, enums.ReservationStatusInstalled, decode[controllers.ReservationDTO](t, env).Status)

	resp, env = h.do(t, http.MethodPost, "/api/v1/reservations/"+first.String()+"/return", tech, map[string]string{"old_component_serial": "OLD-123"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp, env = h.do(t, http.MethodPost, "/api/v1/reservations/"+second.String()+"/return", tech, map[string]string{"old_component_serial": "OLD-123"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	returned := decode[controllers.ReservationDTO](t, env)
	require.NotNil(t, returned.OldComponentSerial)
	assert.Equal(t, "OLD-123", *returned.OldComponentSerial)
	assert.Equal(t, enums.ReservationStatusReturned, returned.Status)
}

func TestPickupRejectsMixedTechnicians(t *testing.T) {
	h := newHarness(t, nil)
	techA, techB := uuid.New(), uuid.New()
	first := h.boundReservation(t, &techA)
	second := h.boundReservation(t, &techB)
	staff := h.token(t, enums.ActorRoleSCStaff, uuid.New())

	resp, env := h.do(t, http.MethodPost, "/api/v1/pickups", staff, map[string]any{
		"reservation_ids": []uuid.UUID{first, second},
		"technician_id":   techA,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeMixedTechnician), env.Error.Code)
	assert.Equal(t, enums.ReservationStatusReserved, dbtest.ReloadReservation(t, h.db, first).Status)
}

func TestReservationCreateAndCancel(t *testing.T) {
	h := newHarness(t, nil)
	sc := h.token(t, enums.ActorRoleSCStaff, uuid.New())

	resp, env := h.do(t, http.MethodPost, "/api/v1/reservations", sc, map[string]any{
		"type_component_id": h.typeID,
		"warehouse_id":      h.source.ID,
		"quantity":          2,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	reservation := decode[controllers.ReservationDTO](t, env)
	assert.Equal(t, enums.ReservationStatusReserved, reservation.Status)
	assert.Equal(t, 2, dbtest.ReloadStock(t, h.db, h.stock.ID).QuantityReserved)

	resp, env = h.do(t, http.MethodGet, "/api/v1/reservations/"+reservation.ID.String(), sc, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, reservation.ID, decode[controllers.ReservationDTO](t, env).ID)

	resp, env = h.do(t, http.MethodPost, "/api/v1/reservations/"+reservation.ID.String()+"/cancel", sc, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, enums.ReservationStatusCancelled, decode[controllers.ReservationDTO](t, env).Status)
	assert.Equal(t, 0, dbtest.ReloadStock(t, h.db, h.stock.ID).QuantityReserved)

	resp, _ = h.do(t, http.MethodPost, "/api/v1/reservations", sc, map[string]any{
		"type_component_id": h.typeID,
		"warehouse_id":      h.source.ID,
		"quantity":          0,
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestIdempotentReplayAppliesOnce(t *testing.T) {
	h := newHarness(t, nil)
	staff := h.token(t, enums.ActorRoleSCStaff, uuid.New())
	path := "/api/v1/stocks/" + h.stock.ID.String() + "/reserve"

	for attempt := range 2 {
		resp, env := h.do(t, http.MethodPost, path, staff, map[string]int{"quantity": 1}, "Idempotency-Key", "reserve-once")
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, 1, decode[controllers.StockDTO](t, env).QuantityReserved)
		assert.Equal(t, attempt == 1, resp.Header().Get(middleware.ReplayedHeader) == "true")
	}
	assert.Equal(t, 1, dbtest.ReloadStock(t, h.db, h.stock.ID).QuantityReserved)
}

func TestDeadLetterAdministration(t *testing.T) {
	h := newHarness(t, nil)
	msg := "topic not found"
	event := models.OutboxEvent{
		EventType:     enums.EventStockAdjusted,
		AggregateType: enums.AggregateStock,
		AggregateID:   h.stock.ID,
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		AttemptCount:  10,
		LastError:     &msg,
	}
	require.NoError(t, h.db.Create(&event).Error)
	entry := event.DeadLetter(enums.OutboxDLQReasonNonRetryable, errors.New(msg), time.Now().UTC())
	require.NoError(t, outbox.NewDLQRepository(h.db).InsertTx(h.db, entry))

	staff := h.token(t, enums.ActorRoleEVMStaff, uuid.New())
	resp, _ := h.do(t, http.MethodGet, "/api/v1/admin/outbox/dead-letters", staff, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	admin := h.token(t, enums.ActorRoleAdmin, uuid.New())
	resp, env := h.do(t, http.MethodGet, "/api/v1/admin/outbox/dead-letters", admin, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	page := decode[controllers.DeadLetterPageDTO](t, env)
	require.Len(t, page.Items, 1)
	assert.Equal(t, event.ID, page.Items[0].EventID)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, page.Items[0].Reason)
	assert.Equal(t, msg, page.Items[0].Error)

	path := fmt.Sprintf("/api/v1/admin/outbox/dead-letters/%s/requeue", event.ID)
	resp, _ = h.do(t, http.MethodPost, path, admin, nil)
	require.Equal(t, http.StatusAccepted, resp.Code)

	var reloaded models.OutboxEvent
	require.NoError(t, h.db.First(&reloaded, "id = ?", event.ID).Error)
	assert.Zero(t, reloaded.AttemptCount)

	resp, env = h.do(t, http.MethodPost, path, admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeNotFound), env.Error.Code)
}
