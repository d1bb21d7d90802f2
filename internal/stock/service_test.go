package stock

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/pkg/db"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/dbtest"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
	"github.com/angelmondragon/partsreserve-backend/pkg/pagination"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox"
)

type fixture struct {
	db      *gorm.DB
	svc     Service
	stock   *models.Stock
	typeID  uuid.UUID
	whID    uuid.UUID
	metrics *metrics.EngineMetrics
}

func newFixture(t *testing.T, inStock int) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "stock-test", Output: io.Discard})
	engineMetrics := metrics.NewEngineMetrics(prometheus.NewRegistry())

	svc, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		TxRunner:   db.Wrap(conn),
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:     logg,
		Metrics:    engineMetrics,
		PageSize:   2,
	})
	require.NoError(t, err)

	warehouse := dbtest.MustCreateWarehouse(t, conn, "Central", 1)
	typeComponent := dbtest.MustCreateTypeComponent(t, conn, "BAT-"+uuid.NewString()[:6], "12.50")
	stock := dbtest.MustCreateStock(t, conn, warehouse.ID, typeComponent.ID, inStock)

	return fixture{
		db:      conn,
		svc:     svc,
		stock:   stock,
		typeID:  typeComponent.ID,
		whID:    warehouse.ID,
		metrics: engineMetrics,
	}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestReserveAndRelease(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	stock, err := f.svc.Reserve(ctx, f.stock.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, stock.QuantityInStock)
	assert.Equal(t, 3, stock.QuantityReserved)
	assert.Equal(t, 7, stock.QuantityAvailable)

	stock, err = f.svc.Release(ctx, f.stock.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, stock.QuantityReserved)
	assert.Equal(t, 9, stock.QuantityAvailable)
}

func TestReserveInsufficientStock(t *testing.T) {
	f := newFixture(t, 2)

	_, err := f.svc.Reserve(context.Background(), f.stock.ID, 3)
	assertCode(t, err, pkgerrors.CodeInsufficientStock)

	after := dbtest.ReloadStock(t, f.db, f.stock.ID)
	assert.Equal(t, 0, after.QuantityReserved)
	assert.Equal(t, 2, after.QuantityAvailable)
}

func TestReleaseMoreThanReservedIsInvariantViolation(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, f.stock.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.Release(ctx, f.stock.ID, 2)
	assertCode(t, err, pkgerrors.CodeInvariantViolation)

	after := dbtest.ReloadStock(t, f.db, f.stock.ID)
	assert.Equal(t, 1, after.QuantityReserved)
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	f := newFixture(t, 5)
	_, err := f.svc.Reserve(context.Background(), f.stock.ID, 0)
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestReserveUnknownStock(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.svc.Reserve(context.Background(), uuid.New(), 1)
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestAdjustOutCannotCutIntoReservations(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, f.stock.ID, 3)
	require.NoError(t, err)

	_, err = f.svc.Adjust(ctx, AdjustInput{
		StockID:  f.stock.ID,
		Type:     enums.AdjustmentTypeOut,
		Quantity: 8,
		Reason:   enums.AdjustmentReasonDamage,
	})
	assertCode(t, err, pkgerrors.CodeInsufficientStock)

	after := dbtest.ReloadStock(t, f.db, f.stock.ID)
	assert.Equal(t, 10, after.QuantityInStock)
	assert.Equal(t, 3, after.QuantityReserved)
	assert.Equal(t, 7, after.QuantityAvailable)

	page, err := f.svc.Adjustments(ctx, f.stock.ID, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestAdjustAppendsLedgerAndEmitsEvent(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	actor := uuid.New()

	stock, err := f.svc.Adjust(ctx, AdjustInput{
		StockID:     f.stock.ID,
		Type:        enums.AdjustmentTypeIn,
		Quantity:    2,
		Reason:      enums.AdjustmentReasonSupplierDelivery,
		Note:        "  weekly delivery ",
		ActorUserID: &actor,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, stock.QuantityInStock)
	assert.Equal(t, 6, stock.QuantityAvailable)

	stock, err = f.svc.Adjust(ctx, AdjustInput{
		StockID:  f.stock.ID,
		Type:     enums.AdjustmentTypeOut,
		Quantity: 1,
		Reason:   enums.AdjustmentReasonTheft,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, stock.QuantityInStock)

	page, err := f.svc.Adjustments(ctx, f.stock.ID, pagination.Params{})
	require.NoError(t, err)
	adjustments := page.Items
	require.Len(t, adjustments, 2)
	assert.Empty(t, page.NextCursor)
	assert.Equal(t, "weekly delivery", adjustments[0].Note)
	assert.Equal(t, enums.AdjustmentTypeOut, adjustments[1].Type)

	var events []models.OutboxEvent
	require.NoError(t, f.db.Where("event_type = ?", enums.EventStockAdjusted).Find(&events).Error)
	assert.Len(t, events, 2)
}

func TestAdjustValidation(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	cases := map[string]AdjustInput{
		"missingStock": {Type: enums.AdjustmentTypeIn, Quantity: 1, Reason: enums.AdjustmentReasonOther},
		"badType":      {StockID: f.stock.ID, Type: "SIDEWAYS", Quantity: 1, Reason: enums.AdjustmentReasonOther},
		"badReason":    {StockID: f.stock.ID, Type: enums.AdjustmentTypeIn, Quantity: 1, Reason: "LOST"},
		"zeroQuantity": {StockID: f.stock.ID, Type: enums.AdjustmentTypeIn, Reason: enums.AdjustmentReasonOther},
		"serialCount":  {StockID: f.stock.ID, Type: enums.AdjustmentTypeIn, Quantity: 2, Reason: enums.AdjustmentReasonOther, Serials: []string{"A"}},
		"dupSerial":    {StockID: f.stock.ID, Type: enums.AdjustmentTypeIn, Quantity: 2, Reason: enums.AdjustmentReasonOther, Serials: []string{"A", "A"}},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Adjust(ctx, input)
			assertCode(t, err, pkgerrors.CodeValidation)
		})
	}
}

func TestAdjustSerials(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.Adjust(ctx, AdjustInput{
		StockID:  f.stock.ID,
		Type:     enums.AdjustmentTypeIn,
		Quantity: 3,
		Reason:   enums.AdjustmentReasonSupplierDelivery,
		Serials:  []string{"NEW-001", "NEW-002", "NEW-003"},
	})
	require.NoError(t, err)

	components, err := Collect(f.svc.AvailableComponents(ctx, f.whID, f.typeID), 0)
	require.NoError(t, err)
	require.Len(t, components, 3)

	stock, err := f.svc.Adjust(ctx, AdjustInput{
		StockID:  f.stock.ID,
		Type:     enums.AdjustmentTypeOut,
		Quantity: 1,
		Reason:   enums.AdjustmentReasonDamage,
		Serials:  []string{"NEW-002"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stock.QuantityInStock)

	var retired models.Component
	require.NoError(t, f.db.Where("serial_number = ?", "NEW-002").First(&retired).Error)
	assert.Equal(t, enums.ComponentStatusDefective, retired.Status)

	_, err = f.svc.Adjust(ctx, AdjustInput{
		StockID:  f.stock.ID,
		Type:     enums.AdjustmentTypeOut,
		Quantity: 1,
		Reason:   enums.AdjustmentReasonDamage,
		Serials:  []string{"NEW-002"},
	})
	assertCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, 2, dbtest.ReloadStock(t, f.db, f.stock.ID).QuantityInStock)

	_, err = f.svc.Adjust(ctx, AdjustInput{
		StockID:  f.stock.ID,
		Type:     enums.AdjustmentTypeIn,
		Quantity: 1,
		Reason:   enums.AdjustmentReasonCustomerReturn,
		Serials:  []string{"NEW-001"},
	})
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestAvailableComponentsPagesLazily(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	all, err := Collect(f.svc.AvailableComponents(ctx, f.whID, f.typeID), 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].SerialNumber, all[i].SerialNumber)
	}

	firstThree, err := Collect(f.svc.AvailableComponents(ctx, f.whID, f.typeID), 3)
	require.NoError(t, err)
	assert.Len(t, firstThree, 3)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Collect(f.svc.AvailableComponents(cancelled, f.whID, f.typeID), 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpenIsIdempotent(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	other := dbtest.MustCreateTypeComponent(t, f.db, "FLT-1", "3.00")

	first, err := f.svc.Open(ctx, f.whID, other.ID)
	require.NoError(t, err)
	second, err := f.svc.Open(ctx, f.whID, other.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Conserved())
}

func TestInventorySummary(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	centerID := uuid.New()

	north := &models.Warehouse{Name: "North", PriorityRank: 1, ServiceCenterID: &centerID}
	south := &models.Warehouse{Name: "South", PriorityRank: 2, ServiceCenterID: &centerID}
	require.NoError(t, f.db.Create(north).Error)
	require.NoError(t, f.db.Create(south).Error)

	stock := dbtest.MustCreateStock(t, f.db, north.ID, f.typeID, 4)
	_, err := f.svc.Reserve(ctx, stock.ID, 1)
	require.NoError(t, err)

	rows, err := f.svc.InventorySummary(ctx, centerID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "North", rows[0].WarehouseName)
	assert.Equal(t, 4, rows[0].QuantityInStock)
	assert.Equal(t, 1, rows[0].QuantityReserved)
	assert.Equal(t, 3, rows[0].QuantityAvailable)
	assert.Equal(t, "50", rows[0].Valuation.String())
	assert.Equal(t, "South", rows[1].WarehouseName)
	assert.Equal(t, 0, rows[1].QuantityInStock)

	_, err = f.svc.InventorySummary(ctx, uuid.Nil)
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestConservationUnderRandomOperations(t *testing.T) {
	f := newFixture(t, 20)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		quantity := rng.Intn(5) + 1
		switch rng.Intn(4) {
		case 0:
			_, _ = f.svc.Reserve(ctx, f.stock.ID, quantity)
		case 1:
			_, _ = f.svc.Release(ctx, f.stock.ID, quantity)
		case 2:
			_, _ = f.svc.Adjust(ctx, AdjustInput{StockID: f.stock.ID, Type: enums.AdjustmentTypeIn, Quantity: quantity, Reason: enums.AdjustmentReasonManualCount})
		case 3:
			_, _ = f.svc.Adjust(ctx, AdjustInput{StockID: f.stock.ID, Type: enums.AdjustmentTypeOut, Quantity: quantity, Reason: enums.AdjustmentReasonManualCount})
		}
		after := dbtest.ReloadStock(t, f.db, f.stock.ID)
		require.True(t, after.Conserved(), "step %d broke conservation: %+v", i, after)
	}
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Reserve(ctx, f.stock.ID, 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	after := dbtest.ReloadStock(t, f.db, f.stock.ID)
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, after.QuantityReserved)
	assert.Equal(t, 0, after.QuantityAvailable)
	assert.True(t, after.Conserved())
}

func TestConsumeTxRemovesInstalledUnits(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	_, err := f.svc.Reserve(ctx, f.stock.ID, 2)
	require.NoError(t, err)

	err = db.Wrap(f.db).WithTx(ctx, func(tx *gorm.DB) error {
		_, err := f.svc.ConsumeTx(ctx, tx, ConsumeInput{StockID: f.stock.ID, Quantity: 2, ReservationID: uuid.New()})
		return err
	})
	require.NoError(t, err)

	after := dbtest.ReloadStock(t, f.db, f.stock.ID)
	assert.Equal(t, 3, after.QuantityInStock)
	assert.Equal(t, 0, after.QuantityReserved)
	assert.Equal(t, 3, after.QuantityAvailable)

	err = db.Wrap(f.db).WithTx(ctx, func(tx *gorm.DB) error {
		_, err := f.svc.ConsumeTx(ctx, tx, ConsumeInput{StockID: f.stock.ID, Quantity: 1, ReservationID: uuid.New()})
		return err
	})
	assertCode(t, err, pkgerrors.CodeInvariantViolation)
}

func TestAdjustmentsPageNewestFirst(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := f.svc.Adjust(ctx, AdjustInput{
			StockID:  f.stock.ID,
			Type:     enums.AdjustmentTypeIn,
			Quantity: i,
			Reason:   enums.AdjustmentReasonManualCount,
		})
		require.NoError(t, err)
	}

	var quantities []int
	cursor := ""
	for {
		page, err := f.svc.Adjustments(ctx, f.stock.ID, pagination.Params{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, row := range page.Items {
			quantities = append(quantities, row.Quantity)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, []int{3, 2, 1}, quantities)

	_, err := f.svc.Adjustments(ctx, f.stock.ID, pagination.Params{Cursor: "not-base64!"})
	assertCode(t, err, pkgerrors.CodeValidation)
}
