package pickups

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/internal/caselines"
	"github.com/angelmondragon/partsreserve-backend/internal/reservations"
	"github.com/angelmondragon/partsreserve-backend/internal/stock"
	"github.com/angelmondragon/partsreserve-backend/pkg/db"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/dbtest"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox"
)

type harness struct {
	db           *gorm.DB
	svc          Service
	reservations reservations.Service
	warehouse    *models.Warehouse
	typeID       uuid.UUID
}

func newHarness(t *testing.T) harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "pickups-test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	runner := db.Wrap(conn)
	caseLines := caselines.NewRepository(conn)

	ledger, err := stock.NewService(stock.ServiceParams{
		Repository: stock.NewRepository(conn),
		TxRunner:   runner,
		Outbox:     emitter,
		Logger:     logg,
	})
	require.NoError(t, err)
	reservationSvc, err := reservations.NewService(reservations.ServiceParams{
		Repository: reservations.NewRepository(conn),
		CaseLines:  caseLines,
		Ledger:     ledger,
		TxRunner:   runner,
		Outbox:     emitter,
		Logger:     logg,
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Reservations: reservationSvc,
		CaseLines:    caseLines,
		TxRunner:     runner,
		Logger:       logg,
	})
	require.NoError(t, err)

	warehouse := dbtest.MustCreateWarehouse(t, conn, "Service Center", 1)
	typeComponent := dbtest.MustCreateTypeComponent(t, conn, "PU-"+uuid.NewString()[:6], "15.00")
	dbtest.MustCreateStock(t, conn, warehouse.ID, typeComponent.ID, 10)

	return harness{db: conn, svc: svc, reservations: reservationSvc, warehouse: warehouse, typeID: typeComponent.ID}
}

// reservation creates a reservation for techID's case line and binds it
// when bound is set.
func (h harness) reservation(t *testing.T, techID *uuid.UUID, bound bool) *models.Reservation {
	t.Helper()
	ctx := context.Background()
	line := dbtest.MustCreateCaseLine(t, h.db, h.typeID, techID)
	reservation, err := h.reservations.Create(ctx, reservations.CreateInput{
		CaseLineID:      &line.ID,
		TypeComponentID: h.typeID,
		WarehouseID:     h.warehouse.ID,
		Quantity:        1,
	})
	require.NoError(t, err)
	if !bound {
		return reservation
	}
	ids := dbtest.ComponentIDs(t, h.db, h.warehouse.ID, h.typeID, 1)
	reservation, err = h.reservations.Bind(ctx, reservations.BindInput{ReservationID: reservation.ID, ComponentIDs: ids})
	require.NoError(t, err)
	return reservation
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func assertStatus(t *testing.T, conn *gorm.DB, status enums.ReservationStatus, rows ...*models.Reservation) {
	t.Helper()
	for _, row := range rows {
		assert.Equal(t, status, dbtest.ReloadReservation(t, conn, row.ID).Status)
	}
}

func TestSelectForPickupFiltersUnbound(t *testing.T) {
	h := newHarness(t)
	tech := uuid.New()
	bound := h.reservation(t, &tech, true)
	unbound := h.reservation(t, &tech, false)

	batch, err := h.svc.SelectForPickup(context.Background(), []uuid.UUID{bound.ID, unbound.ID, bound.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bound.ID}, batch.ReservationIDs)
	assert.Equal(t, []uuid.UUID{unbound.ID}, batch.Skipped)
}

func TestSelectForPickupEmpty(t *testing.T) {
	h := newHarness(t)
	tech := uuid.New()
	unbound := h.reservation(t, &tech, false)

	_, err := h.svc.SelectForPickup(context.Background(), []uuid.UUID{unbound.ID})
	assertCode(t, err, pkgerrors.CodeEmptySelection)

	_, err = h.svc.SelectForPickup(context.Background(), nil)
	assertCode(t, err, pkgerrors.CodeEmptySelection)

	_, err = h.svc.SelectForPickup(context.Background(), []uuid.UUID{uuid.New()})
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestMixedTechniciansRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	techA, techB := uuid.New(), uuid.New()
	first := h.reservation(t, &techA, true)
	second := h.reservation(t, &techB, true)

	batch, err := h.svc.SelectForPickup(ctx, []uuid.UUID{first.ID, second.ID})
	require.NoError(t, err)

	err = h.svc.ValidateHomogeneity(ctx, batch)
	assertCode(t, err, pkgerrors.CodeMixedTechnician)
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.ElementsMatch(t, []string{techA.String(), techB.String()}, details["technician_ids"])

	_, err = h.svc.CommitPickup(ctx, batch, techA)
	assertCode(t, err, pkgerrors.CodeMixedTechnician)
	assertStatus(t, h.db, enums.ReservationStatusReserved, first, second)
}

func TestUnassignedCountsAsDistinctTechnician(t *testing.T) {
	h := newHarness(t)
	tech := uuid.New()
	assigned := h.reservation(t, &tech, true)
	unassigned := h.reservation(t, nil, true)

	err := h.svc.ValidateHomogeneity(context.Background(), &Batch{ReservationIDs: []uuid.UUID{assigned.ID, unassigned.ID}})
	assertCode(t, err, pkgerrors.CodeMixedTechnician)
}

func TestUnassignedCaseLinesNeverShareABatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.reservation(t, nil, true)
	second := h.reservation(t, nil, true)

	err := h.svc.ValidateHomogeneity(ctx, &Batch{ReservationIDs: []uuid.UUID{first.ID, second.ID}})
	assertCode(t, err, pkgerrors.CodeMixedTechnician)

	_, err = h.svc.Checkout(ctx, []uuid.UUID{first.ID, second.ID}, uuid.New())
	assertCode(t, err, pkgerrors.CodeMixedTechnician)
	assertStatus(t, h.db, enums.ReservationStatusReserved, first, second)

	rows, err := h.svc.Checkout(ctx, []uuid.UUID{first.ID}, uuid.New())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assertStatus(t, h.db, enums.ReservationStatusPickedUp, first)
	assertStatus(t, h.db, enums.ReservationStatusReserved, second)
}

func TestCommitPickupAllOrNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tech := uuid.New()
	first := h.reservation(t, &tech, true)
	second := h.reservation(t, &tech, true)

	batch, err := h.svc.SelectForPickup(ctx, []uuid.UUID{first.ID, second.ID})
	require.NoError(t, err)
	require.NoError(t, h.svc.ValidateHomogeneity(ctx, batch))

	_, err = h.reservations.Pickup(ctx, []uuid.UUID{second.ID}, tech)
	require.NoError(t, err)

	_, err = h.svc.CommitPickup(ctx, batch, tech)
	assertCode(t, err, pkgerrors.CodeIllegalTransition)
	assertStatus(t, h.db, enums.ReservationStatusReserved, first)
	assert.Nil(t, dbtest.ReloadReservation(t, h.db, first.ID).PickedUpByTechID)
}

func TestCommitPickupRejectsOtherTechnician(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tech := uuid.New()
	reservation := h.reservation(t, &tech, true)

	batch, err := h.svc.SelectForPickup(ctx, []uuid.UUID{reservation.ID})
	require.NoError(t, err)

	_, err = h.svc.CommitPickup(ctx, batch, uuid.New())
	assertCode(t, err, pkgerrors.CodeValidation)
	assertStatus(t, h.db, enums.ReservationStatusReserved, reservation)
}

func TestCheckout(t *testing.T) {
	h := newHarness(t)
	tech := uuid.New()
	first := h.reservation(t, &tech, true)
	second := h.reservation(t, &tech, true)
	pending := h.reservation(t, &tech, false)

	rows, err := h.svc.Checkout(context.Background(), []uuid.UUID{first.ID, second.ID, pending.ID}, tech)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, enums.ReservationStatusPickedUp, row.Status)
		require.NotNil(t, row.PickedUpByTechID)
		assert.Equal(t, tech, *row.PickedUpByTechID)
	}
	assertStatus(t, h.db, enums.ReservationStatusPickedUp, first, second)
	assertStatus(t, h.db, enums.ReservationStatusReserved, pending)
}
