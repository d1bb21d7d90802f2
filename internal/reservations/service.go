package reservations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/internal/caselines"
	"github.com/angelmondragon/partsreserve-backend/internal/stock"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/partsreserve-backend/pkg/db/types"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox/payloads"
)

// Service owns the reservation lifecycle:
//
//	RESERVED -pickup-> PICKED_UP -install-> INSTALLED
//	RESERVED -cancel-> CANCELLED
//	PICKED_UP -return-> RETURNED
//
// Binding serialized units happens while RESERVED and does not change status.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	Create(ctx context.Context, input CreateInput) (*models.Reservation, error)
	Cancel(ctx context.Context, id uuid.UUID, actorUserID *uuid.UUID) (*models.Reservation, error)
	Bind(ctx context.Context, input BindInput) (*models.Reservation, error)
	Pickup(ctx context.Context, ids []uuid.UUID, techID uuid.UUID) ([]models.Reservation, error)
	Install(ctx context.Context, id uuid.UUID, actorUserID *uuid.UUID) (*models.Reservation, error)
	ReturnComponent(ctx context.Context, input ReturnInput) (*models.Reservation, error)

	FindTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Reservation, error)
	CreateTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Reservation, error)
	CancelTx(ctx context.Context, tx *gorm.DB, input CancelInput) (*models.Reservation, error)
	BindTx(ctx context.Context, tx *gorm.DB, input BindInput) (*models.Reservation, error)
	PickupTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, techID uuid.UUID) ([]models.Reservation, error)
	ReduceTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, quantity int, actorUserID *uuid.UUID) (*models.Reservation, error)
	DeliverTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, destinationWarehouseID uuid.UUID) (*models.Reservation, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ledger interface {
	ResolveTx(ctx context.Context, tx *gorm.DB, warehouseID, typeComponentID uuid.UUID) (*models.Stock, error)
	ReserveTx(ctx context.Context, tx *gorm.DB, stockID uuid.UUID, quantity int) (*models.Stock, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, stockID uuid.UUID, quantity int) (*models.Stock, error)
	ConsumeTx(ctx context.Context, tx *gorm.DB, input stock.ConsumeInput) (*models.Stock, error)
}

type CreateInput struct {
	CaseLineID      *uuid.UUID
	TypeComponentID uuid.UUID
	WarehouseID     uuid.UUID
	Quantity        int
	ActorUserID     *uuid.UUID
}

// CancelInput cancels a RESERVED reservation. Unbind allows cancelling a
// reservation a partial shipment already bound; its units return to the
// warehouse first.
type CancelInput struct {
	ReservationID uuid.UUID
	ActorUserID   *uuid.UUID
	Unbind        bool
}

type BindInput struct {
	ReservationID         uuid.UUID
	ComponentIDs          []uuid.UUID
	RequestID             uuid.UUID
	EstimatedDeliveryDate time.Time
}

type ReturnInput struct {
	ReservationID      uuid.UUID
	OldComponentSerial string
	ActorUserID        *uuid.UUID
}

type ServiceParams struct {
	Repository Repository
	CaseLines  caselines.Repository
	Ledger     ledger
	TxRunner   txRunner
	Outbox     outbox.Emitter
	Logger     *logger.Logger
	Metrics    *metrics.EngineMetrics
}

type service struct {
	repo      Repository
	caseLines caselines.Repository
	ledger    ledger
	tx        txRunner
	outbox    outbox.Emitter
	logg      *logger.Logger
	metrics   *metrics.EngineMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if params.CaseLines == nil {
		return nil, fmt.Errorf("case line repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repository,
		caseLines: params.CaseLines,
		ledger:    params.Ledger,
		tx:        params.TxRunner,
		outbox:    params.Outbox,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	reservation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return reservation, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Reservation, error) {
	var out *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reservation, err := s.CreateTx(ctx, tx, input)
		out = reservation
		return err
	})
	s.metrics.Observe("reservation.create", err)
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, out, "reservation created")
	return out, nil
}

// CreateTx reserves stock and inserts the reservation. A ledger failure
// leaves nothing behind once tx rolls back.
func (s *service) CreateTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Reservation, error) {
	if input.TypeComponentID == uuid.Nil || input.WarehouseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "type_component_id and warehouse_id are required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a positive integer")
	}
	if input.CaseLineID != nil {
		exists, err := s.caseLines.WithTx(tx).Exists(ctx, *input.CaseLineID)
		if err != nil {
			return nil, pkgerrors.FromStore(err, "load case line")
		}
		if !exists {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "case line not found")
		}
	}

	stockRow, err := s.ledger.ResolveTx(ctx, tx, input.WarehouseID, input.TypeComponentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.ReserveTx(ctx, tx, stockRow.ID, input.Quantity); err != nil {
		return nil, err
	}

	reservation := &models.Reservation{
		CaseLineID:        input.CaseLineID,
		TypeComponentID:   input.TypeComponentID,
		WarehouseID:       input.WarehouseID,
		StockID:           stockRow.ID,
		QuantityRequested: input.Quantity,
		Status:            enums.ReservationStatusReserved,
		BoundComponentIDs: dbtypes.UUIDArray{},
		ReservedAt:        time.Now().UTC(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, reservation); err != nil {
		return nil, pkgerrors.FromStore(err, "create reservation")
	}
	if err := s.emit(ctx, tx, enums.EventReservationCreated, reservation, input.ActorUserID); err != nil {
		return nil, err
	}
	return reservation, nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, actorUserID *uuid.UUID) (*models.Reservation, error) {
	var out *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		requestID, err := s.repo.WithTx(tx).TransferRequestFor(ctx, id)
		if err != nil {
			return pkgerrors.FromStore(err, "load transfer request item")
		}
		if requestID != nil {
			return pkgerrors.New(pkgerrors.CodeIllegalTransition, "reservation belongs to a transfer request; cancel the transfer request instead").
				WithDetails(map[string]any{
					"attempted":           "cancel",
					"transfer_request_id": requestID.String(),
				})
		}
		reservation, err := s.CancelTx(ctx, tx, CancelInput{ReservationID: id, ActorUserID: actorUserID})
		out = reservation
		return err
	})
	s.metrics.Observe("reservation.cancel", err)
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, out, "reservation cancelled")
	return out, nil
}

func (s *service) CancelTx(ctx context.Context, tx *gorm.DB, input CancelInput) (*models.Reservation, error) {
	repo := s.repo.WithTx(tx)
	reservation, err := repo.FindByID(ctx, input.ReservationID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if reservation.Status != enums.ReservationStatusReserved {
		return nil, pkgerrors.IllegalTransition(reservation.Status.String(), "cancel")
	}

	if len(reservation.BoundComponentIDs) > 0 {
		if !input.Unbind {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation is bound to a shipment; cancel its transfer request instead")
		}
		warehouseID := reservation.WarehouseID
		if _, err := repo.MoveComponents(ctx, reservation.ID, ComponentMove{
			Status:      enums.ComponentStatusInWarehouse,
			WarehouseID: &warehouseID,
			Detach:      true,
		}); err != nil {
			return nil, pkgerrors.FromStore(err, "unbind components")
		}
		reservation.BoundComponentIDs = dbtypes.UUIDArray{}
		reservation.BoundAt = nil
	}

	if _, err := s.ledger.ReleaseTx(ctx, tx, reservation.StockID, reservation.QuantityRequested); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	reservation.Status = enums.ReservationStatusCancelled
	reservation.CancelledAt = &now
	if err := s.save(ctx, repo, reservation); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, enums.EventReservationCancelled, reservation, input.ActorUserID); err != nil {
		return nil, err
	}
	return reservation, nil
}

func (s *service) Bind(ctx context.Context, input BindInput) (*models.Reservation, error) {
	var out *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reservation, err := s.BindTx(ctx, tx, input)
		out = reservation
		return err
	})
	s.metrics.Observe("reservation.bind", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BindTx ships exactly QuantityRequested IN_WAREHOUSE units to the
// reservation. A reservation that is already bound is returned unchanged.
func (s *service) BindTx(ctx context.Context, tx *gorm.DB, input BindInput) (*models.Reservation, error) {
	repo := s.repo.WithTx(tx)
	reservation, err := repo.FindByID(ctx, input.ReservationID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if reservation.Status != enums.ReservationStatusReserved {
		return nil, pkgerrors.IllegalTransition(reservation.Status.String(), "bind")
	}
	if reservation.IsBound() {
		return reservation, nil
	}
	if len(input.ComponentIDs) != reservation.QuantityRequested {
		return nil, pkgerrors.IncompleteSelection([]uuid.UUID{reservation.ID})
	}
	if hasDuplicates(input.ComponentIDs) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "component ids must be distinct")
	}

	if err := s.checkComponents(ctx, repo, reservation, input.ComponentIDs); err != nil {
		return nil, err
	}
	claimed, err := repo.ClaimComponents(ctx, reservation, input.ComponentIDs)
	if err != nil {
		return nil, pkgerrors.FromStore(err, "claim components")
	}
	if int(claimed) != len(input.ComponentIDs) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "selected components were taken concurrently").
			WithDetails(map[string]any{"reservation_id": reservation.ID.String()})
	}

	now := time.Now().UTC()
	reservation.BoundComponentIDs = dbtypes.UUIDArray(append([]uuid.UUID(nil), input.ComponentIDs...))
	reservation.BoundAt = &now
	if err := s.save(ctx, repo, reservation); err != nil {
		return nil, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventReservationBound,
		AggregateType: enums.AggregateReservation,
		AggregateID:   reservation.ID,
		Data: payloads.ReservationBoundEvent{
			ReservationEvent:      reservationEvent(reservation),
			RequestID:             input.RequestID,
			EstimatedDeliveryDate: input.EstimatedDeliveryDate,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.FromStore(err, "emit reservation bound event")
	}
	return reservation, nil
}

// checkComponents reports unknown, mismatched and unavailable units before
// any write so the caller gets a precise reason.
func (s *service) checkComponents(ctx context.Context, repo Repository, reservation *models.Reservation, ids []uuid.UUID) error {
	components, err := repo.FindComponents(ctx, ids)
	if err != nil {
		return pkgerrors.FromStore(err, "load components")
	}
	if len(components) != len(ids) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "component not found").
			WithDetails(map[string]any{"reservation_id": reservation.ID.String()})
	}
	for _, component := range components {
		if component.TypeComponentID != reservation.TypeComponentID ||
			(component.WarehouseID != nil && *component.WarehouseID != reservation.WarehouseID) {
			return pkgerrors.New(pkgerrors.CodeValidation, "component does not match the reservation's warehouse and type").
				WithDetails(map[string]any{"component_id": component.ID.String(), "reservation_id": reservation.ID.String()})
		}
		if component.Status != enums.ComponentStatusInWarehouse {
			return pkgerrors.New(pkgerrors.CodeConflict, "component is no longer available").
				WithDetails(map[string]any{"component_id": component.ID.String(), "reservation_id": reservation.ID.String()})
		}
	}
	return nil
}

func (s *service) Pickup(ctx context.Context, ids []uuid.UUID, techID uuid.UUID) ([]models.Reservation, error) {
	var out []models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.PickupTx(ctx, tx, ids, techID)
		out = rows
		return err
	})
	s.metrics.Observe("reservation.pickup", err)
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"tech_id": techID.String(), "count": len(out)})
	s.logg.Info(logCtx, "reservations picked up")
	return out, nil
}

// PickupTx moves every reservation to PICKED_UP or none of them. Every id
// must be RESERVED and bound.
func (s *service) PickupTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, techID uuid.UUID) ([]models.Reservation, error) {
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation_ids are required")
	}
	if techID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tech_id is required")
	}
	if hasDuplicates(ids) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation ids must be distinct")
	}

	rows, err := s.FindTx(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	var unbound []uuid.UUID
	for _, reservation := range rows {
		if reservation.Status != enums.ReservationStatusReserved {
			return nil, pkgerrors.IllegalTransition(reservation.Status.String(), "pickup").
				WithDetails(map[string]any{
					"from":           reservation.Status.String(),
					"attempted":      "pickup",
					"reservation_id": reservation.ID.String(),
				})
		}
		if !reservation.IsBound() {
			unbound = append(unbound, reservation.ID)
		}
	}
	if len(unbound) > 0 {
		return nil, pkgerrors.NotBound(unbound)
	}

	repo := s.repo.WithTx(tx)
	now := time.Now().UTC()
	tech := techID
	for i := range rows {
		reservation := &rows[i]
		reservation.Status = enums.ReservationStatusPickedUp
		reservation.PickedUpByTechID = &tech
		reservation.PickedUpAt = &now
		if err := s.save(ctx, repo, reservation); err != nil {
			return nil, err
		}
		if err := s.emit(ctx, tx, enums.EventReservationPickedUp, reservation, &tech); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (s *service) Install(ctx context.Context, id uuid.UUID, actorUserID *uuid.UUID) (*models.Reservation, error) {
	var out *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		reservation, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapLoadError(err)
		}
		if reservation.Status != enums.ReservationStatusPickedUp {
			return pkgerrors.IllegalTransition(reservation.Status.String(), "install")
		}

		if _, err := repo.MoveComponents(ctx, reservation.ID, ComponentMove{Status: enums.ComponentStatusInstalled}); err != nil {
			return pkgerrors.FromStore(err, "install components")
		}
		if _, err := s.ledger.ConsumeTx(ctx, tx, stock.ConsumeInput{
			StockID:       reservation.StockID,
			Quantity:      reservation.QuantityRequested,
			ReservationID: reservation.ID,
			ActorUserID:   actorUserID,
		}); err != nil {
			return err
		}

		now := time.Now().UTC()
		reservation.Status = enums.ReservationStatusInstalled
		reservation.InstalledAt = &now
		if err := s.save(ctx, repo, reservation); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, enums.EventReservationInstalled, reservation, actorUserID); err != nil {
			return err
		}
		out = reservation
		return nil
	})
	s.metrics.Observe("reservation.install", err)
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, out, "reservation installed")
	return out, nil
}

// ReturnComponent sends the units of a picked-up reservation back to its
// warehouse and frees the reserved quantity.
func (s *service) ReturnComponent(ctx context.Context, input ReturnInput) (*models.Reservation, error) {
	var out *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		reservation, err := repo.FindByID(ctx, input.ReservationID)
		if err != nil {
			return mapLoadError(err)
		}
		if reservation.Status != enums.ReservationStatusPickedUp {
			return pkgerrors.IllegalTransition(reservation.Status.String(), "return")
		}

		warehouseID := reservation.WarehouseID
		if _, err := repo.MoveComponents(ctx, reservation.ID, ComponentMove{
			Status:      enums.ComponentStatusInWarehouse,
			WarehouseID: &warehouseID,
			Detach:      true,
		}); err != nil {
			return pkgerrors.FromStore(err, "return components")
		}
		if _, err := s.ledger.ReleaseTx(ctx, tx, reservation.StockID, reservation.QuantityRequested); err != nil {
			return err
		}

		now := time.Now().UTC()
		reservation.Status = enums.ReservationStatusReturned
		reservation.ReturnedAt = &now
		if serial := strings.TrimSpace(input.OldComponentSerial); serial != "" {
			reservation.OldComponentSerial = &serial
		}
		if err := s.save(ctx, repo, reservation); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, enums.EventReservationReturned, reservation, input.ActorUserID); err != nil {
			return err
		}
		out = reservation
		return nil
	})
	s.metrics.Observe("reservation.return", err)
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, out, "reservation returned")
	return out, nil
}

// FindTx loads ids in input order and fails with NOT_FOUND naming any
// unknown id. A nil tx reads outside a transaction.
func (s *service) FindTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Reservation, error) {
	rows, err := s.repo.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.FromStore(err, "load reservations")
	}
	byID := make(map[uuid.UUID]models.Reservation, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	out := make([]models.Reservation, 0, len(ids))
	var missing []string
	for _, id := range ids {
		row, ok := byID[id]
		if !ok {
			missing = append(missing, id.String())
			continue
		}
		out = append(out, row)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found").
			WithDetails(map[string]any{"reservation_ids": missing})
	}
	return out, nil
}

// ReduceTx shrinks an unbound RESERVED reservation to quantity and releases
// the difference. Zero cancels it.
func (s *service) ReduceTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, quantity int, actorUserID *uuid.UUID) (*models.Reservation, error) {
	repo := s.repo.WithTx(tx)
	reservation, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if quantity < 0 || quantity > reservation.QuantityRequested {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reduced quantity must be between 0 and the reserved quantity")
	}
	if quantity == reservation.QuantityRequested {
		return reservation, nil
	}
	if quantity == 0 {
		return s.CancelTx(ctx, tx, CancelInput{ReservationID: id, ActorUserID: actorUserID})
	}
	if reservation.Status != enums.ReservationStatusReserved {
		return nil, pkgerrors.IllegalTransition(reservation.Status.String(), "reduce")
	}
	if len(reservation.BoundComponentIDs) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bound reservations cannot be reduced")
	}

	if _, err := s.ledger.ReleaseTx(ctx, tx, reservation.StockID, reservation.QuantityRequested-quantity); err != nil {
		return nil, err
	}
	reservation.QuantityRequested = quantity
	if err := s.save(ctx, repo, reservation); err != nil {
		return nil, err
	}
	return reservation, nil
}

// DeliverTx records that a bound reservation's units arrived at the
// destination warehouse. Repeated calls are no-ops.
func (s *service) DeliverTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, destinationWarehouseID uuid.UUID) (*models.Reservation, error) {
	repo := s.repo.WithTx(tx)
	reservation, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if reservation.DeliveredAt != nil {
		return reservation, nil
	}
	if !reservation.IsBound() {
		return nil, pkgerrors.NotBound([]uuid.UUID{reservation.ID})
	}

	destination := destinationWarehouseID
	if _, err := repo.MoveComponents(ctx, reservation.ID, ComponentMove{
		Status:      enums.ComponentStatusShipped,
		WarehouseID: &destination,
	}); err != nil {
		return nil, pkgerrors.FromStore(err, "deliver components")
	}
	now := time.Now().UTC()
	reservation.DeliveredAt = &now
	if err := s.save(ctx, repo, reservation); err != nil {
		return nil, err
	}
	return reservation, nil
}

func (s *service) save(ctx context.Context, repo Repository, reservation *models.Reservation) error {
	if err := repo.Update(ctx, reservation); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeConflict, "reservation was modified concurrently").
				WithDetails(map[string]any{"reservation_id": reservation.ID.String()})
		}
		return pkgerrors.FromStore(err, "update reservation")
	}
	return nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, reservation *models.Reservation, actorUserID *uuid.UUID) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReservation,
		AggregateID:   reservation.ID,
		Data:          reservationEvent(reservation),
	}
	if actorUserID != nil {
		event.Actor = &outbox.ActorRef{UserID: *actorUserID}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.FromStore(err, "emit "+string(eventType))
	}
	return nil
}

func (s *service) logTransition(ctx context.Context, reservation *models.Reservation, msg string) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"reservation_id": reservation.ID.String(),
		"status":         reservation.Status,
		"stock_id":       reservation.StockID.String(),
	})
	s.logg.Info(logCtx, msg)
}

func reservationEvent(reservation *models.Reservation) payloads.ReservationEvent {
	return payloads.ReservationEvent{
		ReservationID:     reservation.ID,
		CaseLineID:        reservation.CaseLineID,
		StockID:           reservation.StockID,
		WarehouseID:       reservation.WarehouseID,
		TypeComponentID:   reservation.TypeComponentID,
		Quantity:          reservation.QuantityRequested,
		Status:            reservation.Status,
		BoundComponentIDs: []uuid.UUID(reservation.BoundComponentIDs),
		TechnicianID:      reservation.PickedUpByTechID,
	}
}

func hasDuplicates(ids []uuid.UUID) bool {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	return pkgerrors.FromStore(err, "load reservation")
}
