package transfers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/internal/reservations"
	"github.com/angelmondragon/partsreserve-backend/internal/shipments"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox/payloads"
)

// Service drives a transfer request through
//
//	PENDING_APPROVAL -approve-> APPROVED -ship-> SHIPPED -receive-> RECEIVED
//	PENDING_APPROVAL -reject-> REJECTED
//	PENDING_APPROVAL|APPROVED -cancel-> CANCELLED
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.StockTransferRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.StockTransferRequest, error)
	Approve(ctx context.Context, input ApproveInput) (*models.StockTransferRequest, error)
	Reject(ctx context.Context, input DecisionInput) (*models.StockTransferRequest, error)
	Cancel(ctx context.Context, input DecisionInput) (*models.StockTransferRequest, error)
	ValidateSelection(ctx context.Context, id uuid.UUID, selection shipments.Selection) error
	Ship(ctx context.Context, input ShipInput) (*ShipOutcome, error)
	Receive(ctx context.Context, id uuid.UUID, actorUserID *uuid.UUID) (*models.StockTransferRequest, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reservationManager interface {
	FindTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Reservation, error)
	CreateTx(ctx context.Context, tx *gorm.DB, input reservations.CreateInput) (*models.Reservation, error)
	CancelTx(ctx context.Context, tx *gorm.DB, input reservations.CancelInput) (*models.Reservation, error)
	ReduceTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, quantity int, actorUserID *uuid.UUID) (*models.Reservation, error)
	DeliverTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, destinationWarehouseID uuid.UUID) (*models.Reservation, error)
}

type CreateInput struct {
	RequestingWarehouseID uuid.UUID
	RequestedByUserID     uuid.UUID
	Items                 []ItemInput
}

// ItemInput is one requested line. SourceWarehouseID is optional; when nil
// the best-ranked warehouse able to cover the quantity is used.
type ItemInput struct {
	TypeComponentID   uuid.UUID
	Quantity          int
	SourceWarehouseID *uuid.UUID
	CaseLineID        *uuid.UUID
}

// ApproveInput maps request item ids to approved quantities. Items left out
// are approved in full.
type ApproveInput struct {
	RequestID       uuid.UUID
	Quantities      map[uuid.UUID]int
	ActorUserID     uuid.UUID
	ExpectedVersion *int
}

type DecisionInput struct {
	RequestID       uuid.UUID
	Reason          string
	ActorUserID     uuid.UUID
	ExpectedVersion *int
}

type ShipInput struct {
	RequestID             uuid.UUID
	Selection             shipments.Selection
	EstimatedDeliveryDate time.Time
	ActorUserID           *uuid.UUID
}

// ShipOutcome carries the request after the call and the per-reservation
// binding result.
type ShipOutcome struct {
	Request *models.StockTransferRequest `json:"request"`
	Result  *shipments.Result            `json:"result"`
}

type ServiceParams struct {
	Repository   Repository
	Reservations reservationManager
	Shipments    shipments.Service
	TxRunner     txRunner
	Outbox       outbox.Emitter
	Logger       *logger.Logger
	Metrics      *metrics.EngineMetrics
}

type service struct {
	repo         Repository
	reservations reservationManager
	shipments    shipments.Service
	tx           txRunner
	outbox       outbox.Emitter
	logg         *logger.Logger
	metrics      *metrics.EngineMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("transfer request repository required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if params.Shipments == nil {
		return nil, fmt.Errorf("shipment service required")
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
		repo:         params.Repository,
		reservations: params.Reservations,
		shipments:    params.Shipments,
		tx:           params.TxRunner,
		outbox:       params.Outbox,
		logg:         params.Logger,
		metrics:      params.Metrics,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.StockTransferRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return request, nil
}

// Create reserves stock for every item and persists the request in one
// transaction. Any failing item rolls back the reservations made for the
// items before it.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.StockTransferRequest, error) {
	if err := validateCreate(input); err != nil {
		s.metrics.Observe("transfer.create", err)
		return nil, err
	}

	var out *models.StockTransferRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request := &models.StockTransferRequest{
			ID:                    uuid.New(),
			RequestingWarehouseID: input.RequestingWarehouseID,
			RequestedByUserID:     input.RequestedByUserID,
			Status:                enums.TransferRequestStatusPendingApproval,
			Items:                 make([]models.RequestItem, 0, len(input.Items)),
		}

		actor := input.RequestedByUserID
		for i, item := range input.Items {
			sourceID, err := s.resolveSource(ctx, repo, input.RequestingWarehouseID, item)
			if err != nil {
				return err
			}
			reservation, err := s.reservations.CreateTx(ctx, tx, reservations.CreateInput{
				CaseLineID:      item.CaseLineID,
				TypeComponentID: item.TypeComponentID,
				WarehouseID:     sourceID,
				Quantity:        item.Quantity,
				ActorUserID:     &actor,
			})
			if err != nil {
				return err
			}
			request.Items = append(request.Items, models.RequestItem{
				Position:          i,
				TypeComponentID:   item.TypeComponentID,
				SourceWarehouseID: sourceID,
				QuantityRequested: item.Quantity,
				ReservationID:     &reservation.ID,
				CaseLineID:        item.CaseLineID,
			})
		}

		if err := repo.Create(ctx, request); err != nil {
			return pkgerrors.FromStore(err, "create transfer request")
		}
		if err := s.emit(ctx, tx, enums.EventTransferRequestCreated, request, &actor); err != nil {
			return err
		}
		out = request
		return nil
	})
	s.metrics.Observe("transfer.create", err)
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, out, "transfer request created")
	return out, nil
}

func (s *service) resolveSource(ctx context.Context, repo Repository, requesterID uuid.UUID, item ItemInput) (uuid.UUID, error) {
	if item.SourceWarehouseID != nil {
		return *item.SourceWarehouseID, nil
	}
	sourceID, err := repo.FindSourceWarehouse(ctx, item.TypeComponentID, requesterID, item.Quantity)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "no other warehouse stocks this component type").
				WithDetails(map[string]any{"type_component_id": item.TypeComponentID.String()})
		}
		return uuid.Nil, pkgerrors.FromStore(err, "select source warehouse")
	}
	return sourceID, nil
}

func (s *service) Approve(ctx context.Context, input ApproveInput) (*models.StockTransferRequest, error) {
	out, err := s.transition(ctx, input.RequestID, input.ExpectedVersion, "approve", func(tx *gorm.DB, request *models.StockTransferRequest) (enums.OutboxEventType, error) {
		if request.Status != enums.TransferRequestStatusPendingApproval {
			return "", pkgerrors.IllegalTransition(request.Status.String(), "approve")
		}
		if err := validateApproval(request, input.Quantities); err != nil {
			return "", err
		}

		repo := s.repo.WithTx(tx)
		actor := input.ActorUserID
		total := 0
		for i := range request.Items {
			item := &request.Items[i]
			approved := item.QuantityRequested
			if quantity, ok := input.Quantities[item.ID]; ok {
				approved = quantity
			}
			if approved < item.QuantityRequested && item.ReservationID != nil {
				if _, err := s.reservations.ReduceTx(ctx, tx, *item.ReservationID, approved, &actor); err != nil {
					return "", err
				}
			}
			if err := repo.SetApprovedQuantity(ctx, item.ID, approved); err != nil {
				return "", pkgerrors.FromStore(err, "record approved quantity")
			}
			item.QuantityApproved = &approved
			total += approved
		}
		if total == 0 {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "approve at least one unit or reject the request")
		}

		now := time.Now().UTC()
		request.Status = enums.TransferRequestStatusApproved
		request.ApprovedAt = &now
		request.DecidedByUserID = &actor
		return enums.EventTransferRequestApproved, nil
	}, &input.ActorUserID)
	s.metrics.Observe("transfer.approve", err)
	return out, err
}

func (s *service) Reject(ctx context.Context, input DecisionInput) (*models.StockTransferRequest, error) {
	reason, err := requireReason(input.Reason)
	if err != nil {
		s.metrics.Observe("transfer.reject", err)
		return nil, err
	}
	out, err := s.transition(ctx, input.RequestID, input.ExpectedVersion, "reject", func(tx *gorm.DB, request *models.StockTransferRequest) (enums.OutboxEventType, error) {
		if request.Status != enums.TransferRequestStatusPendingApproval {
			return "", pkgerrors.IllegalTransition(request.Status.String(), "reject")
		}
		if err := s.releaseAll(ctx, tx, request, input.ActorUserID); err != nil {
			return "", err
		}
		now := time.Now().UTC()
		actor := input.ActorUserID
		request.Status = enums.TransferRequestStatusRejected
		request.Reason = &reason
		request.RejectedAt = &now
		request.DecidedByUserID = &actor
		return enums.EventTransferRequestRejected, nil
	}, &input.ActorUserID)
	s.metrics.Observe("transfer.reject", err)
	return out, err
}

// Cancel releases every reservation still holding stock, unbinding units a
// partial shipment already bound.
func (s *service) Cancel(ctx context.Context, input DecisionInput) (*models.StockTransferRequest, error) {
	reason, err := requireReason(input.Reason)
	if err != nil {
		s.metrics.Observe("transfer.cancel", err)
		return nil, err
	}
	out, err := s.transition(ctx, input.RequestID, input.ExpectedVersion, "cancel", func(tx *gorm.DB, request *models.StockTransferRequest) (enums.OutboxEventType, error) {
		if request.Status != enums.TransferRequestStatusPendingApproval && request.Status != enums.TransferRequestStatusApproved {
			return "", pkgerrors.IllegalTransition(request.Status.String(), "cancel")
		}
		if err := s.releaseAll(ctx, tx, request, input.ActorUserID); err != nil {
			return "", err
		}
		now := time.Now().UTC()
		request.Status = enums.TransferRequestStatusCancelled
		request.Reason = &reason
		request.CancelledAt = &now
		return enums.EventTransferRequestCancelled, nil
	}, &input.ActorUserID)
	s.metrics.Observe("transfer.cancel", err)
	return out, err
}

func (s *service) releaseAll(ctx context.Context, tx *gorm.DB, request *models.StockTransferRequest, actorUserID uuid.UUID) error {
	rows, err := s.reservations.FindTx(ctx, tx, reservationIDs(request))
	if err != nil {
		return err
	}
	actor := actorUserID
	for _, reservation := range rows {
		if reservation.Status == enums.ReservationStatusCancelled {
			continue
		}
		if _, err := s.reservations.CancelTx(ctx, tx, reservations.CancelInput{
			ReservationID: reservation.ID,
			ActorUserID:   &actor,
			Unbind:        true,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) ValidateSelection(ctx context.Context, id uuid.UUID, selection shipments.Selection) error {
	return s.shipments.ValidateSelection(ctx, id, selection)
}

// Ship binds the selection through the shipment binder and only moves the
// request to SHIPPED when every reservation ended up bound. On a partial
// shipment the request stays APPROVED and the error names the reservations
// to retry.
func (s *service) Ship(ctx context.Context, input ShipInput) (*ShipOutcome, error) {
	result, err := s.shipments.Ship(ctx, shipments.ShipInput{
		RequestID:             input.RequestID,
		Selection:             input.Selection,
		EstimatedDeliveryDate: input.EstimatedDeliveryDate,
	})
	if err != nil {
		s.metrics.Observe("transfer.ship", err)
		if result == nil {
			return nil, err
		}
		request, getErr := s.Get(ctx, input.RequestID)
		if getErr != nil {
			return nil, err
		}
		return &ShipOutcome{Request: request, Result: result}, err
	}

	request, err := s.transition(ctx, input.RequestID, nil, "ship", func(tx *gorm.DB, request *models.StockTransferRequest) (enums.OutboxEventType, error) {
		if request.Status != enums.TransferRequestStatusApproved {
			return "", pkgerrors.IllegalTransition(request.Status.String(), "ship")
		}
		rows, err := s.reservations.FindTx(ctx, tx, reservationIDs(request))
		if err != nil {
			return "", err
		}
		approved := approvedByReservation(request)
		for _, reservation := range rows {
			if reservation.Status == enums.ReservationStatusCancelled {
				if approved[reservation.ID] == 0 {
					continue
				}
				return "", pkgerrors.InvariantViolation("approved item points at a cancelled reservation").
					WithDetails(map[string]any{"reservation_id": reservation.ID.String()})
			}
			if !reservation.IsBound() {
				return "", pkgerrors.InvariantViolation("shipment finished with an unbound reservation").
					WithDetails(map[string]any{"reservation_id": reservation.ID.String()})
			}
		}
		now := time.Now().UTC()
		request.Status = enums.TransferRequestStatusShipped
		request.ShippedAt = &now
		return enums.EventTransferRequestShipped, nil
	}, input.ActorUserID)
	s.metrics.Observe("transfer.ship", err)
	if err != nil {
		return nil, err
	}
	return &ShipOutcome{Request: request, Result: result}, nil
}

// Receive marks the request RECEIVED and moves its bound units to the
// requesting warehouse. A RECEIVED request is returned untouched.
func (s *service) Receive(ctx context.Context, id uuid.UUID, actorUserID *uuid.UUID) (*models.StockTransferRequest, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		s.metrics.Observe("transfer.receive", err)
		return nil, err
	}
	if current.Status == enums.TransferRequestStatusReceived {
		s.metrics.Observe("transfer.receive", nil)
		return current, nil
	}

	out, err := s.transition(ctx, id, nil, "receive", func(tx *gorm.DB, request *models.StockTransferRequest) (enums.OutboxEventType, error) {
		if request.Status != enums.TransferRequestStatusShipped {
			return "", pkgerrors.IllegalTransition(request.Status.String(), "receive")
		}
		rows, err := s.reservations.FindTx(ctx, tx, reservationIDs(request))
		if err != nil {
			return "", err
		}
		for _, reservation := range rows {
			if reservation.Status == enums.ReservationStatusCancelled {
				continue
			}
			if _, err := s.reservations.DeliverTx(ctx, tx, reservation.ID, request.RequestingWarehouseID); err != nil {
				return "", err
			}
		}
		now := time.Now().UTC()
		request.Status = enums.TransferRequestStatusReceived
		request.ReceivedAt = &now
		return enums.EventTransferRequestReceived, nil
	}, actorUserID)
	if err != nil && pkgerrors.Is(err, pkgerrors.CodeIllegalTransition) {
		// A concurrent receive may have won the race.
		if latest, getErr := s.Get(ctx, id); getErr == nil && latest.Status == enums.TransferRequestStatusReceived {
			s.metrics.Observe("transfer.receive", nil)
			return latest, nil
		}
	}
	s.metrics.Observe("transfer.receive", err)
	return out, err
}

type mutation func(tx *gorm.DB, request *models.StockTransferRequest) (enums.OutboxEventType, error)

// transition loads the request inside a transaction, applies mutate and
// saves it under the optimistic version check.
func (s *service) transition(ctx context.Context, id uuid.UUID, expectedVersion *int, action string, mutate mutation, actorUserID *uuid.UUID) (*models.StockTransferRequest, error) {
	var out *models.StockTransferRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapLoadError(err)
		}
		if expectedVersion != nil && *expectedVersion != request.Version {
			return pkgerrors.New(pkgerrors.CodeConflict, "transfer request version does not match").
				WithDetails(map[string]any{"expected_version": *expectedVersion, "version": request.Version})
		}

		eventType, err := mutate(tx, request)
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, request); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeConflict, "transfer request was modified concurrently").
					WithDetails(map[string]any{"request_id": request.ID.String(), "attempted": action})
			}
			return pkgerrors.FromStore(err, "update transfer request")
		}
		if err := s.emit(ctx, tx, eventType, request, actorUserID); err != nil {
			return err
		}
		out = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(s.logg.WithField(ctx, "action", action), out, "transfer request transitioned")
	return out, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, request *models.StockTransferRequest, actorUserID *uuid.UUID) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTransferRequest,
		AggregateID:   request.ID,
		Data: payloads.TransferRequestEvent{
			RequestID:             request.ID,
			RequestingWarehouseID: request.RequestingWarehouseID,
			Status:                request.Status,
			Reason:                request.Reason,
			ReservationIDs:        reservationIDs(request),
			Version:               request.Version,
		},
	}
	if actorUserID != nil {
		event.Actor = &outbox.ActorRef{UserID: *actorUserID, WarehouseID: &request.RequestingWarehouseID}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.FromStore(err, "emit "+string(eventType))
	}
	return nil
}

func (s *service) logTransition(ctx context.Context, request *models.StockTransferRequest, msg string) {
	logCtx := s.logg.WithWarehouseID(ctx, request.RequestingWarehouseID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"request_id": request.ID.String(),
		"status":     request.Status,
		"version":    request.Version,
	})
	s.logg.Info(logCtx, msg)
}

func reservationIDs(request *models.StockTransferRequest) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(request.Items))
	for _, item := range request.Items {
		if item.ReservationID != nil {
			ids = append(ids, *item.ReservationID)
		}
	}
	return ids
}

// approvedByReservation maps each item's reservation to its approved
// quantity. Items approved at zero map to 0.
func approvedByReservation(request *models.StockTransferRequest) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(request.Items))
	for _, item := range request.Items {
		if item.ReservationID == nil {
			continue
		}
		out[*item.ReservationID] = 0
		if item.QuantityApproved != nil {
			out[*item.ReservationID] = *item.QuantityApproved
		}
	}
	return out
}

func validateCreate(input CreateInput) error {
	if input.RequestingWarehouseID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "requesting_warehouse_id is required")
	}
	if input.RequestedByUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "requested_by_user_id is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for i, item := range input.Items {
		if item.TypeComponentID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d].type_component_id is required", i))
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d].quantity must be a positive integer", i))
		}
		if item.SourceWarehouseID != nil && *item.SourceWarehouseID == input.RequestingWarehouseID {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d] cannot be sourced from the requesting warehouse", i))
		}
	}
	return nil
}

func validateApproval(request *models.StockTransferRequest, quantities map[uuid.UUID]int) error {
	items := make(map[uuid.UUID]models.RequestItem, len(request.Items))
	for _, item := range request.Items {
		items[item.ID] = item
	}
	for itemID, quantity := range quantities {
		item, ok := items[itemID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "approved quantity names an unknown item").
				WithDetails(map[string]any{"item_id": itemID.String()})
		}
		if quantity < 0 || quantity > item.QuantityRequested {
			return pkgerrors.New(pkgerrors.CodeValidation, "approved quantity must be between 0 and the requested quantity").
				WithDetails(map[string]any{"item_id": itemID.String(), "requested": item.QuantityRequested, "approved": quantity})
		}
	}
	return nil
}

func requireReason(reason string) (string, error) {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	return trimmed, nil
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "transfer request not found")
	}
	return pkgerrors.FromStore(err, "load transfer request")
}
