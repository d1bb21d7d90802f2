package shipments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/internal/reservations"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
)

const defaultConcurrency = 4

// Selection maps a reservation id to the serialized units chosen for it.
type Selection map[uuid.UUID][]uuid.UUID

// Service binds serialized units to the reservations of an APPROVED
// transfer request. Each reservation binds in its own transaction; a failed
// binding never rolls back the others.
type Service interface {
	ValidateSelection(ctx context.Context, requestID uuid.UUID, selection Selection) error
	Ship(ctx context.Context, input ShipInput) (*Result, error)
	Shipments(ctx context.Context, requestID uuid.UUID) ([]models.Shipment, error)
}

type ShipInput struct {
	RequestID             uuid.UUID
	Selection             Selection
	EstimatedDeliveryDate time.Time
}

// Result reports the outcome of one ship call. AllBound is true only when
// every reservation of the request is bound after the call.
type Result struct {
	RequestID    uuid.UUID   `json:"request_id"`
	Bound        []uuid.UUID `json:"bound_reservation_ids"`
	AlreadyBound []uuid.UUID `json:"already_bound_reservation_ids"`
	Failed       []Failure   `json:"failed"`
	AllBound     bool        `json:"all_bound"`
}

// FailedIDs lists the reservations the caller still has to resolve.
func (r *Result) FailedIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.Failed))
	for _, failure := range r.Failed {
		out = append(out, failure.ReservationID)
	}
	return out
}

type Failure struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	Code          string    `json:"code"`
	Message       string    `json:"message"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reservationBinder interface {
	FindTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Reservation, error)
	BindTx(ctx context.Context, tx *gorm.DB, input reservations.BindInput) (*models.Reservation, error)
}

type ServiceParams struct {
	Repository   Repository
	Reservations reservationBinder
	TxRunner     txRunner
	Logger       *logger.Logger
	Metrics      *metrics.EngineMetrics
	Concurrency  int
}

type service struct {
	repo         Repository
	reservations reservationBinder
	tx           txRunner
	logg         *logger.Logger
	metrics      *metrics.EngineMetrics
	concurrency  int
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("shipment repository required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &service{
		repo:         params.Repository,
		reservations: params.Reservations,
		tx:           params.TxRunner,
		logg:         params.Logger,
		metrics:      params.Metrics,
		concurrency:  concurrency,
	}, nil
}

// plan is a validated selection: the reservations that still need binding
// and the ones a previous call already bound.
type plan struct {
	pending      []models.Reservation
	alreadyBound []uuid.UUID
}

func (s *service) ValidateSelection(ctx context.Context, requestID uuid.UUID, selection Selection) error {
	_, err := s.plan(ctx, requestID, selection)
	s.metrics.Observe("shipment.validate_selection", err)
	return err
}

func (s *service) plan(ctx context.Context, requestID uuid.UUID, selection Selection) (*plan, error) {
	request, err := s.repo.FindRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transfer request not found")
		}
		return nil, pkgerrors.FromStore(err, "load transfer request")
	}
	if request.Status != enums.TransferRequestStatusApproved {
		return nil, pkgerrors.IllegalTransition(request.Status.String(), "ship")
	}

	ids := make([]uuid.UUID, 0, len(request.Items))
	approved := make(map[uuid.UUID]bool, len(request.Items))
	for _, item := range request.Items {
		if item.ReservationID != nil {
			ids = append(ids, *item.ReservationID)
			approved[*item.ReservationID] = item.QuantityApproved != nil && *item.QuantityApproved > 0
		}
	}
	rows, err := s.reservations.FindTx(ctx, nil, ids)
	if err != nil {
		return nil, err
	}

	attached := make(map[uuid.UUID]struct{}, len(rows))
	out := &plan{}
	var incomplete []uuid.UUID
	var orphaned []string
	for _, reservation := range rows {
		if reservation.Status == enums.ReservationStatusCancelled {
			if approved[reservation.ID] {
				orphaned = append(orphaned, reservation.ID.String())
			}
			continue
		}
		attached[reservation.ID] = struct{}{}
		chosen, ok := selection[reservation.ID]
		if ok && len(chosen) != reservation.QuantityRequested {
			incomplete = append(incomplete, reservation.ID)
			continue
		}
		if reservation.IsBound() || reservation.Status != enums.ReservationStatusReserved {
			out.alreadyBound = append(out.alreadyBound, reservation.ID)
			continue
		}
		if !ok {
			incomplete = append(incomplete, reservation.ID)
			continue
		}
		out.pending = append(out.pending, reservation)
	}
	if len(orphaned) > 0 {
		return nil, pkgerrors.InvariantViolation("approved item points at a cancelled reservation").
			WithDetails(map[string]any{"reservation_ids": orphaned})
	}
	if len(incomplete) > 0 {
		return nil, pkgerrors.IncompleteSelection(incomplete)
	}

	seen := make(map[uuid.UUID]struct{})
	for reservationID, componentIDs := range selection {
		if _, ok := attached[reservationID]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "selection names a reservation outside this request").
				WithDetails(map[string]any{"reservation_id": reservationID.String()})
		}
		for _, componentID := range componentIDs {
			if _, dup := seen[componentID]; dup {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "component selected more than once").
					WithDetails(map[string]any{"component_id": componentID.String()})
			}
			seen[componentID] = struct{}{}
		}
	}
	return out, nil
}

// Ship validates the whole selection first, then binds pending reservations
// in parallel. Wait is the barrier: the result is only reported once every
// binding has resolved.
func (s *service) Ship(ctx context.Context, input ShipInput) (*Result, error) {
	if input.EstimatedDeliveryDate.IsZero() {
		err := pkgerrors.New(pkgerrors.CodeValidation, "estimated_delivery_date is required")
		s.metrics.Observe("shipment.ship", err)
		return nil, err
	}
	p, err := s.plan(ctx, input.RequestID, input.Selection)
	if err != nil {
		s.metrics.Observe("shipment.ship", err)
		return nil, err
	}

	outcomes := make([]error, len(p.pending))
	var group errgroup.Group
	group.SetLimit(s.concurrency)
	for i, reservation := range p.pending {
		group.Go(func() error {
			outcomes[i] = s.bindOne(ctx, input, reservation)
			return nil
		})
	}
	_ = group.Wait()

	result := &Result{
		RequestID:    input.RequestID,
		Bound:        []uuid.UUID{},
		AlreadyBound: p.alreadyBound,
		Failed:       []Failure{},
	}
	if result.AlreadyBound == nil {
		result.AlreadyBound = []uuid.UUID{}
	}
	var combined error
	for i, outcome := range outcomes {
		reservationID := p.pending[i].ID
		if outcome == nil {
			result.Bound = append(result.Bound, reservationID)
			continue
		}
		combined = multierr.Append(combined, fmt.Errorf("reservation %s: %w", reservationID, outcome))
		failure := Failure{ReservationID: reservationID, Code: string(pkgerrors.CodeInternal), Message: outcome.Error()}
		if typed := pkgerrors.As(outcome); typed != nil {
			failure.Code = string(typed.Code())
			failure.Message = typed.Message()
		}
		result.Failed = append(result.Failed, failure)
	}
	sort.Slice(result.Failed, func(i, j int) bool {
		return result.Failed[i].ReservationID.String() < result.Failed[j].ReservationID.String()
	})
	result.AllBound = len(result.Failed) == 0

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"request_id":    input.RequestID.String(),
		"bound":         len(result.Bound),
		"already_bound": len(result.AlreadyBound),
		"failed":        len(result.Failed),
	})
	if !result.AllBound {
		s.metrics.AddBindFailures(len(result.Failed))
		s.metrics.IncPartialShipment()
		s.logg.Error(logCtx, "shipment partially bound", combined)
		err := pkgerrors.PartialShipment(result.FailedIDs())
		s.metrics.Observe("shipment.ship", err)
		return result, err
	}
	s.logg.Info(logCtx, "shipment bound")
	s.metrics.Observe("shipment.ship", nil)
	return result, nil
}

func (s *service) bindOne(ctx context.Context, input ShipInput, reservation models.Reservation) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.reservations.BindTx(ctx, tx, reservations.BindInput{
			ReservationID:         reservation.ID,
			ComponentIDs:          input.Selection[reservation.ID],
			RequestID:             input.RequestID,
			EstimatedDeliveryDate: input.EstimatedDeliveryDate,
		}); err != nil {
			return err
		}
		shipment := &models.Shipment{
			RequestID:             input.RequestID,
			ReservationID:         reservation.ID,
			EstimatedDeliveryDate: input.EstimatedDeliveryDate.UTC(),
		}
		if err := s.repo.WithTx(tx).Create(ctx, shipment); err != nil {
			return pkgerrors.FromStore(err, "record shipment")
		}
		return nil
	})
}

func (s *service) Shipments(ctx context.Context, requestID uuid.UUID) ([]models.Shipment, error) {
	rows, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, pkgerrors.FromStore(err, "list shipments")
	}
	return rows, nil
}
