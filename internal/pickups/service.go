// Package pickups groups bound reservations into one technician checkout.
package pickups

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/internal/caselines"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
)

// Batch is the set of reservations one technician collects at once.
// TechnicianID is empty until the batch passes ValidateHomogeneity.
type Batch struct {
	ReservationIDs []uuid.UUID `json:"reservation_ids"`
	Skipped        []uuid.UUID `json:"skipped_reservation_ids"`
	TechnicianID   string      `json:"technician_id,omitempty"`
}

type Service interface {
	SelectForPickup(ctx context.Context, candidateIDs []uuid.UUID) (*Batch, error)
	ValidateHomogeneity(ctx context.Context, batch *Batch) error
	CommitPickup(ctx context.Context, batch *Batch, techID uuid.UUID) ([]models.Reservation, error)
	// Checkout runs select, validate and commit for one technician.
	Checkout(ctx context.Context, candidateIDs []uuid.UUID, techID uuid.UUID) ([]models.Reservation, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reservationPicker interface {
	FindTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Reservation, error)
	PickupTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, techID uuid.UUID) ([]models.Reservation, error)
}

type ServiceParams struct {
	Reservations reservationPicker
	CaseLines    caselines.Repository
	TxRunner     txRunner
	Logger       *logger.Logger
	Metrics      *metrics.EngineMetrics
}

type service struct {
	reservations reservationPicker
	caseLines    caselines.Repository
	tx           txRunner
	logg         *logger.Logger
	metrics      *metrics.EngineMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if params.CaseLines == nil {
		return nil, fmt.Errorf("case line repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		reservations: params.Reservations,
		caseLines:    params.CaseLines,
		tx:           params.TxRunner,
		logg:         params.Logger,
		metrics:      params.Metrics,
	}, nil
}

// SelectForPickup keeps the candidates that are RESERVED and already bound
// by a shipment.
func (s *service) SelectForPickup(ctx context.Context, candidateIDs []uuid.UUID) (*Batch, error) {
	batch, err := s.selectTx(ctx, nil, candidateIDs)
	s.metrics.Observe("pickup.select", err)
	return batch, err
}

func (s *service) selectTx(ctx context.Context, tx *gorm.DB, candidateIDs []uuid.UUID) (*Batch, error) {
	ids := dedupe(candidateIDs)
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptySelection, "no reservations qualify for pickup")
	}
	rows, err := s.reservations.FindTx(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	batch := &Batch{ReservationIDs: []uuid.UUID{}, Skipped: []uuid.UUID{}}
	for _, reservation := range rows {
		if reservation.Status == enums.ReservationStatusReserved && reservation.IsBound() {
			batch.ReservationIDs = append(batch.ReservationIDs, reservation.ID)
			continue
		}
		batch.Skipped = append(batch.Skipped, reservation.ID)
	}
	if len(batch.ReservationIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptySelection, "no reservations qualify for pickup").
			WithDetails(map[string]any{"reservation_ids": uuidStrings(batch.Skipped)})
	}
	return batch, nil
}

// ValidateHomogeneity requires every reservation in the batch to belong to
// case lines of one repair technician. Each unassigned case line counts as
// its own group.
func (s *service) ValidateHomogeneity(ctx context.Context, batch *Batch) error {
	err := s.validateTx(ctx, nil, batch)
	s.metrics.Observe("pickup.validate", err)
	return err
}

func (s *service) validateTx(ctx context.Context, tx *gorm.DB, batch *Batch) error {
	if batch == nil || len(batch.ReservationIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeEmptySelection, "pickup batch is empty")
	}
	rows, err := s.reservations.FindTx(ctx, tx, batch.ReservationIDs)
	if err != nil {
		return err
	}
	caseLineIDs := make([]*uuid.UUID, 0, len(rows))
	for _, reservation := range rows {
		caseLineIDs = append(caseLineIDs, reservation.CaseLineID)
	}
	technicians, err := s.caseLines.WithTx(tx).Technicians(ctx, caseLineIDs)
	if err != nil {
		return pkgerrors.FromStore(err, "load case line technicians")
	}

	distinct := map[string]struct{}{}
	for i, tech := range technicians {
		distinct[groupKey(tech, rows[i])] = struct{}{}
	}
	if len(distinct) > 1 {
		ids := make([]string, 0, len(distinct))
		for tech := range distinct {
			ids = append(ids, tech)
		}
		sort.Strings(ids)
		return pkgerrors.MixedTechnician(ids)
	}
	batch.TechnicianID = technicians[0]
	return nil
}

// CommitPickup moves the whole batch to PICKED_UP in one transaction. The
// batch is re-validated inside it so a stale batch fails without writes.
func (s *service) CommitPickup(ctx context.Context, batch *Batch, techID uuid.UUID) ([]models.Reservation, error) {
	var out []models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.validateTx(ctx, tx, batch); err != nil {
			return err
		}
		if batch.TechnicianID != caselines.Unassigned && batch.TechnicianID != techID.String() {
			return pkgerrors.New(pkgerrors.CodeValidation, "pickup batch belongs to another technician").
				WithDetails(map[string]any{"technician_id": batch.TechnicianID})
		}
		rows, err := s.reservations.PickupTx(ctx, tx, batch.ReservationIDs, techID)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	s.metrics.Observe("pickup.commit", err)
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"tech_id":         techID.String(),
		"reservation_ids": uuidStrings(batch.ReservationIDs),
	})
	s.logg.Info(logCtx, "pickup committed")
	return out, nil
}

func (s *service) Checkout(ctx context.Context, candidateIDs []uuid.UUID, techID uuid.UUID) ([]models.Reservation, error) {
	batch, err := s.SelectForPickup(ctx, candidateIDs)
	if err != nil {
		return nil, err
	}
	if err := s.ValidateHomogeneity(ctx, batch); err != nil {
		return nil, err
	}
	return s.CommitPickup(ctx, batch, techID)
}

// groupKey keys unassigned reservations by their case line, or by the
// reservation itself when it has none, so no two unrelated unassigned lines
// share a pickup.
func groupKey(tech string, reservation models.Reservation) string {
	if tech != caselines.Unassigned {
		return tech
	}
	if reservation.CaseLineID != nil {
		return caselines.Unassigned + ":" + reservation.CaseLineID.String()
	}
	return caselines.Unassigned + ":" + reservation.ID.String()
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
