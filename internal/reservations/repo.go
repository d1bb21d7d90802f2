package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/internal/repo"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
)

// Repository persists reservations and the component rows they bind.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Reservation, error)
	Create(ctx context.Context, reservation *models.Reservation) error
	Update(ctx context.Context, reservation *models.Reservation) error
	FindComponents(ctx context.Context, ids []uuid.UUID) ([]models.Component, error)
	ClaimComponents(ctx context.Context, reservation *models.Reservation, componentIDs []uuid.UUID) (int64, error)
	MoveComponents(ctx context.Context, reservationID uuid.UUID, move ComponentMove) (int64, error)
	TransferRequestFor(ctx context.Context, reservationID uuid.UUID) (*uuid.UUID, error)
}

// ComponentMove rewrites every component bound to a reservation.
type ComponentMove struct {
	Status      enums.ComponentStatus
	WarehouseID *uuid.UUID
	Detach      bool
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.DB(ctx).Where("id = ?", id).First(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// FindByIDs returns the rows that exist, ordered by id, locked for the
// enclosing transaction. Callers compare the result length to detect
// unknown ids.
func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Reservation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Reservation
	err := r.Locked(ctx).Where("id IN ?", ids).Order("id ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.DB(ctx).Create(reservation).Error
}

// Update writes the reservation when its version still matches. A stale
// version yields gorm.ErrRecordNotFound.
func (r *repository) Update(ctx context.Context, reservation *models.Reservation) error {
	return r.UpdateVersioned(ctx, reservation, reservation.ID, &reservation.Version)
}

func (r *repository) FindComponents(ctx context.Context, ids []uuid.UUID) ([]models.Component, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Component
	err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

// ClaimComponents ships the given units to the reservation. Only units still
// IN_WAREHOUSE in the reservation's warehouse and type are touched, so a unit
// taken by a concurrent shipment lowers the affected count.
func (r *repository) ClaimComponents(ctx context.Context, reservation *models.Reservation, componentIDs []uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Component{}).
		Where("id IN ?", componentIDs).
		Where("warehouse_id = ? AND type_component_id = ? AND status = ?",
			reservation.WarehouseID, reservation.TypeComponentID, enums.ComponentStatusInWarehouse).
		Updates(map[string]any{
			"status":         enums.ComponentStatusShipped,
			"reservation_id": reservation.ID,
			"warehouse_id":   nil,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) MoveComponents(ctx context.Context, reservationID uuid.UUID, move ComponentMove) (int64, error) {
	updates := map[string]any{
		"status":       move.Status,
		"warehouse_id": nil,
		"updated_at":   time.Now().UTC(),
	}
	if move.WarehouseID != nil {
		updates["warehouse_id"] = *move.WarehouseID
	}
	if move.Detach {
		updates["reservation_id"] = nil
	}
	res := r.DB(ctx).
		Model(&models.Component{}).
		Where("reservation_id = ?", reservationID).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// TransferRequestFor returns the transfer request whose item holds the
// reservation, or nil when the reservation stands alone.
func (r *repository) TransferRequestFor(ctx context.Context, reservationID uuid.UUID) (*uuid.UUID, error) {
	var items []models.RequestItem
	err := r.DB(ctx).
		Select("request_id").
		Where("reservation_id = ?", reservationID).
		Limit(1).
		Find(&items).Error
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0].RequestID, nil
}
