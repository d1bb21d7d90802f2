package transfers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/internal/repo"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.StockTransferRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.StockTransferRequest, error)
	Update(ctx context.Context, request *models.StockTransferRequest) error
	SetApprovedQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	FindSourceWarehouse(ctx context.Context, typeComponentID, excludeWarehouseID uuid.UUID, quantity int) (uuid.UUID, error)
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

// Create inserts the request together with its items.
func (r *repository) Create(ctx context.Context, request *models.StockTransferRequest) error {
	return r.DB(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StockTransferRequest, error) {
	var request models.StockTransferRequest
	err := r.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// Update writes the request row when its version still matches and bumps
// it. Items are never touched. gorm.ErrRecordNotFound signals a lost race.
func (r *repository) Update(ctx context.Context, request *models.StockTransferRequest) error {
	return r.UpdateVersioned(ctx, request, request.ID, &request.Version)
}

func (r *repository) SetApprovedQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.DB(ctx).
		Model(&models.RequestItem{}).
		Where("id = ?", itemID).
		Update("quantity_approved", quantity).Error
}

// FindSourceWarehouse picks the lowest priority_rank warehouse (ties by id)
// other than the requester that can cover quantity. When none can, it falls
// back to the best-ranked warehouse stocking the type at all so the reserve
// step reports the shortfall. gorm.ErrRecordNotFound means nobody stocks it.
func (r *repository) FindSourceWarehouse(ctx context.Context, typeComponentID, excludeWarehouseID uuid.UUID, quantity int) (uuid.UUID, error) {
	base := func() *gorm.DB {
		return r.DB(ctx).
			Table("stocks AS s").
			Joins("JOIN warehouses AS w ON w.id = s.warehouse_id").
			Where("s.type_component_id = ? AND s.warehouse_id <> ?", typeComponentID, excludeWarehouseID).
			Order("w.priority_rank ASC, w.id ASC").
			Limit(1)
	}

	var ids []uuid.UUID
	if err := base().Where("s.quantity_available >= ?", quantity).Pluck("s.warehouse_id", &ids).Error; err != nil {
		return uuid.Nil, err
	}
	if len(ids) == 0 {
		if err := base().Pluck("s.warehouse_id", &ids).Error; err != nil {
			return uuid.Nil, err
		}
	}
	if len(ids) == 0 {
		return uuid.Nil, gorm.ErrRecordNotFound
	}
	return ids[0], nil
}
