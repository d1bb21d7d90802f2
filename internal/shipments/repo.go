package shipments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/internal/repo"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRequest(ctx context.Context, id uuid.UUID) (*models.StockTransferRequest, error)
	Create(ctx context.Context, shipment *models.Shipment) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Shipment, error)
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

func (r *repository) FindRequest(ctx context.Context, id uuid.UUID) (*models.StockTransferRequest, error) {
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

func (r *repository) Create(ctx context.Context, shipment *models.Shipment) error {
	return r.DB(ctx).Create(shipment).Error
}

func (r *repository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Shipment, error) {
	var rows []models.Shipment
	err := r.DB(ctx).Where("request_id = ?", requestID).Order("created_at ASC").Find(&rows).Error
	return rows, err
}
