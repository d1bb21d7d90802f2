package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/internal/repo"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	"github.com/angelmondragon/partsreserve-backend/pkg/pagination"
)

// Repository persists stock rows, their serialized components and the
// adjustment ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Stock, error)
	FindByWarehouseAndType(ctx context.Context, warehouseID, typeComponentID uuid.UUID) (*models.Stock, error)
	Create(ctx context.Context, stock *models.Stock) error
	ApplyDelta(ctx context.Context, id uuid.UUID, delta Delta) (bool, error)
	AppendAdjustment(ctx context.Context, adjustment *models.StockAdjustment) error
	ListAdjustments(ctx context.Context, stockID uuid.UUID, after *pagination.Cursor, limit int) ([]models.StockAdjustment, error)
	CreateComponents(ctx context.Context, components []models.Component) error
	MarkDefective(ctx context.Context, warehouseID, typeComponentID uuid.UUID, serials []string) (int64, error)
	ListAvailableComponents(ctx context.Context, warehouseID, typeComponentID uuid.UUID, afterSerial string, limit int) ([]models.Component, error)
	Summary(ctx context.Context, serviceCenterID uuid.UUID) ([]WarehouseSummary, error)
	ListPage(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Stock, error)
}

// Delta is a signed change to the in-stock and reserved quantities. The
// available quantity moves by InStock - Reserved.
type Delta struct {
	InStock  int
	Reserved int
}

func (d Delta) available() int {
	return d.InStock - d.Reserved
}

type repository struct {
	repo.Base
}

// NewRepository builds a stock repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Stock, error) {
	var stock models.Stock
	if err := r.DB(ctx).Where("id = ?", id).First(&stock).Error; err != nil {
		return nil, err
	}
	return &stock, nil
}

func (r *repository) FindByWarehouseAndType(ctx context.Context, warehouseID, typeComponentID uuid.UUID) (*models.Stock, error) {
	var stock models.Stock
	err := r.DB(ctx).
		Where("warehouse_id = ? AND type_component_id = ?", warehouseID, typeComponentID).
		First(&stock).Error
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

func (r *repository) Create(ctx context.Context, stock *models.Stock) error {
	return r.DB(ctx).Create(stock).Error
}

// ApplyDelta changes all three quantity columns in one conditional UPDATE.
// The WHERE clause is the compare step: the row is only written when every
// resulting quantity stays non-negative, so concurrent writers on the same
// row serialize on the row lock and none can drive availability below zero.
// It reports false when the guard rejected the write or the row is missing.
func (r *repository) ApplyDelta(ctx context.Context, id uuid.UUID, delta Delta) (bool, error) {
	res := r.DB(ctx).Exec(`
UPDATE stocks
SET quantity_in_stock = quantity_in_stock + ?,
    quantity_reserved = quantity_reserved + ?,
    quantity_available = quantity_available + ?,
    version = version + 1,
    updated_at = ?
WHERE id = ?
  AND quantity_in_stock + ? >= 0
  AND quantity_reserved + ? >= 0
  AND quantity_available + ? >= 0
`,
		delta.InStock, delta.Reserved, delta.available(), time.Now().UTC(),
		id,
		delta.InStock, delta.Reserved, delta.available(),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendAdjustment(ctx context.Context, adjustment *models.StockAdjustment) error {
	return r.DB(ctx).Create(adjustment).Error
}

// ListAdjustments returns the ledger entries of a stock newest first,
// resuming strictly after the cursor when one is given.
func (r *repository) ListAdjustments(ctx context.Context, stockID uuid.UUID, after *pagination.Cursor, limit int) ([]models.StockAdjustment, error) {
	var rows []models.StockAdjustment
	q := r.DB(ctx).Where("stock_id = ?", stockID)
	if after != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *repository) CreateComponents(ctx context.Context, components []models.Component) error {
	if len(components) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&components).Error
}

func (r *repository) MarkDefective(ctx context.Context, warehouseID, typeComponentID uuid.UUID, serials []string) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Component{}).
		Where("serial_number IN ?", serials).
		Where("warehouse_id = ? AND type_component_id = ? AND status = ?", warehouseID, typeComponentID, enums.ComponentStatusInWarehouse).
		Updates(map[string]any{
			"status":     enums.ComponentStatusDefective,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// ListAvailableComponents pages IN_WAREHOUSE units by serial number.
func (r *repository) ListAvailableComponents(ctx context.Context, warehouseID, typeComponentID uuid.UUID, afterSerial string, limit int) ([]models.Component, error) {
	query := r.DB(ctx).
		Where("warehouse_id = ? AND type_component_id = ? AND status = ?", warehouseID, typeComponentID, enums.ComponentStatusInWarehouse)
	if afterSerial != "" {
		query = query.Where("serial_number > ?", afterSerial)
	}
	var rows []models.Component
	err := query.Order("serial_number ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *repository) Summary(ctx context.Context, serviceCenterID uuid.UUID) ([]WarehouseSummary, error) {
	var rows []WarehouseSummary
	err := r.DB(ctx).Raw(`
SELECT w.id AS warehouse_id,
       w.name AS warehouse_name,
       COALESCE(SUM(s.quantity_in_stock), 0) AS quantity_in_stock,
       COALESCE(SUM(s.quantity_reserved), 0) AS quantity_reserved,
       COALESCE(SUM(s.quantity_available), 0) AS quantity_available,
       COALESCE(SUM(s.quantity_in_stock * tc.price), 0) AS valuation
FROM warehouses w
LEFT JOIN stocks s ON s.warehouse_id = w.id
LEFT JOIN type_components tc ON tc.id = s.type_component_id
WHERE w.service_center_id = ?
GROUP BY w.id, w.name, w.priority_rank
ORDER BY w.priority_rank ASC, w.name ASC
`, serviceCenterID).Scan(&rows).Error
	return rows, err
}

func (r *repository) ListPage(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Stock, error) {
	query := r.DB(ctx).Order("id ASC").Limit(limit)
	if afterID != uuid.Nil {
		query = query.Where("id > ?", afterID)
	}
	var rows []models.Stock
	err := query.Find(&rows).Error
	return rows, err
}
