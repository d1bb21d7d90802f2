package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
)

// StockAdjustment is an append-only ledger entry. Rows are never updated or
// deleted.
type StockAdjustment struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	StockID     uuid.UUID              `gorm:"column:stock_id;type:uuid;not null;index"`
	Type        enums.AdjustmentType   `gorm:"column:type;type:adjustment_type_enum;not null"`
	Quantity    int                    `gorm:"column:quantity;not null"`
	Reason      enums.AdjustmentReason `gorm:"column:reason;type:adjustment_reason_enum;not null"`
	Note        string                 `gorm:"column:note;not null;default:''"`
	ActorUserID *uuid.UUID             `gorm:"column:actor_user_id;type:uuid"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (a *StockAdjustment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	if a.CreatedAt.IsZero() {
		// UTC keeps the (created_at, id) cursor comparable across drivers.
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}
