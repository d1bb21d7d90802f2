package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Stock aggregates quantities for one component type in one warehouse.
// QuantityAvailable always equals QuantityInStock - QuantityReserved.
type Stock struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	WarehouseID       uuid.UUID `gorm:"column:warehouse_id;type:uuid;not null;uniqueIndex:ux_stocks_warehouse_type"`
	TypeComponentID   uuid.UUID `gorm:"column:type_component_id;type:uuid;not null;uniqueIndex:ux_stocks_warehouse_type"`
	QuantityInStock   int       `gorm:"column:quantity_in_stock;not null;default:0"`
	QuantityReserved  int       `gorm:"column:quantity_reserved;not null;default:0"`
	QuantityAvailable int       `gorm:"column:quantity_available;not null;default:0"`
	Version           int       `gorm:"column:version;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Stock) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// Conserved reports whether the three quantity fields are consistent.
func (s Stock) Conserved() bool {
	return s.QuantityInStock >= 0 &&
		s.QuantityReserved >= 0 &&
		s.QuantityAvailable >= 0 &&
		s.QuantityAvailable == s.QuantityInStock-s.QuantityReserved
}
