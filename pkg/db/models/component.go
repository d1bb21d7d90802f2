package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
)

// Component is one serialized physical unit. WarehouseID is cleared while
// the unit is in transit or installed.
type Component struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	SerialNumber    string                `gorm:"column:serial_number;not null;uniqueIndex"`
	TypeComponentID uuid.UUID             `gorm:"column:type_component_id;type:uuid;not null;index:ix_components_lookup"`
	WarehouseID     *uuid.UUID            `gorm:"column:warehouse_id;type:uuid;index:ix_components_lookup"`
	Status          enums.ComponentStatus `gorm:"column:status;type:component_status_enum;not null;index:ix_components_lookup"`
	ReservationID   *uuid.UUID            `gorm:"column:reservation_id;type:uuid;index"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Component) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
