package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Warehouse is a physical stock location. Lower PriorityRank values are
// preferred when sourcing transfers.
type Warehouse struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name            string     `gorm:"column:name;not null"`
	PriorityRank    int        `gorm:"column:priority_rank;not null;default:0"`
	ServiceCenterID *uuid.UUID `gorm:"column:service_center_id;type:uuid;index"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Warehouse) BeforeCreate(tx *gorm.DB) error {
	ensureID(&w.ID)
	return nil
}
