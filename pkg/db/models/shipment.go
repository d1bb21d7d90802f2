package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Shipment records that one reservation of a transfer request was bound and
// dispatched.
type Shipment struct {
	ID                    uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	RequestID             uuid.UUID `gorm:"column:request_id;type:uuid;not null;index"`
	ReservationID         uuid.UUID `gorm:"column:reservation_id;type:uuid;not null;uniqueIndex"`
	EstimatedDeliveryDate time.Time `gorm:"column:estimated_delivery_date;not null"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (s *Shipment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
