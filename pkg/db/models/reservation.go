package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/partsreserve-backend/pkg/db/types"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
)

// Reservation is a quantity claim against one Stock row, optionally tied to
// the repair case line that needs the part.
type Reservation struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	CaseLineID         *uuid.UUID              `gorm:"column:case_line_id;type:uuid;index"`
	TypeComponentID    uuid.UUID               `gorm:"column:type_component_id;type:uuid;not null"`
	WarehouseID        uuid.UUID               `gorm:"column:warehouse_id;type:uuid;not null"`
	StockID            uuid.UUID               `gorm:"column:stock_id;type:uuid;not null;index"`
	QuantityRequested  int                     `gorm:"column:quantity_requested;not null"`
	Status             enums.ReservationStatus `gorm:"column:status;type:reservation_status_enum;not null"`
	BoundComponentIDs  dbtypes.UUIDArray       `gorm:"column:bound_component_ids"`
	PickedUpByTechID   *uuid.UUID              `gorm:"column:picked_up_by_tech_id;type:uuid"`
	OldComponentSerial *string                 `gorm:"column:old_component_serial"`
	ReservedAt         time.Time               `gorm:"column:reserved_at;not null"`
	BoundAt            *time.Time              `gorm:"column:bound_at"`
	PickedUpAt         *time.Time              `gorm:"column:picked_up_at"`
	InstalledAt        *time.Time              `gorm:"column:installed_at"`
	ReturnedAt         *time.Time              `gorm:"column:returned_at"`
	CancelledAt        *time.Time              `gorm:"column:cancelled_at"`
	DeliveredAt        *time.Time              `gorm:"column:delivered_at"`
	Version            int                     `gorm:"column:version;not null;default:0"`
	UpdatedAt          time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Reservation) BeforeCreate(tx *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// IsBound reports whether exactly QuantityRequested units are bound.
func (r Reservation) IsBound() bool {
	return len(r.BoundComponentIDs) > 0 && len(r.BoundComponentIDs) == r.QuantityRequested
}
