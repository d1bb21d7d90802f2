package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
)

// StockTransferRequest is a demand from one warehouse for parts held
// elsewhere. Reason is set only for REJECTED and CANCELLED requests.
type StockTransferRequest struct {
	ID                    uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	RequestingWarehouseID uuid.UUID                   `gorm:"column:requesting_warehouse_id;type:uuid;not null;index"`
	RequestedByUserID     uuid.UUID                   `gorm:"column:requested_by_user_id;type:uuid;not null"`
	DecidedByUserID       *uuid.UUID                  `gorm:"column:decided_by_user_id;type:uuid"`
	Status                enums.TransferRequestStatus `gorm:"column:status;type:transfer_request_status_enum;not null"`
	Reason                *string                     `gorm:"column:reason"`
	CreatedAt             time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
	ApprovedAt            *time.Time                  `gorm:"column:approved_at"`
	RejectedAt            *time.Time                  `gorm:"column:rejected_at"`
	CancelledAt           *time.Time                  `gorm:"column:cancelled_at"`
	ShippedAt             *time.Time                  `gorm:"column:shipped_at"`
	ReceivedAt            *time.Time                  `gorm:"column:received_at"`
	Version               int                         `gorm:"column:version;not null;default:0"`
	Items                 []RequestItem               `gorm:"foreignKey:RequestID;references:ID"`
}

func (r *StockTransferRequest) BeforeCreate(tx *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// RequestItem is one ordered line of a transfer request.
type RequestItem struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	RequestID         uuid.UUID  `gorm:"column:request_id;type:uuid;not null;index"`
	Position          int        `gorm:"column:position;not null"`
	TypeComponentID   uuid.UUID  `gorm:"column:type_component_id;type:uuid;not null"`
	SourceWarehouseID uuid.UUID  `gorm:"column:source_warehouse_id;type:uuid;not null"`
	QuantityRequested int        `gorm:"column:quantity_requested;not null"`
	QuantityApproved  *int       `gorm:"column:quantity_approved"`
	ReservationID     *uuid.UUID `gorm:"column:reservation_id;type:uuid"`
	CaseLineID        *uuid.UUID `gorm:"column:case_line_id;type:uuid"`
}

func (i *RequestItem) BeforeCreate(tx *gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

func (RequestItem) TableName() string { return "transfer_request_items" }
