package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
)

// TransferRequestEvent carries the state of a transfer request after a
// transition.
type TransferRequestEvent struct {
	RequestID             uuid.UUID                   `json:"request_id"`
	RequestingWarehouseID uuid.UUID                   `json:"requesting_warehouse_id"`
	Status                enums.TransferRequestStatus `json:"status"`
	Reason                *string                     `json:"reason,omitempty"`
	ReservationIDs        []uuid.UUID                 `json:"reservation_ids,omitempty"`
	Version               int                         `json:"version"`
}

// ReservationEvent is emitted on every reservation transition.
type ReservationEvent struct {
	ReservationID     uuid.UUID               `json:"reservation_id"`
	CaseLineID        *uuid.UUID              `json:"case_line_id,omitempty"`
	StockID           uuid.UUID               `json:"stock_id"`
	WarehouseID       uuid.UUID               `json:"warehouse_id"`
	TypeComponentID   uuid.UUID               `json:"type_component_id"`
	Quantity          int                     `json:"quantity"`
	Status            enums.ReservationStatus `json:"status"`
	BoundComponentIDs []uuid.UUID             `json:"bound_component_ids,omitempty"`
	TechnicianID      *uuid.UUID              `json:"technician_id,omitempty"`
}

// ReservationBoundEvent records the shipment of one bound reservation.
type ReservationBoundEvent struct {
	ReservationEvent
	RequestID             uuid.UUID `json:"request_id"`
	EstimatedDeliveryDate time.Time `json:"estimated_delivery_date"`
}

// StockAdjustedEvent mirrors one appended ledger entry.
type StockAdjustedEvent struct {
	StockID           uuid.UUID              `json:"stock_id"`
	AdjustmentID      uuid.UUID              `json:"adjustment_id"`
	Type              enums.AdjustmentType   `json:"type"`
	Reason            enums.AdjustmentReason `json:"reason"`
	Quantity          int                    `json:"quantity"`
	QuantityInStock   int                    `json:"quantity_in_stock"`
	QuantityReserved  int                    `json:"quantity_reserved"`
	QuantityAvailable int                    `json:"quantity_available"`
}
