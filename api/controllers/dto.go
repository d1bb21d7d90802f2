package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partsreserve-backend/internal/pickups"
	"github.com/angelmondragon/partsreserve-backend/internal/shipments"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
)

type StockDTO struct {
	ID                uuid.UUID `json:"id"`
	WarehouseID       uuid.UUID `json:"warehouse_id"`
	TypeComponentID   uuid.UUID `json:"type_component_id"`
	QuantityInStock   int       `json:"quantity_in_stock"`
	QuantityReserved  int       `json:"quantity_reserved"`
	QuantityAvailable int       `json:"quantity_available"`
	Version           int       `json:"version"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toStockDTO(s *models.Stock) StockDTO {
	return StockDTO{
		ID:                s.ID,
		WarehouseID:       s.WarehouseID,
		TypeComponentID:   s.TypeComponentID,
		QuantityInStock:   s.QuantityInStock,
		QuantityReserved:  s.QuantityReserved,
		QuantityAvailable: s.QuantityAvailable,
		Version:           s.Version,
		UpdatedAt:         s.UpdatedAt,
	}
}

type AdjustmentDTO struct {
	ID          uuid.UUID              `json:"id"`
	Type        enums.AdjustmentType   `json:"type"`
	Quantity    int                    `json:"quantity"`
	Reason      enums.AdjustmentReason `json:"reason"`
	Note        string                 `json:"note,omitempty"`
	ActorUserID *uuid.UUID             `json:"actor_user_id,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

func toAdjustmentDTOs(rows []models.StockAdjustment) []AdjustmentDTO {
	out := make([]AdjustmentDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, AdjustmentDTO{
			ID:          row.ID,
			Type:        row.Type,
			Quantity:    row.Quantity,
			Reason:      row.Reason,
			Note:        row.Note,
			ActorUserID: row.ActorUserID,
			CreatedAt:   row.CreatedAt,
		})
	}
	return out
}

type AdjustmentPageDTO struct {
	Items      []AdjustmentDTO `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type ComponentDTO struct {
	ID              uuid.UUID             `json:"id"`
	SerialNumber    string                `json:"serial_number"`
	TypeComponentID uuid.UUID             `json:"type_component_id"`
	WarehouseID     *uuid.UUID            `json:"warehouse_id,omitempty"`
	Status          enums.ComponentStatus `json:"status"`
}

func toComponentDTO(c models.Component) ComponentDTO {
	return ComponentDTO{
		ID:              c.ID,
		SerialNumber:    c.SerialNumber,
		TypeComponentID: c.TypeComponentID,
		WarehouseID:     c.WarehouseID,
		Status:          c.Status,
	}
}

type ReservationDTO struct {
	ID                 uuid.UUID               `json:"id"`
	CaseLineID         *uuid.UUID              `json:"case_line_id,omitempty"`
	TypeComponentID    uuid.UUID               `json:"type_component_id"`
	WarehouseID        uuid.UUID               `json:"warehouse_id"`
	StockID            uuid.UUID               `json:"stock_id"`
	QuantityRequested  int                     `json:"quantity_requested"`
	Status             enums.ReservationStatus `json:"status"`
	BoundComponentIDs  []uuid.UUID             `json:"bound_component_ids"`
	PickedUpByTechID   *uuid.UUID              `json:"picked_up_by_tech_id,omitempty"`
	OldComponentSerial *string                 `json:"old_component_serial,omitempty"`
	ReservedAt         time.Time               `json:"reserved_at"`
	BoundAt            *time.Time              `json:"bound_at,omitempty"`
	PickedUpAt         *time.Time              `json:"picked_up_at,omitempty"`
	InstalledAt        *time.Time              `json:"installed_at,omitempty"`
	ReturnedAt         *time.Time              `json:"returned_at,omitempty"`
	CancelledAt        *time.Time              `json:"cancelled_at,omitempty"`
	DeliveredAt        *time.Time              `json:"delivered_at,omitempty"`
}

func toReservationDTO(r *models.Reservation) ReservationDTO {
	bound := make([]uuid.UUID, 0, len(r.BoundComponentIDs))
	bound = append(bound, r.BoundComponentIDs...)
	return ReservationDTO{
		ID:                 r.ID,
		CaseLineID:         r.CaseLineID,
		TypeComponentID:    r.TypeComponentID,
		WarehouseID:        r.WarehouseID,
		StockID:            r.StockID,
		QuantityRequested:  r.QuantityRequested,
		Status:             r.Status,
		BoundComponentIDs:  bound,
		PickedUpByTechID:   r.PickedUpByTechID,
		OldComponentSerial: r.OldComponentSerial,
		ReservedAt:         r.ReservedAt,
		BoundAt:            r.BoundAt,
		PickedUpAt:         r.PickedUpAt,
		InstalledAt:        r.InstalledAt,
		ReturnedAt:         r.ReturnedAt,
		CancelledAt:        r.CancelledAt,
		DeliveredAt:        r.DeliveredAt,
	}
}

func toReservationDTOs(rows []models.Reservation) []ReservationDTO {
	out := make([]ReservationDTO, 0, len(rows))
	for i := range rows {
		out = append(out, toReservationDTO(&rows[i]))
	}
	return out
}

type RequestItemDTO struct {
	ID                uuid.UUID  `json:"id"`
	Position          int        `json:"position"`
	TypeComponentID   uuid.UUID  `json:"type_component_id"`
	SourceWarehouseID uuid.UUID  `json:"source_warehouse_id"`
	QuantityRequested int        `json:"quantity_requested"`
	QuantityApproved  *int       `json:"quantity_approved,omitempty"`
	ReservationID     *uuid.UUID `json:"reservation_id,omitempty"`
	CaseLineID        *uuid.UUID `json:"case_line_id,omitempty"`
}

type TransferRequestDTO struct {
	ID                    uuid.UUID                   `json:"id"`
	RequestingWarehouseID uuid.UUID                   `json:"requesting_warehouse_id"`
	RequestedByUserID     uuid.UUID                   `json:"requested_by_user_id"`
	DecidedByUserID       *uuid.UUID                  `json:"decided_by_user_id,omitempty"`
	Status                enums.TransferRequestStatus `json:"status"`
	Reason                *string                     `json:"reason,omitempty"`
	Version               int                         `json:"version"`
	CreatedAt             time.Time                   `json:"created_at"`
	ApprovedAt            *time.Time                  `json:"approved_at,omitempty"`
	RejectedAt            *time.Time                  `json:"rejected_at,omitempty"`
	CancelledAt           *time.Time                  `json:"cancelled_at,omitempty"`
	ShippedAt             *time.Time                  `json:"shipped_at,omitempty"`
	ReceivedAt            *time.Time                  `json:"received_at,omitempty"`
	Items                 []RequestItemDTO            `json:"items"`
}

func toTransferRequestDTO(r *models.StockTransferRequest) TransferRequestDTO {
	items := make([]RequestItemDTO, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, RequestItemDTO{
			ID:                item.ID,
			Position:          item.Position,
			TypeComponentID:   item.TypeComponentID,
			SourceWarehouseID: item.SourceWarehouseID,
			QuantityRequested: item.QuantityRequested,
			QuantityApproved:  item.QuantityApproved,
			ReservationID:     item.ReservationID,
			CaseLineID:        item.CaseLineID,
		})
	}
	return TransferRequestDTO{
		ID:                    r.ID,
		RequestingWarehouseID: r.RequestingWarehouseID,
		RequestedByUserID:     r.RequestedByUserID,
		DecidedByUserID:       r.DecidedByUserID,
		Status:                r.Status,
		Reason:                r.Reason,
		Version:               r.Version,
		CreatedAt:             r.CreatedAt,
		ApprovedAt:            r.ApprovedAt,
		RejectedAt:            r.RejectedAt,
		CancelledAt:           r.CancelledAt,
		ShippedAt:             r.ShippedAt,
		ReceivedAt:            r.ReceivedAt,
		Items:                 items,
	}
}

type ShipmentDTO struct {
	ID                    uuid.UUID `json:"id"`
	ReservationID         uuid.UUID `json:"reservation_id"`
	EstimatedDeliveryDate time.Time `json:"estimated_delivery_date"`
	CreatedAt             time.Time `json:"created_at"`
}

func toShipmentDTOs(rows []models.Shipment) []ShipmentDTO {
	out := make([]ShipmentDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ShipmentDTO{
			ID:                    row.ID,
			ReservationID:         row.ReservationID,
			EstimatedDeliveryDate: row.EstimatedDeliveryDate,
			CreatedAt:             row.CreatedAt,
		})
	}
	return out
}

type ShipOutcomeDTO struct {
	Request TransferRequestDTO `json:"request"`
	Result  *shipments.Result  `json:"result"`
}

type PickupDTO struct {
	Batch        *pickups.Batch   `json:"batch"`
	Reservations []ReservationDTO `json:"reservations"`
}
