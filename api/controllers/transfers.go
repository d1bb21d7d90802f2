package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partsreserve-backend/api/middleware"
	"github.com/angelmondragon/partsreserve-backend/api/responses"
	"github.com/angelmondragon/partsreserve-backend/api/validators"
	"github.com/angelmondragon/partsreserve-backend/internal/shipments"
	"github.com/angelmondragon/partsreserve-backend/internal/transfers"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

const maxReasonLength = 500

type transferItemRequest struct {
	TypeComponentID   uuid.UUID  `json:"type_component_id" validate:"required"`
	Quantity          int        `json:"quantity" validate:"gt=0"`
	SourceWarehouseID *uuid.UUID `json:"source_warehouse_id"`
	CaseLineID        *uuid.UUID `json:"case_line_id"`
}

type createTransferRequest struct {
	RequestingWarehouseID uuid.UUID             `json:"requesting_warehouse_id" validate:"required"`
	Items                 []transferItemRequest `json:"items" validate:"required,min=1,dive"`
}

type approveTransferRequest struct {
	Quantities      map[uuid.UUID]int `json:"quantities"`
	ExpectedVersion *int              `json:"expected_version"`
}

type decisionRequest struct {
	Reason          string `json:"reason" validate:"required,notblank,max=500"`
	ExpectedVersion *int   `json:"expected_version"`
}

type selectionRequest struct {
	Selection shipments.Selection `json:"selection" validate:"required"`
}

type shipTransferRequest struct {
	Selection             shipments.Selection `json:"selection" validate:"required"`
	EstimatedDeliveryDate time.Time           `json:"estimated_delivery_date"`
}

// CreateTransferRequest reserves every item at its source warehouse and
// opens the request in PENDING_APPROVAL.
func CreateTransferRequest(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createTransferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]transfers.ItemInput, 0, len(body.Items))
		for _, item := range body.Items {
			items = append(items, transfers.ItemInput{
				TypeComponentID:   item.TypeComponentID,
				Quantity:          item.Quantity,
				SourceWarehouseID: item.SourceWarehouseID,
				CaseLineID:        item.CaseLineID,
			})
		}
		request, err := svc.Create(r.Context(), transfers.CreateInput{
			RequestingWarehouseID: body.RequestingWarehouseID,
			RequestedByUserID:     actor,
			Items:                 items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toTransferRequestDTO(request))
	}
}

func GetTransferRequest(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransferRequestDTO(request))
	}
}

func ApproveTransferRequest(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, actor, ok := requestAndActor(w, r, logg)
		if !ok {
			return
		}
		var body approveTransferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Approve(r.Context(), transfers.ApproveInput{
			RequestID:       id,
			Quantities:      body.Quantities,
			ActorUserID:     actor,
			ExpectedVersion: body.ExpectedVersion,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransferRequestDTO(request))
	}
}

func RejectTransferRequest(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return decisionHandler(logg, svc.Reject)
}

func CancelTransferRequest(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return decisionHandler(logg, svc.Cancel)
}

func decisionHandler(logg *logger.Logger, decide func(ctx context.Context, input transfers.DecisionInput) (*models.StockTransferRequest, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, actor, ok := requestAndActor(w, r, logg)
		if !ok {
			return
		}
		var body decisionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := decide(r.Context(), transfers.DecisionInput{
			RequestID:       id,
			Reason:          validators.SanitizeString(body.Reason, maxReasonLength),
			ActorUserID:     actor,
			ExpectedVersion: body.ExpectedVersion,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransferRequestDTO(request))
	}
}

// ValidateTransferSelection checks a component selection without binding it.
func ValidateTransferSelection(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body selectionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.ValidateSelection(r.Context(), id, body.Selection); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"valid": true})
	}
}

// ShipTransferRequest binds the selected components. A partial shipment
// answers PARTIAL_SHIPMENT with the reservations still to resolve.
func ShipTransferRequest(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body shipTransferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.EstimatedDeliveryDate.IsZero() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "estimated_delivery_date is required").
				WithDetails(map[string]any{"field": "estimated_delivery_date"}))
			return
		}
		outcome, err := svc.Ship(r.Context(), transfers.ShipInput{
			RequestID:             id,
			Selection:             body.Selection,
			EstimatedDeliveryDate: body.EstimatedDeliveryDate,
			ActorUserID:           middleware.ActorID(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, withShipOutcome(err, outcome))
			return
		}
		responses.WriteSuccess(w, ShipOutcomeDTO{
			Request: toTransferRequestDTO(outcome.Request),
			Result:  outcome.Result,
		})
	}
}

// withShipOutcome adds the per-reservation result of a partial shipment to
// the error details so callers can fix only the failed selections.
func withShipOutcome(err error, outcome *transfers.ShipOutcome) error {
	typed := pkgerrors.As(err)
	if outcome == nil || typed == nil || typed.Code() != pkgerrors.CodePartialShipment {
		return err
	}
	details := map[string]any{}
	if existing, ok := typed.Details().(map[string]any); ok {
		for key, value := range existing {
			details[key] = value
		}
	}
	details["result"] = outcome.Result
	if outcome.Request != nil {
		details["request"] = toTransferRequestDTO(outcome.Request)
	}
	typed.WithDetails(details)
	return err
}

// ReceiveTransferRequest is idempotent; receiving twice returns the
// RECEIVED request unchanged.
func ReceiveTransferRequest(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Receive(r.Context(), id, middleware.ActorID(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransferRequestDTO(request))
	}
}

func ListTransferShipments(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.Shipments(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toShipmentDTOs(rows))
	}
}

func requestAndActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, uuid.UUID, bool) {
	id, err := validators.ParseUUIDParam(r, "requestId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	actor, err := requireActor(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return id, actor, true
}
