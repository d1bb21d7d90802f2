package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/partsreserve-backend/api/middleware"
	"github.com/angelmondragon/partsreserve-backend/api/responses"
	"github.com/angelmondragon/partsreserve-backend/api/validators"
	"github.com/angelmondragon/partsreserve-backend/internal/stock"
	"github.com/angelmondragon/partsreserve-backend/pkg/db/models"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

const (
	defaultComponentLimit = 100
	maxComponentLimit     = 1000
	maxNoteLength         = 500
)

type openStockRequest struct {
	WarehouseID     uuid.UUID `json:"warehouse_id" validate:"required"`
	TypeComponentID uuid.UUID `json:"type_component_id" validate:"required"`
}

type adjustStockRequest struct {
	Type     string   `json:"type" validate:"required"`
	Quantity int      `json:"quantity" validate:"gt=0"`
	Reason   string   `json:"reason" validate:"required"`
	Note     string   `json:"note" validate:"max=500"`
	Serials  []string `json:"serials" validate:"omitempty,unique,dive,required"`
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

// OpenStock creates the ledger row for a warehouse and component type, or
// returns the existing one.
func OpenStock(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body openStockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.Open(r.Context(), body.WarehouseID, body.TypeComponentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toStockDTO(row))
	}
}

func GetStock(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stockID, err := validators.ParseUUIDParam(r, "stockId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.Get(r.Context(), stockID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toStockDTO(row))
	}
}

// AdjustStock applies one IN or OUT ledger entry.
func AdjustStock(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stockID, err := validators.ParseUUIDParam(r, "stockId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body adjustStockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		adjType, err := enums.ParseAdjustmentType(body.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid adjustment type").
				WithDetails(map[string]any{"field": "type"}))
			return
		}
		reason, err := enums.ParseAdjustmentReason(body.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid adjustment reason").
				WithDetails(map[string]any{"field": "reason"}))
			return
		}

		row, err := svc.Adjust(r.Context(), stock.AdjustInput{
			StockID:     stockID,
			Type:        adjType,
			Quantity:    body.Quantity,
			Reason:      reason,
			Note:        validators.SanitizeString(body.Note, maxNoteLength),
			ActorUserID: middleware.ActorID(r.Context()),
			Serials:     body.Serials,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toStockDTO(row))
	}
}

func ListStockAdjustments(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stockID, err := validators.ParseUUIDParam(r, "stockId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.Adjustments(r.Context(), stockID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, AdjustmentPageDTO{
			Items:      toAdjustmentDTOs(page.Items),
			NextCursor: page.NextCursor,
		})
	}
}

// ReserveStock moves quantity from available to reserved without creating a
// reservation record.
func ReserveStock(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return quantityHandler(logg, svc.Reserve)
}

// ReleaseStock moves quantity from reserved back to available.
func ReleaseStock(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return quantityHandler(logg, svc.Release)
}

func quantityHandler(logg *logger.Logger, apply func(ctx context.Context, stockID uuid.UUID, quantity int) (*models.Stock, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stockID, err := validators.ParseUUIDParam(r, "stockId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body quantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := apply(r.Context(), stockID, body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toStockDTO(row))
	}
}

// AvailableComponents lists up to limit IN_STOCK units of one type held by
// the warehouse.
func AvailableComponents(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		warehouseID, err := validators.ParseUUIDParam(r, "warehouseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		typeComponentID, err := validators.ParseUUIDQuery(r, "typeComponentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultComponentLimit, 1, maxComponentLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]ComponentDTO, 0)
		for component, err := range svc.AvailableComponents(r.Context(), warehouseID, typeComponentID) {
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			out = append(out, toComponentDTO(component))
			if len(out) == limit {
				break
			}
		}
		responses.WriteSuccess(w, out)
	}
}

func InventorySummary(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serviceCenterID, err := validators.ParseUUIDParam(r, "serviceCenterId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.InventorySummary(r.Context(), serviceCenterID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
