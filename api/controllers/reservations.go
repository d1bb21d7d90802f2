package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/partsreserve-backend/api/middleware"
	"github.com/angelmondragon/partsreserve-backend/api/responses"
	"github.com/angelmondragon/partsreserve-backend/api/validators"
	"github.com/angelmondragon/partsreserve-backend/internal/reservations"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

type createReservationRequest struct {
	CaseLineID      *uuid.UUID `json:"case_line_id"`
	TypeComponentID uuid.UUID  `json:"type_component_id" validate:"required"`
	WarehouseID     uuid.UUID  `json:"warehouse_id" validate:"required"`
	Quantity        int        `json:"quantity" validate:"gt=0"`
}

type returnComponentRequest struct {
	OldComponentSerial string `json:"old_component_serial" validate:"required,notblank,max=128"`
}

func CreateReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createReservationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.Create(r.Context(), reservations.CreateInput{
			CaseLineID:      body.CaseLineID,
			TypeComponentID: body.TypeComponentID,
			WarehouseID:     body.WarehouseID,
			Quantity:        body.Quantity,
			ActorUserID:     middleware.ActorID(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toReservationDTO(row))
	}
}

func GetReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toReservationDTO(row))
	}
}

// CancelReservation cancels a RESERVED reservation and releases its units.
func CancelReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.Cancel(r.Context(), id, middleware.ActorID(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toReservationDTO(row))
	}
}

func InstallReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.Install(r.Context(), id, middleware.ActorID(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toReservationDTO(row))
	}
}

// ReturnComponent records the serial of the part removed during install.
func ReturnComponent(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body returnComponentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.ReturnComponent(r.Context(), reservations.ReturnInput{
			ReservationID:      id,
			OldComponentSerial: validators.SanitizeString(body.OldComponentSerial, 128),
			ActorUserID:        middleware.ActorID(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toReservationDTO(row))
	}
}
