package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/partsreserve-backend/api/middleware"
	"github.com/angelmondragon/partsreserve-backend/api/responses"
	"github.com/angelmondragon/partsreserve-backend/api/validators"
	"github.com/angelmondragon/partsreserve-backend/internal/pickups"
	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

type pickupRequest struct {
	ReservationIDs []uuid.UUID `json:"reservation_ids" validate:"required,min=1"`
	TechnicianID   *uuid.UUID  `json:"technician_id"`
}

// Pickup selects the bound reservations among the candidates, checks they
// belong to one technician and marks them PICKED_UP together. Technicians
// always pick up as themselves; staff may name the technician.
func Pickup(svc pickups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body pickupRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		techID := actor
		if body.TechnicianID != nil && *body.TechnicianID != actor {
			if middleware.RoleFromContext(r.Context()) == enums.ActorRoleTechnician {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "technicians pick up only for themselves"))
				return
			}
			techID = *body.TechnicianID
		}

		batch, err := svc.SelectForPickup(r.Context(), body.ReservationIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.ValidateHomogeneity(r.Context(), batch); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.CommitPickup(r.Context(), batch, techID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, PickupDTO{Batch: batch, Reservations: toReservationDTOs(rows)})
	}
}
