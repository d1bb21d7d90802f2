package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/partsreserve-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
)

func requireActor(r *http.Request) (uuid.UUID, error) {
	actor := middleware.ActorID(r.Context())
	if actor == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return *actor, nil
}
