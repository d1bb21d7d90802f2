package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
)

// Actor is the authenticated caller as established by Auth.
type Actor struct {
	UserID      uuid.UUID
	Role        enums.ActorRole
	WarehouseID *uuid.UUID
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// ActorID returns the authenticated user, or nil outside Auth.
func ActorID(ctx context.Context) *uuid.UUID {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == uuid.Nil {
		return nil
	}
	id := actor.UserID
	return &id
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	actor, _ := ActorFromContext(ctx)
	return actor.Role
}

// UserIDFromContext is ActorID as a string, "" when unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	if id := ActorID(ctx); id != nil {
		return id.String()
	}
	return ""
}
