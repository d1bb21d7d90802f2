package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/partsreserve-backend/pkg/enums"
)

// AccessTokenPayload is what the identity service puts in a token.
// WarehouseID scopes staff to their own warehouse; admins carry none.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	Role        enums.ActorRole
	WarehouseID *uuid.UUID
	JTI         string
}

type AccessTokenClaims struct {
	UserID      uuid.UUID       `json:"user_id"`
	Role        enums.ActorRole `json:"role"`
	WarehouseID *uuid.UUID      `json:"warehouse_id,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the parser's registered-claim checks, and before
// signing in MintAccessToken.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("user_id is required")
	}
	if c.Subject != c.UserID.String() {
		return errors.New("sub does not match user_id")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid actor role %q", c.Role)
	}
	return nil
}
