package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/partsreserve-backend/api/responses"
	pkgAuth "github.com/angelmondragon/partsreserve-backend/pkg/auth"
	"github.com/angelmondragon/partsreserve-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

// Auth admits requests carrying a valid "Authorization: Bearer" token and
// stores the caller as an Actor on the request context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "bearer token required"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithActor(r.Context(), Actor{
				UserID:      claims.UserID,
				Role:        claims.Role,
				WarehouseID: claims.WarehouseID,
			})
			if logg != nil {
				fields := map[string]any{
					"user_id":    claims.UserID.String(),
					"actor_role": string(claims.Role),
				}
				if claims.WarehouseID != nil {
					fields["warehouse_id"] = claims.WarehouseID.String()
				}
				ctx = logg.WithFields(ctx, fields)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
