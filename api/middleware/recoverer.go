package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/angelmondragon/partsreserve-backend/api/responses"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

// Recoverer turns a handler panic into an INTERNAL error envelope, unless
// the handler already started its response. http.ErrAbortHandler is
// re-raised so net/http drops the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				err, ok := v.(error)
				if ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}
				if !ok {
					err = fmt.Errorf("%v", v)
				}

				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{
						"method":           r.Method,
						"path":             r.URL.Path,
						"panic_stack":      string(debug.Stack()),
						"response_started": rec.status != 0,
					})
					logg.Error(ctx, "handler panicked", err)
				}
				if rec.status != 0 {
					return
				}
				responses.WriteError(ctx, nil, rec, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "handler panicked"))
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
