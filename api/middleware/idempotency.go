package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/partsreserve-backend/api/responses"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// A claim outlives any single request but frees the key soon after a
	// crashed instance stops answering.
	pendingClaimTTL = 2 * time.Minute
)

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// A record with Status 0 is a claim held by a request still running.
type idempotencyRecord struct {
	Status      int    `json:"status"`
	Body        string `json:"body,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the first response to a write that carries an
// Idempotency-Key header. Requests without the header run normally. A key
// is claimed before the handler runs, so a concurrent duplicate is refused
// rather than executed twice. Server errors release the claim so the caller
// can retry.
type Idempotency struct {
	store IdempotencyStore
	ttl   time.Duration
	logg  *logger.Logger
}

func NewIdempotency(store IdempotencyStore, ttl time.Duration, logg *logger.Logger) *Idempotency {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &Idempotency{store: store, ttl: ttl, logg: logg}
}

// Standard keeps responses for the configured TTL.
func (i *Idempotency) Standard(next http.Handler) http.Handler {
	return i.wrap(next, i.ttl)
}

// Critical keeps responses for at least a week. Transfer transitions and
// pickups use it since a replayed ship or pickup must never apply twice.
func (i *Idempotency) Critical(next http.Handler) http.Handler {
	return i.wrap(next, max(i.ttl, criticalIdempotencyTTL))
}

func (i *Idempotency) wrap(next http.Handler, ttl time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		if i == nil || i.store == nil || clientKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		hash := hashBody(body)
		key := i.store.IdempotencyKey(scopeOf(r), clientKey)

		claim, _ := json.Marshal(idempotencyRecord{RequestHash: hash})
		claimed, err := i.store.SetNX(ctx, key, string(claim), pendingClaimTTL)
		if err != nil {
			responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
			return
		}
		if !claimed {
			i.replay(ctx, w, key, hash)
			return
		}

		capture := &responseCapture{ResponseWriter: w}
		next.ServeHTTP(capture, r)

		// Stored with a context that survives the client hanging up.
		storeCtx := context.WithoutCancel(ctx)
		status := capture.statusOrOK()
		if status >= http.StatusInternalServerError {
			if err := i.store.Del(storeCtx, key); err != nil {
				i.logError(ctx, "release idempotency claim", err)
			}
			return
		}
		payload, _ := json.Marshal(idempotencyRecord{
			Status:      status,
			Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
			ContentType: capture.Header().Get("Content-Type"),
			RequestHash: hash,
		})
		if err := i.store.Set(storeCtx, key, string(payload), ttl); err != nil {
			i.logError(ctx, "store idempotent response", err)
		}
	})
}

func (i *Idempotency) replay(ctx context.Context, w http.ResponseWriter, key, hash string) {
	stored, err := i.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// The claim expired between SetNX and Get.
		responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}

	switch {
	case record.RequestHash != hash:
		responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request body"))
	case record.Status == 0:
		responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set(ReplayedHeader, "true")
		w.WriteHeader(record.Status)
		if body, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
			_, _ = w.Write(body)
		}
	}
}

func (i *Idempotency) logError(ctx context.Context, msg string, err error) {
	if i.logg != nil {
		i.logg.Error(ctx, msg, err)
	}
}

// scopeOf keys records per caller and concrete path, so one key can be
// reused across users and resources.
func scopeOf(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
