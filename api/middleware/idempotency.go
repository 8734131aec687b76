package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/relivv-escrow/api/responses"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
	pkgredis "github.com/angelmondragon/relivv-escrow/pkg/redis"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// Replay windows. Anything that reserves a product or moves money keeps its
// replay for a week.
const (
	IdempotencyStandard = 24 * time.Hour
	IdempotencyCritical = 7 * 24 * time.Hour
)

// inFlightTTL bounds how long a crashed request can block its key.
const inFlightTTL = time.Minute

// ReplayStore persists idempotent responses.
type ReplayStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// replay is what sits under an idempotency key. A zero Status marks a request
// that is still running.
type replay struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency requires an Idempotency-Key header and replays the first
// completed response for the same caller, route and key. A different body
// under a used key, or a retry while the first attempt runs, is rejected.
// 5xx and 429 responses are not kept so the client can retry them.
func Idempotency(store ReplayStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyKeyHeader+" header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintBody(body)
			key := store.IdempotencyKey(replayScope(r), clientKey)

			marker, _ := json.Marshal(replay{Fingerprint: fingerprint})
			claimed, err := store.SetNX(ctx, key, string(marker), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				serveExisting(ctx, store, key, fingerprint, w, logg)
				return
			}

			capture := &capturingWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "idempotency.release_failed", err)
				}
				return
			}
			done, _ := json.Marshal(replay{
				Fingerprint: fingerprint,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err := store.Set(ctx, key, string(done), ttl); err != nil && logg != nil {
				logg.Error(ctx, "idempotency.store_failed", err)
			}
		})
	}
}

func serveExisting(ctx context.Context, store ReplayStore, key, fingerprint string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, pkgredis.Nil) || (err == nil && raw == "") {
		// Released between SetNX and Get; the first attempt failed retryably.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "previous attempt failed, retry the request"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency key"))
		return
	}
	var prior replay
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case prior.Fingerprint != fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request body"))
	case prior.Status == 0:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still in progress"))
	default:
		if prior.ContentType != "" {
			w.Header().Set("Content-Type", prior.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(prior.Status)
		_, _ = w.Write(prior.Body)
	}
}

// replayScope keys the record by caller, method and concrete path.
func replayScope(r *http.Request) string {
	return UserIDFromContext(r.Context()) + "|" + r.Method + "|" + r.URL.Path
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type capturingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *capturingWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *capturingWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *capturingWriter) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
