package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = 30 * time.Second
)

// CachedResponse is what Idempotency stores in redis for a completed POST.
type CachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`
}

// IdempotencyCacheKey scopes a client key to the route and the actor, so two
// employees reusing the same key never see each other's responses.
func IdempotencyCacheKey(path string, actor leave.EmployeeID, key string) string {
	return fmt.Sprintf("idemp:%s:%s:%s", path, actor, key)
}

// Idempotency replays the stored response for a POST that repeats an
// Idempotency-Key. A short SetNX lock rejects a duplicate that arrives while
// the first is still running with 409. Only 2xx responses are stored.
//
// Redis errors do not fail the request; it runs without replay protection.
func Idempotency(rdb *redis.Client, logger ...*zap.Logger) func(http.Handler) http.Handler {
	log := zap.L().Named("api.idempotency")
	if len(logger) > 0 && logger[0] != nil {
		log = logger[0]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			actor, _ := ActorFrom(ctx)
			cacheKey := IdempotencyCacheKey(r.URL.Path, actor.ID, key)
			lockKey := cacheKey + ":lock"

			val, err := rdb.Get(ctx, cacheKey).Result()
			switch {
			case err == nil:
				var cached CachedResponse
				if err := json.Unmarshal([]byte(val), &cached); err == nil {
					replay(w, cached)
					return
				}
				log.Warn("discarding unreadable idempotency record", zap.String("key", cacheKey))
			case !errors.Is(err, redis.Nil):
				log.Warn("idempotency lookup failed", zap.String("key", cacheKey), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			acquired, err := rdb.SetNX(ctx, lockKey, "locked", idempotencyLockTTL).Result()
			if err != nil {
				log.Warn("idempotency lock failed", zap.String("key", lockKey), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				writeJSON(w, http.StatusConflict, ErrorResponse{
					Error: "a request with this idempotency key is still being processed",
					Code:  "processing",
				})
				return
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The client may be gone by now; the record and unlock still have to land.
			bg := context.WithoutCancel(ctx)
			if rec.status >= 200 && rec.status < 300 {
				data, err := json.Marshal(CachedResponse{
					Status:      rec.status,
					ContentType: rec.Header().Get("Content-Type"),
					Body:        rec.body.String(),
				})
				if err == nil {
					err = rdb.Set(bg, cacheKey, string(data), idempotencyTTL).Err()
				}
				if err != nil {
					log.Warn("failed to store idempotent response", zap.String("key", cacheKey), zap.Error(err))
				}
			}
			if err := rdb.Del(bg, lockKey).Err(); err != nil {
				log.Warn("failed to release idempotency lock", zap.String("key", lockKey), zap.Error(err))
			}
		})
	}
}

func replay(w http.ResponseWriter, cached CachedResponse) {
	if cached.ContentType != "" {
		w.Header().Set("Content-Type", cached.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(cached.Status)
	w.Write([]byte(cached.Body))
}

// responseRecorder passes writes through while keeping a copy.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
