package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader    = "Idempotency-Key"
	idempotentReplayHeader  = "Idempotent-Replayed"
	idempotencyPrefix       = "idem:v2:"
	idempotencyPending      = "pending"
	idempotencyCacheTimeout = 2 * time.Second
)

// replay is what gets cached for a key: the request fingerprint and, once
// the handler finished, its response.
type replay struct {
	Fingerprint string            `json:"fp"`
	Status      int               `json:"status,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

func (r replay) pending() bool { return r.Status == 0 }

type replayCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (rc replayCache) load(ctx context.Context, key string) (replay, bool, error) {
	raw, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return replay{}, false, nil
	}
	if err != nil {
		return replay{}, false, err
	}
	var r replay
	if err := json.Unmarshal(raw, &r); err != nil {
		return replay{}, false, err
	}
	return r, true, nil
}

// reserve claims key for a request with fingerprint fp. It reports false
// when another request holds the key already.
func (rc replayCache) reserve(ctx context.Context, key, fp string) (bool, error) {
	raw, _ := json.Marshal(replay{Fingerprint: fp})
	return rc.client.SetNX(ctx, key, raw, rc.ttl).Result()
}

func (rc replayCache) save(ctx context.Context, key string, r replay) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return rc.client.Set(ctx, key, raw, rc.ttl).Err()
}

func (rc replayCache) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyCacheTimeout)
	defer cancel()
	rc.client.Del(ctx, key)
}

// Idempotency replays the stored response of an unsafe request that repeats
// an Idempotency-Key header. Requests without the header pass through, as
// does everything when cache is nil. Keys are scoped to the session user and
// route. Reusing a key with a different body is rejected with 422. Server
// errors are not cached so the client can retry them. Redis failures are
// logged and the request proceeds unprotected.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	rc := replayCache{client: cache, ttl: ttl}
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if key == "" || cache == nil {
			return c.Next()
		}

		uid, _ := c.Locals(LocalUserID).(string)
		cacheKey := idempotencyPrefix + uid + ":" + c.Method() + ":" + c.Path() + ":" + key
		sum := sha256.Sum256(c.Body())
		fp := hex.EncodeToString(sum[:])
		attrs := []any{slog.String("idempotency_key", key), slog.String("request_id", RequestIDFrom(c))}

		ctx, cancel := context.WithTimeout(c.UserContext(), idempotencyCacheTimeout)
		defer cancel()

		prev, found, err := rc.load(ctx, cacheKey)
		if err != nil {
			logger.Warn("idempotency lookup failed", append(attrs, slog.Any("error", err))...)
			return c.Next()
		}
		if !found {
			ok, err := rc.reserve(ctx, cacheKey, fp)
			if err != nil {
				logger.Warn("idempotency reservation failed", append(attrs, slog.Any("error", err))...)
				return c.Next()
			}
			if ok {
				return runAndRemember(c, rc, cacheKey, fp, logger, attrs)
			}
			// Lost the race to a concurrent request; report what it holds.
			if prev, found, err = rc.load(ctx, cacheKey); err != nil || !found {
				return fiber.NewError(http.StatusConflict, "duplicate request currently processing")
			}
		}

		if prev.Fingerprint != fp {
			return fiber.NewError(http.StatusUnprocessableEntity, "Idempotency-Key was already used with a different request")
		}
		if prev.pending() {
			return fiber.NewError(http.StatusConflict, "duplicate request currently processing")
		}
		for name, value := range prev.Headers {
			c.Set(name, value)
		}
		c.Set(idempotentReplayHeader, "true")
		return c.Status(prev.Status).Send(prev.Body)
	}
}

func runAndRemember(c *fiber.Ctx, rc replayCache, cacheKey, fp string, logger *slog.Logger, attrs []any) error {
	if err := c.Next(); err != nil {
		rc.release(cacheKey)
		return err
	}
	status := c.Response().StatusCode()
	if status >= http.StatusInternalServerError {
		rc.release(cacheKey)
		return nil
	}

	r := replay{
		Fingerprint: fp,
		Status:      status,
		Body:        append([]byte(nil), c.Response().Body()...),
		Headers:     map[string]string{},
	}
	if ct := c.Response().Header.ContentType(); len(ct) > 0 {
		r.Headers[fiber.HeaderContentType] = string(ct)
	}
	if loc := c.Response().Header.Peek(fiber.HeaderLocation); len(loc) > 0 {
		r.Headers[fiber.HeaderLocation] = string(loc)
	}

	ctx, cancel := context.WithTimeout(context.Background(), idempotencyCacheTimeout)
	defer cancel()
	if err := rc.save(ctx, cacheKey, r); err != nil {
		logger.Warn("idempotent response not stored", append(attrs, slog.Any("error", err))...)
		rc.release(cacheKey)
	}
	return nil
}
