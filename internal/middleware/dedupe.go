package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const dedupePrefix = "dedupe:v1:"

// KeyFunc extracts the delivery key of a request. ok is false when the request
// carries no key, in which case it is passed through.
type KeyFunc func(c *fiber.Ctx) (key string, ok bool)

// Dedupe drops redelivered requests. The first request with a given key
// reserves it in Redis with SetNX; later requests with the same key within ttl
// get 200 with {"ok": true, "duplicate": true} and never reach the handler.
// When the handler fails the reservation is released so the sender's retry
// is processed. Redis failures fail open.
func Dedupe(cache *redis.Client, ttl time.Duration, keyFn KeyFunc, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		key, ok := keyFn(c)
		if !ok {
			return c.Next()
		}
		cacheKey := dedupePrefix + key

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		reserved, err := cache.SetNX(ctx, cacheKey, time.Now().UTC().Format(time.RFC3339), ttl).Result()
		if err != nil {
			logger.Warn("dedupe reservation failed, processing anyway", slog.String("key", key), slog.Any("error", err))
			return c.Next()
		}
		if !reserved {
			logger.Info("duplicate delivery dropped", slog.String("key", key))
			return c.JSON(fiber.Map{"ok": true, "duplicate": true})
		}

		if err := c.Next(); err != nil {
			cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cleanupCancel()
			cache.Del(cleanupCtx, cacheKey) // best effort
			return err
		}
		return nil
	}
}
