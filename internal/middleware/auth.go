package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	apiKeyHeader        = "X-API-Key"
	webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// APIKey guards the admin API with a key checked against a bcrypt hash. An
// empty hash disables the API entirely.
func APIKey(hash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if hash == "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, "admin api disabled")
		}
		key := c.Get(apiKeyHeader)
		if key == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing api key")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid api key")
		}
		return c.Next()
	}
}

// WebhookSecret rejects webhook calls that do not carry the secret token
// registered with setWebhook.
func WebhookSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(webhookSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid webhook secret")
		}
		return c.Next()
	}
}
