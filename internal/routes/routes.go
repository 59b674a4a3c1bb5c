package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/buhgalteriya/buhgalteriya/internal/config"
	"github.com/buhgalteriya/buhgalteriya/internal/expense"
	"github.com/buhgalteriya/buhgalteriya/internal/identity"
	"github.com/buhgalteriya/buhgalteriya/internal/ledger"
	"github.com/buhgalteriya/buhgalteriya/internal/middleware"
	"github.com/buhgalteriya/buhgalteriya/internal/receipts"
	"github.com/buhgalteriya/buhgalteriya/internal/stats"
	"github.com/buhgalteriya/buhgalteriya/internal/transport"
	"github.com/buhgalteriya/buhgalteriya/internal/transport/telegram"
)

// Accounts looks up known accounts.
type Accounts interface {
	Get(ctx context.Context, key string) (identity.Account, error)
	List(ctx context.Context) ([]identity.Account, error)
}

// Expenses lists expense records.
type Expenses interface {
	List(ctx context.Context, filter expense.Filter) ([]expense.Expense, error)
}

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	// Updates receives decoded webhook updates. Nil disables the webhook.
	Updates  transport.Handler
	Answerer telegram.CallbackAnswerer

	Accounts Accounts
	Ledger   ledger.Ledger
	Expenses Expenses
	Receipts receipts.Store
	Reporter *stats.Reporter
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	if d.Updates != nil {
		RegisterWebhookRoutes(app, d)
	}

	api := app.Group("/api/v1",
		middleware.RateLimit(d.Cache, "api", d.Cfg.APIRateLimit),
		middleware.APIKey(d.Cfg.APIKeyHash),
	)
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	RegisterAPIRoutes(api, d)

	return nil
}
