package routes

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/buhgalteriya/buhgalteriya/internal/middleware"
	"github.com/buhgalteriya/buhgalteriya/internal/transport/telegram"
)

// WebhookPath is where Telegram posts updates in webhook mode.
const WebhookPath = "/webhook/telegram"

// RegisterWebhookRoutes accepts pushed updates. The update is handed to
// d.Updates and acknowledged right away; processing happens there.
func RegisterWebhookRoutes(app *fiber.App, d Deps) {
	app.Post(WebhookPath,
		middleware.WebhookSecret(d.Cfg.WebhookSecret),
		middleware.Dedupe(d.Cache, d.Cfg.UpdateDedupeTTL, updateKey, d.Logger),
		func(c *fiber.Ctx) error {
			var u telegram.Update
			if err := json.Unmarshal(c.Body(), &u); err != nil {
				return fiber.NewError(http.StatusBadRequest, "invalid update payload")
			}
			telegram.Dispatch(c.UserContext(), u, d.Updates, d.Answerer, d.Logger)
			return c.Status(http.StatusOK).JSON(fiber.Map{"ok": true})
		},
	)
}

func updateKey(c *fiber.Ctx) (string, bool) {
	var head struct {
		UpdateID int64 `json:"update_id"`
	}
	if err := json.Unmarshal(c.Body(), &head); err != nil || head.UpdateID == 0 {
		return "", false
	}
	return "update:" + strconv.FormatInt(head.UpdateID, 10), true
}
