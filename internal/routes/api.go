package routes

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/buhgalteriya/buhgalteriya/internal/expense"
	"github.com/buhgalteriya/buhgalteriya/internal/identity"
	"github.com/buhgalteriya/buhgalteriya/internal/ledger"
	"github.com/buhgalteriya/buhgalteriya/internal/receipts"
)

type expenseResponse struct {
	ID             string          `json:"id"`
	SubmitterKey   string          `json:"submitter_key"`
	Amount         decimal.Decimal `json:"amount"`
	Category       string          `json:"category"`
	ProofKind      string          `json:"proof_kind,omitempty"`
	ProofReceiptID string          `json:"proof_receipt_id,omitempty"`
	Note           string          `json:"note,omitempty"`
	Status         expense.Status  `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ApproverKey    string          `json:"approver_key,omitempty"`
	SettledAt      *time.Time      `json:"settled_at,omitempty"`
}

func toExpenseResponse(e expense.Expense) expenseResponse {
	return expenseResponse{
		ID:             e.ID,
		SubmitterKey:   e.SubmitterKey,
		Amount:         e.Amount,
		Category:       e.Category,
		ProofKind:      string(e.Proof.Kind),
		ProofReceiptID: e.Proof.ReceiptID,
		Note:           e.Note,
		Status:         e.Status,
		CreatedAt:      e.CreatedAt,
		ApproverKey:    e.ApproverKey,
		SettledAt:      e.SettledAt,
	}
}

// RegisterAPIRoutes wires the read-only admin endpoints.
func RegisterAPIRoutes(r fiber.Router, d Deps) {
	r.Get("/accounts/:id/balance", func(c *fiber.Ctx) error {
		key := c.Params("id")
		if !strings.HasPrefix(key, "tg:") {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return fiber.NewError(http.StatusBadRequest, "account id must be numeric or tg:<id>")
			}
			key = identity.AccountKey(id)
		}
		account, err := d.Accounts.Get(c.UserContext(), key)
		if errors.Is(err, identity.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "account not found")
		}
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		balance, err := d.Ledger.Balance(c.UserContext(), key)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"account_key": account.Key,
			"handle":      account.Handle,
			"role":        account.Role,
			"balance":     balance,
			"currency":    d.Cfg.Currency,
			"timestamp":   time.Now().UTC(),
		})
	})

	r.Get("/stats", func(c *fiber.Ctx) error {
		report, err := d.Reporter.Build(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(report)
	})

	r.Get("/reconcile", func(c *fiber.Ctx) error {
		accounts, err := d.Accounts.List(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		keys := make([]string, 0, len(accounts))
		for _, a := range accounts {
			keys = append(keys, a.Key)
		}
		mismatches, err := ledger.Reconcile(c.UserContext(), d.Ledger, keys)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		out := make([]fiber.Map, 0, len(mismatches))
		for _, m := range mismatches {
			out = append(out, fiber.Map{"account_key": m.AccountKey, "balance": m.Balance, "log_total": m.LogTotal})
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"accounts":   len(keys),
			"consistent": len(out) == 0,
			"mismatches": out,
		})
	})

	r.Get("/expenses", func(c *fiber.Ctx) error {
		var filter expense.Filter
		if raw := c.Query("status"); raw != "" {
			status, ok := expense.ParseStatus(raw)
			if !ok {
				return fiber.NewError(http.StatusBadRequest, "status must be pending, due or paid")
			}
			filter.Status = status
		}
		if raw := c.Query("submitter"); raw != "" {
			filter.SubmitterKey = raw
		}
		list, err := d.Expenses.List(c.UserContext(), filter)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		out := make([]expenseResponse, 0, len(list))
		for _, e := range list {
			out = append(out, toExpenseResponse(e))
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"expenses": out})
	})

	r.Get("/receipts/:id", func(c *fiber.Ctx) error {
		if d.Receipts == nil {
			return fiber.NewError(http.StatusNotFound, "receipt archive disabled")
		}
		receipt, err := d.Receipts.Get(c.UserContext(), c.Params("id"))
		if errors.Is(err, receipts.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "receipt not found")
		}
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		c.Set(fiber.HeaderContentType, receipt.ContentType)
		return c.Status(http.StatusOK).Send(receipt.Data)
	})
}
