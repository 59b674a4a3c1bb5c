package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Topics carrying domain events.
const (
	TopicTransactionRecorded  = "ledger.transaction_recorded"
	TopicExpenseStatusChanged = "expense.status_changed"
)

// Publisher emits domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

// TransactionRecorded is emitted for every ledger posting.
type TransactionRecorded struct {
	TransactionID string          `json:"transaction_id"`
	AccountKey    string          `json:"account_key"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          string          `json:"kind"`
	ExpenseID     string          `json:"expense_id,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// ExpenseStatusChanged is emitted when an expense is created or changes status.
type ExpenseStatusChanged struct {
	ExpenseID    string          `json:"expense_id"`
	SubmitterKey string          `json:"submitter_key"`
	ActorKey     string          `json:"actor_key"`
	Amount       decimal.Decimal `json:"amount"`
	Category     string          `json:"category"`
	From         string          `json:"from,omitempty"`
	To           string          `json:"to"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// Noop discards every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, string, string, any) error { return nil }
