package conversation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the dialog being collected.
type Kind string

const (
	KindExpense  Kind = "expense"
	KindIncome   Kind = "income"
	KindTransfer Kind = "transfer"
)

// Step is the cursor of a dialog.
type Step string

const (
	StepIdle              Step = "idle"
	StepAwaitingCategory  Step = "awaiting_category"
	StepAwaitingRecipient Step = "awaiting_recipient"
	StepAwaitingAmount    Step = "awaiting_amount"
	StepAwaitingProof     Step = "awaiting_proof"
)

// State is the transient, per-identity progress of one dialog. Losing it only
// means the user has to start the dialog again.
type State struct {
	Kind            Kind            `json:"kind"`
	Step            Step            `json:"step"`
	Category        string          `json:"category,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	RecipientKey    string          `json:"recipient_key,omitempty"`
	RecipientHandle string          `json:"recipient_handle,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
}
