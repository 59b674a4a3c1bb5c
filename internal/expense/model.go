package expense

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the approval state of an expense.
type Status string

const (
	// StatusPending is the state of every freshly submitted expense.
	StatusPending Status = "pending"
	// StatusDue means the approver acknowledged the expense but has not paid it yet.
	StatusDue Status = "due"
	// StatusPaid is terminal.
	StatusPaid Status = "paid"
)

// ParseStatus validates a status coming from outside the process.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusDue, StatusPaid:
		return Status(s), true
	}
	return "", false
}

// GeneralCategory is stored for roles that do not choose a category.
const GeneralCategory = "general"

// ProofKind says what backs the expense.
type ProofKind string

const (
	ProofNone  ProofKind = ""
	ProofImage ProofKind = "image"
	ProofCash  ProofKind = "cash"
)

// Proof is the optional evidence attached to an expense. FileID is the
// transport handle of the photo; ReceiptID points into the receipt archive
// and stays empty when archiving is off or failed.
type Proof struct {
	Kind      ProofKind
	FileID    string
	ReceiptID string
}

// Expense is a settlement request raised by a member.
type Expense struct {
	ID           string
	SubmitterKey string
	Amount       decimal.Decimal
	Category     string
	Proof        Proof
	Note         string
	Status       Status
	CreatedAt    time.Time
	ApproverKey  string
	SettledAt    *time.Time
}

// Change is the set of fields a status transition rewrites.
type Change struct {
	Status      Status
	ApproverKey string
	SettledAt   *time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status       Status
	SubmitterKey string
}

func (f Filter) matches(e Expense) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.SubmitterKey != "" && e.SubmitterKey != f.SubmitterKey {
		return false
	}
	return true
}
