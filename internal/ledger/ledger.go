package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound occurs when a posting references an account that was never opened.
	ErrAccountNotFound = errors.New("ledger account not found")

	// ErrZeroAmount rejects postings that would not move money.
	ErrZeroAmount = errors.New("amount must not be zero")

	// ErrTransferPartialFailure means the debit leg of a transfer was written but
	// the credit leg was not. The balance invariant still holds per account, but
	// the money is stranded and must be reconciled by hand.
	ErrTransferPartialFailure = errors.New("transfer partially applied")
)

// Kind tells whether a transaction added to or removed from the balance.
type Kind string

const (
	KindCredit Kind = "credit"
	KindDebit  Kind = "debit"
)

// KindOf derives the kind from the sign of amount.
func KindOf(amount decimal.Decimal) Kind {
	if amount.IsNegative() {
		return KindDebit
	}
	return KindCredit
}

// Transaction is an immutable ledger entry. Amount is signed.
type Transaction struct {
	ID         string
	AccountKey string
	Amount     decimal.Decimal
	Kind       Kind
	ExpenseID  string
	CreatedAt  time.Time
}

// Posting is the outcome of one Apply call.
type Posting struct {
	Transaction Transaction
	Balance     decimal.Decimal
}

// TransferResult captures both legs of a transfer.
type TransferResult struct {
	Debit  Posting
	Credit Posting
}

// Ledger defines the contract implemented by ledger backends.
//
// Every balance change appends exactly one Transaction, so for every account
// the cached balance equals the sum of its transaction amounts.
type Ledger interface {
	EnsureAccount(ctx context.Context, key string) error
	Balance(ctx context.Context, key string) (decimal.Decimal, error)
	// Apply appends a signed transaction and moves the balance by exactly amount.
	// Concurrent calls on the same account are serialized.
	Apply(ctx context.Context, key string, amount decimal.Decimal, expenseID string) (Posting, error)
	// Transfer debits from and credits to by amount.
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal, expenseID string) (TransferResult, error)
	// Transactions lists postings for key, or every posting when key is empty.
	Transactions(ctx context.Context, key string) ([]Transaction, error)
}

type applyFunc func(ctx context.Context, key string, amount decimal.Decimal, expenseID string) (Posting, error)

// composeTransfer builds a transfer out of two Apply calls. A failed second leg
// is reported as ErrTransferPartialFailure, never hidden.
func composeTransfer(ctx context.Context, apply applyFunc, from, to string, amount decimal.Decimal, expenseID string) (TransferResult, error) {
	if !amount.IsPositive() {
		return TransferResult{}, fmt.Errorf("transfer amount must be positive")
	}
	debit, err := apply(ctx, from, amount.Neg(), expenseID)
	if err != nil {
		return TransferResult{}, fmt.Errorf("debit %s: %w", from, err)
	}
	credit, err := apply(ctx, to, amount, expenseID)
	if err != nil {
		return TransferResult{Debit: debit}, fmt.Errorf("%w: debited %s by %s, crediting %s failed: %v",
			ErrTransferPartialFailure, from, amount, to, err)
	}
	return TransferResult{Debit: debit, Credit: credit}, nil
}
