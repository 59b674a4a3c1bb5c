package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memoryAccount struct {
	mu      sync.Mutex
	balance decimal.Decimal
}

type inMemoryLedger struct {
	mu           sync.RWMutex
	accounts     map[string]*memoryAccount
	transactions []Transaction
	now          func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory ledger. Postings on
// different accounts proceed in parallel; postings on one account are serialized.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		accounts: make(map[string]*memoryAccount),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[key]; !exists {
		l.accounts[key] = &memoryAccount{}
	}
	return nil
}

func (l *inMemoryLedger) account(key string) (*memoryAccount, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[key]
	return acc, ok
}

func (l *inMemoryLedger) Balance(_ context.Context, key string) (decimal.Decimal, error) {
	acc, ok := l.account(key)
	if !ok {
		return decimal.Zero, ErrAccountNotFound
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balance, nil
}

func (l *inMemoryLedger) Apply(ctx context.Context, key string, amount decimal.Decimal, expenseID string) (Posting, error) {
	if err := ctx.Err(); err != nil {
		return Posting{}, err
	}
	if amount.IsZero() {
		return Posting{}, ErrZeroAmount
	}
	acc, ok := l.account(key)
	if !ok {
		return Posting{}, ErrAccountNotFound
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	tx := Transaction{
		ID:         uuid.NewString(),
		AccountKey: key,
		Amount:     amount,
		Kind:       KindOf(amount),
		ExpenseID:  expenseID,
		CreatedAt:  l.now(),
	}
	l.mu.Lock()
	l.transactions = append(l.transactions, tx)
	l.mu.Unlock()

	acc.balance = acc.balance.Add(amount)
	return Posting{Transaction: tx, Balance: acc.balance}, nil
}

func (l *inMemoryLedger) Transfer(ctx context.Context, from, to string, amount decimal.Decimal, expenseID string) (TransferResult, error) {
	if _, ok := l.account(from); !ok {
		return TransferResult{}, ErrAccountNotFound
	}
	if _, ok := l.account(to); !ok {
		return TransferResult{}, ErrAccountNotFound
	}
	return composeTransfer(ctx, l.Apply, from, to, amount, expenseID)
}

func (l *inMemoryLedger) Transactions(_ context.Context, key string) ([]Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Transaction, 0, len(l.transactions))
	for _, tx := range l.transactions {
		if key == "" || tx.AccountKey == key {
			out = append(out, tx)
		}
	}
	return out, nil
}
