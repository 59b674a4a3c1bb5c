package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Mismatch reports an account whose cached balance drifted from its log.
type Mismatch struct {
	AccountKey string
	Balance    decimal.Decimal
	LogTotal   decimal.Decimal
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: balance %s, transactions sum to %s", m.AccountKey, m.Balance, m.LogTotal)
}

// Reconcile recomputes every listed account from the transaction log and
// returns the accounts whose cached balance disagrees. Balances are read
// before the log snapshot, so a posting landing in between shows up as a
// candidate; candidates are read again once and only reported when the
// balance held still across the second read and still disagrees. An account
// that keeps moving during the second read is left for the next run.
func Reconcile(ctx context.Context, l Ledger, keys []string) ([]Mismatch, error) {
	balances := make(map[string]decimal.Decimal, len(keys))
	for _, key := range keys {
		balance, err := l.Balance(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("balance %s: %w", key, err)
		}
		balances[key] = balance
	}

	txs, err := l.Transactions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	totals := make(map[string]decimal.Decimal, len(keys))
	for _, tx := range txs {
		totals[tx.AccountKey] = totals[tx.AccountKey].Add(tx.Amount)
	}

	var mismatches []Mismatch
	for _, key := range keys {
		if balances[key].Equal(totals[key]) {
			continue
		}
		m, drifted, err := recheck(ctx, l, key)
		if err != nil {
			return nil, err
		}
		if drifted {
			mismatches = append(mismatches, m)
		}
	}
	return mismatches, nil
}

// recheck reads one account as balance, log, balance. Drift is only reported
// when no posting moved the balance between the two reads.
func recheck(ctx context.Context, l Ledger, key string) (Mismatch, bool, error) {
	before, err := l.Balance(ctx, key)
	if err != nil {
		return Mismatch{}, false, fmt.Errorf("balance %s: %w", key, err)
	}
	txs, err := l.Transactions(ctx, key)
	if err != nil {
		return Mismatch{}, false, fmt.Errorf("list transactions %s: %w", key, err)
	}
	var total decimal.Decimal
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	after, err := l.Balance(ctx, key)
	if err != nil {
		return Mismatch{}, false, fmt.Errorf("balance %s: %w", key, err)
	}
	if !before.Equal(after) || after.Equal(total) {
		return Mismatch{}, false, nil
	}
	return Mismatch{AccountKey: key, Balance: after, LogTotal: total}, true, nil
}
