package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

// postingDuringSnapshot lands a posting right before the first full log read,
// the way a live settlement would between the balance and log reads.
type postingDuringSnapshot struct {
	Ledger
	key    string
	amount decimal.Decimal
	posted bool
}

func (l *postingDuringSnapshot) Transactions(ctx context.Context, key string) ([]Transaction, error) {
	if key == "" && !l.posted {
		l.posted = true
		if _, err := l.Ledger.Apply(ctx, l.key, l.amount, ""); err != nil {
			return nil, err
		}
	}
	return l.Ledger.Transactions(ctx, key)
}

// skewedBalance reports a cached balance that disagrees with the log.
type skewedBalance struct {
	Ledger
	key  string
	skew decimal.Decimal
}

func (l skewedBalance) Balance(ctx context.Context, key string) (decimal.Decimal, error) {
	balance, err := l.Ledger.Balance(ctx, key)
	if err == nil && key == l.key {
		balance = balance.Add(l.skew)
	}
	return balance, err
}

func TestReconcile_ConcurrentPostingIsNotDrift(t *testing.T) {
	ctx := context.Background()
	base := NewInMemory()
	base.EnsureAccount(ctx, "tg:1")
	base.EnsureAccount(ctx, "tg:2")
	if _, err := base.Apply(ctx, "tg:1", dec("-40"), "exp-1"); err != nil {
		t.Fatalf("apply: %v", err)
	}

	l := &postingDuringSnapshot{Ledger: base, key: "tg:1", amount: dec("15")}
	mismatches, err := Reconcile(ctx, l, []string{"tg:1", "tg:2"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !l.posted {
		t.Fatalf("expected a posting during the log snapshot")
	}
	if len(mismatches) != 0 {
		t.Fatalf("expected no drift, got %v", mismatches)
	}
}

func TestReconcile_ReportsRealDrift(t *testing.T) {
	ctx := context.Background()
	base := NewInMemory()
	base.EnsureAccount(ctx, "tg:1")
	base.EnsureAccount(ctx, "tg:2")
	base.Apply(ctx, "tg:1", dec("100"), "")
	base.Apply(ctx, "tg:2", dec("7"), "")

	mismatches, err := Reconcile(ctx, skewedBalance{Ledger: base, key: "tg:2", skew: dec("1")}, []string{"tg:1", "tg:2"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(mismatches) != 1 {
		t.Fatalf("expected one mismatch, got %v", mismatches)
	}
	m := mismatches[0]
	if m.AccountKey != "tg:2" || !m.Balance.Equal(dec("8")) || !m.LogTotal.Equal(dec("7")) {
		t.Fatalf("unexpected mismatch %+v", m)
	}
}
