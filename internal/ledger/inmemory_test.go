package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/buhgalteriya/buhgalteriya/internal/events"
	"github.com/buhgalteriya/buhgalteriya/internal/logging"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertReconciled(t *testing.T, l Ledger, keys ...string) {
	t.Helper()
	mismatches, err := Reconcile(context.Background(), l, keys)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(mismatches) > 0 {
		t.Fatalf("balance drifted from transaction log: %v", mismatches)
	}
}

func TestInMemoryLedger_ApplyMovesBalanceByAmount(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	if err := l.EnsureAccount(ctx, "tg:1"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}

	posting, err := l.Apply(ctx, "tg:1", dec("-250.50"), "exp-1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !posting.Balance.Equal(dec("-250.50")) {
		t.Fatalf("expected -250.50, got %s", posting.Balance)
	}
	if posting.Transaction.Kind != KindDebit || posting.Transaction.ExpenseID != "exp-1" {
		t.Fatalf("unexpected transaction %+v", posting.Transaction)
	}

	if _, err := l.Apply(ctx, "tg:1", dec("100"), ""); err != nil {
		t.Fatalf("apply credit: %v", err)
	}
	balance, _ := l.Balance(ctx, "tg:1")
	if !balance.Equal(dec("-150.50")) {
		t.Fatalf("expected -150.50, got %s", balance)
	}
	assertReconciled(t, l, "tg:1")
}

func TestInMemoryLedger_ApplyRejectsZeroAndUnknown(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "tg:1")

	if _, err := l.Apply(ctx, "tg:1", decimal.Zero, ""); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected zero amount error, got %v", err)
	}
	if _, err := l.Apply(ctx, "tg:404", dec("1"), ""); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
	txs, _ := l.Transactions(ctx, "")
	if len(txs) != 0 {
		t.Fatalf("rejected postings must not be logged, got %d", len(txs))
	}
}

func TestInMemoryLedger_ConcurrentApply(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "tg:1")

	const workers = 50
	var wg sync.WaitGroup
	want := decimal.Zero
	for i := 1; i <= workers; i++ {
		amount := decimal.NewFromInt(int64(i))
		if i%3 == 0 {
			amount = amount.Neg()
		}
		want = want.Add(amount)

		wg.Add(1)
		go func(amount decimal.Decimal) {
			defer wg.Done()
			if _, err := l.Apply(ctx, "tg:1", amount, ""); err != nil {
				t.Errorf("apply %s: %v", amount, err)
			}
		}(amount)
	}
	wg.Wait()

	balance, _ := l.Balance(ctx, "tg:1")
	if !balance.Equal(want) {
		t.Fatalf("expected %s, got %s", want, balance)
	}
	assertReconciled(t, l, "tg:1")
}

func TestInMemoryLedger_TransferMaintainsBalance(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "tg:admin")
	l.EnsureAccount(ctx, "tg:member")

	res, err := l.Transfer(ctx, "tg:admin", "tg:member", dec("1500"), "")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !res.Debit.Balance.Equal(dec("-1500")) || !res.Credit.Balance.Equal(dec("1500")) {
		t.Fatalf("unexpected balances: %+v", res)
	}
	assertReconciled(t, l, "tg:admin", "tg:member")
}

func TestInMemoryLedger_ConcurrentTransfers(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "tg:a")
	l.EnsureAccount(ctx, "tg:b")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := "tg:a", "tg:b"
			if i%2 == 0 {
				from, to = to, from
			}
			if _, err := l.Transfer(ctx, from, to, dec("10.25"), fmt.Sprintf("exp-%d", i)); err != nil {
				t.Errorf("transfer %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	a, _ := l.Balance(ctx, "tg:a")
	b, _ := l.Balance(ctx, "tg:b")
	if !a.Add(b).IsZero() {
		t.Fatalf("transfers must net to zero, got %s and %s", a, b)
	}
	assertReconciled(t, l, "tg:a", "tg:b")
}

func TestInMemoryLedger_TransferUnknownAccountTouchesNothing(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "tg:a")

	if _, err := l.Transfer(ctx, "tg:a", "tg:missing", dec("5"), ""); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
	balance, _ := l.Balance(ctx, "tg:a")
	if !balance.IsZero() {
		t.Fatalf("expected untouched balance, got %s", balance)
	}
}

func TestComposeTransfer_SecondLegFailure(t *testing.T) {
	calls := 0
	apply := func(_ context.Context, key string, amount decimal.Decimal, _ string) (Posting, error) {
		calls++
		if calls == 2 {
			return Posting{}, errors.New("connection reset")
		}
		return Posting{Transaction: Transaction{ID: "tx-1", AccountKey: key, Amount: amount}, Balance: amount}, nil
	}

	res, err := composeTransfer(context.Background(), apply, "tg:a", "tg:b", dec("10"), "")
	if !errors.Is(err, ErrTransferPartialFailure) {
		t.Fatalf("expected partial failure, got %v", err)
	}
	if res.Debit.Transaction.ID != "tx-1" {
		t.Fatalf("expected the applied debit leg to be reported, got %+v", res)
	}
}

func TestComposeTransfer_FirstLegFailureIsPlain(t *testing.T) {
	apply := func(context.Context, string, decimal.Decimal, string) (Posting, error) {
		return Posting{}, ErrAccountNotFound
	}
	_, err := composeTransfer(context.Background(), apply, "tg:a", "tg:b", dec("10"), "")
	if errors.Is(err, ErrTransferPartialFailure) || !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected plain account error, got %v", err)
	}
}

func TestWithEventsPublishesPostings(t *testing.T) {
	recorder := &events.Recorder{}
	l := WithEvents(NewInMemory(), recorder, logging.Discard())
	ctx := context.Background()
	l.EnsureAccount(ctx, "tg:a")
	l.EnsureAccount(ctx, "tg:b")

	if _, err := l.Apply(ctx, "tg:a", dec("20"), ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := l.Transfer(ctx, "tg:a", "tg:b", dec("5"), "exp-9"); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	published := recorder.Topic(events.TopicTransactionRecorded)
	if len(published) != 3 {
		t.Fatalf("expected 3 events, got %d", len(published))
	}
	last := published[2].Event.(events.TransactionRecorded)
	if last.AccountKey != "tg:b" || last.ExpenseID != "exp-9" || !last.Balance.Equal(dec("5")) {
		t.Fatalf("unexpected event %+v", last)
	}
}
