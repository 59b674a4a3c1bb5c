package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/buhgalteriya/buhgalteriya/internal/command"
	"github.com/buhgalteriya/buhgalteriya/internal/config"
	"github.com/buhgalteriya/buhgalteriya/internal/expense"
	"github.com/buhgalteriya/buhgalteriya/internal/identity"
	"github.com/buhgalteriya/buhgalteriya/internal/logging"
)

var (
	admin = identity.Account{Key: "tg:1", TelegramID: 1, Handle: "denishr55", Role: identity.RoleAdmin}
	dev   = identity.Account{Key: "tg:2", TelegramID: 2, Handle: "devops", Role: identity.RoleIT}
	hr    = identity.Account{Key: "tg:3", TelegramID: 3, Handle: "mkkdko", Role: identity.RoleHR}
)

type recordingFinalizer struct {
	mu          sync.Mutex
	submissions []Submission
	err         error
}

func (f *recordingFinalizer) Finalize(_ context.Context, sub Submission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.submissions = append(f.submissions, sub)
	return "recorded", nil
}

func (f *recordingFinalizer) last(t *testing.T) Submission {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.submissions) == 0 {
		t.Fatalf("nothing was finalized")
	}
	return f.submissions[len(f.submissions)-1]
}

type directory map[string]identity.Account

func (d directory) Get(_ context.Context, key string) (identity.Account, error) {
	for _, acc := range d {
		if acc.Key == key {
			return acc, nil
		}
	}
	return identity.Account{}, identity.ErrNotFound
}

func (d directory) FindByHandle(_ context.Context, handle string) (identity.Account, error) {
	acc, ok := d[strings.ToLower(strings.TrimPrefix(handle, "@"))]
	if !ok {
		return identity.Account{}, identity.ErrNotFound
	}
	return acc, nil
}

func newEngine(store Store) (*Engine, *recordingFinalizer) {
	fin := &recordingFinalizer{}
	dir := directory{admin.Handle: admin, dev.Handle: dev, hr.Handle: hr}
	return NewEngine(store, fin, dir, config.DefaultCategories, logging.Discard()), fin
}

func text(s string) command.Input {
	return command.Input{Text: s}
}

func step(t *testing.T, e *Engine, account identity.Account, in command.Input) Reply {
	t.Helper()
	reply, err := e.Handle(context.Background(), account, in)
	if err != nil {
		t.Fatalf("handle %+v: %v", in, err)
	}
	return reply
}

func assertStep(t *testing.T, e *Engine, key string, want Step) {
	t.Helper()
	st, ok, err := e.Current(context.Background(), key)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if want == StepIdle {
		if ok {
			t.Fatalf("expected no dialog, got %+v", st)
		}
		return
	}
	if !ok || st.Step != want {
		t.Fatalf("expected step %s, got %+v (present=%v)", want, st, ok)
	}
}

func TestExpenseDialogWithCategory(t *testing.T) {
	e, fin := newEngine(NewMemoryStore())
	ctx := context.Background()

	reply, err := e.Start(ctx, dev, KindExpense)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(reply.Buttons) == 0 || reply.Buttons[0][0].Data != command.CategoryData("Work.ua") {
		t.Fatalf("expected category buttons, got %+v", reply.Buttons)
	}
	assertStep(t, e, dev.Key, StepAwaitingCategory)

	reply = step(t, e, dev, text("Othr"))
	if !strings.Contains(reply.Text, "Other") {
		t.Fatalf("expected a suggestion, got %q", reply.Text)
	}
	assertStep(t, e, dev.Key, StepAwaitingCategory)

	step(t, e, dev, text("other"))
	assertStep(t, e, dev.Key, StepAwaitingAmount)

	for _, bad := range []string{"0", "-5", "12.5.3", "lots"} {
		step(t, e, dev, text(bad))
		assertStep(t, e, dev.Key, StepAwaitingAmount)
	}

	step(t, e, dev, text("250,50"))
	assertStep(t, e, dev.Key, StepAwaitingProof)

	step(t, e, dev, text("maybe later"))
	assertStep(t, e, dev.Key, StepAwaitingProof)

	reply = step(t, e, dev, text("НЕТ"))
	if reply.Text != "recorded" {
		t.Fatalf("expected finalizer reply, got %q", reply.Text)
	}
	assertStep(t, e, dev.Key, StepIdle)

	sub := fin.last(t)
	if sub.Kind != KindExpense || sub.Category != "Other" || sub.Proof.Kind != expense.ProofNone ||
		!sub.Amount.Equal(decimal.RequireFromString("250.50")) || sub.Account.Key != dev.Key {
		t.Fatalf("unexpected submission %+v", sub)
	}
}

func TestExpenseDialogSkipsCategoryForHR(t *testing.T) {
	e, fin := newEngine(NewMemoryStore())
	ctx := context.Background()

	if _, err := e.Start(ctx, hr, KindExpense); err != nil {
		t.Fatalf("start: %v", err)
	}
	assertStep(t, e, hr.Key, StepAwaitingAmount)

	step(t, e, hr, text("1,5 грн"))
	step(t, e, hr, command.Input{Text: "taxi to the office", ImageFileID: "file-1"})

	sub := fin.last(t)
	if sub.Proof.Kind != expense.ProofImage || sub.Proof.FileID != "file-1" || sub.Note != "taxi to the office" {
		t.Fatalf("unexpected proof %+v", sub)
	}
	if !sub.Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("expected 1.5, got %s", sub.Amount)
	}
}

func TestExpenseDialogCashProof(t *testing.T) {
	e, fin := newEngine(NewMemoryStore())
	ctx := context.Background()

	e.Start(ctx, hr, KindExpense)
	step(t, e, hr, text("100"))
	step(t, e, hr, text("наличка"))

	if sub := fin.last(t); sub.Proof.Kind != expense.ProofCash {
		t.Fatalf("expected cash proof, got %+v", sub.Proof)
	}
}

func TestExpenseDialogKeepsCommentAfterProofWord(t *testing.T) {
	cases := []struct {
		input string
		kind  expense.ProofKind
		note  string
	}{
		{input: "нет, таксі", kind: expense.ProofNone, note: "таксі"},
		{input: "cash - lunch with the client", kind: expense.ProofCash, note: "lunch with the client"},
		{input: "Готівка", kind: expense.ProofCash, note: ""},
		{input: "no.", kind: expense.ProofNone, note: ""},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			e, fin := newEngine(NewMemoryStore())
			e.Start(context.Background(), hr, KindExpense)
			step(t, e, hr, text("40"))
			step(t, e, hr, text(tc.input))

			assertStep(t, e, hr.Key, StepIdle)
			sub := fin.last(t)
			if sub.Proof.Kind != tc.kind || sub.Note != tc.note {
				t.Fatalf("expected %s proof with note %q, got %+v", tc.kind, tc.note, sub)
			}
		})
	}
}

func TestExpenseDialogUnknownProofWordReprompts(t *testing.T) {
	e, fin := newEngine(NewMemoryStore())
	e.Start(context.Background(), hr, KindExpense)
	step(t, e, hr, text("40"))
	step(t, e, hr, text("taxi, no receipt"))

	assertStep(t, e, hr.Key, StepAwaitingProof)
	if len(fin.submissions) != 0 {
		t.Fatalf("expected nothing finalized, got %+v", fin.submissions)
	}
}

func TestIncomeDialog(t *testing.T) {
	e, fin := newEngine(NewMemoryStore())
	ctx := context.Background()

	if _, err := e.Start(ctx, dev, KindIncome); err != nil {
		t.Fatalf("start: %v", err)
	}
	assertStep(t, e, dev.Key, StepAwaitingAmount)
	step(t, e, dev, text("3000"))
	assertStep(t, e, dev.Key, StepIdle)

	if sub := fin.last(t); sub.Kind != KindIncome || !sub.Amount.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("unexpected submission %+v", sub)
	}
}

func TestTransferDialog(t *testing.T) {
	e, fin := newEngine(NewMemoryStore())
	ctx := context.Background()

	if _, err := e.Start(ctx, admin, KindTransfer); err != nil {
		t.Fatalf("start: %v", err)
	}
	assertStep(t, e, admin.Key, StepAwaitingRecipient)

	step(t, e, admin, text("@stranger"))
	assertStep(t, e, admin.Key, StepAwaitingRecipient)
	step(t, e, admin, text("@denishr55"))
	assertStep(t, e, admin.Key, StepAwaitingRecipient)

	step(t, e, admin, text("@MKKDKO"))
	assertStep(t, e, admin.Key, StepAwaitingAmount)
	step(t, e, admin, text("1500"))

	sub := fin.last(t)
	if sub.Kind != KindTransfer || sub.Recipient.Key != hr.Key || !sub.Amount.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected submission %+v", sub)
	}
}

func TestStartIsRoleGated(t *testing.T) {
	e, _ := newEngine(NewMemoryStore())
	ctx := context.Background()

	if _, err := e.Start(ctx, dev, KindTransfer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden transfer, got %v", err)
	}
	if _, err := e.Start(ctx, admin, KindExpense); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden expense for admin, got %v", err)
	}
	assertStep(t, e, dev.Key, StepIdle)
	assertStep(t, e, admin.Key, StepIdle)
}

func TestNewDialogSupersedesOld(t *testing.T) {
	e, fin := newEngine(NewMemoryStore())
	ctx := context.Background()

	e.Start(ctx, dev, KindExpense)
	step(t, e, dev, text("Jooble"))
	step(t, e, dev, text("99"))

	e.Start(ctx, dev, KindIncome)
	st, _, _ := e.Current(ctx, dev.Key)
	if st.Kind != KindIncome || st.Category != "" || !st.Amount.IsZero() {
		t.Fatalf("expected a fresh income dialog, got %+v", st)
	}
	step(t, e, dev, text("10"))
	if sub := fin.last(t); sub.Kind != KindIncome || sub.Category != "" {
		t.Fatalf("old dialog leaked into new one: %+v", sub)
	}
}

func TestFinalizationFailureClearsDialog(t *testing.T) {
	e, fin := newEngine(NewMemoryStore())
	fin.err = errors.New("ledger down")
	ctx := context.Background()

	e.Start(ctx, dev, KindIncome)
	reply, err := e.Handle(ctx, dev, text("10"))
	if err == nil {
		t.Fatalf("expected finalization error")
	}
	if reply.Text == "" {
		t.Fatalf("user must be told the submission failed")
	}
	assertStep(t, e, dev.Key, StepIdle)
}

func TestInputWithoutDialog(t *testing.T) {
	e, _ := newEngine(NewMemoryStore())
	if _, err := e.Handle(context.Background(), dev, text("100")); !errors.Is(err, ErrNoDialog) {
		t.Fatalf("expected no dialog, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	e, _ := newEngine(NewMemoryStore())
	ctx := context.Background()

	e.Start(ctx, hr, KindExpense)
	if _, err := e.Cancel(ctx, hr); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	assertStep(t, e, hr.Key, StepIdle)
}

func TestConcurrentIdentitiesDoNotShareState(t *testing.T) {
	e, fin := newEngine(NewMemoryStore())
	ctx := context.Background()
	amounts := map[string]string{dev.Key: "10", hr.Key: "20"}

	var wg sync.WaitGroup
	for _, acc := range []identity.Account{dev, hr} {
		wg.Add(1)
		go func(acc identity.Account) {
			defer wg.Done()
			if _, err := e.Start(ctx, acc, KindIncome); err != nil {
				t.Errorf("start: %v", err)
				return
			}
			if _, err := e.Handle(ctx, acc, text(amounts[acc.Key])); err != nil {
				t.Errorf("handle: %v", err)
			}
		}(acc)
	}
	wg.Wait()

	if len(fin.submissions) != 2 {
		t.Fatalf("expected two submissions, got %d", len(fin.submissions))
	}
	for _, sub := range fin.submissions {
		if !sub.Amount.Equal(decimal.RequireFromString(amounts[sub.Account.Key])) {
			t.Fatalf("submission of %s got another identity's amount %s", sub.Account.Key, sub.Amount)
		}
	}
}
