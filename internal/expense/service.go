package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/buhgalteriya/buhgalteriya/internal/command"
	"github.com/buhgalteriya/buhgalteriya/internal/config"
	"github.com/buhgalteriya/buhgalteriya/internal/events"
	"github.com/buhgalteriya/buhgalteriya/internal/identity"
	"github.com/buhgalteriya/buhgalteriya/internal/keylock"
	"github.com/buhgalteriya/buhgalteriya/internal/ledger"
	"github.com/buhgalteriya/buhgalteriya/internal/money"
	"github.com/buhgalteriya/buhgalteriya/internal/notification"
)

var (
	// ErrAlreadySettled is returned for any action on a paid expense.
	ErrAlreadySettled = errors.New("expense already settled")
	// ErrForbidden is returned when a non-admin tries to settle or defer.
	ErrForbidden = errors.New("only the approver can settle expenses")
	// ErrCategoryRequired is returned when a categorized role submits without one.
	ErrCategoryRequired = errors.New("category required")
	// ErrStoreUnavailable wraps record store failures that aborted an operation.
	ErrStoreUnavailable = errors.New("record store unavailable")
)

// Accounts looks up the chat accounts involved in an expense.
type Accounts interface {
	Get(ctx context.Context, key string) (identity.Account, error)
	Approver(ctx context.Context) (identity.Account, error)
}

// Notifier delivers messages without reporting failures.
type Notifier interface {
	Notify(ctx context.Context, message notification.Message)
}

// Service owns the approval workflow of expenses.
type Service struct {
	repo      Repository
	ledger    ledger.Ledger
	accounts  Accounts
	notifier  Notifier
	publisher events.Publisher
	policy    string
	currency  string
	locks     *keylock.Locker
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the workflow. policy is one of config.DebitAtSubmission or
// config.DebitAtSettlement and stays fixed for the life of the service.
func NewService(repo Repository, l ledger.Ledger, accounts Accounts, notifier Notifier, publisher events.Publisher, policy, currency string, logger *slog.Logger) *Service {
	if policy == "" {
		policy = config.DebitAtSubmission
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		repo:      repo,
		ledger:    l,
		accounts:  accounts,
		notifier:  notifier,
		publisher: publisher,
		policy:    policy,
		currency:  currency,
		locks:     keylock.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SubmitInput carries a completed submission dialog.
type SubmitInput struct {
	Submitter identity.Account
	Amount    decimal.Decimal
	Category  string
	Proof     Proof
	Note      string
}

// Submit records a pending expense and, under the submission debit policy,
// debits the submitter. The debit and the record are kept together: if the
// record cannot be written the debit is reversed.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Expense, error) {
	if !in.Amount.IsPositive() {
		return Expense{}, money.ErrInvalidAmount
	}
	category := strings.TrimSpace(in.Category)
	if in.Submitter.Role.RequiresCategory() {
		if category == "" {
			return Expense{}, ErrCategoryRequired
		}
	} else {
		category = GeneralCategory
	}

	e := Expense{
		ID:           uuid.NewString(),
		SubmitterKey: in.Submitter.Key,
		Amount:       in.Amount,
		Category:     category,
		Proof:        in.Proof,
		Note:         strings.TrimSpace(in.Note),
		Status:       StatusPending,
		CreatedAt:    s.now(),
	}
	logger := s.logger.With("expense_id", e.ID, "submitter", e.SubmitterKey)

	debited := false
	if s.policy == config.DebitAtSubmission {
		if _, err := s.ledger.Apply(ctx, e.SubmitterKey, e.Amount.Neg(), e.ID); err != nil {
			return Expense{}, fmt.Errorf("debit submitter: %w", err)
		}
		debited = true
	}

	if err := s.repo.Create(ctx, e); err != nil {
		if debited {
			if _, cerr := s.ledger.Apply(ctx, e.SubmitterKey, e.Amount, e.ID); cerr != nil {
				logger.Error("reversing submission debit failed, manual reconciliation required",
					"amount", e.Amount.String(), "error", cerr)
			}
		}
		return Expense{}, fmt.Errorf("%w: create expense: %v", ErrStoreUnavailable, err)
	}
	logger.Info("expense submitted", "amount", e.Amount.String(), "category", e.Category)

	s.publish(ctx, e, "", e.SubmitterKey)
	s.notifyApprover(ctx, in.Submitter, e)
	return e, nil
}

// Settle marks the expense paid and moves the money from the approver to the
// submitter. Settling twice transfers once; the second call gets ErrAlreadySettled.
func (s *Service) Settle(ctx context.Context, id string, approver identity.Account) (Expense, error) {
	if approver.Role != identity.RoleAdmin {
		return Expense{}, ErrForbidden
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Expense{}, s.storeErr("get expense", err)
	}
	if current.Status == StatusPaid {
		return current, ErrAlreadySettled
	}

	now := s.now()
	settled, err := s.repo.Transition(ctx, id, []Status{StatusPending, StatusDue},
		Change{Status: StatusPaid, ApproverKey: approver.Key, SettledAt: &now})
	if errors.Is(err, ErrStatusConflict) {
		return current, ErrAlreadySettled
	}
	if err != nil {
		return Expense{}, s.storeErr("mark paid", err)
	}
	logger := s.logger.With("expense_id", id, "approver", approver.Key, "submitter", settled.SubmitterKey)

	if err := s.moveSettlementMoney(ctx, settled, approver.Key); err != nil {
		if errors.Is(err, ledger.ErrTransferPartialFailure) {
			// the debit leg landed, so the expense stays paid to block a second transfer
			logger.Error("settlement transfer partially applied, manual reconciliation required",
				"amount", settled.Amount.String(), "error", err)
			s.notifier.Notify(ctx, notification.Message{
				Kind:   notification.KindReconciliation,
				ChatID: approver.TelegramID,
				Text: fmt.Sprintf("Settlement of expense %s was only partially applied: your account was debited %s %s but %s was not credited. Please reconcile manually.",
					shortID(id), money.Format(settled.Amount), s.currency, settled.SubmitterKey),
			})
			return settled, err
		}
		if _, rerr := s.repo.Transition(ctx, id, []Status{StatusPaid},
			Change{Status: current.Status, ApproverKey: current.ApproverKey, SettledAt: current.SettledAt}); rerr != nil {
			logger.Error("reverting expense status failed", "error", rerr)
		}
		return current, fmt.Errorf("settlement transfer: %w", err)
	}
	logger.Info("expense settled", "amount", settled.Amount.String())

	s.publish(ctx, settled, current.Status, approver.Key)
	s.notifySubmitter(ctx, settled, notification.KindExpenseSettled,
		fmt.Sprintf("Your expense %s of %s %s (%s) has been reimbursed.",
			shortID(id), money.Format(settled.Amount), s.currency, settled.Category))
	return settled, nil
}

// moveSettlementMoney performs the ledger side of settlement for the active policy.
func (s *Service) moveSettlementMoney(ctx context.Context, e Expense, approverKey string) error {
	if s.policy == config.DebitAtSettlement {
		if _, err := s.ledger.Apply(ctx, e.SubmitterKey, e.Amount.Neg(), e.ID); err != nil {
			return fmt.Errorf("debit submitter: %w", err)
		}
		if _, err := s.ledger.Transfer(ctx, approverKey, e.SubmitterKey, e.Amount, e.ID); err != nil {
			if errors.Is(err, ledger.ErrTransferPartialFailure) {
				return err
			}
			if _, cerr := s.ledger.Apply(ctx, e.SubmitterKey, e.Amount, e.ID); cerr != nil {
				return fmt.Errorf("%w: submitter debited but transfer failed (%v) and reversal failed: %v",
					ledger.ErrTransferPartialFailure, err, cerr)
			}
			return err
		}
		return nil
	}
	_, err := s.ledger.Transfer(ctx, approverKey, e.SubmitterKey, e.Amount, e.ID)
	return err
}

// Defer marks the expense as acknowledged but unpaid. It has no ledger effect
// and can be repeated until the expense is settled.
func (s *Service) Defer(ctx context.Context, id string, approver identity.Account) (Expense, error) {
	if approver.Role != identity.RoleAdmin {
		return Expense{}, ErrForbidden
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Expense{}, s.storeErr("get expense", err)
	}
	if current.Status == StatusPaid {
		return current, ErrAlreadySettled
	}

	deferred, err := s.repo.Transition(ctx, id, []Status{StatusPending, StatusDue},
		Change{Status: StatusDue, ApproverKey: approver.Key})
	if errors.Is(err, ErrStatusConflict) {
		return current, ErrAlreadySettled
	}
	if err != nil {
		return Expense{}, s.storeErr("mark due", err)
	}
	s.logger.Info("expense deferred", "expense_id", id, "approver", approver.Key)

	if current.Status != StatusDue {
		s.publish(ctx, deferred, current.Status, approver.Key)
	}
	s.notifySubmitter(ctx, deferred, notification.KindExpenseDeferred,
		fmt.Sprintf("Your expense %s of %s %s was acknowledged; payment is pending.",
			shortID(id), money.Format(deferred.Amount), s.currency))
	return deferred, nil
}

// Remind sends approver the Paid/Due prompt again for every pending or due
// expense, oldest first, and returns how many prompts went out.
func (s *Service) Remind(ctx context.Context, approver identity.Account) (int, error) {
	if approver.Role != identity.RoleAdmin {
		return 0, ErrForbidden
	}
	all, err := s.repo.List(ctx, Filter{})
	if err != nil {
		return 0, s.storeErr("list expenses", err)
	}
	sent := 0
	for _, e := range all {
		if e.Status == StatusPaid {
			continue
		}
		from := e.SubmitterKey
		if submitter, err := s.accounts.Get(ctx, e.SubmitterKey); err == nil {
			from = submitter.Mention()
		}
		s.promptApprover(ctx, approver.TelegramID, "Awaiting settlement: expense", from, e)
		sent++
	}
	s.logger.Info("settlement prompts re-sent", "approver", approver.Key, "count", sent)
	return sent, nil
}

// Get returns one expense.
func (s *Service) Get(ctx context.Context, id string) (Expense, error) {
	return s.repo.Get(ctx, id)
}

// List returns expenses matching filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Expense, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) storeErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

func (s *Service) publish(ctx context.Context, e Expense, from Status, actor string) {
	err := s.publisher.Publish(ctx, events.TopicExpenseStatusChanged, e.ID, events.ExpenseStatusChanged{
		ExpenseID:    e.ID,
		SubmitterKey: e.SubmitterKey,
		ActorKey:     actor,
		Amount:       e.Amount,
		Category:     e.Category,
		From:         string(from),
		To:           string(e.Status),
		OccurredAt:   s.now(),
	})
	if err != nil {
		s.logger.Warn("publish expense event failed", "expense_id", e.ID, "error", err)
	}
}

func (s *Service) notifyApprover(ctx context.Context, submitter identity.Account, e Expense) {
	approver, err := s.accounts.Approver(ctx)
	if err != nil {
		s.logger.Warn("approver unknown, expense notification skipped", "expense_id", e.ID, "error", err)
		return
	}
	s.promptApprover(ctx, approver.TelegramID, "New expense", submitter.Mention(), e)
}

func (s *Service) promptApprover(ctx context.Context, chatID int64, heading, from string, e Expense) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s from %s\n", heading, shortID(e.ID), from)
	fmt.Fprintf(&b, "Amount: %s %s\n", money.Format(e.Amount), s.currency)
	fmt.Fprintf(&b, "Category: %s\n", e.Category)
	switch e.Proof.Kind {
	case ProofCash:
		b.WriteString("Proof: cash\n")
	case ProofNone:
		b.WriteString("Proof: none\n")
	}
	if e.Note != "" {
		fmt.Fprintf(&b, "Note: %s\n", e.Note)
	}
	if e.Status == StatusDue {
		b.WriteString("Status: due\n")
	}

	s.notifier.Notify(ctx, notification.Message{
		Kind:        notification.KindExpenseSubmitted,
		ChatID:      chatID,
		Text:        strings.TrimSpace(b.String()),
		PhotoFileID: e.Proof.FileID,
		Buttons: [][]notification.Button{{
			{Text: "Paid", Data: command.SettleData(e.ID)},
			{Text: "Due", Data: command.DeferData(e.ID)},
		}},
	})
}

func (s *Service) notifySubmitter(ctx context.Context, e Expense, kind, text string) {
	submitter, err := s.accounts.Get(ctx, e.SubmitterKey)
	if err != nil {
		s.logger.Warn("submitter lookup failed, notification skipped", "expense_id", e.ID, "error", err)
		return
	}
	s.notifier.Notify(ctx, notification.Message{Kind: kind, ChatID: submitter.TelegramID, Text: text})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
