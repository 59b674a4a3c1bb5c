package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/buhgalteriya/buhgalteriya/internal/conversation"
	"github.com/buhgalteriya/buhgalteriya/internal/expense"
	"github.com/buhgalteriya/buhgalteriya/internal/ledger"
	"github.com/buhgalteriya/buhgalteriya/internal/money"
	"github.com/buhgalteriya/buhgalteriya/internal/notification"
	"github.com/buhgalteriya/buhgalteriya/internal/receipts"
)

// Finalizer applies completed dialogs to the ledger and the expense workflow.
type Finalizer struct {
	expenses *expense.Service
	ledger   ledger.Ledger
	archiver *receipts.Archiver
	notifier Notifier
	currency string
	logger   *slog.Logger
}

// NewFinalizer builds a finalizer. archiver may be nil.
func NewFinalizer(expenses *expense.Service, l ledger.Ledger, archiver *receipts.Archiver, notifier Notifier, currency string, logger *slog.Logger) *Finalizer {
	return &Finalizer{expenses: expenses, ledger: l, archiver: archiver, notifier: notifier, currency: currency, logger: logger}
}

// Finalize implements conversation.Finalizer.
func (f *Finalizer) Finalize(ctx context.Context, sub conversation.Submission) (string, error) {
	switch sub.Kind {
	case conversation.KindExpense:
		return f.expense(ctx, sub)
	case conversation.KindIncome:
		return f.income(ctx, sub)
	case conversation.KindTransfer:
		return f.transfer(ctx, sub)
	}
	return "", fmt.Errorf("unknown dialog kind %q", sub.Kind)
}

func (f *Finalizer) expense(ctx context.Context, sub conversation.Submission) (string, error) {
	proof := sub.Proof
	if proof.Kind == expense.ProofImage {
		proof.ReceiptID = f.archiver.Archive(ctx, proof.FileID)
	}
	e, err := f.expenses.Submit(ctx, expense.SubmitInput{
		Submitter: sub.Account,
		Amount:    sub.Amount,
		Category:  sub.Category,
		Proof:     proof,
		Note:      sub.Note,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Expense of %s %s (%s) sent for approval.%s",
		money.Format(e.Amount), f.currency, e.Category, f.balanceLine(ctx, sub.Account.Key)), nil
}

func (f *Finalizer) income(ctx context.Context, sub conversation.Submission) (string, error) {
	posting, err := f.ledger.Apply(ctx, sub.Account.Key, sub.Amount, "")
	if err != nil {
		return "", fmt.Errorf("credit income: %w", err)
	}
	return fmt.Sprintf("Recorded %s %s received. Balance: %s %s",
		money.Format(sub.Amount), f.currency, money.Format(posting.Balance), f.currency), nil
}

func (f *Finalizer) transfer(ctx context.Context, sub conversation.Submission) (string, error) {
	res, err := f.ledger.Transfer(ctx, sub.Account.Key, sub.Recipient.Key, sub.Amount, "")
	if err != nil {
		if errors.Is(err, ledger.ErrTransferPartialFailure) {
			f.logger.Error("transfer partially applied, manual reconciliation required",
				"from", sub.Account.Key, "to", sub.Recipient.Key, "amount", sub.Amount.String(), "error", err)
		}
		return "", err
	}

	f.notifier.Notify(ctx, notification.Message{
		Kind:   notification.KindMoneyReceived,
		ChatID: sub.Recipient.TelegramID,
		Text: fmt.Sprintf("You received %s %s from %s. Balance: %s %s",
			money.Format(sub.Amount), f.currency, sub.Account.Mention(), money.Format(res.Credit.Balance), f.currency),
	})
	return fmt.Sprintf("Gave %s %s to %s. Your balance: %s %s",
		money.Format(sub.Amount), f.currency, sub.Recipient.Mention(), money.Format(res.Debit.Balance), f.currency), nil
}

func (f *Finalizer) balanceLine(ctx context.Context, key string) string {
	balance, err := f.ledger.Balance(ctx, key)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(" Balance: %s %s", money.Format(balance), f.currency)
}
