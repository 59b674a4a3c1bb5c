package ledger

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/buhgalteriya/buhgalteriya/internal/events"
)

// publishingLedger emits a TransactionRecorded event after every posting.
// Publishing is best effort and never fails the posting.
type publishingLedger struct {
	Ledger
	publisher events.Publisher
	logger    *slog.Logger
}

// WithEvents decorates l so that postings are announced on the event stream.
func WithEvents(l Ledger, publisher events.Publisher, logger *slog.Logger) Ledger {
	if publisher == nil {
		return l
	}
	return &publishingLedger{Ledger: l, publisher: publisher, logger: logger}
}

func (p *publishingLedger) Apply(ctx context.Context, key string, amount decimal.Decimal, expenseID string) (Posting, error) {
	posting, err := p.Ledger.Apply(ctx, key, amount, expenseID)
	if err != nil {
		return posting, err
	}
	p.publish(ctx, posting)
	return posting, nil
}

func (p *publishingLedger) Transfer(ctx context.Context, from, to string, amount decimal.Decimal, expenseID string) (TransferResult, error) {
	res, err := p.Ledger.Transfer(ctx, from, to, amount, expenseID)
	for _, posting := range []Posting{res.Debit, res.Credit} {
		if posting.Transaction.ID != "" {
			p.publish(ctx, posting)
		}
	}
	return res, err
}

func (p *publishingLedger) publish(ctx context.Context, posting Posting) {
	tx := posting.Transaction
	event := events.TransactionRecorded{
		TransactionID: tx.ID,
		AccountKey:    tx.AccountKey,
		Amount:        tx.Amount,
		Kind:          string(tx.Kind),
		ExpenseID:     tx.ExpenseID,
		Balance:       posting.Balance,
		OccurredAt:    tx.CreatedAt,
	}
	if err := p.publisher.Publish(ctx, events.TopicTransactionRecorded, tx.AccountKey, event); err != nil {
		p.logger.Warn("publish ledger event", "transaction_id", tx.ID, "error", err)
	}
}
