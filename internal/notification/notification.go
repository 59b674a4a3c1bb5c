package notification

import (
	"context"
	"log/slog"
)

const (
	// KindExpenseSubmitted asks the approver to settle or defer a new expense.
	KindExpenseSubmitted = "expense_submitted"
	// KindExpenseSettled tells the submitter their expense was reimbursed.
	KindExpenseSettled = "expense_settled"
	// KindExpenseDeferred tells the submitter settlement is postponed.
	KindExpenseDeferred = "expense_deferred"
	// KindMoneyReceived tells a member the approver handed them money.
	KindMoneyReceived = "money_received"
	// KindReconciliation escalates a half-applied transfer to the approver.
	KindReconciliation = "reconciliation_required"
	// KindReply is a direct answer to the user's own message.
	KindReply = "reply"
)

// Button is one inline action attached to a message.
type Button struct {
	Text string
	Data string
}

// Message describes a notification payload.
type Message struct {
	Kind        string
	ChatID      int64
	Text        string
	PhotoFileID string
	Buttons     [][]Button
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger instead of delivering them.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "chat_id", message.ChatID, "text", message.Text,
		"photo", message.PhotoFileID != "", "buttons", len(message.Buttons))
	return nil
}
