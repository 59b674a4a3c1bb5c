package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/buhgalteriya/buhgalteriya/internal/command"
	"github.com/buhgalteriya/buhgalteriya/internal/conversation"
	"github.com/buhgalteriya/buhgalteriya/internal/expense"
	"github.com/buhgalteriya/buhgalteriya/internal/identity"
	"github.com/buhgalteriya/buhgalteriya/internal/ledger"
	"github.com/buhgalteriya/buhgalteriya/internal/money"
	"github.com/buhgalteriya/buhgalteriya/internal/notification"
	"github.com/buhgalteriya/buhgalteriya/internal/stats"
	"github.com/buhgalteriya/buhgalteriya/internal/transport"
)

// Resolver maps chat identities to accounts.
type Resolver interface {
	Resolve(ctx context.Context, id identity.Identity) (identity.Account, error)
}

// Notifier delivers messages without reporting failures.
type Notifier interface {
	Notify(ctx context.Context, message notification.Message)
}

// CallbackAnswerer acknowledges button presses.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Router authorizes inbound events and routes them to the dialog engine or the
// approval workflow.
type Router struct {
	resolver Resolver
	engine   *conversation.Engine
	expenses *expense.Service
	ledger   ledger.Ledger
	reporter *stats.Reporter
	notifier Notifier
	answerer CallbackAnswerer
	currency string
	logger   *slog.Logger
}

// Deps groups the collaborators of a Router.
type Deps struct {
	Resolver Resolver
	Engine   *conversation.Engine
	Expenses *expense.Service
	Ledger   ledger.Ledger
	Reporter *stats.Reporter
	Notifier Notifier
	Answerer CallbackAnswerer
	Currency string
	Logger   *slog.Logger
}

// NewRouter builds a router.
func NewRouter(d Deps) *Router {
	return &Router{
		resolver: d.Resolver,
		engine:   d.Engine,
		expenses: d.Expenses,
		ledger:   d.Ledger,
		reporter: d.Reporter,
		notifier: d.Notifier,
		answerer: d.Answerer,
		currency: d.Currency,
		logger:   d.Logger,
	}
}

// Handle implements transport.Handler.
func (r *Router) Handle(ctx context.Context, ev transport.Event) {
	logger := r.logger.With("identity", ev.Identity.Key(), "update_id", ev.UpdateID)
	toast := ""
	defer func() {
		if ev.CallbackID == "" || r.answerer == nil {
			return
		}
		if err := r.answerer.AnswerCallback(ctx, ev.CallbackID, toast); err != nil {
			logger.Warn("answer callback failed", "error", err)
		}
	}()

	account, err := r.resolver.Resolve(ctx, ev.Identity)
	if errors.Is(err, identity.ErrUnauthorized) {
		logger.Info("unauthorized identity rejected", "handle", ev.Identity.Handle)
		r.reply(ctx, ev.ChatID, conversation.Reply{Text: "Sorry, you are not allowed to use this bot."})
		return
	}
	if err != nil {
		logger.Error("resolve identity failed", "error", err)
		r.reply(ctx, ev.ChatID, conversation.Reply{Text: "Service is temporarily unavailable, try again later."})
		return
	}

	if command.AdminOnly(ev.Command) && account.Role != identity.RoleAdmin {
		toast = "Not allowed"
		r.reply(ctx, ev.ChatID, conversation.Reply{Text: "This action is for the approver only."})
		return
	}

	reply, err := r.dispatch(ctx, account, ev.Command)
	if err != nil {
		logger.Error("command failed", "command", fmt.Sprintf("%T", ev.Command), "error", err)
	}
	r.reply(ctx, ev.ChatID, reply)
}

func (r *Router) dispatch(ctx context.Context, account identity.Account, cmd command.Command) (conversation.Reply, error) {
	switch c := cmd.(type) {
	case command.Start, command.Help:
		return r.menu(account), nil
	case command.Cancel:
		return r.engine.Cancel(ctx, account)
	case command.Balance:
		balance, err := r.ledger.Balance(ctx, account.Key)
		if err != nil {
			return conversation.Reply{Text: "Could not read your balance, try again later."}, err
		}
		return conversation.Reply{Text: fmt.Sprintf("Your balance: %s %s", money.Format(balance), r.currency)}, nil
	case command.ReportExpense:
		return r.start(ctx, account, conversation.KindExpense)
	case command.ReportIncome:
		return r.start(ctx, account, conversation.KindIncome)
	case command.GiveMoney:
		return r.start(ctx, account, conversation.KindTransfer)
	case command.Stats:
		report, err := r.reporter.Build(ctx)
		if err != nil {
			return conversation.Reply{Text: "Could not build statistics, try again later."}, err
		}
		return conversation.Reply{Text: report.Text(r.currency)}, nil
	case command.Pending:
		sent, err := r.expenses.Remind(ctx, account)
		if err != nil {
			return conversation.Reply{Text: "Could not list unsettled expenses, try again later."}, err
		}
		if sent == 0 {
			return conversation.Reply{Text: "No expenses awaiting settlement."}, nil
		}
		return conversation.Reply{}, nil
	case command.Settle:
		return r.approval(ctx, account, c.ExpenseID, r.expenses.Settle, "marked paid")
	case command.Defer:
		return r.approval(ctx, account, c.ExpenseID, r.expenses.Defer, "marked due")
	case command.ChooseCategory:
		return r.input(ctx, account, command.Input{Text: c.Name})
	case command.Input:
		return r.input(ctx, account, c)
	}
	return conversation.Reply{}, fmt.Errorf("unhandled command %T", cmd)
}

func (r *Router) start(ctx context.Context, account identity.Account, kind conversation.Kind) (conversation.Reply, error) {
	reply, err := r.engine.Start(ctx, account, kind)
	if errors.Is(err, conversation.ErrForbidden) {
		return conversation.Reply{Text: "This action is not available for your role."}, nil
	}
	if err != nil {
		return conversation.Reply{Text: "Could not start, try again later."}, err
	}
	return reply, nil
}

func (r *Router) input(ctx context.Context, account identity.Account, in command.Input) (conversation.Reply, error) {
	reply, err := r.engine.Handle(ctx, account, in)
	if errors.Is(err, conversation.ErrNoDialog) {
		return r.menu(account), nil
	}
	if err != nil && reply.Text == "" {
		reply.Text = "Something went wrong, please start again."
	}
	return reply, err
}

type approvalFunc func(ctx context.Context, id string, approver identity.Account) (expense.Expense, error)

func (r *Router) approval(ctx context.Context, account identity.Account, id string, action approvalFunc, done string) (conversation.Reply, error) {
	e, err := action(ctx, id, account)
	switch {
	case err == nil:
		return conversation.Reply{Text: fmt.Sprintf("Expense of %s %s %s.", money.Format(e.Amount), r.currency, done)}, nil
	case errors.Is(err, expense.ErrAlreadySettled):
		return conversation.Reply{Text: "This expense is already settled."}, nil
	case errors.Is(err, expense.ErrNotFound):
		return conversation.Reply{Text: "Expense not found."}, nil
	case errors.Is(err, expense.ErrForbidden):
		return conversation.Reply{Text: "This action is for the approver only."}, nil
	case errors.Is(err, ledger.ErrTransferPartialFailure):
		return conversation.Reply{Text: "Settlement was only partially applied and needs manual reconciliation."}, err
	}
	return conversation.Reply{Text: "Could not update the expense, nothing was changed."}, err
}

func (r *Router) menu(account identity.Account) conversation.Reply {
	balance := notification.Button{Text: "Balance", Data: command.DataBalance}
	if account.Role == identity.RoleAdmin {
		return conversation.Reply{
			Text: "Approver menu.",
			Buttons: [][]notification.Button{
				{{Text: "Give money", Data: command.DataGiveMoney}, {Text: "Statistics", Data: command.DataStats}},
				{{Text: "Unsettled", Data: command.DataPending}, balance},
			},
		}
	}
	return conversation.Reply{
		Text: fmt.Sprintf("Hi %s! What would you like to report?", account.Mention()),
		Buttons: [][]notification.Button{
			{{Text: "I spent", Data: command.DataReportExpense}, {Text: "I received", Data: command.DataReportIncome}},
			{balance},
		},
	}
}

func (r *Router) reply(ctx context.Context, chatID int64, reply conversation.Reply) {
	if reply.Text == "" {
		return
	}
	r.notifier.Notify(ctx, notification.Message{
		Kind:    notification.KindReply,
		ChatID:  chatID,
		Text:    reply.Text,
		Buttons: reply.Buttons,
	})
}
