package stats

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/buhgalteriya/buhgalteriya/internal/expense"
	"github.com/buhgalteriya/buhgalteriya/internal/identity"
	"github.com/buhgalteriya/buhgalteriya/internal/ledger"
	"github.com/buhgalteriya/buhgalteriya/internal/money"
)

// AccountLister lists the known accounts.
type AccountLister interface {
	List(ctx context.Context) ([]identity.Account, error)
}

// ExpenseLister lists expense records.
type ExpenseLister interface {
	List(ctx context.Context, filter expense.Filter) ([]expense.Expense, error)
}

// AccountTotals aggregates the postings of one account.
type AccountTotals struct {
	Key          string          `json:"account_key"`
	Handle       string          `json:"handle,omitempty"`
	Role         identity.Role   `json:"role"`
	Balance      decimal.Decimal `json:"balance"`
	Credits      decimal.Decimal `json:"credits"`
	Debits       decimal.Decimal `json:"debits"`
	Transactions int             `json:"transactions"`

	mention string
}

// StatusTotals counts expenses in one status.
type StatusTotals struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Report is the approver dashboard.
type Report struct {
	Accounts     []AccountTotals                 `json:"accounts"`
	TotalBalance decimal.Decimal                 `json:"total_balance"`
	TotalCredits decimal.Decimal                 `json:"total_credits"`
	TotalDebits  decimal.Decimal                 `json:"total_debits"`
	Expenses     map[expense.Status]StatusTotals `json:"expenses"`
	GeneratedAt  time.Time                       `json:"generated_at"`
}

// Reporter aggregates the transaction log and expense records. It never writes.
type Reporter struct {
	accounts AccountLister
	ledger   ledger.Ledger
	expenses ExpenseLister
	now      func() time.Time
}

// NewReporter builds a reporter.
func NewReporter(accounts AccountLister, l ledger.Ledger, expenses ExpenseLister) *Reporter {
	return &Reporter{
		accounts: accounts,
		ledger:   l,
		expenses: expenses,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Build computes the report. Per-account balances are derived from the
// transaction log, not read from the cached balance.
func (r *Reporter) Build(ctx context.Context) (Report, error) {
	accounts, err := r.accounts.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list accounts: %w", err)
	}
	txs, err := r.ledger.Transactions(ctx, "")
	if err != nil {
		return Report{}, fmt.Errorf("list transactions: %w", err)
	}

	byKey := make(map[string]*AccountTotals, len(accounts))
	report := Report{GeneratedAt: r.now(), Expenses: make(map[expense.Status]StatusTotals)}
	for _, acc := range accounts {
		byKey[acc.Key] = &AccountTotals{Key: acc.Key, Handle: acc.Handle, Role: acc.Role, mention: acc.Mention()}
	}
	for _, tx := range txs {
		line, ok := byKey[tx.AccountKey]
		if !ok {
			line = &AccountTotals{Key: tx.AccountKey, mention: tx.AccountKey}
			byKey[tx.AccountKey] = line
		}
		line.Balance = line.Balance.Add(tx.Amount)
		line.Transactions++
		if tx.Amount.IsNegative() {
			line.Debits = line.Debits.Add(tx.Amount.Neg())
			report.TotalDebits = report.TotalDebits.Add(tx.Amount.Neg())
		} else {
			line.Credits = line.Credits.Add(tx.Amount)
			report.TotalCredits = report.TotalCredits.Add(tx.Amount)
		}
		report.TotalBalance = report.TotalBalance.Add(tx.Amount)
	}

	for _, line := range byKey {
		report.Accounts = append(report.Accounts, *line)
	}
	sort.Slice(report.Accounts, func(i, j int) bool {
		return report.Accounts[i].Key < report.Accounts[j].Key
	})

	if r.expenses != nil {
		all, err := r.expenses.List(ctx, expense.Filter{})
		if err != nil {
			return Report{}, fmt.Errorf("list expenses: %w", err)
		}
		for _, e := range all {
			totals := report.Expenses[e.Status]
			totals.Count++
			totals.Amount = totals.Amount.Add(e.Amount)
			report.Expenses[e.Status] = totals
		}
	}
	return report, nil
}

// Text renders the report for a chat message.
func (r Report) Text(currency string) string {
	var b strings.Builder
	b.WriteString("Balances:\n")
	for _, line := range r.Accounts {
		fmt.Fprintf(&b, "%s: %s %s (in %s, out %s)\n", line.mention, money.Format(line.Balance), currency,
			money.Format(line.Credits), money.Format(line.Debits))
	}
	fmt.Fprintf(&b, "Total: %s %s\n", money.Format(r.TotalBalance), currency)

	for _, status := range []expense.Status{expense.StatusPending, expense.StatusDue, expense.StatusPaid} {
		totals := r.Expenses[status]
		fmt.Fprintf(&b, "\n%s: %d (%s %s)", status, totals.Count, money.Format(totals.Amount), currency)
	}
	return b.String()
}
