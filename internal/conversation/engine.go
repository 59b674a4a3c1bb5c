package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/buhgalteriya/buhgalteriya/internal/command"
	"github.com/buhgalteriya/buhgalteriya/internal/expense"
	"github.com/buhgalteriya/buhgalteriya/internal/identity"
	"github.com/buhgalteriya/buhgalteriya/internal/keylock"
	"github.com/buhgalteriya/buhgalteriya/internal/money"
	"github.com/buhgalteriya/buhgalteriya/internal/notification"
)

var (
	// ErrForbidden is returned when the role may not open the requested dialog.
	ErrForbidden = errors.New("dialog not available for this role")
	// ErrNoDialog is returned for input that arrives while no dialog is open.
	ErrNoDialog = errors.New("no dialog in progress")
)

// maxSuggestDistance bounds how far a mistyped category may be from a known one
// to still be suggested.
const maxSuggestDistance = 2

var (
	noProofTokens = map[string]bool{"no": true, "нет": true, "none": true, "ні": true}
	cashTokens    = map[string]bool{"cash": true, "наличка": true, "нал": true, "готівка": true}
)

// Reply is what the engine wants said back to the user.
type Reply struct {
	Text    string
	Buttons [][]notification.Button
}

// Submission is a completed dialog handed to the Finalizer.
type Submission struct {
	Kind      Kind
	Account   identity.Account
	Amount    decimal.Decimal
	Category  string
	Proof     expense.Proof
	Note      string
	Recipient identity.Account
}

// Finalizer turns a completed dialog into ledger and expense effects and
// returns the confirmation shown to the user.
type Finalizer interface {
	Finalize(ctx context.Context, sub Submission) (string, error)
}

// Directory finds the recipient of a transfer dialog.
type Directory interface {
	Get(ctx context.Context, key string) (identity.Account, error)
	FindByHandle(ctx context.Context, handle string) (identity.Account, error)
}

// Engine drives the submission dialogs. Calls for one account are serialized;
// calls for different accounts run in parallel.
type Engine struct {
	store      Store
	finalizer  Finalizer
	directory  Directory
	categories []string
	locks      *keylock.Locker
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine builds a dialog engine.
func NewEngine(store Store, finalizer Finalizer, directory Directory, categories []string, logger *slog.Logger) *Engine {
	return &Engine{
		store:      store,
		finalizer:  finalizer,
		directory:  directory,
		categories: categories,
		locks:      keylock.New(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start opens a dialog, discarding any dialog already in progress.
func (e *Engine) Start(ctx context.Context, account identity.Account, kind Kind) (Reply, error) {
	switch kind {
	case KindExpense, KindIncome:
		if !account.Role.IsMember() {
			return Reply{}, ErrForbidden
		}
	case KindTransfer:
		if account.Role != identity.RoleAdmin {
			return Reply{}, ErrForbidden
		}
	default:
		return Reply{}, fmt.Errorf("unknown dialog kind %q", kind)
	}

	unlock := e.locks.Lock(account.Key)
	defer unlock()

	st := State{Kind: kind, StartedAt: e.now()}
	switch {
	case kind == KindTransfer:
		st.Step = StepAwaitingRecipient
	case kind == KindExpense && account.Role.RequiresCategory():
		st.Step = StepAwaitingCategory
	default:
		st.Step = StepAwaitingAmount
	}
	if err := e.store.Put(ctx, account.Key, st); err != nil {
		return Reply{}, fmt.Errorf("save dialog: %w", err)
	}
	e.logger.Debug("dialog started", "identity", account.Key, "kind", kind, "step", st.Step)
	return e.prompt(st), nil
}

// Cancel drops the dialog in progress, if any.
func (e *Engine) Cancel(ctx context.Context, account identity.Account) (Reply, error) {
	unlock := e.locks.Lock(account.Key)
	defer unlock()

	_, ok, err := e.store.Get(ctx, account.Key)
	if err != nil {
		return Reply{}, fmt.Errorf("load dialog: %w", err)
	}
	if !ok {
		return Reply{Text: "Nothing to cancel."}, nil
	}
	if err := e.store.Delete(ctx, account.Key); err != nil {
		return Reply{}, fmt.Errorf("drop dialog: %w", err)
	}
	return Reply{Text: "Cancelled."}, nil
}

// Current returns the dialog state of key.
func (e *Engine) Current(ctx context.Context, key string) (State, bool, error) {
	return e.store.Get(ctx, key)
}

// Handle feeds one message into the open dialog. Invalid input re-prompts and
// leaves the state as it was. When the dialog completes it is cleared before
// the finalizer runs, so a failed finalization never leaves it stuck.
func (e *Engine) Handle(ctx context.Context, account identity.Account, in command.Input) (Reply, error) {
	unlock := e.locks.Lock(account.Key)
	defer unlock()

	st, ok, err := e.store.Get(ctx, account.Key)
	if err != nil {
		return Reply{}, fmt.Errorf("load dialog: %w", err)
	}
	if !ok || st.Step == StepIdle {
		return Reply{}, ErrNoDialog
	}

	switch st.Step {
	case StepAwaitingCategory:
		category, ok := e.matchCategory(in.Text)
		if !ok {
			return e.categoryRetry(in.Text), nil
		}
		st.Category = category
		st.Step = StepAwaitingAmount
		return e.advance(ctx, account, st)

	case StepAwaitingRecipient:
		recipient, err := e.findRecipient(ctx, account, in.Text)
		if err != nil {
			return Reply{}, err
		}
		if recipient.Key == "" {
			return Reply{Text: "I don't know that member. Send their @username."}, nil
		}
		st.RecipientKey = recipient.Key
		st.RecipientHandle = recipient.Handle
		st.Step = StepAwaitingAmount
		return e.advance(ctx, account, st)

	case StepAwaitingAmount:
		amount, err := money.Parse(in.Text)
		if err != nil {
			return Reply{Text: "That is not a valid amount. Send a positive number, e.g. 250,50."}, nil
		}
		st.Amount = amount
		if st.Kind == KindExpense {
			st.Step = StepAwaitingProof
			return e.advance(ctx, account, st)
		}
		return e.finish(ctx, account, st, Submission{})

	case StepAwaitingProof:
		if in.ImageFileID != "" {
			return e.finish(ctx, account, st, Submission{
				Proof: expense.Proof{Kind: expense.ProofImage, FileID: in.ImageFileID},
				Note:  in.Text,
			})
		}
		token, note := splitProof(in.Text)
		switch {
		case noProofTokens[token]:
			return e.finish(ctx, account, st, Submission{Note: note})
		case cashTokens[token]:
			return e.finish(ctx, account, st, Submission{Proof: expense.Proof{Kind: expense.ProofCash}, Note: note})
		}
		return Reply{Text: "Send a photo of the receipt, \"cash\" for a cash payment, or \"no\" if there is none."}, nil
	}
	return Reply{}, fmt.Errorf("dialog in unknown step %q", st.Step)
}

func (e *Engine) advance(ctx context.Context, account identity.Account, st State) (Reply, error) {
	if err := e.store.Put(ctx, account.Key, st); err != nil {
		return Reply{}, fmt.Errorf("save dialog: %w", err)
	}
	return e.prompt(st), nil
}

func (e *Engine) finish(ctx context.Context, account identity.Account, st State, sub Submission) (Reply, error) {
	if err := e.store.Delete(ctx, account.Key); err != nil {
		return Reply{}, fmt.Errorf("drop dialog: %w", err)
	}

	sub.Kind = st.Kind
	sub.Account = account
	sub.Amount = st.Amount
	sub.Category = st.Category
	if st.Kind == KindTransfer {
		recipient, err := e.directory.Get(ctx, st.RecipientKey)
		if err != nil {
			return Reply{Text: "The recipient is no longer available. Start again."},
				fmt.Errorf("reload recipient %s: %w", st.RecipientKey, err)
		}
		sub.Recipient = recipient
	}

	text, err := e.finalizer.Finalize(ctx, sub)
	if err != nil {
		e.logger.Error("dialog finalization failed", "identity", account.Key, "kind", st.Kind, "error", err)
		return Reply{Text: "Could not record that, nothing was saved. Please start again."},
			fmt.Errorf("finalize %s: %w", st.Kind, err)
	}
	return Reply{Text: text}, nil
}

func (e *Engine) prompt(st State) Reply {
	switch st.Step {
	case StepAwaitingCategory:
		return Reply{Text: "Choose a category:", Buttons: e.categoryButtons()}
	case StepAwaitingRecipient:
		return Reply{Text: "Who gets the money? Send their @username."}
	case StepAwaitingAmount:
		switch st.Kind {
		case KindIncome:
			return Reply{Text: "How much did you receive?"}
		case KindTransfer:
			return Reply{Text: fmt.Sprintf("How much are you giving @%s?", st.RecipientHandle)}
		}
		return Reply{Text: "How much did you spend?"}
	case StepAwaitingProof:
		return Reply{Text: "Send a photo of the receipt, \"cash\" for a cash payment, or \"no\" if there is none."}
	}
	return Reply{}
}

func (e *Engine) categoryButtons() [][]notification.Button {
	var rows [][]notification.Button
	for i := 0; i < len(e.categories); i += 2 {
		var row []notification.Button
		for _, name := range e.categories[i:min(i+2, len(e.categories))] {
			row = append(row, notification.Button{Text: name, Data: command.CategoryData(name)})
		}
		rows = append(rows, row)
	}
	return rows
}

func (e *Engine) matchCategory(text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, name := range e.categories {
		if strings.EqualFold(name, text) {
			return name, true
		}
	}
	return "", false
}

func (e *Engine) categoryRetry(text string) Reply {
	reply := Reply{Text: "Unknown category. Choose one of the buttons:", Buttons: e.categoryButtons()}
	if suggestion, ok := e.suggestCategory(text); ok {
		reply.Text = fmt.Sprintf("Unknown category. Did you mean %s?", suggestion)
	}
	return reply
}

func (e *Engine) suggestCategory(text string) (string, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", false
	}
	best, bestDistance := "", maxSuggestDistance+1
	for _, name := range e.categories {
		if d := levenshtein.ComputeDistance(text, strings.ToLower(name)); d < bestDistance {
			best, bestDistance = name, d
		}
	}
	return best, best != ""
}

// findRecipient returns a zero Account when the handle does not name a member.
func (e *Engine) findRecipient(ctx context.Context, account identity.Account, text string) (identity.Account, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(text), "@")
	if handle == "" || strings.ContainsAny(handle, " \t\n") {
		return identity.Account{}, nil
	}
	recipient, err := e.directory.FindByHandle(ctx, handle)
	if errors.Is(err, identity.ErrNotFound) {
		return identity.Account{}, nil
	}
	if err != nil {
		return identity.Account{}, fmt.Errorf("find recipient: %w", err)
	}
	if recipient.Key == account.Key || !recipient.Role.IsMember() {
		return identity.Account{}, nil
	}
	return recipient, nil
}

// splitProof separates the leading proof word from a trailing comment, so
// "нет, таксі" reads as no proof with the note "таксі".
func splitProof(text string) (token, note string) {
	text = strings.TrimSpace(text)
	end := strings.IndexFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(",;:-", r)
	})
	if end < 0 {
		end = len(text)
	}
	token = strings.ToLower(strings.Trim(text[:end], ".!"))
	note = strings.TrimSpace(strings.TrimLeft(text[end:], ",;:- \t\n"))
	return token, note
}
