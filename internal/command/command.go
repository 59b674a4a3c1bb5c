package command

import "strings"

// Command is the closed set of actions a chat user can trigger. Inbound
// messages and button presses are decoded into one of these exactly once, at
// the transport boundary.
type Command interface {
	command()
}

type (
	// Start greets the user and shows the role menu.
	Start struct{}
	// Help repeats the role menu.
	Help struct{}
	// Cancel drops any dialog in progress.
	Cancel struct{}
	// Balance reports the caller's balance.
	Balance struct{}
	// ReportExpense starts the expense dialog.
	ReportExpense struct{}
	// ReportIncome starts the income dialog.
	ReportIncome struct{}
	// GiveMoney starts the approver's transfer dialog.
	GiveMoney struct{}
	// Stats shows the approver dashboard.
	Stats struct{}
	// Pending re-sends the settlement prompt for every unsettled expense.
	Pending struct{}
	// Settle marks an expense paid.
	Settle struct{ ExpenseID string }
	// Defer marks an expense due.
	Defer struct{ ExpenseID string }
	// ChooseCategory answers the category step of the expense dialog.
	ChooseCategory struct{ Name string }
	// Input is free text or a photo feeding the current dialog step.
	Input struct {
		Text        string
		ImageFileID string
	}
)

func (Start) command()          {}
func (Help) command()           {}
func (Cancel) command()         {}
func (Balance) command()        {}
func (ReportExpense) command()  {}
func (ReportIncome) command()   {}
func (GiveMoney) command()      {}
func (Stats) command()          {}
func (Pending) command()        {}
func (Settle) command()         {}
func (Defer) command()          {}
func (ChooseCategory) command() {}
func (Input) command()          {}

// Button payloads.
const (
	DataReportExpense = "expense:new"
	DataReportIncome  = "income:new"
	DataBalance       = "balance"
	DataGiveMoney     = "admin:give"
	DataStats         = "admin:stats"
	DataPending       = "admin:pending"
	DataCancel        = "cancel"

	settlePrefix   = "admin:paid:"
	deferPrefix    = "admin:due:"
	categoryPrefix = "category:"
)

// SettleData is the button payload that settles expenseID.
func SettleData(expenseID string) string { return settlePrefix + expenseID }

// DeferData is the button payload that defers expenseID.
func DeferData(expenseID string) string { return deferPrefix + expenseID }

// CategoryData is the button payload that picks category name.
func CategoryData(name string) string { return categoryPrefix + name }

var slashCommands = map[string]Command{
	"/start":    Start{},
	"/help":     Help{},
	"/cancel":   Cancel{},
	"/balance":  Balance{},
	"/spent":    ReportExpense{},
	"/expense":  ReportExpense{},
	"/received": ReportIncome{},
	"/income":   ReportIncome{},
	"/give":     GiveMoney{},
	"/stats":    Stats{},
	"/pending":  Pending{},
}

// ParseMessage decodes a chat message. Slash commands map to their command;
// everything else, including unknown slash commands, is dialog input.
func ParseMessage(text, imageFileID string) Command {
	trimmed := strings.TrimSpace(text)
	if imageFileID == "" && strings.HasPrefix(trimmed, "/") {
		name := strings.Fields(trimmed)[0]
		// group chats address commands as /cmd@botname
		if at := strings.IndexByte(name, '@'); at > 0 {
			name = name[:at]
		}
		if cmd, ok := slashCommands[strings.ToLower(name)]; ok {
			return cmd
		}
	}
	return Input{Text: trimmed, ImageFileID: imageFileID}
}

// ParseCallback decodes a button payload. Unknown payloads report false.
func ParseCallback(data string) (Command, bool) {
	switch data {
	case DataReportExpense:
		return ReportExpense{}, true
	case DataReportIncome:
		return ReportIncome{}, true
	case DataBalance:
		return Balance{}, true
	case DataGiveMoney:
		return GiveMoney{}, true
	case DataStats:
		return Stats{}, true
	case DataPending:
		return Pending{}, true
	case DataCancel:
		return Cancel{}, true
	}

	switch {
	case strings.HasPrefix(data, settlePrefix):
		if id := strings.TrimPrefix(data, settlePrefix); id != "" {
			return Settle{ExpenseID: id}, true
		}
	case strings.HasPrefix(data, deferPrefix):
		if id := strings.TrimPrefix(data, deferPrefix); id != "" {
			return Defer{ExpenseID: id}, true
		}
	case strings.HasPrefix(data, categoryPrefix):
		if name := strings.TrimPrefix(data, categoryPrefix); name != "" {
			return ChooseCategory{Name: name}, true
		}
	}
	return nil, false
}

// AdminOnly reports whether cmd is reserved for the approver.
func AdminOnly(cmd Command) bool {
	switch cmd.(type) {
	case GiveMoney, Stats, Pending, Settle, Defer:
		return true
	}
	return false
}
