package identity

import (
	"strconv"
	"time"
)

// Role controls which dialogs and actions an account may use.
type Role string

const (
	// RoleAdmin is the single approver who settles expenses and hands out money.
	RoleAdmin Role = "admin"
	// RoleIT members must pick a category for every expense.
	RoleIT Role = "it"
	// RoleHR members report expenses without a category.
	RoleHR Role = "hr"
)

// RequiresCategory reports whether expenses of this role carry a category.
func (r Role) RequiresCategory() bool {
	return r == RoleIT
}

// IsMember reports whether the role submits expenses and income.
func (r Role) IsMember() bool {
	return r == RoleIT || r == RoleHR
}

// Identity is the external chat identity attached to every inbound event.
type Identity struct {
	ID     int64
	Handle string
}

// Key is the stable account key derived from the numeric id.
func (i Identity) Key() string {
	return AccountKey(i.ID)
}

// AccountKey formats the stable account key for a Telegram user id.
func AccountKey(id int64) string {
	return "tg:" + strconv.FormatInt(id, 10)
}

// Account is the durable record of an authorized identity.
type Account struct {
	Key        string
	TelegramID int64
	Handle     string
	Role       Role
	CreatedAt  time.Time
}

// Mention renders the account the way chat users refer to each other.
func (a Account) Mention() string {
	if a.Handle != "" {
		return "@" + a.Handle
	}
	return "id" + strconv.FormatInt(a.TelegramID, 10)
}
