package telegram

import (
	"github.com/buhgalteriya/buhgalteriya/internal/command"
	"github.com/buhgalteriya/buhgalteriya/internal/identity"
	"github.com/buhgalteriya/buhgalteriya/internal/transport"
)

// Update is the subset of the Bot API update object the bot understands.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// User is a Telegram account.
type User struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username,omitempty"`
}

// Chat is the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// PhotoSize is one resolution of a sent photo.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int    `json:"file_size,omitempty"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
}

// CallbackQuery is an inline button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// Event decodes the update. Updates from bots, service messages and unknown
// button payloads are reported as not ok; the caller should still acknowledge
// a callback so the client stops spinning.
func (u Update) Event() (transport.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		ev := transport.Event{
			UpdateID:   u.UpdateID,
			Identity:   identity.Identity{ID: q.From.ID, Handle: q.From.Username},
			ChatID:     q.From.ID,
			CallbackID: q.ID,
		}
		if q.Message != nil {
			ev.ChatID = q.Message.Chat.ID
		}
		cmd, ok := command.ParseCallback(q.Data)
		if !ok || q.From.IsBot {
			return ev, false
		}
		ev.Command = cmd
		return ev, true

	case u.Message != nil && u.Message.From != nil && !u.Message.From.IsBot:
		m := u.Message
		text, photo := m.Text, ""
		if len(m.Photo) > 0 {
			// sizes are ordered smallest first
			photo = m.Photo[len(m.Photo)-1].FileID
			text = m.Caption
		}
		if text == "" && photo == "" {
			return transport.Event{}, false
		}
		return transport.Event{
			UpdateID: u.UpdateID,
			Identity: identity.Identity{ID: m.From.ID, Handle: m.From.Username},
			ChatID:   m.Chat.ID,
			Command:  command.ParseMessage(text, photo),
		}, true
	}
	return transport.Event{}, false
}
