package transport

import (
	"context"

	"github.com/buhgalteriya/buhgalteriya/internal/command"
	"github.com/buhgalteriya/buhgalteriya/internal/identity"
)

// Event is one inbound message or button press, already decoded into a command.
type Event struct {
	UpdateID   int64
	Identity   identity.Identity
	ChatID     int64
	Command    command.Command
	CallbackID string
}

// Handler consumes inbound events.
type Handler interface {
	Handle(ctx context.Context, event Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, event Event) { f(ctx, event) }
