package notification

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher fans a message out to every configured notifier. Delivery
// failures are logged and never returned: a lost notification must not undo
// the ledger change that caused it.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewDispatcher builds a dispatcher over the given notifiers.
func NewDispatcher(logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, logger: logger}
}

// Notify delivers message. Messages without a chat id are dropped with a warning.
func (d *Dispatcher) Notify(ctx context.Context, message Message) {
	if d == nil {
		return
	}
	if message.ChatID == 0 {
		d.logger.Warn("notification without recipient dropped", "kind", message.Kind)
		return
	}

	var wg sync.WaitGroup
	for _, n := range d.notifiers {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			if err := n.Send(ctx, message); err != nil {
				d.logger.Error("notification delivery failed", "kind", message.Kind, "chat_id", message.ChatID, "error", err)
			}
		}(n)
	}
	wg.Wait()
}

// Recorder captures sent messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// FailWith makes every subsequent Send return err after recording the message.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Send implements Notifier.
func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return r.err
}

// Messages returns a snapshot of everything sent so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// To returns the messages addressed to chatID.
func (r *Recorder) To(chatID int64) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}
