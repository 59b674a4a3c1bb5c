package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/buhgalteriya/buhgalteriya/internal/logging"
)

func TestDispatcherFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	d := NewDispatcher(logging.Discard(), a, b)

	d.Notify(context.Background(), Message{Kind: KindReply, ChatID: 42, Text: "hi"})

	if len(a.To(42)) != 1 || len(b.To(42)) != 1 {
		t.Fatalf("expected both notifiers to receive the message")
	}
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	failing, ok := &Recorder{}, &Recorder{}
	failing.FailWith(errors.New("telegram down"))
	d := NewDispatcher(logging.Discard(), failing, ok)

	d.Notify(context.Background(), Message{Kind: KindExpenseSettled, ChatID: 7, Text: "paid"})

	if len(ok.To(7)) != 1 {
		t.Fatalf("a failing notifier must not block the others")
	}
}

func TestDispatcherDropsMessagesWithoutRecipient(t *testing.T) {
	r := &Recorder{}
	NewDispatcher(logging.Discard(), r).Notify(context.Background(), Message{Kind: KindReply, Text: "nobody"})
	if len(r.Messages()) != 0 {
		t.Fatalf("expected message to be dropped")
	}
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher
	d.Notify(context.Background(), Message{ChatID: 1})
}
