package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/buhgalteriya/buhgalteriya/internal/command"
	"github.com/buhgalteriya/buhgalteriya/internal/logging"
	"github.com/buhgalteriya/buhgalteriya/internal/notification"
	"github.com/buhgalteriya/buhgalteriya/internal/transport"
)

func decode(t *testing.T, raw string) Update {
	t.Helper()
	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	return u
}

func TestUpdateEventText(t *testing.T) {
	u := decode(t, `{"update_id": 10, "message": {"message_id": 1, "from": {"id": 42, "username": "devops"},
		"chat": {"id": 42, "type": "private"}, "text": "/spent"}}`)

	ev, ok := u.Event()
	if !ok {
		t.Fatalf("expected event")
	}
	if ev.Identity.ID != 42 || ev.Identity.Handle != "devops" || ev.ChatID != 42 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if _, isExpense := ev.Command.(command.ReportExpense); !isExpense {
		t.Fatalf("expected report expense, got %#v", ev.Command)
	}
}

func TestUpdateEventPhotoUsesLargestSizeAndCaption(t *testing.T) {
	u := decode(t, `{"update_id": 11, "message": {"message_id": 2, "from": {"id": 42},
		"chat": {"id": 42, "type": "private"}, "caption": "lunch",
		"photo": [{"file_id": "small", "width": 90, "height": 90}, {"file_id": "big", "width": 800, "height": 800}]}}`)

	ev, ok := u.Event()
	if !ok {
		t.Fatalf("expected event")
	}
	if in, _ := ev.Command.(command.Input); in.ImageFileID != "big" || in.Text != "lunch" {
		t.Fatalf("unexpected input %#v", ev.Command)
	}
}

func TestUpdateEventCallback(t *testing.T) {
	u := decode(t, `{"update_id": 12, "callback_query": {"id": "cb-1", "from": {"id": 1, "username": "boss"},
		"message": {"message_id": 3, "chat": {"id": 1, "type": "private"}}, "data": "admin:paid:abc"}}`)

	ev, ok := u.Event()
	if !ok || ev.CallbackID != "cb-1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if cmd, _ := ev.Command.(command.Settle); cmd.ExpenseID != "abc" {
		t.Fatalf("expected settle abc, got %#v", ev.Command)
	}
}

func TestUpdateEventIgnoresBotsAndEmptyMessages(t *testing.T) {
	for _, raw := range []string{
		`{"update_id": 1, "message": {"message_id": 1, "from": {"id": 5, "is_bot": true}, "chat": {"id": 5}, "text": "hi"}}`,
		`{"update_id": 2, "message": {"message_id": 1, "from": {"id": 5}, "chat": {"id": 5}}}`,
		`{"update_id": 3}`,
	} {
		if _, ok := decode(t, raw).Event(); ok {
			t.Fatalf("expected %s to be ignored", raw)
		}
	}
}

type stubSource struct {
	mu      sync.Mutex
	batches [][]Update
	offsets []int64
}

func (s *stubSource) GetUpdates(ctx context.Context, offset int64, _ time.Duration) ([]Update, error) {
	s.mu.Lock()
	s.offsets = append(s.offsets, offset)
	if len(s.batches) == 0 {
		s.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	s.mu.Unlock()
	if batch == nil {
		return nil, errors.New("bad gateway")
	}
	return batch, nil
}

type answers struct {
	mu  sync.Mutex
	ids []string
}

func (a *answers) AnswerCallback(_ context.Context, id, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, id)
	return nil
}

func TestPollerAdvancesOffsetAndRetries(t *testing.T) {
	text := func(id int64) Update {
		return Update{UpdateID: id, Message: &Message{From: &User{ID: 7}, Chat: Chat{ID: 7}, Text: "1"}}
	}
	source := &stubSource{batches: [][]Update{
		{text(5), text(6)},
		nil,
		{text(7), {UpdateID: 8, CallbackQuery: &CallbackQuery{ID: "cb", From: User{ID: 7}, Data: "bogus"}}},
	}}
	ans := &answers{}

	ctx, cancel := context.WithCancel(context.Background())
	var handled []int64
	handler := transport.HandlerFunc(func(_ context.Context, ev transport.Event) {
		handled = append(handled, ev.UpdateID)
		if ev.UpdateID == 7 {
			cancel()
		}
	})
	p := NewPoller(source, ans, handler, time.Second, logging.Discard())
	p.backoff = time.Millisecond

	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(handled) != 3 || handled[2] != 7 {
		t.Fatalf("unexpected handled updates %v", handled)
	}
	source.mu.Lock()
	defer source.mu.Unlock()
	if source.offsets[1] != 7 || source.offsets[2] != 7 {
		t.Fatalf("expected offset 7 after first batch and retry, got %v", source.offsets)
	}
	if len(ans.ids) != 1 || ans.ids[0] != "cb" {
		t.Fatalf("expected unknown callback to be acknowledged, got %v", ans.ids)
	}
}

func TestMarkup(t *testing.T) {
	if markup(nil) != nil {
		t.Fatalf("expected no markup without buttons")
	}
	m := markup([][]notification.Button{{{Text: "Paid", Data: "admin:paid:1"}}})
	if m.InlineKeyboard[0][0].CallbackData != "admin:paid:1" {
		t.Fatalf("unexpected markup %+v", m)
	}
}
