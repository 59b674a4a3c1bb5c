package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/buhgalteriya/buhgalteriya/internal/transport"
)

// UpdateSource yields batches of updates.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error)
}

// CallbackAnswerer acknowledges button presses.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Poller pulls updates with long polling and hands them to a handler.
type Poller struct {
	source   UpdateSource
	answerer CallbackAnswerer
	handler  transport.Handler
	wait     time.Duration
	backoff  time.Duration
	logger   *slog.Logger
}

// NewPoller builds a long-polling loop.
func NewPoller(source UpdateSource, answerer CallbackAnswerer, handler transport.Handler, wait time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		source:   source,
		answerer: answerer,
		handler:  handler,
		wait:     wait,
		backoff:  3 * time.Second,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	for {
		updates, err := p.source.GetUpdates(ctx, offset, p.wait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("get updates failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			Dispatch(ctx, u, p.handler, p.answerer, p.logger)
		}
	}
}

// Dispatch decodes one update and passes it on. Undecodable button presses are
// acknowledged here so the client does not keep waiting.
func Dispatch(ctx context.Context, u Update, handler transport.Handler, answerer CallbackAnswerer, logger *slog.Logger) {
	ev, ok := u.Event()
	if !ok {
		if ev.CallbackID != "" && answerer != nil {
			if err := answerer.AnswerCallback(ctx, ev.CallbackID, "Unknown action"); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("answer callback failed", "error", err)
			}
		}
		return
	}
	handler.Handle(ctx, ev)
}
