package bot

import (
	"context"
	"sync"

	"github.com/buhgalteriya/buhgalteriya/internal/transport"
)

// Inbox processes events concurrently across identities while keeping the
// arrival order of events from one identity. Each identity with pending
// events gets one draining goroutine; it exits when the queue is empty.
type Inbox struct {
	base    context.Context
	handler transport.Handler

	mu     sync.Mutex
	queues map[int64][]transport.Event
	closed bool
	wg     sync.WaitGroup
}

// NewInbox builds an inbox. Events are handled with base as their context,
// detached from the request or poll that delivered them.
func NewInbox(base context.Context, handler transport.Handler) *Inbox {
	return &Inbox{base: base, handler: handler, queues: make(map[int64][]transport.Event)}
}

// Handle enqueues the event and returns immediately. It implements
// transport.Handler. Events arriving after Close are dropped.
func (i *Inbox) Handle(_ context.Context, ev transport.Event) {
	key := ev.Identity.ID

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	queue, draining := i.queues[key]
	i.queues[key] = append(queue, ev)
	if draining {
		return
	}
	i.wg.Add(1)
	go i.drain(key)
}

func (i *Inbox) drain(key int64) {
	defer i.wg.Done()
	for {
		i.mu.Lock()
		queue := i.queues[key]
		if len(queue) == 0 {
			delete(i.queues, key)
			i.mu.Unlock()
			return
		}
		ev := queue[0]
		i.queues[key] = queue[1:]
		i.mu.Unlock()

		i.handler.Handle(i.base, ev)
	}
}

// Close stops accepting events and waits for queued ones to finish.
func (i *Inbox) Close() {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	i.wg.Wait()
}
