package expense

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	expenses map[string]Expense
}

// NewMemoryRepository constructs a map-backed repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{expenses: make(map[string]Expense)}
}

func (r *memoryRepository) Create(_ context.Context, e Expense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.expenses[e.ID]; exists {
		return fmt.Errorf("expense %s already exists", e.ID)
	}
	r.expenses[e.ID] = e
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Expense, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.expenses[id]
	if !ok {
		return Expense{}, ErrNotFound
	}
	return e, nil
}

func (r *memoryRepository) Transition(_ context.Context, id string, from []Status, change Change) (Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.expenses[id]
	if !ok {
		return Expense{}, ErrNotFound
	}
	allowed := false
	for _, s := range from {
		if e.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return Expense{}, ErrStatusConflict
	}
	e.Status = change.Status
	e.ApproverKey = change.ApproverKey
	e.SettledAt = change.SettledAt
	r.expenses[id] = e
	return e, nil
}

func (r *memoryRepository) List(_ context.Context, filter Filter) ([]Expense, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Expense, 0, len(r.expenses))
	for _, e := range r.expenses {
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
