package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryRepository builds an in-memory account store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[account.Key]; exists {
		return ErrAccountExists
	}
	r.accounts[account.Key] = account
	return nil
}

func (r *memoryRepository) FindByKey(_ context.Context, key string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[key]
	if !ok {
		return Account{}, ErrNotFound
	}
	return account, nil
}

func (r *memoryRepository) FindByHandle(_ context.Context, handle string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, account := range r.accounts {
		if account.Handle != "" && strings.EqualFold(account.Handle, handle) {
			return account, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *memoryRepository) FindByRole(ctx context.Context, role Role) ([]Account, error) {
	all, _ := r.List(ctx)
	var out []Account
	for _, account := range all {
		if account.Role == role {
			out = append(out, account)
		}
	}
	return out, nil
}

func (r *memoryRepository) UpdateHandle(_ context.Context, key, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[key]
	if !ok {
		return ErrNotFound
	}
	account.Handle = handle
	r.accounts[key] = account
	return nil
}

func (r *memoryRepository) List(_ context.Context) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
