package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/buhgalteriya/buhgalteriya/internal/config"
	"github.com/buhgalteriya/buhgalteriya/internal/keylock"
)

// ErrUnauthorized is returned for identities that are not on the roster.
var ErrUnauthorized = errors.New("unauthorized")

// Provisioner opens a ledger account for a newly created identity.
type Provisioner interface {
	EnsureAccount(ctx context.Context, key string) error
}

// Service resolves chat identities into accounts.
type Service struct {
	repo   Repository
	ledger Provisioner
	roster config.Roster
	locks  *keylock.Locker
	now    func() time.Time
}

// NewService creates a resolver backed by repo. The roster is copied and never mutated.
func NewService(repo Repository, ledger Provisioner, roster config.Roster) *Service {
	return &Service{
		repo:   repo,
		ledger: ledger,
		roster: roster,
		locks:  keylock.New(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Resolve returns the account for the identity, creating it with a zero
// balance on first contact. Identities outside the roster get ErrUnauthorized
// and leave no state behind.
func (s *Service) Resolve(ctx context.Context, id Identity) (Account, error) {
	key := id.Key()
	unlock := s.locks.Lock(key)
	defer unlock()

	account, err := s.repo.FindByKey(ctx, key)
	switch {
	case err == nil:
		if id.Handle != "" && id.Handle != account.Handle {
			if err := s.repo.UpdateHandle(ctx, key, id.Handle); err != nil {
				return Account{}, fmt.Errorf("update handle: %w", err)
			}
			account.Handle = id.Handle
		}
		// the ledger side may be missing if a previous creation failed halfway
		if err := s.ledger.EnsureAccount(ctx, key); err != nil {
			return Account{}, fmt.Errorf("ensure ledger account: %w", err)
		}
		return account, nil
	case !errors.Is(err, ErrNotFound):
		return Account{}, fmt.Errorf("find account: %w", err)
	}

	role, ok := s.RoleOf(id)
	if !ok {
		return Account{}, ErrUnauthorized
	}

	account = Account{
		Key:        key,
		TelegramID: id.ID,
		Handle:     id.Handle,
		Role:       role,
		CreatedAt:  s.now(),
	}
	if err := s.repo.Create(ctx, account); err != nil {
		if !errors.Is(err, ErrAccountExists) {
			return Account{}, fmt.Errorf("create account: %w", err)
		}
		// another process created it first
		if account, err = s.repo.FindByKey(ctx, key); err != nil {
			return Account{}, fmt.Errorf("find account: %w", err)
		}
	}
	if err := s.ledger.EnsureAccount(ctx, key); err != nil {
		return Account{}, fmt.Errorf("ensure ledger account: %w", err)
	}
	return account, nil
}

// RoleOf matches the identity against the roster by numeric id or handle.
func (s *Service) RoleOf(id Identity) (Role, bool) {
	switch {
	case matches(s.roster.Admin, id):
		return RoleAdmin, true
	case matchesAny(s.roster.IT, id):
		return RoleIT, true
	case matchesAny(s.roster.HR, id):
		return RoleHR, true
	}
	return "", false
}

// Get returns an existing account.
func (s *Service) Get(ctx context.Context, key string) (Account, error) {
	return s.repo.FindByKey(ctx, key)
}

// FindByHandle returns the account known under the handle.
func (s *Service) FindByHandle(ctx context.Context, handle string) (Account, error) {
	return s.repo.FindByHandle(ctx, config.NormalizeMember(handle))
}

// Approver returns the account the roster currently names as admin. Admin
// accounts left over from an earlier roster are ignored. Before the admin's
// first contact the account is synthesized from a numeric roster entry;
// a handle-only entry gives ErrNotFound until then.
func (s *Service) Approver(ctx context.Context) (Account, error) {
	admins, err := s.repo.FindByRole(ctx, RoleAdmin)
	if err != nil {
		return Account{}, err
	}
	for _, admin := range admins {
		if matches(s.roster.Admin, Identity{ID: admin.TelegramID, Handle: admin.Handle}) {
			return admin, nil
		}
	}
	id, err := strconv.ParseInt(config.NormalizeMember(s.roster.Admin), 10, 64)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return Account{Key: AccountKey(id), TelegramID: id, Role: RoleAdmin}, nil
}

// List returns all known accounts.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

func matchesAny(entries []string, id Identity) bool {
	for _, entry := range entries {
		if matches(entry, id) {
			return true
		}
	}
	return false
}

func matches(entry string, id Identity) bool {
	entry = config.NormalizeMember(entry)
	if entry == "" {
		return false
	}
	if n, err := strconv.ParseInt(entry, 10, 64); err == nil {
		return n == id.ID
	}
	return id.Handle != "" && entry == strings.ToLower(id.Handle)
}
