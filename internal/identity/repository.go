package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrAccountExists is returned when an account with the same key was already created.
	ErrAccountExists = errors.New("account exists")
)

// Repository persists accounts.
type Repository interface {
	Create(ctx context.Context, account Account) error
	FindByKey(ctx context.Context, key string) (Account, error)
	FindByHandle(ctx context.Context, handle string) (Account, error)
	FindByRole(ctx context.Context, role Role) ([]Account, error)
	UpdateHandle(ctx context.Context, key, handle string) error
	List(ctx context.Context) ([]Account, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `account_key, telegram_id, handle, role, created_at`

// Create inserts a new account.
func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	_, err := r.db.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
        VALUES ($1, $2, $3, $4, $5)`, account.Key, account.TelegramID, account.Handle, string(account.Role), account.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// FindByKey fetches an account by its stable key.
func (r *PostgresRepository) FindByKey(ctx context.Context, key string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_key = $1`, key)
	return scanAccount(row)
}

// FindByHandle fetches an account by its handle, ignoring case.
func (r *PostgresRepository) FindByHandle(ctx context.Context, handle string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(handle) = $1`, strings.ToLower(handle))
	return scanAccount(row)
}

// FindByRole lists accounts holding the role.
func (r *PostgresRepository) FindByRole(ctx context.Context, role Role) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE role = $1 ORDER BY created_at`, string(role))
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

// UpdateHandle stores the latest display handle seen for the account.
func (r *PostgresRepository) UpdateHandle(ctx context.Context, key, handle string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET handle = $1 WHERE account_key = $2`, handle, key)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every account ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		account   Account
		role      string
		createdAt time.Time
	)
	if err := row.Scan(&account.Key, &account.TelegramID, &account.Handle, &role, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	account.Role = Role(role)
	account.CreatedAt = createdAt.UTC()
	return account, nil
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}
