package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresLedger keeps balances and the transaction log in PostgreSQL. The
// balance row is locked with SELECT ... FOR UPDATE for every posting, and the
// transaction row and the balance update commit together.
type PostgresLedger struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureAccount guarantees a balance row exists for the key.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, key string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO balances (account_key, balance, updated_at) VALUES ($1, 0, $2)
        ON CONFLICT (account_key) DO NOTHING`, key, l.now())
	return err
}

// Balance returns the cached balance for the account.
func (l *PostgresLedger) Balance(ctx context.Context, key string) (decimal.Decimal, error) {
	var text string
	if err := l.db.QueryRow(ctx, `SELECT balance::text FROM balances WHERE account_key = $1`, key).Scan(&text); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(text)
}

// Apply records one signed posting.
func (l *PostgresLedger) Apply(ctx context.Context, key string, amount decimal.Decimal, expenseID string) (Posting, error) {
	if amount.IsZero() {
		return Posting{}, ErrZeroAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Posting{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	posting, err := l.applyInTx(ctx, tx, key, amount, expenseID)
	if err != nil {
		return Posting{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Posting{}, err
	}
	return posting, nil
}

// Transfer writes both legs in one database transaction, so either both
// postings exist or neither does.
func (l *PostgresLedger) Transfer(ctx context.Context, from, to string, amount decimal.Decimal, expenseID string) (TransferResult, error) {
	if !amount.IsPositive() {
		return TransferResult{}, fmt.Errorf("transfer amount must be positive")
	}
	if from == to {
		return TransferResult{}, fmt.Errorf("transfer to the same account")
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransferResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// lock both rows in key order so opposite transfers cannot deadlock
	rows, err := tx.Query(ctx, `SELECT account_key FROM balances WHERE account_key = ANY($1)
        ORDER BY account_key FOR UPDATE`, []string{from, to})
	if err != nil {
		return TransferResult{}, err
	}
	locked, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return TransferResult{}, err
	}
	if len(locked) != 2 {
		return TransferResult{}, ErrAccountNotFound
	}

	debit, err := l.applyInTx(ctx, tx, from, amount.Neg(), expenseID)
	if err != nil {
		return TransferResult{}, fmt.Errorf("debit %s: %w", from, err)
	}
	credit, err := l.applyInTx(ctx, tx, to, amount, expenseID)
	if err != nil {
		return TransferResult{}, fmt.Errorf("credit %s: %w", to, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Debit: debit, Credit: credit}, nil
}

// Transactions lists postings in insertion order.
func (l *PostgresLedger) Transactions(ctx context.Context, key string) ([]Transaction, error) {
	query := `SELECT id, account_key, amount::text, kind, COALESCE(expense_id, ''), created_at FROM ledger_transactions`
	var args []any
	if key != "" {
		query += ` WHERE account_key = $1`
		args = append(args, key)
	}
	query += ` ORDER BY created_at, id`

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			tx     Transaction
			id     uuid.UUID
			amount string
			kind   string
		)
		if err := rows.Scan(&id, &tx.AccountKey, &amount, &kind, &tx.ExpenseID, &tx.CreatedAt); err != nil {
			return nil, err
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decode amount of %s: %w", id, err)
		}
		tx.ID = id.String()
		tx.Kind = Kind(kind)
		tx.CreatedAt = tx.CreatedAt.UTC()
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) applyInTx(ctx context.Context, tx pgx.Tx, key string, amount decimal.Decimal, expenseID string) (Posting, error) {
	var current string
	if err := tx.QueryRow(ctx, `SELECT balance::text FROM balances WHERE account_key = $1 FOR UPDATE`, key).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Posting{}, ErrAccountNotFound
		}
		return Posting{}, err
	}
	balance, err := decimal.NewFromString(current)
	if err != nil {
		return Posting{}, fmt.Errorf("decode balance of %s: %w", key, err)
	}

	entry := Transaction{
		ID:         uuid.NewString(),
		AccountKey: key,
		Amount:     amount,
		Kind:       KindOf(amount),
		ExpenseID:  expenseID,
		CreatedAt:  l.now(),
	}
	if _, err := tx.Exec(ctx, `INSERT INTO ledger_transactions (id, account_key, amount, kind, expense_id, created_at)
        VALUES ($1, $2, $3::numeric, $4, NULLIF($5, ''), $6)`,
		entry.ID, key, amount.String(), string(entry.Kind), expenseID, entry.CreatedAt); err != nil {
		return Posting{}, err
	}

	balance = balance.Add(amount)
	if _, err := tx.Exec(ctx, `UPDATE balances SET balance = $1::numeric, updated_at = $2 WHERE account_key = $3`,
		balance.String(), entry.CreatedAt, key); err != nil {
		return Posting{}, err
	}
	return Posting{Transaction: entry, Balance: balance}, nil
}
