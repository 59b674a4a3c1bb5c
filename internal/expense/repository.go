package expense

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

var (
	// ErrNotFound is returned for unknown expense ids.
	ErrNotFound = errors.New("expense not found")
	// ErrStatusConflict means the expense was not in any of the expected states.
	ErrStatusConflict = errors.New("expense status changed concurrently")
)

// Repository persists expense records. Records are never deleted.
type Repository interface {
	Create(ctx context.Context, expense Expense) error
	Get(ctx context.Context, id string) (Expense, error)
	// Transition applies change only if the current status is one of from.
	Transition(ctx context.Context, id string, from []Status, change Change) (Expense, error)
	List(ctx context.Context, filter Filter) ([]Expense, error)
}

// PostgresRepository stores expenses in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const expenseColumns = `id, submitter_key, amount::text, category, proof_kind, proof_file_id, proof_receipt_id,
        note, status, created_at, COALESCE(approver_key, ''), settled_at`

// Create inserts an expense record.
func (r *PostgresRepository) Create(ctx context.Context, e Expense) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO expenses (id, submitter_key, amount, category, proof_kind, proof_file_id,
        proof_receipt_id, note, status, created_at, approver_key, settled_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)`,
		id, e.SubmitterKey, e.Amount.String(), e.Category, string(e.Proof.Kind), e.Proof.FileID,
		e.Proof.ReceiptID, e.Note, string(e.Status), e.CreatedAt.UTC(), e.ApproverKey, e.SettledAt)
	return err
}

// Get fetches one expense.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Expense, error) {
	expenseID, err := uuid.Parse(id)
	if err != nil {
		return Expense{}, ErrNotFound
	}
	e, err := scanExpense(r.db.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, expenseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Expense{}, ErrNotFound
	}
	return e, err
}

// Transition is a compare-and-set on the status column.
func (r *PostgresRepository) Transition(ctx context.Context, id string, from []Status, change Change) (Expense, error) {
	expenseID, err := uuid.Parse(id)
	if err != nil {
		return Expense{}, ErrNotFound
	}
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	e, err := scanExpense(r.db.QueryRow(ctx, `UPDATE expenses
        SET status = $2, approver_key = NULLIF($3, ''), settled_at = $4
        WHERE id = $1 AND status = ANY($5)
        RETURNING `+expenseColumns, expenseID, string(change.Status), change.ApproverKey, change.SettledAt, allowed))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Expense{}, err
	}
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return Expense{}, getErr
	}
	return Expense{}, ErrStatusConflict
}

// List returns matching expenses, oldest first.
func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Expense, error) {
	rows, err := r.db.Query(ctx, `SELECT `+expenseColumns+` FROM expenses
        WHERE ($1 = '' OR status = $1) AND ($2 = '' OR submitter_key = $2)
        ORDER BY created_at, id`, string(filter.Status), filter.SubmitterKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExpense(row pgx.Row) (Expense, error) {
	var (
		e         Expense
		id        uuid.UUID
		amount    string
		proofKind string
		status    string
		settledAt *time.Time
	)
	if err := row.Scan(&id, &e.SubmitterKey, &amount, &e.Category, &proofKind, &e.Proof.FileID,
		&e.Proof.ReceiptID, &e.Note, &status, &e.CreatedAt, &e.ApproverKey, &settledAt); err != nil {
		return Expense{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Expense{}, fmt.Errorf("decode amount of %s: %w", id, err)
	}
	e.ID = id.String()
	e.Amount = parsed
	e.Proof.Kind = ProofKind(proofKind)
	e.Status = Status(status)
	e.CreatedAt = e.CreatedAt.UTC()
	if settledAt != nil {
		utc := settledAt.UTC()
		e.SettledAt = &utc
	}
	return e, nil
}
