package receipts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned for unknown receipt ids.
var ErrNotFound = errors.New("receipt not found")

// Receipt is an archived proof image.
type Receipt struct {
	ID          string
	FileID      string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// Store keeps receipt blobs.
type Store interface {
	Put(ctx context.Context, receipt Receipt) error
	Get(ctx context.Context, id string) (Receipt, error)
}

type memoryStore struct {
	mu       sync.RWMutex
	receipts map[string]Receipt
}

// NewMemoryStore constructs a map-backed receipt store.
func NewMemoryStore() Store {
	return &memoryStore{receipts: make(map[string]Receipt)}
}

func (s *memoryStore) Put(_ context.Context, r Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[r.ID] = r
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[id]
	if !ok {
		return Receipt{}, ErrNotFound
	}
	return r, nil
}

// PostgresStore keeps receipt bytes in a bytea column.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Put inserts the receipt.
func (s *PostgresStore) Put(ctx context.Context, r Receipt) error {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO receipts (id, file_id, content_type, data, created_at)
        VALUES ($1, $2, $3, $4, $5)`, id, r.FileID, r.ContentType, r.Data, r.CreatedAt.UTC())
	return err
}

// Get fetches a receipt with its bytes.
func (s *PostgresStore) Get(ctx context.Context, id string) (Receipt, error) {
	receiptID, err := uuid.Parse(id)
	if err != nil {
		return Receipt{}, ErrNotFound
	}
	var r Receipt
	err = s.db.QueryRow(ctx, `SELECT file_id, content_type, data, created_at FROM receipts WHERE id = $1`, receiptID).
		Scan(&r.FileID, &r.ContentType, &r.Data, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, ErrNotFound
	}
	if err != nil {
		return Receipt{}, err
	}
	r.ID = receiptID.String()
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

// Fetcher downloads a file from the chat transport.
type Fetcher interface {
	FetchFile(ctx context.Context, fileID string) ([]byte, error)
}

// Archiver copies proof photos from the transport into the receipt store.
type Archiver struct {
	fetcher Fetcher
	store   Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewArchiver builds an archiver. A nil archiver archives nothing.
func NewArchiver(fetcher Fetcher, store Store, logger *slog.Logger) *Archiver {
	return &Archiver{fetcher: fetcher, store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Archive stores the photo and returns its receipt id. Any failure is logged
// and yields an empty id: the expense then keeps only the transport handle.
func (a *Archiver) Archive(ctx context.Context, fileID string) string {
	if a == nil || fileID == "" {
		return ""
	}
	data, err := a.fetcher.FetchFile(ctx, fileID)
	if err != nil {
		a.logger.Warn("receipt download failed", "file_id", fileID, "error", err)
		return ""
	}
	r := Receipt{
		ID:          uuid.NewString(),
		FileID:      fileID,
		ContentType: http.DetectContentType(data),
		Data:        data,
		CreatedAt:   a.now(),
	}
	if err := a.store.Put(ctx, r); err != nil {
		a.logger.Warn("receipt store failed", "file_id", fileID, "error", err)
		return ""
	}
	return r.ID
}
