package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RenewalRecordStore is the registry of currently-valid renewal
// credentials, one record per issued credential. Existence is validity;
// deletion is revocation.
//
// Delete must be atomic per record id and report ErrRecordNotFound
// exactly once: the first deleter wins, every later caller for the same
// id observes not-found. This is the sole synchronization primitive
// behind single-use rotation.
type RenewalRecordStore interface {
	Create(ctx context.Context) (string, error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// SQLiteRecordStore implements RenewalRecordStore on SQLite. Row deletes
// are linearizable under SQLite's single-writer model.
type SQLiteRecordStore struct {
	db *sql.DB
}

// NewRecordStore creates a SQLite-backed renewal record store.
func NewRecordStore(db *sql.DB) *SQLiteRecordStore {
	return &SQLiteRecordStore{db: db}
}

// Create inserts a fresh record and returns its id.
func (s *SQLiteRecordStore) Create(ctx context.Context) (string, error) {
	id := "rec-" + uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO renewal_records (id, created_at) VALUES (?, ?)",
		id, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("%w: creating renewal record: %w", ErrStorageUnavailable, err)
	}

	return id, nil
}

// Exists reports whether the record is still live.
func (s *SQLiteRecordStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM renewal_records WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: checking renewal record: %w", ErrStorageUnavailable, err)
	}
	return true, nil
}

// Delete removes the record. ErrRecordNotFound means it was already
// consumed or never existed — the replay/reuse signal.
func (s *SQLiteRecordStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM renewal_records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: deleting renewal record: %w", ErrStorageUnavailable, err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}
