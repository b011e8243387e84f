// Package board provides the slice of board persistence the auth core
// collaborates with: ownership counting and the bulk ownership transfer
// performed during guest promotion. Board content itself is handled
// elsewhere.
package board

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Board is a minimally modelled owned resource.
type Board struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrNotFound is returned when a board id does not resolve.
var ErrNotFound = errors.New("board not found")

// Store defines board persistence as the auth core sees it.
type Store interface {
	Create(ctx context.Context, b *Board) error
	Get(ctx context.Context, id string) (*Board, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)

	// TransferAll reassigns every board owned by fromOwnerID to toOwnerID
	// and returns how many moved. Idempotent: a second run moves nothing.
	TransferAll(ctx context.Context, fromOwnerID, toOwnerID string) (int64, error)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewStore creates a SQLite-backed board store.
func NewStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Create inserts a new board. The ID is generated if empty.
func (s *SQLiteStore) Create(ctx context.Context, b *Board) error {
	if b.ID == "" {
		b.ID = "brd-" + uuid.NewString()[:8]
	}
	b.CreatedAt = time.Now().UTC().Truncate(time.Second)

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO boards (id, owner_id, name, created_at) VALUES (?, ?, ?, ?)",
		b.ID, b.OwnerID, b.Name, b.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating board: %w", err)
	}
	return nil
}

// Get retrieves a board by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Board, error) {
	var b Board
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, name, created_at FROM boards WHERE id = ?", id,
	).Scan(&b.ID, &b.OwnerID, &b.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting board: %w", err)
	}

	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &b, nil
}

// CountByOwner returns the number of boards owned by an identity.
func (s *SQLiteStore) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM boards WHERE owner_id = ?", ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting boards: %w", err)
	}
	return count, nil
}

// TransferAll reassigns every board owned by fromOwnerID to toOwnerID.
func (s *SQLiteStore) TransferAll(ctx context.Context, fromOwnerID, toOwnerID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE boards SET owner_id = ? WHERE owner_id = ?", toOwnerID, fromOwnerID)
	if err != nil {
		return 0, fmt.Errorf("transferring boards: %w", err)
	}

	moved, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return moved, nil
}
