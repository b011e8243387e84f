package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Subject id prefixes. They keep the id space disjoint across the two
// identity kinds and let Resolve dispatch without a second lookup.
const (
	guestIDPrefix = "gst-"
	userIDPrefix  = "usr-"
)

// DefaultGuestName is the display name given to implicitly created guests.
const DefaultGuestName = "Guest"

// IdentityStore is the registry of the two identity kinds.
type IdentityStore interface {
	CreateGuest(ctx context.Context, displayName string) (*Guest, error)
	GetGuest(ctx context.Context, id string) (*Guest, error)
	DeleteGuest(ctx context.Context, id string) error
	CountGuests(ctx context.Context) (int, error)

	CreateUser(ctx context.Context, user *Registered) error
	GetUser(ctx context.Context, id string) (*Registered, error)
	GetUserByEmail(ctx context.Context, email string) (*Registered, error)
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int, error)

	// Resolve returns the identity behind a subject id, whichever kind it
	// is. This is the single place where role is derived from storage.
	Resolve(ctx context.Context, subjectID string) (Identity, error)
}

// SQLiteIdentityStore implements IdentityStore using SQLite.
type SQLiteIdentityStore struct {
	db *sql.DB
}

// NewIdentityStore creates a SQLite-backed identity store.
func NewIdentityStore(db *sql.DB) *SQLiteIdentityStore {
	return &SQLiteIdentityStore{db: db}
}

// CreateGuest inserts a new guest identity. An empty display name falls
// back to DefaultGuestName.
func (s *SQLiteIdentityStore) CreateGuest(ctx context.Context, displayName string) (*Guest, error) {
	if displayName == "" {
		displayName = DefaultGuestName
	}

	guest := &Guest{
		ID:          guestIDPrefix + uuid.NewString()[:8],
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO guests (id, display_name, created_at) VALUES (?, ?, ?)",
		guest.ID, guest.DisplayName, guest.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: creating guest: %w", ErrStorageUnavailable, err)
	}

	return guest, nil
}

// GetGuest retrieves a guest identity by id.
func (s *SQLiteIdentityStore) GetGuest(ctx context.Context, id string) (*Guest, error) {
	var g Guest
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, display_name, created_at FROM guests WHERE id = ?", id,
	).Scan(&g.ID, &g.DisplayName, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("%w: getting guest: %w", ErrStorageUnavailable, err)
	}

	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &g, nil
}

// DeleteGuest removes a guest identity by id.
func (s *SQLiteIdentityStore) DeleteGuest(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM guests WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: deleting guest: %w", ErrStorageUnavailable, err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// CountGuests returns the number of guest identities.
func (s *SQLiteIdentityStore) CountGuests(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM guests").Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: counting guests: %w", ErrStorageUnavailable, err)
	}
	return count, nil
}

// CreateUser inserts a new registered identity. The ID is generated if
// empty. Returns ErrEmailExists when the email is already registered.
func (s *SQLiteIdentityStore) CreateUser(ctx context.Context, user *Registered) error {
	if user.ID == "" {
		user.ID = userIDPrefix + uuid.NewString()[:8]
	}
	user.CreatedAt = time.Now().UTC().Truncate(time.Second)

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, display_name, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Email, user.PasswordHash, user.DisplayName,
		user.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("%w: creating user: %w", ErrStorageUnavailable, err)
	}

	return nil
}

// GetUser retrieves a registered identity by id.
func (s *SQLiteIdentityStore) GetUser(ctx context.Context, id string) (*Registered, error) {
	return s.getUser(ctx,
		"SELECT id, email, password_hash, display_name, created_at FROM users WHERE id = ?", id)
}

// GetUserByEmail retrieves a registered identity by email.
func (s *SQLiteIdentityStore) GetUserByEmail(ctx context.Context, email string) (*Registered, error) {
	return s.getUser(ctx,
		"SELECT id, email, password_hash, display_name, created_at FROM users WHERE email = ?", email)
}

// DeleteUser removes a registered identity by id.
func (s *SQLiteIdentityStore) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: deleting user: %w", ErrStorageUnavailable, err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// CountUsers returns the number of registered identities.
func (s *SQLiteIdentityStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: counting users: %w", ErrStorageUnavailable, err)
	}
	return count, nil
}

// Resolve returns the identity behind a subject id. The id prefix decides
// which table to consult; an unprefixed id tries both, guests first.
func (s *SQLiteIdentityStore) Resolve(ctx context.Context, subjectID string) (Identity, error) {
	switch {
	case strings.HasPrefix(subjectID, guestIDPrefix):
		return s.GetGuest(ctx, subjectID)
	case strings.HasPrefix(subjectID, userIDPrefix):
		return s.GetUser(ctx, subjectID)
	}

	if guest, err := s.GetGuest(ctx, subjectID); err == nil {
		return guest, nil
	} else if !errors.Is(err, ErrIdentityNotFound) {
		return nil, err
	}
	return s.GetUser(ctx, subjectID)
}

// getUser executes a single-row user query.
func (s *SQLiteIdentityStore) getUser(ctx context.Context, query string, arg string) (*Registered, error) {
	var u Registered
	var createdAt string

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("%w: getting user: %w", ErrStorageUnavailable, err)
	}

	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &u, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
