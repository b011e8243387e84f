package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const testSecret = "test-secret-0123456789abcdef-0123456789abcdef"

// testDB creates a throwaway SQLite database with the auth schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "auth_test.db")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE guests (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT 'Guest',
			created_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			display_name TEXT NOT NULL,
			created_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE renewal_records (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE boards (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			subject_id TEXT,
			details TEXT,
			created_at TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying test schema: %v", err)
	}

	return db
}

// testPolicy returns a token policy with short but valid lifetimes.
func testPolicy() TokenPolicy {
	return TokenPolicy{
		Secret:          testSecret,
		AccessTTL:       15 * time.Minute,
		UserRenewalTTL:  24 * time.Hour,
		GuestRenewalTTL: 10 * 365 * 24 * time.Hour,
	}
}

// testIssuer wires a codec and SQLite record store over a fresh database.
func testIssuer(t *testing.T) (*Issuer, *Codec, *sql.DB) {
	t.Helper()

	db := testDB(t)
	codec := NewCodec(testPolicy())
	return NewIssuer(codec, NewRecordStore(db)), codec, db
}

// seedGuest inserts a guest and returns it.
func seedGuest(t *testing.T, db *sql.DB, displayName string) *Guest {
	t.Helper()

	guest, err := NewIdentityStore(db).CreateGuest(context.Background(), displayName)
	if err != nil {
		t.Fatalf("seeding guest: %v", err)
	}
	return guest
}

// seedUser inserts a registered identity with the given password.
func seedUser(t *testing.T, db *sql.DB, email, password string) *Registered {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hashing seed password: %v", err)
	}

	user := &Registered{Email: email, PasswordHash: hash, DisplayName: "Test User"}
	if err := NewIdentityStore(db).CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return user
}

// seedBoard inserts a board owned by the given identity.
func seedBoard(t *testing.T, db *sql.DB, ownerID, name string) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO boards (id, owner_id, name, created_at) VALUES (?, ?, ?, ?)",
		"brd-"+name, ownerID, name, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("seeding board: %v", err)
	}
}

// countRows counts rows in a table.
func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}
