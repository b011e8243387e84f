package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "audit_test.db")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			subject_id TEXT,
			details TEXT,
			created_at TEXT NOT NULL
		) STRICT;
	`)
	if err != nil {
		t.Fatalf("applying test schema: %v", err)
	}

	return db
}

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testDB(t))

	entry := &Entry{
		Action:    ActionLogin,
		SubjectID: "usr-abc123",
		Details:   map[string]any{"ip": "10.0.0.1"},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entry.ID == "" {
		t.Fatal("Create() left id empty")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("total = %d, entries = %d, want 1 each", result.Total, len(result.Entries))
	}

	got := result.Entries[0]
	if got.Action != ActionLogin {
		t.Errorf("action = %q, want %q", got.Action, ActionLogin)
	}
	if got.SubjectID != "usr-abc123" {
		t.Errorf("subject = %q, want %q", got.SubjectID, "usr-abc123")
	}
	if got.Details["ip"] != "10.0.0.1" {
		t.Errorf("details = %v, want ip 10.0.0.1", got.Details)
	}
}

func TestCreateWithoutSubjectOrDetails(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testDB(t))

	if err := repo.Create(ctx, &Entry{Action: ActionRenewalReuse}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	result, err := repo.List(ctx, Filter{Action: ActionRenewalReuse})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("total = %d, want 1", result.Total)
	}
	if got := result.Entries[0]; got.SubjectID != "" || got.Details != nil {
		t.Errorf("entry = %+v, want empty subject and nil details", got)
	}
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testDB(t))

	seed := []Entry{
		{Action: ActionLogin, SubjectID: "usr-1"},
		{Action: ActionLogin, SubjectID: "usr-2"},
		{Action: ActionLogout, SubjectID: "usr-1"},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	byAction, err := repo.List(ctx, Filter{Action: ActionLogin})
	if err != nil {
		t.Fatalf("List(action) error = %v", err)
	}
	if byAction.Total != 2 {
		t.Errorf("login entries = %d, want 2", byAction.Total)
	}

	bySubject, err := repo.List(ctx, Filter{SubjectID: "usr-1"})
	if err != nil {
		t.Fatalf("List(subject) error = %v", err)
	}
	if bySubject.Total != 2 {
		t.Errorf("usr-1 entries = %d, want 2", bySubject.Total)
	}

	both, err := repo.List(ctx, Filter{Action: ActionLogout, SubjectID: "usr-1"})
	if err != nil {
		t.Fatalf("List(both) error = %v", err)
	}
	if both.Total != 1 {
		t.Errorf("combined filter entries = %d, want 1", both.Total)
	}
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testDB(t))

	for i := 0; i < 5; i++ {
		if err := repo.Create(ctx, &Entry{Action: ActionRotation, SubjectID: "usr-1"}); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	page, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 5 {
		t.Errorf("total = %d, want 5", page.Total)
	}
	if len(page.Entries) != 1 {
		t.Errorf("page entries = %d, want 1", len(page.Entries))
	}
}
