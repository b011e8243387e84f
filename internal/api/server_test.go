package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/inkboard/inkboard-auth/internal/audit"
	"github.com/inkboard/inkboard-auth/internal/auth"
	"github.com/inkboard/inkboard-auth/internal/board"
	"github.com/inkboard/inkboard-auth/internal/infrastructure/config"
	"github.com/inkboard/inkboard-auth/internal/infrastructure/logging"
)

const testSecret = "test-secret-0123456789abcdef-0123456789abcdef"

// newTestServer spins up the full HTTP stack over a throwaway SQLite
// database and returns an httptest server plus a cookie-carrying client.
func newTestServer(t *testing.T) (*httptest.Server, *http.Client, *sql.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "api_test.db")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE guests (id TEXT PRIMARY KEY, display_name TEXT NOT NULL DEFAULT 'Guest', created_at TEXT NOT NULL) STRICT;
		CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT NOT NULL UNIQUE, password_hash TEXT NOT NULL, display_name TEXT NOT NULL, created_at TEXT NOT NULL) STRICT;
		CREATE TABLE renewal_records (id TEXT PRIMARY KEY, created_at TEXT NOT NULL) STRICT;
		CREATE TABLE boards (id TEXT PRIMARY KEY, owner_id TEXT NOT NULL, name TEXT NOT NULL, created_at TEXT NOT NULL) STRICT;
		CREATE TABLE audit_logs (id TEXT PRIMARY KEY, action TEXT NOT NULL, subject_id TEXT, details TEXT, created_at TEXT NOT NULL) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying test schema: %v", err)
	}

	identities := auth.NewIdentityStore(db)
	codec := auth.NewCodec(auth.TokenPolicy{
		Secret:          testSecret,
		AccessTTL:       15 * time.Minute,
		UserRenewalTTL:  24 * time.Hour,
		GuestRenewalTTL: 10 * 365 * 24 * time.Hour,
	})
	issuer := auth.NewIssuer(codec, auth.NewRecordStore(db))

	svc := auth.NewService(auth.ServiceDeps{
		Identities: identities,
		Issuer:     issuer,
		Gate:       auth.NewGate(codec, issuer),
		Codec:      codec,
		Promoter:   auth.NewPromoter(identities, issuer, board.NewStore(db)),
		Audit:      audit.NewRepository(db),
		Logger:     logging.Default(),
	})

	srv, err := New(Deps{
		Config:  config.APIConfig{},
		Logger:  logging.Default(),
		Auth:    svc,
		Audit:   audit.NewRepository(db),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("creating API server: %v", err)
	}

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("creating cookie jar: %v", err)
	}
	client := &http.Client{Jar: jar}

	return ts, client, db
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	resp, err := client.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parsing URL %q: %v", raw, err)
	}
	return u
}

func TestHealthEndpoint(t *testing.T) {
	ts, client, _ := newTestServer(t)

	resp, err := client.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestGuestBootstrapAndMe(t *testing.T) {
	ts, client, _ := newTestServer(t)

	resp := postJSON(t, client, ts.URL+"/api/v1/auth/guest", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("bootstrap status = %d, want 201", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["role"] != "guest" {
		t.Errorf("role = %v, want guest", body["role"])
	}

	// The cookies from bootstrap authenticate the protected endpoint.
	resp, err := client.Get(ts.URL + "/api/v1/auth/me")
	if err != nil {
		t.Fatalf("GET /auth/me: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200", resp.StatusCode)
	}
	me := decodeBody(t, resp)
	if me["subject_id"] != body["subject_id"] {
		t.Errorf("me subject = %v, want %v", me["subject_id"], body["subject_id"])
	}
	if me["display_name"] != "Guest" {
		t.Errorf("display name = %v, want Guest", me["display_name"])
	}
}

func TestMeWithoutCredentials(t *testing.T) {
	ts, client, _ := newTestServer(t)

	resp, err := client.Get(ts.URL + "/api/v1/auth/me")
	if err != nil {
		t.Fatalf("GET /auth/me: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	ts, client, _ := newTestServer(t)

	resp := postJSON(t, client, ts.URL+"/api/v1/auth/guest", map[string]any{"display_name": "Sketcher"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("bootstrap status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, client, ts.URL+"/api/v1/auth/register", map[string]any{
		"email":        "ada@example.com",
		"password":     "s3cure-password",
		"display_name": "Ada",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}
	registered := decodeBody(t, resp)
	if registered["role"] != "user" {
		t.Errorf("role after register = %v, want user", registered["role"])
	}

	// The fresh session reflects the registered identity.
	resp, err := client.Get(ts.URL + "/api/v1/auth/me")
	if err != nil {
		t.Fatalf("GET /auth/me: %v", err)
	}
	me := decodeBody(t, resp)
	if me["role"] != "user" || me["display_name"] != "Ada" {
		t.Errorf("me = %v, want registered Ada", me)
	}

	// A registered subject cannot register again.
	resp = postJSON(t, client, ts.URL+"/api/v1/auth/register", map[string]any{
		"email":        "second@example.com",
		"password":     "password",
		"display_name": "Again",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second register status = %d, want 409", resp.StatusCode)
	}

	// Log out, then back in with the new credentials.
	resp = postJSON(t, client, ts.URL+"/api/v1/auth/logout", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", resp.StatusCode)
	}

	resp = postJSON(t, client, ts.URL+"/api/v1/auth/login", map[string]any{
		"email":    "ada@example.com",
		"password": "s3cure-password",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	login := decodeBody(t, resp)
	if login["role"] != "user" {
		t.Errorf("login role = %v, want user", login["role"])
	}
}

func TestRegisterValidationError(t *testing.T) {
	ts, client, _ := newTestServer(t)

	resp := postJSON(t, client, ts.URL+"/api/v1/auth/guest", nil)
	resp.Body.Close()

	resp = postJSON(t, client, ts.URL+"/api/v1/auth/register", map[string]any{
		"email":        "",
		"password":     "password",
		"display_name": "Ada",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("register status = %d, want 400", resp.StatusCode)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	ts, client, _ := newTestServer(t)

	resp := postJSON(t, client, ts.URL+"/api/v1/auth/login", map[string]any{
		"email":    "nobody@example.com",
		"password": "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("login status = %d, want 401", resp.StatusCode)
	}
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	ts, client, _ := newTestServer(t)

	resp := postJSON(t, client, ts.URL+"/api/v1/auth/guest", nil)
	resp.Body.Close()

	// Capture the current renewal cookie before it rotates.
	u := mustParseURL(t, ts.URL+"/api/v1/auth")
	var oldRenewal string
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == "ib_renewal" {
			oldRenewal = c.Value
		}
	}
	if oldRenewal == "" {
		t.Fatal("no renewal cookie after bootstrap")
	}

	resp = postJSON(t, client, ts.URL+"/api/v1/auth/refresh", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200", resp.StatusCode)
	}

	// Replaying the consumed credential is rejected.
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/auth/refresh", nil)
	if err != nil {
		t.Fatalf("building replay request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "ib_renewal", Value: oldRenewal})

	replay, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("replay request: %v", err)
	}
	replay.Body.Close()
	if replay.StatusCode != http.StatusUnauthorized {
		t.Errorf("replay status = %d, want 401", replay.StatusCode)
	}

	// The honest client's rotated credentials still work.
	resp, err = client.Get(ts.URL + "/api/v1/auth/me")
	if err != nil {
		t.Fatalf("GET /auth/me: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("me status after rotation = %d, want 200", resp.StatusCode)
	}
}

func TestGateRotatesExpiredAccessTransparently(t *testing.T) {
	ts, client, _ := newTestServer(t)

	resp := postJSON(t, client, ts.URL+"/api/v1/auth/guest", nil)
	body := decodeBody(t, resp)

	// Corrupt the access cookie; the renewal cookie should carry the
	// request through the gate.
	u := mustParseURL(t, ts.URL)
	client.Jar.SetCookies(u, []*http.Cookie{{Name: "ib_access", Value: "stale", Path: "/"}})

	resp, err := client.Get(ts.URL + "/api/v1/auth/me")
	if err != nil {
		t.Fatalf("GET /auth/me: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200 via rotation", resp.StatusCode)
	}
	me := decodeBody(t, resp)
	if me["subject_id"] != body["subject_id"] {
		t.Errorf("rotated subject = %v, want %v", me["subject_id"], body["subject_id"])
	}
}

func TestAuditEndpointRequiresUser(t *testing.T) {
	ts, client, _ := newTestServer(t)

	resp := postJSON(t, client, ts.URL+"/api/v1/auth/guest", nil)
	resp.Body.Close()

	resp, err := client.Get(ts.URL + "/api/v1/audit")
	if err != nil {
		t.Fatalf("GET /audit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("guest audit status = %d, want 403", resp.StatusCode)
	}

	// Promote and retry.
	resp = postJSON(t, client, ts.URL+"/api/v1/auth/register", map[string]any{
		"email":        "op@example.com",
		"password":     "password",
		"display_name": "Op",
	})
	resp.Body.Close()

	resp, err = client.Get(ts.URL + "/api/v1/audit?action=auth.promotion")
	if err != nil {
		t.Fatalf("GET /audit: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("user audit status = %d, want 200", resp.StatusCode)
	}
	listing := decodeBody(t, resp)
	if total, ok := listing["total"].(float64); !ok || total != 1 {
		t.Errorf("promotion audit total = %v, want 1", listing["total"])
	}
}

func TestRenewalCookieCoversAllGatedRoutes(t *testing.T) {
	// The renewal cookie's path must reach gated routes outside /auth;
	// otherwise a stale access credential at one of them gets rejected
	// and the live session cleared instead of rotated.
	ts, client, _ := newTestServer(t)

	resp := postJSON(t, client, ts.URL+"/api/v1/auth/guest", nil)
	resp.Body.Close()
	resp = postJSON(t, client, ts.URL+"/api/v1/auth/register", map[string]any{
		"email":        "ren@example.com",
		"password":     "password",
		"display_name": "Ren",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}

	auditURL := mustParseURL(t, ts.URL+"/api/v1/audit")
	var sent bool
	for _, c := range client.Jar.Cookies(auditURL) {
		if c.Name == "ib_renewal" {
			sent = true
		}
	}
	if !sent {
		t.Fatal("renewal cookie not in scope for /api/v1/audit")
	}

	// Corrupt the access cookie; the audit request must still succeed
	// through gate rotation.
	client.Jar.SetCookies(mustParseURL(t, ts.URL), []*http.Cookie{
		{Name: "ib_access", Value: "stale", Path: "/"},
	})

	resp, err := client.Get(ts.URL + "/api/v1/audit")
	if err != nil {
		t.Fatalf("GET /audit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit status with stale access = %d, want 200 via rotation", resp.StatusCode)
	}

	// The session is still alive afterwards.
	resp, err = client.Get(ts.URL + "/api/v1/auth/me")
	if err != nil {
		t.Fatalf("GET /auth/me: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("me status after audit rotation = %d, want 200", resp.StatusCode)
	}
}
