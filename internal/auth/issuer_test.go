package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestIssueInitial(t *testing.T) {
	ctx := context.Background()
	issuer, codec, db := testIssuer(t)

	session, err := issuer.IssueInitial(ctx, "usr-abc123", RoleUser)
	if err != nil {
		t.Fatalf("IssueInitial() error = %v", err)
	}
	if session.SubjectID != "usr-abc123" || session.Role != RoleUser {
		t.Errorf("session = {%s %s}, want {usr-abc123 user}", session.SubjectID, session.Role)
	}

	// Both halves verify and agree on the subject.
	subject, role, err := codec.VerifyAccess(session.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess() error = %v", err)
	}
	if subject != "usr-abc123" || role != RoleUser {
		t.Errorf("access claims = {%s %s}, want {usr-abc123 user}", subject, role)
	}

	claims, err := codec.VerifyRenewal(session.RenewalToken)
	if err != nil {
		t.Fatalf("VerifyRenewal() error = %v", err)
	}
	if claims.Subject != "usr-abc123" {
		t.Errorf("renewal subject = %q, want %q", claims.Subject, "usr-abc123")
	}

	if got := countRows(t, db, "renewal_records"); got != 1 {
		t.Errorf("renewal records = %d, want 1", got)
	}
}

func TestIssueInitialRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := testIssuer(t)

	if _, err := issuer.IssueInitial(ctx, "", RoleUser); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("IssueInitial(empty subject) error = %v, want ErrInvalidRole", err)
	}
	if _, err := issuer.IssueInitial(ctx, "usr-abc123", Role("admin")); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("IssueInitial(unknown role) error = %v, want ErrInvalidRole", err)
	}
}

func TestRotatePreservesIdentity(t *testing.T) {
	ctx := context.Background()
	issuer, _, db := testIssuer(t)

	initial, err := issuer.IssueInitial(ctx, "gst-abc123", RoleGuest)
	if err != nil {
		t.Fatalf("IssueInitial() error = %v", err)
	}

	rotated, err := issuer.Rotate(ctx, initial.RenewalToken)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if rotated.SubjectID != "gst-abc123" || rotated.Role != RoleGuest {
		t.Errorf("rotated session = {%s %s}, want {gst-abc123 guest}", rotated.SubjectID, rotated.Role)
	}
	if rotated.RenewalToken == initial.RenewalToken {
		t.Error("rotation returned the same renewal credential")
	}

	// Old record consumed, new one created: the population stays at one.
	if got := countRows(t, db, "renewal_records"); got != 1 {
		t.Errorf("renewal records after rotation = %d, want 1", got)
	}
}

func TestRotateIsSingleUse(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := testIssuer(t)

	initial, err := issuer.IssueInitial(ctx, "usr-abc123", RoleUser)
	if err != nil {
		t.Fatalf("IssueInitial() error = %v", err)
	}

	if _, err := issuer.Rotate(ctx, initial.RenewalToken); err != nil {
		t.Fatalf("first Rotate() error = %v", err)
	}
	if _, err := issuer.Rotate(ctx, initial.RenewalToken); !errors.Is(err, ErrRenewalRevoked) {
		t.Errorf("second Rotate() error = %v, want ErrRenewalRevoked", err)
	}
}

func TestRotateRejectsMalformed(t *testing.T) {
	issuer, _, _ := testIssuer(t)

	if _, err := issuer.Rotate(context.Background(), "garbage"); !errors.Is(err, ErrRenewalMalformed) {
		t.Errorf("Rotate(garbage) error = %v, want ErrRenewalMalformed", err)
	}
}

func TestConcurrentRotationOneWinner(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := testIssuer(t)

	initial, err := issuer.IssueInitial(ctx, "usr-abc123", RoleUser)
	if err != nil {
		t.Fatalf("IssueInitial() error = %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = issuer.Rotate(ctx, initial.RenewalToken)
		}(i)
	}
	wg.Wait()

	var wins, revoked int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrRenewalRevoked):
			revoked++
		default:
			t.Errorf("unexpected rotation error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
	if revoked != callers-1 {
		t.Errorf("revoked = %d, want %d", revoked, callers-1)
	}
}

func TestRevokeEndsSession(t *testing.T) {
	ctx := context.Background()
	issuer, _, db := testIssuer(t)

	session, err := issuer.IssueInitial(ctx, "usr-abc123", RoleUser)
	if err != nil {
		t.Fatalf("IssueInitial() error = %v", err)
	}

	if err := issuer.Revoke(ctx, session.RenewalToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if got := countRows(t, db, "renewal_records"); got != 0 {
		t.Errorf("renewal records after revoke = %d, want 0", got)
	}

	if _, err := issuer.Rotate(ctx, session.RenewalToken); !errors.Is(err, ErrRenewalRevoked) {
		t.Errorf("Rotate(revoked) error = %v, want ErrRenewalRevoked", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := testIssuer(t)

	session, err := issuer.IssueInitial(ctx, "usr-abc123", RoleUser)
	if err != nil {
		t.Fatalf("IssueInitial() error = %v", err)
	}

	if err := issuer.Revoke(ctx, session.RenewalToken); err != nil {
		t.Fatalf("first Revoke() error = %v", err)
	}
	if err := issuer.Revoke(ctx, session.RenewalToken); err != nil {
		t.Errorf("second Revoke() error = %v, want nil", err)
	}
	if err := issuer.Revoke(ctx, "garbage"); err != nil {
		t.Errorf("Revoke(garbage) error = %v, want nil", err)
	}
}
