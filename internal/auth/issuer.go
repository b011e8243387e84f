package auth

import (
	"context"
	"errors"
	"fmt"
)

// Issuer creates and rotates sessions. It is the only component that
// writes to the renewal record store.
type Issuer struct {
	codec   *Codec
	records RenewalRecordStore
}

// NewIssuer creates a session issuer.
func NewIssuer(codec *Codec, records RenewalRecordStore) *Issuer {
	return &Issuer{codec: codec, records: records}
}

// IssueInitial creates a renewal record and mints a fresh credential pair
// for the subject. Used for fresh logins and guest bootstrap.
func (i *Issuer) IssueInitial(ctx context.Context, subjectID string, role Role) (*Session, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("%w: empty subject id", ErrInvalidRole)
	}
	if !IsValidRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return i.mint(ctx, subjectID, role)
}

// Rotate exchanges a presented renewal credential for a fresh pair,
// retiring the old credential in the process.
//
// The state machine:
//  1. Verify the token. Malformed or expired fails fast; the store is
//     never touched.
//  2. Delete the referenced record. Not-found means the record is gone —
//     already rotated once, or explicitly logged out — and the credential
//     is rejected as revoked. The first concurrent caller to delete wins;
//     every later one lands here. This is the sole replay defense.
//  3. Mint a new record and pair bound to the same subject and role.
//
// Storage errors are reported as ErrStorageUnavailable, distinct from the
// three terminal outcomes: the caller may retry the same credential.
func (i *Issuer) Rotate(ctx context.Context, renewalToken string) (*Session, error) {
	claims, err := i.codec.VerifyRenewal(renewalToken)
	if err != nil {
		return nil, err
	}

	if err := i.records.Delete(ctx, claims.RecordID); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrRenewalRevoked
		}
		return nil, err
	}

	return i.mint(ctx, claims.Subject, claims.Role)
}

// Revoke retires the record behind a renewal credential without issuing a
// replacement, ending the session. Idempotent: revoking an already-spent
// credential is not an error. Malformed or expired tokens are ignored —
// there is nothing live to revoke.
func (i *Issuer) Revoke(ctx context.Context, renewalToken string) error {
	claims, err := i.codec.VerifyRenewal(renewalToken)
	if err != nil {
		return nil
	}

	if err := i.records.Delete(ctx, claims.RecordID); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// mint creates a record and signs a credential pair bound to it.
func (i *Issuer) mint(ctx context.Context, subjectID string, role Role) (*Session, error) {
	recordID, err := i.records.Create(ctx)
	if err != nil {
		return nil, err
	}

	renewal, err := i.codec.IssueRenewal(recordID, subjectID, role)
	if err != nil {
		return nil, fmt.Errorf("minting renewal credential: %w", err)
	}

	access, err := i.codec.IssueAccess(subjectID, role)
	if err != nil {
		return nil, fmt.Errorf("minting access credential: %w", err)
	}

	return &Session{
		AccessToken:  access,
		RenewalToken: renewal,
		SubjectID:    subjectID,
		Role:         role,
	}, nil
}
