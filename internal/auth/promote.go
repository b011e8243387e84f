package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Promotion saga step names, reported via PromotionError so an operator
// knows exactly how far a failed promotion got.
const (
	StepValidate       = "validate"
	StepHashPassword   = "hash_password"
	StepCreateUser     = "create_user"
	StepTransferBoards = "transfer_boards"
	StepDeleteGuest    = "delete_guest"
	StepIssueSession   = "issue_session"
)

// transferAttempts bounds the idempotent retry of the board transfer step.
const transferAttempts = 3

// BoardTransferer is the slice of the board collaborator the promotion
// workflow needs: bulk ownership transfer. The transfer must be
// idempotent — re-running it after a partial failure moves whatever is
// left and touches nothing already moved.
type BoardTransferer interface {
	TransferAll(ctx context.Context, fromOwnerID, toOwnerID string) (int64, error)
}

// Promoter converts a guest identity into a registered identity while
// retaining the guest's boards.
type Promoter struct {
	identities IdentityStore
	issuer     *Issuer
	boards     BoardTransferer
}

// NewPromoter creates a promotion workflow.
func NewPromoter(identities IdentityStore, issuer *Issuer, boards BoardTransferer) *Promoter {
	return &Promoter{identities: identities, issuer: issuer, boards: boards}
}

// Promote runs the guest-to-registered saga:
//
//  1. Validate all inputs locally; reject before any mutation.
//  2. Confirm the guest exists.
//  3. Hash the password.
//  4. Create the registered identity (unique email enforced by the store).
//  5. Transfer every board owned by the guest to the new identity,
//     retrying the idempotent transfer on storage hiccups.
//  6. Delete the guest identity.
//  7. Issue a fresh session for the new identity with role "user".
//
// The sequence is not atomic across steps. Ordering bounds the blast
// radius: the guest is deleted only after its boards are safely moved, so
// an early failure leaves the guest fully intact, and a failure at the
// final step leaves a complete registered identity the user can simply
// log into. Every failure carries the step that failed.
func (p *Promoter) Promote(ctx context.Context, guestID, email, password, displayName string) (*Session, error) {
	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)

	if err := validatePromotionInput(email, password, displayName); err != nil {
		return nil, &PromotionError{Step: StepValidate, Err: err}
	}

	guest, err := p.identities.GetGuest(ctx, guestID)
	if err != nil {
		return nil, &PromotionError{Step: StepValidate, Err: err}
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, &PromotionError{Step: StepHashPassword, Err: err}
	}

	user := &Registered{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
	}
	if err := p.identities.CreateUser(ctx, user); err != nil {
		return nil, &PromotionError{Step: StepCreateUser, Err: err}
	}

	if err := p.transferBoards(ctx, guest.ID, user.ID); err != nil {
		return nil, &PromotionError{Step: StepTransferBoards, Err: err}
	}

	if err := p.identities.DeleteGuest(ctx, guest.ID); err != nil {
		return nil, &PromotionError{Step: StepDeleteGuest, Err: err}
	}

	session, err := p.issuer.IssueInitial(ctx, user.ID, RoleUser)
	if err != nil {
		return nil, &PromotionError{Step: StepIssueSession, Err: err}
	}

	return session, nil
}

// transferBoards moves board ownership with a bounded retry. The transfer
// is a bulk owner rewrite, so a retry after partial failure only touches
// boards still owned by the guest.
func (p *Promoter) transferBoards(ctx context.Context, fromID, toID string) error {
	var lastErr error
	for attempt := 0; attempt < transferAttempts; attempt++ {
		if _, err := p.boards.TransferAll(ctx, fromID, toID); err != nil {
			lastErr = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", transferAttempts, lastErr)
}

// normalizeEmail lowercases and trims an email address. Applied on every
// path that stores or looks up an email, so "Ada@Example.com" and
// "ada@example.com" name the same identity.
func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// validatePromotionInput checks the promotion inputs against their
// bounds. All checks are local; no storage is consulted.
func validatePromotionInput(email, password, displayName string) error {
	if email == "" {
		return &ValidationError{Field: "email", Reason: "must not be empty"}
	}
	if len(email) > MaxEmailLength {
		return &ValidationError{Field: "email", Reason: fmt.Sprintf("must be at most %d characters", MaxEmailLength)}
	}
	if password == "" {
		return &ValidationError{Field: "password", Reason: "must not be empty"}
	}
	if len(password) > MaxPasswordLength {
		return &ValidationError{Field: "password", Reason: fmt.Sprintf("must be at most %d characters", MaxPasswordLength)}
	}
	if displayName == "" {
		return &ValidationError{Field: "display_name", Reason: "must not be empty"}
	}
	if len(displayName) > MaxDisplayNameLength {
		return &ValidationError{Field: "display_name", Reason: fmt.Sprintf("must be at most %d characters", MaxDisplayNameLength)}
	}
	return nil
}
