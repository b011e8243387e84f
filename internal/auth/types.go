package auth

import (
	"errors"
	"fmt"
	"time"
)

// Role represents an identity kind. Exactly two exist.
type Role string

const (
	// RoleGuest is an anonymously provisioned identity with no password.
	// Promotable to a registered identity.
	RoleGuest Role = "guest"

	// RoleUser is a fully registered identity with an email and password.
	RoleUser Role = "user"
)

// IsValidRole returns true if the role is one of the two known roles.
func IsValidRole(r Role) bool {
	return r == RoleGuest || r == RoleUser
}

// Identity is the closed union of the two identity kinds. Only Guest and
// Registered implement it; role-specific behaviour is resolved here, once,
// not re-checked ad hoc by every consumer.
type Identity interface {
	SubjectID() string
	SubjectRole() Role
	Label() string

	isIdentity()
}

// Guest is an anonymously provisioned identity. Created implicitly on
// first visit; it has no credentials of its own.
type Guest struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func (g *Guest) SubjectID() string { return g.ID }
func (g *Guest) SubjectRole() Role { return RoleGuest }
func (g *Guest) Label() string     { return g.DisplayName }
func (g *Guest) isIdentity()       {}

// Registered is a fully registered identity. Created only via promotion
// from a guest; login authenticates an existing one, it never creates.
type Registered struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	DisplayName  string    `json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *Registered) SubjectID() string { return u.ID }
func (u *Registered) SubjectRole() Role { return RoleUser }
func (u *Registered) Label() string     { return u.DisplayName }
func (u *Registered) isIdentity()       {}

// Session pairs one access credential and one renewal credential, both
// bound to the same subject and role. The renewal half is additionally
// bound to exactly one live renewal record.
type Session struct {
	AccessToken  string `json:"access_token"`
	RenewalToken string `json:"renewal_token"`
	SubjectID    string `json:"subject_id"`
	Role         Role   `json:"role"`
}

// Input bounds for the promotion workflow. Checked before any mutation.
const (
	MaxEmailLength       = 254
	MaxPasswordLength    = 128
	MaxDisplayNameLength = 64
)

// Sentinel errors. Malformed, expired and revoked are terminal for the
// credential in hand; storage unavailability is transient and the same
// operation may be retried with the same credential.
var (
	ErrAccessInvalid      = errors.New("access credential invalid")
	ErrRenewalMalformed   = errors.New("renewal credential malformed")
	ErrRenewalExpired     = errors.New("renewal credential expired")
	ErrRenewalRevoked     = errors.New("renewal credential revoked")
	ErrRecordNotFound     = errors.New("renewal record not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("invalid role")
)

// ValidationError reports a promotion input check failure with the
// specific violated constraint, never a generic message.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// PromotionError tags a promotion failure with the saga step that failed,
// so an operator can reconcile a partially applied promotion.
type PromotionError struct {
	Step string
	Err  error
}

func (e *PromotionError) Error() string {
	return fmt.Sprintf("promotion step %s: %v", e.Step, e.Err)
}

func (e *PromotionError) Unwrap() error { return e.Err }
