package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenPolicy holds the signing key and credential lifetimes. It is built
// once from validated configuration at startup.
type TokenPolicy struct {
	Secret          string
	AccessTTL       time.Duration
	UserRenewalTTL  time.Duration
	GuestRenewalTTL time.Duration
}

// Codec signs and verifies the two credential shapes.
//
// Access claims carry {sub, role, exp}; renewal claims additionally carry
// the backing record id {rid}. Both are HS256 JWTs under the same key, so
// each carries a typ discriminator and the verifiers reject the other
// kind: a renewal credential must never pass stateless access
// verification, or revocation could be bypassed for its full lifetime.
type Codec struct {
	policy TokenPolicy
}

// Credential type discriminator values for the typ claim.
const (
	tokenTypeAccess  = "access"
	tokenTypeRenewal = "renewal"
)

// NewCodec creates a Codec with the given policy.
func NewCodec(policy TokenPolicy) *Codec {
	return &Codec{policy: policy}
}

// AccessClaims is the payload of an access credential.
type AccessClaims struct {
	jwt.RegisteredClaims
	Role      Role   `json:"role"`
	TokenType string `json:"typ"`
}

// RenewalClaims is the payload of a renewal credential. RecordID references
// the renewal record whose existence makes the credential valid.
type RenewalClaims struct {
	jwt.RegisteredClaims
	Role      Role   `json:"role"`
	TokenType string `json:"typ"`
	RecordID  string `json:"rid"`
}

// IssueAccess signs a short-lived access credential for the subject.
func (c *Codec) IssueAccess(subjectID string, role Role) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.policy.AccessTTL)),
			ID:        uuid.NewString(),
		},
		Role:      role,
		TokenType: tokenTypeAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.policy.Secret))
	if err != nil {
		return "", fmt.Errorf("signing access credential: %w", err)
	}
	return signed, nil
}

// IssueRenewal signs a renewal credential bound to a renewal record.
// Registered identities get the long-lived policy; guests get the
// effectively unbounded one, so an anonymous session survives without
// ever logging in.
func (c *Codec) IssueRenewal(recordID, subjectID string, role Role) (string, error) {
	now := time.Now()
	claims := RenewalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.renewalTTL(role))),
			ID:        uuid.NewString(),
		},
		Role:      role,
		TokenType: tokenTypeRenewal,
		RecordID:  recordID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.policy.Secret))
	if err != nil {
		return "", fmt.Errorf("signing renewal credential: %w", err)
	}
	return signed, nil
}

// renewalTTL returns the renewal lifetime for a role.
func (c *Codec) renewalTTL(role Role) time.Duration {
	if role == RoleGuest {
		return c.policy.GuestRenewalTTL
	}
	return c.policy.UserRenewalTTL
}

// VerifyAccess checks an access credential's signature, expiry and
// required fields. Every failure mode collapses into ErrAccessInvalid:
// expired and malformed are deliberately not distinguished, pushing the
// caller toward the renewal path uniformly.
func (c *Codec) VerifyAccess(tokenString string) (subjectID string, role Role, err error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrAccessInvalid, err)
	}
	if !token.Valid {
		return "", "", ErrAccessInvalid
	}

	if claims.TokenType != tokenTypeAccess {
		return "", "", fmt.Errorf("%w: not an access credential", ErrAccessInvalid)
	}
	if claims.Subject == "" {
		return "", "", fmt.Errorf("%w: missing subject", ErrAccessInvalid)
	}
	if !IsValidRole(claims.Role) {
		return "", "", fmt.Errorf("%w: missing or unknown role", ErrAccessInvalid)
	}

	return claims.Subject, claims.Role, nil
}

// VerifyRenewal checks a renewal credential's signature, expiry and
// required fields. Unlike access verification, expiry and malformation
// are distinguished: an expired renewal is a terminal "log in again"
// outcome, while a malformed one may indicate tampering — callers log
// them differently even though both reject.
//
// A passing result does NOT mean the credential is usable: the referenced
// record must still exist, which only the issuer's rotation checks.
func (c *Codec) VerifyRenewal(tokenString string) (*RenewalClaims, error) {
	claims := &RenewalClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrRenewalExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrRenewalMalformed, err)
	}
	if !token.Valid {
		return nil, ErrRenewalMalformed
	}

	if claims.TokenType != tokenTypeRenewal {
		return nil, fmt.Errorf("%w: not a renewal credential", ErrRenewalMalformed)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrRenewalMalformed)
	}
	if claims.RecordID == "" {
		return nil, fmt.Errorf("%w: missing record id", ErrRenewalMalformed)
	}
	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: missing or unknown role", ErrRenewalMalformed)
	}

	return claims, nil
}

// keyFunc supplies the HMAC key to the JWT parser.
func (c *Codec) keyFunc(_ *jwt.Token) (any, error) {
	return []byte(c.policy.Secret), nil
}
