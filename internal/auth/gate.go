package auth

import (
	"context"
	"errors"
)

// GateState is the terminal state of a gate decision. Exactly four exist.
type GateState string

const (
	// StateAuthenticated: the access credential was valid; forward as-is.
	StateAuthenticated GateState = "authenticated"

	// StateRotated: the access credential was missing or invalid but the
	// renewal credential was exchanged for a fresh pair; forward with the
	// new identity and hand the pair back to the caller.
	StateRotated GateState = "rotated"

	// StateRejected: terminal rejection. The presented credentials are
	// unsalvageable and the caller should clear them.
	StateRejected GateState = "rejected"

	// StateRejectedInternal: transient rejection (storage unavailable).
	// The caller keeps its credentials and may retry the same request.
	StateRejectedInternal GateState = "rejected_internal"
)

// Decision is the outcome of a gate check.
type Decision struct {
	State     GateState
	SubjectID string
	Role      Role

	// Session carries the freshly rotated pair. Non-nil only for StateRotated.
	Session *Session

	// ClearCredentials instructs the caller to discard its stored
	// credentials. Set on StateRejected, never on StateRejectedInternal.
	ClearCredentials bool

	// Err is the rejection reason for the two rejected states.
	Err error
}

// Authorized reports whether the request may be forwarded.
func (d Decision) Authorized() bool {
	return d.State == StateAuthenticated || d.State == StateRotated
}

// Gate is the request-time decision procedure. It holds no state between
// requests; all persistent state lives in the renewal record store.
type Gate struct {
	codec  *Codec
	issuer *Issuer
}

// NewGate creates an access gate.
func NewGate(codec *Codec, issuer *Issuer) *Gate {
	return &Gate{codec: codec, issuer: issuer}
}

// Check runs the per-request decision tree over an optional access
// credential and an optional renewal credential.
//
// A linear tree with four terminal states: a valid access credential
// authenticates outright with no mutation; otherwise the renewal
// credential, if any, is rotated; rotation failures split into terminal
// (malformed, expired, revoked — clear the credentials) and transient
// (storage — keep them and retry later).
func (g *Gate) Check(ctx context.Context, accessToken, renewalToken string) Decision {
	if accessToken != "" {
		subjectID, role, err := g.codec.VerifyAccess(accessToken)
		if err == nil {
			return Decision{
				State:     StateAuthenticated,
				SubjectID: subjectID,
				Role:      role,
			}
		}
		// Invalid access falls through to the renewal path; expired and
		// malformed are indistinguishable here by design.
	}

	if renewalToken == "" {
		return Decision{
			State:            StateRejected,
			ClearCredentials: true,
			Err:              ErrAccessInvalid,
		}
	}

	session, err := g.issuer.Rotate(ctx, renewalToken)
	if err == nil {
		return Decision{
			State:     StateRotated,
			SubjectID: session.SubjectID,
			Role:      session.Role,
			Session:   session,
		}
	}

	if errors.Is(err, ErrStorageUnavailable) {
		return Decision{
			State: StateRejectedInternal,
			Err:   err,
		}
	}

	return Decision{
		State:            StateRejected,
		ClearCredentials: true,
		Err:              err,
	}
}
