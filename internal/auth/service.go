package auth

import (
	"context"
	"errors"

	"github.com/inkboard/inkboard-auth/internal/audit"
	"github.com/inkboard/inkboard-auth/internal/events"
	"github.com/inkboard/inkboard-auth/internal/infrastructure/logging"
	"github.com/inkboard/inkboard-auth/internal/metrics"
)

// Service is the surface the auth core exposes to collaborators. Every
// method returns tagged errors from the package taxonomy; storage and
// signing detail never crosses this boundary.
type Service struct {
	identities IdentityStore
	issuer     *Issuer
	gate       *Gate
	codec      *Codec
	promoter   *Promoter

	auditLog audit.Repository
	events   events.Publisher
	metrics  metrics.Recorder
	log      *logging.Logger
}

// ServiceDeps bundles the service's collaborators.
type ServiceDeps struct {
	Identities IdentityStore
	Issuer     *Issuer
	Gate       *Gate
	Codec      *Codec
	Promoter   *Promoter
	Audit      audit.Repository
	Events     events.Publisher
	Metrics    metrics.Recorder
	Logger     *logging.Logger
}

// NewService creates the auth service. Events and Metrics fall back to
// their no-op implementations and Logger to the default logger when nil;
// Audit may be nil to disable the trail entirely.
func NewService(deps ServiceDeps) *Service {
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Service{
		identities: deps.Identities,
		issuer:     deps.Issuer,
		gate:       deps.Gate,
		codec:      deps.Codec,
		promoter:   deps.Promoter,
		auditLog:   deps.Audit,
		events:     deps.Events,
		metrics:    deps.Metrics,
		log:        deps.Logger,
	}
}

// BootstrapGuest silently provisions a guest identity for an
// unauthenticated visitor and issues her first session.
func (s *Service) BootstrapGuest(ctx context.Context, displayName string) (*Guest, *Session, error) {
	guest, err := s.identities.CreateGuest(ctx, displayName)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.issuer.IssueInitial(ctx, guest.ID, RoleGuest)
	if err != nil {
		return nil, nil, err
	}

	s.record(ctx, audit.ActionGuestBootstrap, guest.ID, nil)
	s.events.SessionIssued(guest.ID, string(RoleGuest))

	return guest, session, nil
}

// Login authenticates an existing registered identity and issues a fresh
// session. It never creates identities; unknown email and wrong password
// are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	user, err := s.identities.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			s.record(ctx, audit.ActionLoginFailed, "", map[string]any{"email": email})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		s.record(ctx, audit.ActionLoginFailed, user.ID, nil)
		return nil, ErrInvalidCredentials
	}

	session, err := s.issuer.IssueInitial(ctx, user.ID, RoleUser)
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.ActionLogin, user.ID, nil)
	s.events.SessionIssued(user.ID, string(RoleUser))

	return session, nil
}

// IssueInitialSession mints a fresh session for a subject. Used by
// collaborators that have already established identity out of band.
func (s *Service) IssueInitialSession(ctx context.Context, subjectID string, role Role) (*Session, error) {
	session, err := s.issuer.IssueInitial(ctx, subjectID, role)
	if err != nil {
		return nil, err
	}
	s.events.SessionIssued(subjectID, string(role))
	return session, nil
}

// RotateSession exchanges a renewal credential for a fresh pair. A
// revoked outcome (valid credential, missing record) is audited as
// possible credential reuse.
func (s *Service) RotateSession(ctx context.Context, renewalToken string) (*Session, error) {
	session, err := s.issuer.Rotate(ctx, renewalToken)
	s.metrics.RotationOutcome(rotationOutcome(err))
	if err != nil {
		if errors.Is(err, ErrRenewalRevoked) {
			s.record(ctx, audit.ActionRenewalReuse, "", nil)
		}
		return nil, err
	}

	s.record(ctx, audit.ActionRotation, session.SubjectID, nil)
	s.events.SessionRotated(session.SubjectID, string(session.Role))

	return session, nil
}

// VerifyAccessToken checks an access credential and returns its subject
// and role. Stateless; no store access.
func (s *Service) VerifyAccessToken(token string) (string, Role, error) {
	return s.codec.VerifyAccess(token)
}

// CheckRequest runs the access gate over the presented credentials.
func (s *Service) CheckRequest(ctx context.Context, accessToken, renewalToken string) Decision {
	decision := s.gate.Check(ctx, accessToken, renewalToken)
	s.metrics.GateDecision(string(decision.State))

	if decision.State == StateRotated && decision.Session != nil {
		s.events.SessionRotated(decision.SubjectID, string(decision.Role))
	}
	if decision.State == StateRejected && errors.Is(decision.Err, ErrRenewalRevoked) {
		s.record(ctx, audit.ActionRenewalReuse, "", nil)
	}

	return decision
}

// PromoteGuestToUser converts a guest identity into a registered one,
// migrating board ownership and issuing a session for the new identity.
func (s *Service) PromoteGuestToUser(ctx context.Context, guestID, email, password, displayName string) (*Session, error) {
	session, err := s.promoter.Promote(ctx, guestID, email, password, displayName)
	if err != nil {
		var perr *PromotionError
		if errors.As(err, &perr) {
			s.metrics.PromotionOutcome(perr.Step)
			if perr.Step != StepValidate {
				// Partially applied promotions need operator attention.
				s.log.Error("promotion failed mid-saga",
					"guest_id", guestID,
					"step", perr.Step,
					"error", perr.Err,
				)
			}
		}
		return nil, err
	}

	s.metrics.PromotionOutcome("promoted")
	s.record(ctx, audit.ActionPromotion, session.SubjectID, map[string]any{"guest_id": guestID})
	s.events.IdentityPromoted(guestID, session.SubjectID)

	return session, nil
}

// Logout retires the session behind a renewal credential. Idempotent.
func (s *Service) Logout(ctx context.Context, renewalToken string) error {
	var subjectID string
	if claims, err := s.codec.VerifyRenewal(renewalToken); err == nil {
		subjectID = claims.Subject
	}

	if err := s.issuer.Revoke(ctx, renewalToken); err != nil {
		return err
	}

	if subjectID != "" {
		s.record(ctx, audit.ActionLogout, subjectID, nil)
		s.events.SessionRevoked(subjectID)
	}
	return nil
}

// Resolve returns the identity behind a subject id.
func (s *Service) Resolve(ctx context.Context, subjectID string) (Identity, error) {
	return s.identities.Resolve(ctx, subjectID)
}

// record writes an audit entry, best-effort.
func (s *Service) record(ctx context.Context, action, subjectID string, details map[string]any) {
	if s.auditLog == nil {
		return
	}
	entry := &audit.Entry{
		Action:    action,
		SubjectID: subjectID,
		Details:   details,
	}
	if err := s.auditLog.Create(ctx, entry); err != nil {
		s.log.Warn("writing audit entry", "action", action, "error", err)
	}
}

// rotationOutcome maps a rotation result to a metrics label.
func rotationOutcome(err error) string {
	switch {
	case err == nil:
		return "rotated"
	case errors.Is(err, ErrRenewalMalformed):
		return "malformed"
	case errors.Is(err, ErrRenewalExpired):
		return "expired"
	case errors.Is(err, ErrRenewalRevoked):
		return "revoked"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage"
	default:
		return "error"
	}
}
