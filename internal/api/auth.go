package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/inkboard/inkboard-auth/internal/audit"
	"github.com/inkboard/inkboard-auth/internal/auth"
)

// sessionResponse is the body returned whenever a session is established
// or rotated. The credentials themselves travel only in cookies.
type sessionResponse struct {
	SubjectID string    `json:"subject_id"`
	Role      auth.Role `json:"role"`
}

// handleGuestBootstrap provisions a guest identity and a first session.
//
//	POST /api/v1/auth/guest
func (s *Server) handleGuestBootstrap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	// An empty body is fine: guests get the default display name.
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck // optional body
	}

	guest, session, err := s.auth.BootstrapGuest(r.Context(), req.DisplayName)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	s.setSessionCookies(w, session.AccessToken, session.RenewalToken)
	writeJSON(w, http.StatusCreated, map[string]any{
		"subject_id":   guest.ID,
		"role":         auth.RoleGuest,
		"display_name": guest.DisplayName,
	})
}

// handleLogin authenticates an existing registered identity.
//
//	POST /api/v1/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	s.setSessionCookies(w, session.AccessToken, session.RenewalToken)
	writeJSON(w, http.StatusOK, sessionResponse{
		SubjectID: session.SubjectID,
		Role:      session.Role,
	})
}

// handleRefresh explicitly rotates the renewal credential.
//
//	POST /api/v1/auth/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	renewalToken := cookieValue(r, renewalCookieName)
	if renewalToken == "" {
		writeUnauthorized(w, "no session to refresh")
		return
	}

	session, err := s.auth.RotateSession(r.Context(), renewalToken)
	if err != nil {
		if isStorageErr(err) {
			writeUnavailable(w, "temporarily unable to refresh session")
			return
		}
		// Malformed, expired or revoked: the credential is dead either way.
		s.clearSessionCookies(w)
		writeUnauthorized(w, "session expired")
		return
	}

	s.setSessionCookies(w, session.AccessToken, session.RenewalToken)
	writeJSON(w, http.StatusOK, sessionResponse{
		SubjectID: session.SubjectID,
		Role:      session.Role,
	})
}

// handleLogout retires the current session and clears both cookies.
// Always succeeds from the client's point of view unless storage is down.
//
//	POST /api/v1/auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	renewalToken := cookieValue(r, renewalCookieName)

	if renewalToken != "" {
		if err := s.auth.Logout(r.Context(), renewalToken); err != nil {
			if isStorageErr(err) {
				writeUnavailable(w, "temporarily unable to log out")
				return
			}
			s.logger.Warn("logout failed", "error", err)
		}
	}

	s.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the identity behind the authenticated session.
//
//	GET /api/v1/auth/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	identity, err := s.auth.Resolve(r.Context(), subject.ID)
	if err != nil {
		if errors.Is(err, auth.ErrIdentityNotFound) {
			// A valid credential for a deleted identity: treat as dead.
			s.clearSessionCookies(w)
			writeUnauthorized(w, "identity no longer exists")
			return
		}
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subject_id":   identity.SubjectID(),
		"role":         identity.SubjectRole(),
		"display_name": identity.Label(),
	})
}

// handleRegister promotes the authenticated guest to a registered
// identity, carrying its boards across, and swaps in a fresh session.
//
//	POST /api/v1/auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}
	if subject.Role != auth.RoleGuest {
		writeError(w, http.StatusConflict, ErrCodeConflict, "already registered")
		return
	}

	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	session, err := s.auth.PromoteGuestToUser(r.Context(), subject.ID, req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	s.setSessionCookies(w, session.AccessToken, session.RenewalToken)
	writeJSON(w, http.StatusCreated, sessionResponse{
		SubjectID: session.SubjectID,
		Role:      session.Role,
	})
}

// handleListAudit returns audit trail entries for operators.
//
//	GET /api/v1/audit?action=&subject_id=&limit=&offset=
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	filter := audit.Filter{
		Action:    r.URL.Query().Get("action"),
		SubjectID: r.URL.Query().Get("subject_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v) //nolint:errcheck // zero falls back to default
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v) //nolint:errcheck // zero falls back to default
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeAuthError maps auth service errors onto HTTP responses.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	var verr *auth.ValidationError

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, verr.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid email or password")
	case errors.Is(err, auth.ErrEmailExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "email already registered")
	case errors.Is(err, auth.ErrIdentityNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "identity not found")
	case isStorageErr(err):
		writeUnavailable(w, "storage temporarily unavailable")
	default:
		s.logger.Error("auth operation failed", "error", err)
		writeInternalError(w, "internal server error")
	}
}
