package api

import (
	"net/http"
	"time"
)

// Cookie names for the two credential halves.
const (
	accessCookieName  = "ib_access"
	renewalCookieName = "ib_renewal"
)

// renewalCookiePath scopes the long-lived credential to the API. It must
// cover every gated route, not just /auth: the gate rotates on a stale
// access credential at any protected endpoint, and a gated route the
// renewal cookie never reaches would reject and clear an otherwise live
// session.
const renewalCookiePath = "/api/v1"

// setSessionCookies maps a credential pair onto the two cookies. Both are
// HttpOnly; lifetime is governed by the embedded token expiry, so the
// cookies themselves are session-scoped with a generous max age.
func (s *Server) setSessionCookies(w http.ResponseWriter, accessToken, renewalToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    accessToken,
		Path:     "/",
		Domain:   s.cfg.Cookies.Domain,
		HttpOnly: true,
		Secure:   s.cfg.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     renewalCookieName,
		Value:    renewalToken,
		Path:     renewalCookiePath,
		Domain:   s.cfg.Cookies.Domain,
		HttpOnly: true,
		Secure:   s.cfg.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((10 * 365 * 24 * time.Hour).Seconds()),
	})
}

// clearSessionCookies expires both credential cookies. Used on terminal
// rejection and logout so clients stop presenting dead credentials.
func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.cfg.Cookies.Domain,
		HttpOnly: true,
		Secure:   s.cfg.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     renewalCookieName,
		Value:    "",
		Path:     renewalCookiePath,
		Domain:   s.cfg.Cookies.Domain,
		HttpOnly: true,
		Secure:   s.cfg.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// cookieValue returns the named cookie's value, or "" when absent.
func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
