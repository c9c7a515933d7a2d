package gateway

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
)

// authCookieName is the session cookie set by the login form.
const authCookieName = "ds"

// authExempt lists routes reachable without a token.
var authExempt = map[string]bool{
	"/health": true,
	"/login":  true,
	"/logout": true,
}

// ExtractToken pulls the shared secret from a request. It checks, in order:
// Authorization: Bearer <token>, the token query param (websocket clients
// cannot set headers), and the session cookie.
func ExtractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if c, err := r.Cookie(authCookieName); err == nil {
		// The login form stores the token URL-escaped.
		if v, err := url.QueryUnescape(c.Value); err == nil {
			return v
		}
		return c.Value
	}
	return ""
}

// authMiddleware enforces the shared secret on every route outside the
// exempt set. Browser clients are redirected to the login form instead of
// getting a bare 401.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authExempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !s.authorized(r) {
			if wantsHTML(r) {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorized uses constant-time comparison to prevent timing attacks. An
// empty configured token rejects everything.
func (s *Server) authorized(r *http.Request) bool {
	s.tokenMu.RLock()
	want := s.authToken
	s.tokenMu.RUnlock()
	if want == "" {
		return false
	}
	got := ExtractToken(r)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}
