package gateway

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
)

// loginMaxAge is the session cookie lifetime in seconds (30 days).
const loginMaxAge = 60 * 60 * 24 * 30

const loginPage = `<!DOCTYPE html><html lang="en"><head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width,initial-scale=1,viewport-fit=cover">
<title>Dashboard Login</title>
<style>
*{box-sizing:border-box;margin:0;padding:0}
body{background:#06080e;color:#e0e0e0;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',sans-serif;
  display:flex;align-items:center;justify-content:center;min-height:100vh;padding:20px}
.card{background:#0d1117;border:1px solid #1a1f2e;border-radius:20px;padding:40px 32px;
  width:100%;max-width:380px;text-align:center}
h1{font-size:1.3rem;font-weight:700;margin-bottom:6px;color:#e6edf3}
p{color:#8b949e;font-size:.9rem;margin-bottom:28px}
input{width:100%;padding:14px 16px;border:1px solid #1a1f2e;border-radius:12px;
  background:#06080e;color:#e6edf3;font-size:1rem;margin-bottom:16px;outline:none}
input:focus{border-color:#7c5cfc}
button{width:100%;padding:14px;background:#7c5cfc;color:#fff;border:none;border-radius:12px;
  font-size:1rem;font-weight:600;cursor:pointer;min-height:48px}
.err{color:#f0716a;font-size:.85rem;margin-top:14px}
</style></head><body>
<div class="card">
  <h1>OpenClaw Dashboard</h1>
  <p>Enter your access token to continue</p>
  <form method="POST" action="/login">
    <input type="password" name="token" placeholder="Access Token"
           autofocus autocomplete="current-password">
    <button type="submit">Sign In</button>
  </form>
  {{ERR}}
</div></body></html>`

// handleLogin provides browser-friendly auth with a 30-day cookie session.
// Useful when the dashboard sits behind a public HTTPS tunnel.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		errHTML := ""
		if r.URL.Query().Get("err") != "" {
			errHTML = `<p class="err">Invalid token, please try again.</p>`
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Replace(loginPage, "{{ERR}}", errHTML, 1)))
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			s.writeError(w, http.StatusBadRequest, "bad request")
			return
		}
		token := r.PostFormValue("token")
		s.tokenMu.RLock()
		want := s.authToken
		s.tokenMu.RUnlock()
		if want == "" || subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
			http.Redirect(w, r, "/login?err=1", http.StatusFound)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     authCookieName,
			Value:    url.QueryEscape(want),
			Path:     "/",
			MaxAge:   loginMaxAge,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
		http.Redirect(w, r, "/?token="+url.QueryEscape(want), http.StatusFound)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleLogout clears the session cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: authCookieName, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/login", http.StatusFound)
}
