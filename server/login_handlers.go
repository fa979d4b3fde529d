package server

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/docketlabs/docket-idp/auth"
	interrors "github.com/docketlabs/docket-idp/internal/errors"
)

var loginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
{{if .Message}}<p>{{.Message}}</p>{{end}}
<form method="post" action="/login">
  <input type="hidden" name="authRequestId" value="{{.AuthRequestID}}">
  <label>Username <input type="text" name="username" autocomplete="username"></label>
  <label>Password <input type="password" name="password" autocomplete="current-password"></label>
  <button type="submit">Sign in</button>
</form>
</body>
</html>`))

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head><title>Consent</title></head>
<body>
<h1>Grant access?</h1>
<form method="post" action="/consent">
  <input type="hidden" name="authRequestId" value="{{.AuthRequestID}}">
  <button type="submit" name="decision" value="approve">Allow</button>
  <button type="submit" name="decision" value="deny">Deny</button>
</form>
</body>
</html>`))

type loginPageData struct {
	AuthRequestID string
	Message       string
}

// LoginPageHandler renders the credential form for a pending authorization.
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authRequestID := r.URL.Query().Get("authRequestId")
		if authRequestID == "" {
			http.Error(w, "missing authRequestId", http.StatusBadRequest)
			return
		}
		s.renderLogin(w, loginPageData{AuthRequestID: authRequestID}, http.StatusOK)
	}
}

// LoginSubmissionHandler checks credentials and moves the flow forward.
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "failed to parse form", http.StatusBadRequest)
			return
		}

		authRequestID := r.FormValue("authRequestId")
		username := r.FormValue("username")
		password := r.FormValue("password")

		result, err := s.auth.Login(authRequestID, username, password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				s.renderLogin(w, loginPageData{
					AuthRequestID: authRequestID,
					Message:       interrors.ErrInvalidCredentials.Error(),
				}, http.StatusUnauthorized)
				return
			}
			log.Err(err).Msg("login failed")
			http.Error(w, "login failed", http.StatusBadRequest)
			return
		}

		if result.NeedsConsent {
			w.Header().Set("Content-Type", contentTypeHTML)
			_ = consentTemplate.Execute(w, loginPageData{AuthRequestID: result.PendingID})
			return
		}

		redirectWithCode(w, r, result)
	}
}

// ConsentHandler records the user's decision and completes or denies the flow.
func (s *Server) ConsentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "failed to parse form", http.StatusBadRequest)
			return
		}

		authRequestID := r.FormValue("authRequestId")
		approved := r.FormValue("decision") == "approve"

		result, err := s.auth.Consent(authRequestID, approved)
		if err != nil {
			log.Err(err).Msg("consent failed")
			http.Error(w, "consent failed", http.StatusBadRequest)
			return
		}

		redirectWithCode(w, r, result)
	}
}

// LogoutHandler validates a post-logout redirect against the client's
// registered URIs and sends the browser there, falling back to the home page.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.URL.Query().Get("client_id")
		postLogout := r.URL.Query().Get("post_logout_redirect_uri")
		subject := r.URL.Query().Get("subject")

		if subject != "" {
			if err := s.auth.RevokeSubjectSessions(subject); err != nil {
				log.Err(err).Msg("failed to revoke subject sessions")
			}
		}

		if clientID != "" && postLogout != "" {
			if s.auth.PostLogoutRedirectSafe(clientID, postLogout) {
				http.Redirect(w, r, postLogout, http.StatusSeeOther)
				return
			}
			log.Warn().Str("client_id", clientID).Err(interrors.ErrInvalidRedirectURI).Msg("rejected post-logout redirect")
		}

		http.Redirect(w, r, RouteHome, http.StatusSeeOther)
	}
}

func (s *Server) renderLogin(w http.ResponseWriter, data loginPageData, status int) {
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_ = loginTemplate.Execute(w, data)
}

// redirectWithCode sends the browser back to the client with either the
// issued code or access_denied, echoing state verbatim.
func redirectWithCode(w http.ResponseWriter, r *http.Request, result *auth.LoginResult) {
	u, err := url.Parse(result.RedirectURI)
	if err != nil {
		http.Error(w, "invalid redirect URI", http.StatusInternalServerError)
		return
	}

	q := u.Query()
	if result.Denied {
		q.Set("error", "access_denied")
	} else {
		q.Set("code", result.Code)
	}
	if result.State != "" {
		q.Set("state", result.State)
	}
	u.RawQuery = q.Encode()

	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}
