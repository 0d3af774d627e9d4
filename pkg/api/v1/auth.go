package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doculearn/gateway/pkg/auth"
	"github.com/doculearn/gateway/pkg/identity"
	"github.com/doculearn/gateway/pkg/logger"
	"github.com/doculearn/gateway/pkg/oauth"
	"github.com/doculearn/gateway/pkg/telemetry"
)

// AuthRouter sets up the login, callback, logout and status routes.
func AuthRouter(
	flow *oauth.Flow,
	verifier *auth.Verifier,
	resolver *identity.Resolver,
	cookie auth.SessionCookie,
	frontendURL string,
) http.Handler {
	routes := &authRoutes{
		flow:        flow,
		verifier:    verifier,
		resolver:    resolver,
		cookie:      cookie,
		frontendURL: frontendURL,
	}
	r := chi.NewRouter()
	r.Get("/login", routes.login)
	r.Get("/callback", routes.callback)
	r.Post("/logout", routes.logout)
	r.Get("/status", routes.status)
	return r
}

type authRoutes struct {
	flow        *oauth.Flow
	verifier    *auth.Verifier
	resolver    *identity.Resolver
	cookie      auth.SessionCookie
	frontendURL string
}

// login redirects the browser to the provider's hosted sign-in page.
func (a *authRoutes) login(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, a.flow.AuthCodeURL(r.URL.Query().Get("state")), http.StatusFound)
}

// callback completes the authorization-code flow: it exchanges the code,
// verifies the returned ID token, provisions the local user and starts
// the cookie session.
func (a *authRoutes) callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	tokens, err := a.flow.Exchange(r.Context(), code)
	if err != nil {
		logger.Warnf("code exchange failed: %v", err)
		telemetry.RecordLogin(false)
		writeError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}

	if tokens.IDToken == "" {
		logger.Warnf("token response contained no ID token")
		telemetry.RecordLogin(false)
		writeError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}
	claims, err := a.verifier.VerifyIDToken(r.Context(), tokens.IDToken)
	if err != nil {
		logger.Warnf("ID token verification failed: %v", err)
		telemetry.RecordLogin(false)
		writeError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}

	user, err := a.resolver.Resolve(r.Context(), claims)
	if err != nil {
		if errors.Is(err, identity.ErrMissingRequiredClaim) {
			logger.Warnf("ID token missing required claim: %v", err)
			telemetry.RecordLogin(false)
			writeError(w, http.StatusUnauthorized, "Authentication failed")
			return
		}
		logger.Errorf("failed to provision user: %v", err)
		telemetry.RecordLogin(false)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	a.cookie.Set(w, tokens.AccessToken, tokens.Lifetime)
	telemetry.RecordLogin(true)
	logger.Infow("login completed", "user_id", user.ID, "subject", user.Subject)
	http.Redirect(w, r, a.frontendURL+"/dashboard", http.StatusFound)
}

// logout clears the session cookie. The provider session is untouched.
func (a *authRoutes) logout(w http.ResponseWriter, _ *http.Request) {
	a.cookie.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Logged out"})
}

// status reports whether a session cookie is present. It does not
// validate the token; protected routes do that themselves.
func (a *authRoutes) status(w http.ResponseWriter, r *http.Request) {
	_, err := a.cookie.Read(r)
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": err == nil})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
