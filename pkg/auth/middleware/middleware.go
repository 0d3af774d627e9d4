// Package middleware gates HTTP routes on a valid session and attaches
// the resolved local user to the request context.
package middleware

import (
	"context"
	"net/http"

	"github.com/doculearn/gateway/pkg/auth"
	"github.com/doculearn/gateway/pkg/identity"
	"github.com/doculearn/gateway/pkg/logger"
	"github.com/doculearn/gateway/pkg/telemetry"
)

// Authenticator authenticates incoming requests from their session cookie
// and resolves the local user record for the token's subject.
type Authenticator struct {
	verifier *auth.Verifier
	resolver *identity.Resolver
	cookie   auth.SessionCookie
}

// NewAuthenticator wires a verifier, resolver and cookie codec together.
func NewAuthenticator(
	verifier *auth.Verifier,
	resolver *identity.Resolver,
	cookie auth.SessionCookie,
) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		resolver: resolver,
		cookie:   cookie,
	}
}

// Authenticate validates the request's session cookie and returns the
// local user it belongs to. The error describes which check failed; it is
// for logging only and must never reach the client.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*identity.User, error) {
	token, err := a.cookie.Read(r)
	if err != nil {
		return nil, err
	}
	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return a.resolver.Resolve(ctx, claims)
}

// RequireUser rejects unauthenticated requests with a uniform 401 before
// the handler runs. Whatever check failed, the client sees the same
// response; the specific reason is only logged.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.Authenticate(r.Context(), r)
		if err != nil {
			logger.Infow("request rejected",
				"path", r.URL.Path,
				"reason", err.Error(),
			)
			telemetry.RecordAuthOutcome(false)
			writeUnauthorized(w)
			return
		}
		telemetry.RecordAuthOutcome(true)
		next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), user)))
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"detail":"Not authenticated"}`))
}
