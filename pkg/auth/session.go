package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultSessionLifetime is used when the provider's token response does
// not state how long the access token lives.
const DefaultSessionLifetime = time.Hour

// SessionCookie reads and writes the session cookie. The cookie value is
// the provider-issued access token itself; the gateway holds no
// server-side session state and re-verifies the token on every request.
type SessionCookie struct {
	name     string
	secure   bool
	sameSite http.SameSite
}

// NewSessionCookie creates a SessionCookie with the given name and
// attributes. The same-site policy is one of "lax", "strict" or "none".
func NewSessionCookie(name string, secure bool, sameSite string) (SessionCookie, error) {
	var policy http.SameSite
	switch sameSite {
	case "lax":
		policy = http.SameSiteLaxMode
	case "strict":
		policy = http.SameSiteStrictMode
	case "none":
		policy = http.SameSiteNoneMode
	default:
		return SessionCookie{}, fmt.Errorf("invalid same-site policy %q", sameSite)
	}

	if name == "" {
		return SessionCookie{}, errors.New("cookie name is required")
	}

	return SessionCookie{name: name, secure: secure, sameSite: policy}, nil
}

// Set instructs the client to store the access token. The cookie is
// always HTTP-only; its lifetime is matched to the provider's token
// expiry, never indefinite.
func (s SessionCookie) Set(w http.ResponseWriter, accessToken string, lifetime time.Duration) {
	if lifetime <= 0 {
		lifetime = DefaultSessionLifetime
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: s.sameSite,
		MaxAge:   int(lifetime.Seconds()),
	})
}

// Read returns the access token carried by the request, or
// ErrNoSessionCookie when the cookie is absent.
func (s SessionCookie) Read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.name)
	if err != nil || cookie.Value == "" {
		return "", ErrNoSessionCookie
	}
	return cookie.Value, nil
}

// Clear instructs the client to discard the session cookie. This is the
// whole of logout: the token itself is not invalidated server-side
// because there is no server-side session to invalidate.
func (s SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: s.sameSite,
		MaxAge:   -1,
	})
}

// Name returns the configured cookie name.
func (s SessionCookie) Name() string {
	return s.name
}
