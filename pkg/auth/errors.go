package auth

import "errors"

// Common errors returned by the key-set cache and the token verifier.
// Callers branch on these with errors.Is; the HTTP boundary collapses
// all of them into a single 401 so that responses never reveal which
// check failed.
var (
	// ErrKeySetUnavailable is returned when the signing keys cannot be
	// fetched and no cached copy exists. A token cannot be trusted
	// without keys, so verification fails for the request.
	ErrKeySetUnavailable = errors.New("signing key set unavailable")

	// ErrMalformedToken is returned when the token header or payload
	// cannot be decoded, or the header carries no key identifier.
	ErrMalformedToken = errors.New("malformed token")

	// ErrUnknownSigningKey is returned when the key identifier in the
	// token header is not present in the current key set.
	ErrUnknownSigningKey = errors.New("unknown signing key")

	// ErrInvalidSignature is returned when the signature does not
	// verify under the configured algorithm and located key.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrTokenExpired is returned when the exp claim is missing or in
	// the past.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the iss claim does not match
	// the configured provider issuer.
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience is returned when neither the aud claim nor the
	// client_id claim matches the configured client identifier.
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrNoSessionCookie is returned when a protected request carries
	// no session cookie.
	ErrNoSessionCookie = errors.New("no session cookie")
)
