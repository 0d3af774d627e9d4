package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerifiedClaims is the output of successful token verification. It is
// an immutable value produced fresh per verification call and is never
// persisted.
type VerifiedClaims struct {
	// Subject is the provider's stable identifier for the principal.
	Subject string

	// Email is the email address from the email claim, if present.
	Email string

	// Name is the display name from the name claim, if present.
	Name string

	// Issuer is the iss claim.
	Issuer string

	// Audience is the matched audience (aud claim, or client_id for
	// provider access tokens that carry no aud).
	Audience string

	// ExpiresAt is the exp claim.
	ExpiresAt time.Time
}

// claimsToVerified extracts the identity fields from a validated claim
// set. Validation has already happened; this only shapes the data.
func claimsToVerified(claims jwt.MapClaims) *VerifiedClaims {
	verified := &VerifiedClaims{}

	if sub, err := claims.GetSubject(); err == nil {
		verified.Subject = sub
	}
	if iss, err := claims.GetIssuer(); err == nil {
		verified.Issuer = iss
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		verified.ExpiresAt = exp.Time
	}
	if email, ok := claims["email"].(string); ok {
		verified.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		verified.Name = name
	}

	if aud, err := claims.GetAudience(); err == nil && len(aud) > 0 {
		verified.Audience = aud[0]
	} else if clientID, ok := claims["client_id"].(string); ok {
		verified.Audience = clientID
	}

	return verified
}
