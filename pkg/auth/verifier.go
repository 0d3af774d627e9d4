package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Verifier validates signed tokens against the cached provider key set.
// Exactly one signing algorithm is accepted; the token's own alg header
// is never used to select the verification method.
type Verifier struct {
	keys     *KeySetCache
	issuer   string
	audience string
	parser   *jwt.Parser
}

// NewVerifier creates a token verifier. The issuer is the expected iss
// claim, the audience is the expected client identifier, and algorithm
// is the single accepted signing algorithm (e.g. RS256).
func NewVerifier(keys *KeySetCache, issuer, audience, algorithm string) (*Verifier, error) {
	if keys == nil {
		return nil, fmt.Errorf("key-set cache is required")
	}
	if issuer == "" || audience == "" {
		return nil, fmt.Errorf("issuer and audience are required")
	}
	if jwt.GetSigningMethod(algorithm) == nil {
		return nil, fmt.Errorf("unknown signing algorithm %q", algorithm)
	}

	return &Verifier{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{algorithm}),
			// Claims are validated explicitly after signature
			// verification so failures carry a specific reason.
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Verify validates a bearer token: structural decoding, key lookup by
// kid, signature under the configured algorithm, then expiry, issuer and
// audience. All checks are hard requirements. On failure it returns the
// most specific of ErrMalformedToken, ErrUnknownSigningKey,
// ErrInvalidSignature, ErrTokenExpired, ErrInvalidIssuer,
// ErrInvalidAudience or ErrKeySetUnavailable.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*VerifiedClaims, error) {
	token, err := v.parser.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return v.keyForToken(ctx, token)
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrMalformedToken)
	}

	if err := v.validateClaims(claims); err != nil {
		return nil, err
	}

	return claimsToVerified(claims), nil
}

// VerifyIDToken verifies the identity token returned by the provider
// during the callback exchange. It applies exactly the same checks as
// Verify; it exists as a separate entry point only because the identity
// token is consumed once for identity extraction rather than carried as
// the ongoing session token.
func (v *Verifier) VerifyIDToken(ctx context.Context, tokenString string) (*VerifiedClaims, error) {
	return v.Verify(ctx, tokenString)
}

// keyForToken locates the public key for the token's kid header.
func (v *Verifier) keyForToken(ctx context.Context, token *jwt.Token) (any, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("%w: token header missing kid", ErrMalformedToken)
	}

	keySet, err := v.keys.Keys(ctx)
	if err != nil {
		return nil, err
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("%w: key ID %s not found in key set", ErrUnknownSigningKey, kid)
	}

	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("failed to export raw key: %w", err)
	}

	return rawKey, nil
}

// validateClaims validates the claims in the token. Expiry, issuer and
// audience are all hard requirements; no flag disables any of them.
func (v *Verifier) validateClaims(claims jwt.MapClaims) error {
	expirationTime, err := claims.GetExpirationTime()
	if err != nil || expirationTime == nil || expirationTime.Before(time.Now()) {
		return ErrTokenExpired
	}

	issuerClaim, err := claims.GetIssuer()
	if err != nil || strings.TrimSpace(issuerClaim) != strings.TrimSpace(v.issuer) {
		return ErrInvalidIssuer
	}

	// Provider access tokens carry the client identifier in a client_id
	// claim rather than aud; accept either, but one must match.
	audiences, err := claims.GetAudience()
	if err != nil {
		return ErrInvalidAudience
	}
	if len(audiences) == 0 {
		if clientID, ok := claims["client_id"].(string); ok {
			audiences = jwt.ClaimStrings{clientID}
		}
	}
	for _, aud := range audiences {
		if aud == v.audience {
			return nil
		}
	}
	return ErrInvalidAudience
}

// mapParseError translates golang-jwt parse failures into the verifier's
// error taxonomy, preserving the most specific reason.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrKeySetUnavailable),
		errors.Is(err, ErrMalformedToken),
		errors.Is(err, ErrUnknownSigningKey):
		// Raised by the keyfunc; already specific.
		return err
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}
