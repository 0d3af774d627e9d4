package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doculearn/gateway/pkg/auth"
	"github.com/doculearn/gateway/pkg/logger"
	"github.com/doculearn/gateway/pkg/storage"
)

// ErrMissingRequiredClaim is returned when the verified claims carry no
// subject or no email, without which no user record can be resolved.
var ErrMissingRequiredClaim = errors.New("missing required claim")

// UserStore is the storage contract the resolver depends on. The
// uniqueness constraint on subject at the storage layer is the source
// of truth for provisioning idempotence.
type UserStore interface {
	// FindBySubject returns the user with the given provider subject,
	// or storage.ErrNotFound.
	FindBySubject(ctx context.Context, subject string) (*User, error)

	// Insert persists a new user, or returns storage.ErrAlreadyExists
	// when a uniqueness constraint is violated.
	Insert(ctx context.Context, user *User) (*User, error)
}

// Resolver maps verified claims to a local User, creating one on first
// sight. Lookups never sync provider-side profile edits into existing
// records.
type Resolver struct {
	store UserStore
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(store UserStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the User for the given claims, provisioning one
// just-in-time when none exists. Creation is idempotent under
// concurrent first logins: a uniqueness violation on insert means
// another request just created the record, so it is re-read and
// returned rather than surfaced as an error.
func (r *Resolver) Resolve(ctx context.Context, claims *auth.VerifiedClaims) (*User, error) {
	if claims == nil || claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject", ErrMissingRequiredClaim)
	}

	user, err := r.store.FindBySubject(ctx, claims.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if claims.Email == "" {
		return nil, fmt.Errorf("%w: email", ErrMissingRequiredClaim)
	}

	displayName := claims.Name
	if displayName == "" {
		// Fall back to the local part of the email address when the
		// provider omits a display name.
		displayName = claims.Email[:strings.Index(claims.Email+"@", "@")]
	}

	created, err := r.store.Insert(ctx, &User{
		ID:          uuid.New(),
		Email:       claims.Email,
		Subject:     claims.Subject,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	})
	if err == nil {
		logger.Infow("provisioned new user", "subject", claims.Subject)
		return created, nil
	}
	if !errors.Is(err, storage.ErrAlreadyExists) {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	// Someone else just created it; re-read and return the existing
	// record.
	user, err = r.store.FindBySubject(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read user after concurrent insert: %w", err)
	}
	return user, nil
}
