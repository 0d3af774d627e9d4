// Package auth provides the token-verification and session-trust core of
// the gateway: the signing-key-set cache, the token verifier and the
// session cookie handling.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/doculearn/gateway/pkg/logger"
	"github.com/doculearn/gateway/pkg/networking"
)

const (
	// DefaultKeySetTTL is how long a fetched key set is served without
	// a network call.
	DefaultKeySetTTL = time.Hour

	// keyFetchTimeout bounds the call to the provider's JWKS endpoint.
	keyFetchTimeout = 10 * time.Second
)

// keySet is an immutable snapshot of the provider's signing keys. It is
// replaced wholesale on refresh, never mutated in place.
type keySet struct {
	keys      jwk.Set
	fetchedAt time.Time
}

// KeySetCache holds the identity provider's public signing keys and
// refreshes them on a TTL policy. A cached set younger than the TTL is
// served without a network call. Once expired, a refresh is attempted;
// on failure the previous set is still served (with an explicit warning
// log) so that verification stays available through provider outages.
// Concurrent refreshes coalesce into a single in-flight fetch.
type KeySetCache struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu      sync.RWMutex
	current *keySet

	group singleflight.Group
}

// KeySetCacheOption configures a KeySetCache.
type KeySetCacheOption func(*KeySetCache)

// WithTTL overrides the default key-set time-to-live.
func WithTTL(ttl time.Duration) KeySetCacheOption {
	return func(c *KeySetCache) {
		c.ttl = ttl
	}
}

// WithHTTPClient overrides the HTTP client used for key fetches.
func WithHTTPClient(client *http.Client) KeySetCacheOption {
	return func(c *KeySetCache) {
		c.client = client
	}
}

// NewKeySetCache creates a cache for the JWKS published at url.
func NewKeySetCache(url string, opts ...KeySetCacheOption) (*KeySetCache, error) {
	if url == "" {
		return nil, fmt.Errorf("JWKS URL is required")
	}

	client, err := networking.NewHttpClientBuilder().
		WithTimeout(keyFetchTimeout).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	cache := &KeySetCache{
		url:    url,
		ttl:    DefaultKeySetTTL,
		client: client,
	}
	for _, opt := range opts {
		opt(cache)
	}

	return cache, nil
}

// Keys returns the current signing key set, fetching or refreshing it as
// required by the TTL policy. It fails with ErrKeySetUnavailable only
// when the fetch fails and no cached copy exists at all.
func (c *KeySetCache) Keys(ctx context.Context) (jwk.Set, error) {
	if cached := c.snapshot(); cached != nil && !c.expired(cached) {
		return cached.keys, nil
	}

	// The cache is empty or expired. Coalesce concurrent refreshes into
	// one outbound fetch; every waiter receives the same result.
	result, err, _ := c.group.Do(c.url, func() (any, error) {
		// Another goroutine may have refreshed while we waited.
		if cached := c.snapshot(); cached != nil && !c.expired(cached) {
			return cached.keys, nil
		}

		fetched, err := c.fetch(ctx)
		if err == nil {
			c.replace(fetched)
			return fetched.keys, nil
		}

		// Refresh failed. Serve the previous set, even expired, so
		// verification stays available; this is not a silent success.
		if cached := c.snapshot(); cached != nil {
			logger.Warnf("signing key refresh failed, serving stale key set fetched at %s: %v",
				cached.fetchedAt.Format(time.RFC3339), err)
			return cached.keys, nil
		}

		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	})
	if err != nil {
		return nil, err
	}

	return result.(jwk.Set), nil
}

// fetch retrieves and parses the key set from the provider endpoint.
func (c *KeySetCache) fetch(ctx context.Context) (*keySet, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, keyFetchTimeout)
	defer cancel()

	keys, err := jwk.Fetch(fetchCtx, c.url, jwk.WithHTTPClient(c.client))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", c.url, err)
	}

	return &keySet{keys: keys, fetchedAt: time.Now()}, nil
}

func (c *KeySetCache) snapshot() *keySet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *KeySetCache) replace(set *keySet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = set
}

func (c *KeySetCache) expired(set *keySet) bool {
	return time.Since(set.fetchedAt) >= c.ttl
}
