package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doculearn/gateway/pkg/auth"
	"github.com/doculearn/gateway/pkg/identity"
	"github.com/doculearn/gateway/pkg/storage"
)

const (
	testKeyID    = "mw-key-1"
	testIssuer   = "https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_test"
	testAudience = "test-client"
)

type fakeStore struct {
	mu        sync.Mutex
	bySubject map[string]*identity.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{bySubject: map[string]*identity.User{}}
}

func (s *fakeStore) FindBySubject(_ context.Context, subject string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.bySubject[subject]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) Insert(_ context.Context, user *identity.User) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bySubject[user.Subject]; ok {
		return nil, storage.ErrAlreadyExists
	}
	copied := *user
	s.bySubject[user.Subject] = &copied
	return user, nil
}

type testHarness struct {
	auth *Authenticator
	key  *rsa.PrivateKey
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwkKey, err := jwk.Import(key.Public())
	require.NoError(t, err)
	require.NoError(t, jwkKey.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, jwkKey.Set(jwk.AlgorithmKey, "RS256"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(jwkKey))

	buf, err := json.Marshal(set)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buf)
	}))
	t.Cleanup(srv.Close)

	cache, err := auth.NewKeySetCache(srv.URL)
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(cache, testIssuer, testAudience, "RS256")
	require.NoError(t, err)
	cookie, err := auth.NewSessionCookie("access_token", false, "lax")
	require.NoError(t, err)

	return &testHarness{
		auth: NewAuthenticator(verifier, identity.NewResolver(newFakeStore()), cookie),
		key:  key,
	}
}

func (h *testHarness) signToken(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   "u-1",
		"email": "a@x.com",
		"iss":   testIssuer,
		"aud":   testAudience,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(h.key)
	require.NoError(t, err)
	return signed
}

func (h *testHarness) request(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	if token != "" {
		r.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	}
	return r
}

func TestAuthenticateValidSession(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	user, err := h.auth.Authenticate(context.Background(), h.request(h.signToken(t, nil)))
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.Subject)
	assert.Equal(t, "a@x.com", user.Email)
}

func TestAuthenticateMissingCookie(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	_, err := h.auth.Authenticate(context.Background(), h.request(""))
	require.ErrorIs(t, err, auth.ErrNoSessionCookie)
}

func TestRequireUserInjectsUser(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	var seen *identity.User
	handler := h.auth.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := identity.UserFromContext(r.Context())
		require.True(t, ok)
		seen = user
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, h.request(h.signToken(t, nil)))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u-1", seen.Subject)
}

func TestRequireUserUniform401(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	tokens := map[string]string{
		"no cookie": "",
		"malformed": "not-a-jwt",
		"expired": h.signToken(t, func(c jwt.MapClaims) {
			c["exp"] = time.Now().Add(-time.Hour).Unix()
		}),
		"wrong issuer": h.signToken(t, func(c jwt.MapClaims) {
			c["iss"] = "https://evil.example.com"
		}),
		"wrong audience": h.signToken(t, func(c jwt.MapClaims) {
			c["aud"] = "other-client"
		}),
	}

	var bodies []string
	for name, token := range tokens {
		called := false
		handler := h.auth.RequireUser(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			called = true
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, h.request(token))

		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.False(t, called, name)
		bodies = append(bodies, rec.Body.String())
	}

	// Every failure mode produces byte-identical output.
	for _, body := range bodies {
		assert.Equal(t, bodies[0], body)
	}
	assert.JSONEq(t, `{"detail":"Not authenticated"}`, bodies[0])
}

func TestRequireUserProvisionsOnFirstRequest(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	handler := h.auth.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	token := h.signToken(t, nil)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, h.request(token))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
