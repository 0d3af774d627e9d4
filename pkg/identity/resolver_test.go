package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doculearn/gateway/pkg/auth"
	"github.com/doculearn/gateway/pkg/storage"
)

// fakeStore is an in-memory UserStore with the same uniqueness semantics
// as the SQLite implementation.
type fakeStore struct {
	mu         sync.Mutex
	bySubject  map[string]*User
	byEmail    map[string]*User
	insertCnt  int
	findErr    error
	insertHook func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bySubject: make(map[string]*User),
		byEmail:   make(map[string]*User),
	}
}

func (f *fakeStore) FindBySubject(_ context.Context, subject string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if user, ok := f.bySubject[subject]; ok {
		return user, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) Insert(_ context.Context, user *User) (*User, error) {
	if f.insertHook != nil {
		f.insertHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCnt++
	if _, ok := f.bySubject[user.Subject]; ok {
		return nil, storage.ErrAlreadyExists
	}
	if _, ok := f.byEmail[user.Email]; ok {
		return nil, storage.ErrAlreadyExists
	}
	f.bySubject[user.Subject] = user
	f.byEmail[user.Email] = user
	return user, nil
}

func testClaims() *auth.VerifiedClaims {
	return &auth.VerifiedClaims{
		Subject: "u-1",
		Email:   "a@x.com",
		Name:    "Alice Example",
	}
}

func TestResolveProvisionsNewUser(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	resolver := NewResolver(store)

	user, err := resolver.Resolve(context.Background(), testClaims())
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.Subject)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, "Alice Example", user.DisplayName)
	assert.NotZero(t, user.ID)
	assert.NotZero(t, user.CreatedAt)
	assert.Equal(t, 1, store.insertCnt)
}

func TestResolveDisplayNameFallsBackToEmailLocalPart(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	resolver := NewResolver(store)

	claims := testClaims()
	claims.Name = ""

	user, err := resolver.Resolve(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, "a", user.DisplayName)
}

func TestResolveIsIdempotent(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	resolver := NewResolver(store)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, testClaims())
	require.NoError(t, err)

	second, err := resolver.Resolve(ctx, testClaims())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.insertCnt)
}

func TestResolveExistingUserIsNotSynced(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	resolver := NewResolver(store)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, testClaims())
	require.NoError(t, err)

	// A later login with an updated provider-side name returns the
	// record unchanged.
	claims := testClaims()
	claims.Name = "Alice Renamed"
	second, err := resolver.Resolve(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, first.DisplayName, second.DisplayName)
}

func TestResolveMissingClaims(t *testing.T) {
	t.Parallel()
	resolver := NewResolver(newFakeStore())
	ctx := context.Background()

	claims := testClaims()
	claims.Subject = ""
	_, err := resolver.Resolve(ctx, claims)
	require.ErrorIs(t, err, ErrMissingRequiredClaim)

	claims = testClaims()
	claims.Email = ""
	_, err = resolver.Resolve(ctx, claims)
	require.ErrorIs(t, err, ErrMissingRequiredClaim)

	_, err = resolver.Resolve(ctx, nil)
	require.ErrorIs(t, err, ErrMissingRequiredClaim)
}

func TestResolveConcurrentFirstLogins(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	resolver := NewResolver(store)

	const n = 16
	var wg sync.WaitGroup
	results := make([]*User, n)
	errs := make([]error, n)

	start := make(chan struct{})
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i], errs[i] = resolver.Resolve(context.Background(), testClaims())
		}()
	}
	close(start)
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, results[0].ID, results[i].ID)
	}
	assert.Len(t, store.bySubject, 1)
}

func TestResolveLostInsertRaceReReads(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	resolver := NewResolver(store)
	ctx := context.Background()

	// Simulate another request winning the insert race between our
	// lookup and our insert.
	var winner *User
	store.insertHook = func() {
		store.insertHook = nil
		var err error
		winner, err = NewResolver(store).Resolve(ctx, testClaims())
		require.NoError(t, err)
	}

	user, err := resolver.Resolve(ctx, testClaims())
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, winner.ID, user.ID)
}
