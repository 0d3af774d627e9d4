package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionCookieValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSessionCookie("access_token", true, "strict")
	require.NoError(t, err)

	_, err = NewSessionCookie("", true, "lax")
	require.Error(t, err)

	_, err = NewSessionCookie("access_token", true, "sideways")
	require.Error(t, err)
}

func TestSetAndReadSessionCookie(t *testing.T) {
	t.Parallel()

	cookie, err := NewSessionCookie("access_token", true, "lax")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	cookie.Set(rec, "the-token", 30*time.Minute)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	set := cookies[0]
	assert.Equal(t, "access_token", set.Name)
	assert.Equal(t, "the-token", set.Value)
	assert.True(t, set.HttpOnly)
	assert.True(t, set.Secure)
	assert.Equal(t, http.SameSiteLaxMode, set.SameSite)
	assert.Equal(t, int((30 * time.Minute).Seconds()), set.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(set)
	token, err := cookie.Read(req)
	require.NoError(t, err)
	assert.Equal(t, "the-token", token)
}

func TestSetSessionCookieDefaultLifetime(t *testing.T) {
	t.Parallel()

	cookie, err := NewSessionCookie("access_token", false, "lax")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	cookie.Set(rec, "the-token", 0)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, int(DefaultSessionLifetime.Seconds()), cookies[0].MaxAge)
}

func TestReadMissingSessionCookie(t *testing.T) {
	t.Parallel()

	cookie, err := NewSessionCookie("access_token", false, "lax")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = cookie.Read(req)
	require.ErrorIs(t, err, ErrNoSessionCookie)
}

func TestClearSessionCookie(t *testing.T) {
	t.Parallel()

	cookie, err := NewSessionCookie("access_token", false, "lax")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	cookie.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}
