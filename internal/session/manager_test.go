package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authgate/internal/config"
)

func newTestManager() *Manager {
	return NewManager(config.SessionConfig{
		Secret:     "test-secret-key-for-sessions",
		CookieName: "authgate_session",
		MaxAge:     3600,
	})
}

// withCookies copies the response cookies onto a fresh request.
func withCookies(t *testing.T, rec *httptest.ResponseRecorder, target string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestManager_UserRoundTrip(t *testing.T) {
	t.Parallel()

	m := newTestManager()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth", nil)
	require.NoError(t, m.SetUser(rec, req, map[string]any{
		"id_token": "the-token",
		"email":    "user@example.com",
	}))

	next := withCookies(t, rec, "/service")

	user, ok := m.User(next)
	require.True(t, ok)
	assert.Equal(t, "the-token", user["id_token"])
	assert.Equal(t, "user@example.com", user["email"])
}

func TestManager_ReaderExposesUser(t *testing.T) {
	t.Parallel()

	m := newTestManager()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth", nil)
	require.NoError(t, m.SetUser(rec, req, map[string]any{"id_token": "the-token"}))

	sess := m.Reader()(withCookies(t, rec, "/service"))
	user, ok := sess.Get("user")
	require.True(t, ok)
	assert.Equal(t, "the-token", user["id_token"])
}

func TestManager_ReaderWithoutCookie(t *testing.T) {
	t.Parallel()

	m := newTestManager()

	sess := m.Reader()(httptest.NewRequest(http.MethodGet, "/service", nil))
	_, ok := sess.Get("user")
	assert.False(t, ok)
}

func TestManager_Destroy(t *testing.T) {
	t.Parallel()

	m := newTestManager()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth", nil)
	require.NoError(t, m.SetUser(rec, req, map[string]any{"id_token": "the-token"}))

	logoutReq := withCookies(t, rec, "/logout")
	logoutRec := httptest.NewRecorder()
	require.NoError(t, m.Destroy(logoutRec, logoutReq))

	// The replacement cookie must be expired.
	cookies := logoutRec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestManager_StateRoundTrip(t *testing.T) {
	t.Parallel()

	m := newTestManager()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	require.NoError(t, m.SetState(rec, req, "random-state"))

	callback := withCookies(t, rec, "/auth")
	state, ok := m.TakeState(httptest.NewRecorder(), callback)
	require.True(t, ok)
	assert.Equal(t, "random-state", state)
}

func TestManager_TakeStateWithoutState(t *testing.T) {
	t.Parallel()

	m := newTestManager()

	_, ok := m.TakeState(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth", nil))
	assert.False(t, ok)
}
