package oidc

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authgate/internal/config"
	"github.com/vyrodovalexey/authgate/internal/session"
)

func newTestSessions() *session.Manager {
	return session.NewManager(config.SessionConfig{
		Secret:     "test-secret-key-for-sessions",
		CookieName: "authgate_session",
		MaxAge:     3600,
	})
}

func newTestHandler(tokenURL string) (*LoginHandler, *session.Manager) {
	sessions := newTestSessions()
	handler := NewLoginHandler(config.LoginConfig{
		Enabled:      true,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthorizeURL: "https://idp.example.com/authorize",
		TokenURL:     tokenURL,
		RedirectURL:  "http://localhost:8080/auth",
		Scopes:       []string{"openid", "profile"},
	}, sessions)
	return handler, sessions
}

func carryCookies(rec *httptest.ResponseRecorder, req *http.Request) *http.Request {
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestLoginHandler_Login(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHandler("https://idp.example.com/token")

	rec := httptest.NewRecorder()
	handler.Login(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	require.Equal(t, http.StatusFound, rec.Code)

	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", redirect.Host)
	assert.Equal(t, "client-id", redirect.Query().Get("client_id"))
	assert.Equal(t, "code", redirect.Query().Get("response_type"))
	assert.NotEmpty(t, redirect.Query().Get("state"))
	assert.NotEmpty(t, rec.Result().Cookies(), "state must be bound to the session")
}

func TestLoginHandler_CallbackStoresUser(t *testing.T) {
	t.Parallel()

	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "the-access-token",
			"token_type": "Bearer",
			"expires_in": 3600,
			"id_token": "the-id-token"
		}`))
	}))
	t.Cleanup(idp.Close)

	handler, sessions := newTestHandler(idp.URL)

	loginRec := httptest.NewRecorder()
	handler.Login(loginRec, httptest.NewRequest(http.MethodGet, "/login", nil))
	state := stateFromRedirect(t, loginRec)

	callbackRec := httptest.NewRecorder()
	callbackReq := carryCookies(loginRec,
		httptest.NewRequest(http.MethodGet, "/auth?state="+state+"&code=the-code", nil))
	handler.Callback(callbackRec, callbackReq)

	require.Equal(t, http.StatusFound, callbackRec.Code)
	assert.Equal(t, "/", callbackRec.Header().Get("Location"))

	user, ok := sessions.User(carryCookies(callbackRec,
		httptest.NewRequest(http.MethodGet, "/service", nil)))
	require.True(t, ok)
	assert.Equal(t, "the-id-token", user["id_token"])
	assert.Equal(t, "the-access-token", user["access_token"])
}

func TestLoginHandler_CallbackRejectsStateMismatch(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHandler("https://idp.example.com/token")

	loginRec := httptest.NewRecorder()
	handler.Login(loginRec, httptest.NewRequest(http.MethodGet, "/login", nil))

	rec := httptest.NewRecorder()
	req := carryCookies(loginRec,
		httptest.NewRequest(http.MethodGet, "/auth?state=forged&code=the-code", nil))
	handler.Callback(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginHandler_CallbackWithoutSession(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHandler("https://idp.example.com/token")

	rec := httptest.NewRecorder()
	handler.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth?state=x&code=y", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginHandler_Logout(t *testing.T) {
	t.Parallel()

	handler, sessions := newTestHandler("https://idp.example.com/token")

	setRec := httptest.NewRecorder()
	require.NoError(t, sessions.SetUser(setRec,
		httptest.NewRequest(http.MethodGet, "/auth", nil),
		map[string]any{"id_token": "the-token"}))

	rec := httptest.NewRecorder()
	handler.Logout(rec, carryCookies(setRec, httptest.NewRequest(http.MethodGet, "/logout", nil)))

	assert.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func stateFromRedirect(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := redirect.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}
