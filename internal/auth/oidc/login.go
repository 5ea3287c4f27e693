// Package oidc implements the browser login flow against an OpenID Connect
// provider using the OAuth2 authorization code grant.
package oidc

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/vyrodovalexey/authgate/internal/config"
	"github.com/vyrodovalexey/authgate/internal/observability"
	"github.com/vyrodovalexey/authgate/internal/session"
)

// LoginHandler serves the /login, /auth and /logout routes. A completed
// login stores the provider's tokens in the session, where the gate's
// credential extractor picks the id_token up on later requests.
type LoginHandler struct {
	oauth           *oauth2.Config
	sessions        *session.Manager
	logger          observability.Logger
	successRedirect string
}

// LoginOption is a functional option for configuring the login handler.
type LoginOption func(*LoginHandler)

// WithLoginLogger sets the logger for the login handler.
func WithLoginLogger(logger observability.Logger) LoginOption {
	return func(h *LoginHandler) {
		h.logger = logger
	}
}

// WithSuccessRedirect sets where the browser lands after login and logout.
func WithSuccessRedirect(path string) LoginOption {
	return func(h *LoginHandler) {
		h.successRedirect = path
	}
}

// NewLoginHandler creates the login flow handlers.
func NewLoginHandler(cfg config.LoginConfig, sessions *session.Manager, opts ...LoginOption) *LoginHandler {
	h := &LoginHandler{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizeURL,
				TokenURL: cfg.TokenURL,
			},
		},
		sessions:        sessions,
		logger:          observability.NopLogger(),
		successRedirect: "/",
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Login starts the authorization code flow. A random state value is bound
// to the session so the callback can reject forged redirects.
func (h *LoginHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	if err := h.sessions.SetState(w, r, state); err != nil {
		h.logger.Error("failed to store login state", observability.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start login")
		return
	}

	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the authorization code flow. On success the provider's
// tokens are stored in the session under the user entry.
func (h *LoginHandler) Callback(w http.ResponseWriter, r *http.Request) {
	state, ok := h.sessions.TakeState(w, r)
	if !ok || state != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "login state mismatch")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("authorization code exchange failed", observability.Error(err))
		writeError(w, http.StatusBadGateway, "token exchange failed")
		return
	}

	user := map[string]any{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
		"expires_at":   token.Expiry.Unix(),
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		user["id_token"] = idToken
	}

	if err := h.sessions.SetUser(w, r, user); err != nil {
		h.logger.Error("failed to store user in session", observability.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to complete login")
		return
	}

	h.logger.Info("user signed in")
	http.Redirect(w, r, h.successRedirect, http.StatusFound)
}

// Logout clears the session.
func (h *LoginHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(w, r); err != nil {
		h.logger.Warn("failed to destroy session", observability.Error(err))
	}
	http.Redirect(w, r, h.successRedirect, http.StatusFound)
}

// writeError writes a JSON error response in the gate's body shape.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string][]string{"errors": {message}})
}
