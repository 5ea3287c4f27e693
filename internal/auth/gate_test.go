package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authgate/internal/auth/jwt"
)

// stubVerifier returns canned results so gate tests need no key server.
type stubVerifier struct {
	provider string
	claims   jwt.Claims
	err      error
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (string, jwt.Claims, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	return s.provider, s.claims, nil
}

func decodeErrors(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var body struct {
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Errors
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGate_PublicPathPassesThrough(t *testing.T) {
	t.Parallel()

	gate := NewGate(&stubVerifier{err: jwt.ErrInvalidSignature}, []string{"/login", "/healthz"})

	var reached bool
	handler := gate.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		_, ok := IdentityFromContext(r.Context())
		assert.False(t, ok)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_PublicPathIsExactMatch(t *testing.T) {
	t.Parallel()

	gate := NewGate(&stubVerifier{err: jwt.ErrInvalidSignature}, []string{"/login"})

	handler := gate.Middleware()(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login/extra", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGate_MissingCredential(t *testing.T) {
	t.Parallel()

	gate := NewGate(&stubVerifier{provider: "test"}, nil)

	var reached bool
	handler := gate.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/service", nil))

	assert.False(t, reached)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{`The request does not contain an "authorization" header`}, decodeErrors(t, rec))
}

func TestGate_MalformedHeader(t *testing.T) {
	t.Parallel()

	gate := NewGate(&stubVerifier{provider: "test"}, nil)
	handler := gate.Middleware()(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/service", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{`The "authorization" header must start with "Bearer "`}, decodeErrors(t, rec))
}

func TestGate_InvalidToken(t *testing.T) {
	t.Parallel()

	verr := &jwt.VerificationError{
		Provider: "test",
		Messages: []string{"token expired at 2026-01-01T00:00:00Z", `audience does not contain "my-api"`},
	}
	gate := NewGate(&stubVerifier{err: verr}, nil)

	var reached bool
	handler := gate.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/service", nil)
	req.Header.Set("Authorization", "Bearer not-a-valid-token")
	handler.ServeHTTP(rec, req)

	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, verr.Messages, decodeErrors(t, rec))
}

func TestGate_ValidBearerToken(t *testing.T) {
	t.Parallel()

	claims := jwt.Claims{"sub": "123", "scope": "read write"}
	gate := NewGate(&stubVerifier{provider: "test", claims: claims}, nil)

	handler := gate.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "test", identity.Provider)
		assert.Equal(t, "123", identity.Subject)
		assert.Equal(t, "token-value", identity.RawToken)
		assert.True(t, identity.HasScope("read"))
		assert.False(t, identity.HasScope("admin"))
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/service", nil)
	req.Header.Set("Authorization", "Bearer token-value")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_SessionToken(t *testing.T) {
	t.Parallel()

	gate := NewGate(
		&stubVerifier{provider: "test", claims: jwt.Claims{"sub": "123"}},
		nil,
		WithSessionReader(func(r *http.Request) Session {
			return mapSession{"user": {"id_token": "session-token"}}
		}),
	)

	handler := gate.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "session-token", identity.RawToken)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/service", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_KeySourceUnavailableFailsClosed(t *testing.T) {
	t.Parallel()

	gate := NewGate(&stubVerifier{err: jwt.ErrKeySourceUnavailable}, nil)
	handler := gate.Middleware()(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/service", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGate_RecordsDecisionMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := NewMetricsWithRegisterer(reg)

	gate := NewGate(
		&stubVerifier{provider: "test", claims: jwt.Claims{"sub": "123"}},
		[]string{"/healthz"},
		WithGateMetrics(metrics),
	)
	handler := gate.Middleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	req := httptest.NewRequest(http.MethodGet, "/service", nil)
	req.Header.Set("Authorization", "Bearer token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/service", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.decisionsTotal.WithLabelValues(ResultPublic, "absent")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.decisionsTotal.WithLabelValues(ResultAuthenticated, "bearer")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.decisionsTotal.WithLabelValues(ResultNoCredential, "absent")))
}
