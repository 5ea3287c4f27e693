package jwt

import (
	"context"
	"crypto"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vyrodovalexey/authgate/internal/config"
	"github.com/vyrodovalexey/authgate/internal/observability"
)

// Verifier validates bearer tokens against the configured providers.
type Verifier interface {
	// Verify parses and validates the token. On success it returns the name
	// of the provider that accepted the token and the full claim set. On
	// failure the error describes every validation problem found.
	Verify(ctx context.Context, token string) (string, Claims, error)
}

// header is the decoded JOSE header.
type header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Typ string `json:"typ"`
}

// verifier validates tokens against each provider in configuration order.
type verifier struct {
	providers  []config.ProviderConfig
	keys       KeySource
	algorithms map[string]bool
	clockSkew  time.Duration
	logger     observability.Logger
	metrics    *Metrics
	now        func() time.Time
}

// VerifierOption is a functional option for configuring the verifier.
type VerifierOption func(*verifier)

// WithVerifierLogger sets the logger for the verifier.
func WithVerifierLogger(logger observability.Logger) VerifierOption {
	return func(v *verifier) {
		v.logger = logger
	}
}

// WithVerifierMetrics sets the metrics for the verifier.
func WithVerifierMetrics(metrics *Metrics) VerifierOption {
	return func(v *verifier) {
		v.metrics = metrics
	}
}

// WithKeySource sets the key source for the verifier. When not set, a
// caching key source is built from the provider configuration.
func WithKeySource(keys KeySource) VerifierOption {
	return func(v *verifier) {
		v.keys = keys
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *verifier) {
		v.now = now
	}
}

// NewVerifier creates a verifier for the given gate configuration.
func NewVerifier(cfg *config.AuthConfig, opts ...VerifierOption) (Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth configuration: %w", err)
	}

	v := &verifier{
		providers:  cfg.Providers,
		algorithms: make(map[string]bool, len(cfg.Algorithms)),
		clockSkew:  cfg.GetEffectiveClockSkew(),
		logger:     observability.NopLogger(),
		now:        time.Now,
	}

	for _, alg := range cfg.Algorithms {
		if _, ok := algHash[alg]; !ok && alg != AlgEdDSA {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
		}
		v.algorithms[alg] = true
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.keys == nil {
		v.keys = NewKeySource(cfg.Providers,
			WithKeySourceLogger(v.logger),
			WithKeySourceMetrics(v.metrics),
			WithFetchTimeout(cfg.GetEffectiveFetchTimeout()),
		)
	}

	return v, nil
}

var _ Verifier = (*verifier)(nil)

// Verify implements Verifier.
func (v *verifier) Verify(ctx context.Context, token string) (string, Claims, error) {
	start := v.now()

	if token == "" {
		return "", nil, NewVerificationError("", "token is empty", ErrEmptyToken)
	}

	hdr, claims, signingInput, signature, err := parseToken(token)
	if err != nil {
		v.recordResult("", "malformed", start)
		return "", nil, err
	}

	if len(v.algorithms) > 0 && !v.algorithms[hdr.Alg] {
		v.recordResult("", "unsupported_algorithm", start)
		return "", nil, NewVerificationError("",
			fmt.Sprintf("signing algorithm %q is not allowed", hdr.Alg),
			ErrUnsupportedAlgorithm)
	}

	// Try each provider in configuration order. The first one whose key
	// verifies the signature and whose claim checks pass wins.
	var failures []*VerificationError
	for _, p := range v.providers {
		verr := v.verifyForProvider(ctx, p, hdr, claims, signingInput, signature)
		if verr == nil {
			v.recordResult(p.Name, "success", start)
			v.logger.Debug("token verified",
				observability.String("provider", p.Name),
				observability.String("subject", claims.Subject()),
			)
			return p.Name, claims, nil
		}
		failures = append(failures, verr)
	}

	v.recordResult("", "rejected", start)
	return "", nil, combineFailures(failures)
}

// verifyForProvider validates the token against a single provider. It
// returns nil when the token is acceptable.
func (v *verifier) verifyForProvider(
	ctx context.Context,
	p config.ProviderConfig,
	hdr *header,
	claims Claims,
	signingInput, signature []byte,
) *VerificationError {
	key, err := v.lookupKey(ctx, p.Name, hdr.Kid)
	if err != nil {
		return NewVerificationError(p.Name, err.Error(), err)
	}

	if err := verifySignature(hdr.Alg, key, signingInput, signature); err != nil {
		return NewVerificationError(p.Name, "signature verification failed", err)
	}

	// Signature is good. Collect every claim problem rather than stopping
	// at the first one.
	verr := &VerificationError{Provider: p.Name}
	now := v.now()

	if exp, ok := claims.ExpiresAt(); ok {
		if now.After(exp.Add(v.clockSkew)) {
			verr.add(fmt.Sprintf("token expired at %s", exp.UTC().Format(time.RFC3339)), ErrTokenExpired)
		}
	}
	if nbf, ok := claims.NotBefore(); ok {
		if now.Before(nbf.Add(-v.clockSkew)) {
			verr.add(fmt.Sprintf("token not valid before %s", nbf.UTC().Format(time.RFC3339)), ErrTokenNotYetValid)
		}
	}
	if iss := claims.Issuer(); iss != p.Issuer {
		verr.add(fmt.Sprintf("issuer %q does not match expected %q", iss, p.Issuer), ErrIssuerMismatch)
	}
	if !claims.HasAudience(p.Audience) {
		verr.add(fmt.Sprintf("audience does not contain %q", p.Audience), ErrAudienceMismatch)
	}

	if verr.empty() {
		return nil
	}
	return verr
}

// lookupKey resolves the signing key for the token's kid. A miss drops the
// cached key set and retries once, so key rotations are picked up without a
// cache expiry timer.
func (v *verifier) lookupKey(ctx context.Context, provider, kid string) (crypto.PublicKey, error) {
	set, err := v.keys.Get(ctx, provider)
	if err != nil {
		return nil, err
	}

	if key, ok := set.Key(kid); ok {
		return key, nil
	}

	v.keys.Invalidate(provider)
	set, err = v.keys.Get(ctx, provider)
	if err != nil {
		return nil, err
	}
	if key, ok := set.Key(kid); ok {
		v.logger.Info("signing key resolved after key set refresh",
			observability.String("provider", provider),
			observability.String("kid", kid),
		)
		return key, nil
	}

	return nil, fmt.Errorf("%w: kid %q", ErrUnknownSigningKey, kid)
}

// recordResult records verification metrics when configured.
func (v *verifier) recordResult(provider, result string, start time.Time) {
	if v.metrics == nil {
		return
	}
	if provider == "" {
		provider = "none"
	}
	v.metrics.RecordVerification(provider, result, v.now().Sub(start))
}

// parseToken splits and decodes the compact JWS form.
func parseToken(token string) (*header, Claims, []byte, []byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, nil, nil, nil, NewVerificationError("",
			fmt.Sprintf("token must have 3 parts, got %d", len(parts)),
			ErrTokenMalformed)
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, nil, nil, NewVerificationError("", "token header is not valid base64url", ErrTokenMalformed)
	}
	var hdr header
	if err := json.Unmarshal(headerBytes, &hdr); err != nil {
		return nil, nil, nil, nil, NewVerificationError("", "token header is not valid JSON", ErrTokenMalformed)
	}
	if hdr.Alg == "" {
		return nil, nil, nil, nil, NewVerificationError("", "token header is missing \"alg\"", ErrTokenMalformed)
	}

	claimsBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, nil, nil, NewVerificationError("", "token payload is not valid base64url", ErrTokenMalformed)
	}
	var claims Claims
	if err := json.Unmarshal(claimsBytes, &claims); err != nil {
		return nil, nil, nil, nil, NewVerificationError("", "token payload is not valid JSON", ErrTokenMalformed)
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, nil, nil, NewVerificationError("", "token signature is not valid base64url", ErrTokenMalformed)
	}

	signingInput := []byte(parts[0] + "." + parts[1])

	return &hdr, claims, signingInput, signature, nil
}

// combineFailures merges per-provider failures into a single error.
func combineFailures(failures []*VerificationError) error {
	if len(failures) == 1 {
		return failures[0]
	}

	combined := &VerificationError{}
	for _, f := range failures {
		for i, msg := range f.Messages {
			combined.Messages = append(combined.Messages, fmt.Sprintf("%s: %s", f.Provider, msg))
			combined.causes = append(combined.causes, f.causes[i])
		}
	}
	return combined
}
