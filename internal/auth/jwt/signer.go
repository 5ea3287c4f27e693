package jwt

import (
	"crypto"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Signer mints signed tokens. It backs local development setups and the
// verification test suite, where a real identity provider is not available.
type Signer struct {
	key crypto.PrivateKey
	alg string
	kid string
	now func() time.Time
}

// SignerOption is a functional option for configuring the signer.
type SignerOption func(*Signer)

// WithSignerClock overrides the time source. Used in tests.
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// NewSigner creates a signer for the given private key and algorithm.
func NewSigner(key crypto.PrivateKey, alg, kid string, opts ...SignerOption) (*Signer, error) {
	if _, ok := algHash[alg]; !ok && alg != AlgEdDSA {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}

	s := &Signer{
		key: key,
		alg: alg,
		kid: kid,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// SignOptions controls the registered claims added by Sign.
type SignOptions struct {
	// Subject sets the "sub" claim.
	Subject string

	// Issuer sets the "iss" claim.
	Issuer string

	// Audience sets the "aud" claim.
	Audience []string

	// ExpiresIn sets the "exp" claim relative to now. Zero means no expiry.
	ExpiresIn time.Duration

	// NotBefore sets the "nbf" claim relative to now when non-zero.
	NotBefore time.Duration

	// GenerateJTI adds a random "jti" claim.
	GenerateJTI bool
}

// Sign produces a compact serialized token carrying the given claims merged
// with the registered claims from opts. Registered claims in opts win over
// duplicates in claims.
func (s *Signer) Sign(claims Claims, opts SignOptions) (string, error) {
	now := s.now()

	payload := make(Claims, len(claims)+6)
	for k, v := range claims {
		payload[k] = v
	}
	payload["iat"] = now.Unix()
	if opts.Subject != "" {
		payload["sub"] = opts.Subject
	}
	if opts.Issuer != "" {
		payload["iss"] = opts.Issuer
	}
	switch len(opts.Audience) {
	case 0:
	case 1:
		payload["aud"] = opts.Audience[0]
	default:
		payload["aud"] = opts.Audience
	}
	if opts.ExpiresIn != 0 {
		payload["exp"] = now.Add(opts.ExpiresIn).Unix()
	}
	if opts.NotBefore != 0 {
		payload["nbf"] = now.Add(opts.NotBefore).Unix()
	}
	if opts.GenerateJTI {
		payload["jti"] = uuid.NewString()
	}

	hdr := map[string]string{
		"alg": s.alg,
		"typ": "JWT",
	}
	if s.kid != "" {
		hdr["kid"] = s.kid
	}

	headerJSON, err := json.Marshal(hdr)
	if err != nil {
		return "", fmt.Errorf("failed to encode token header: %w", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode token payload: %w", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(payloadJSON)

	signature, err := signInput(s.alg, s.key, []byte(signingInput))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}
