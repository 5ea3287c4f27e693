package auth

import (
	"context"
	"strings"

	"github.com/vyrodovalexey/authgate/internal/auth/jwt"
)

// Identity is the authenticated caller attached to the request context once
// the gate has accepted a credential.
type Identity struct {
	// Provider is the name of the provider that verified the token.
	Provider string

	// Subject is the "sub" claim.
	Subject string

	// RawToken is the verified compact token, available for forwarding.
	RawToken string

	// Claims is the full verified claim set.
	Claims jwt.Claims
}

// Scopes returns the token's scopes. Providers encode them either as a
// space-separated "scope" string or a "scp" array.
func (i *Identity) Scopes() []string {
	if i == nil || i.Claims == nil {
		return nil
	}
	if s := i.Claims.GetString("scope"); s != "" {
		return strings.Fields(s)
	}
	if raw, ok := i.Claims["scp"].([]any); ok {
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// HasScope reports whether the token carries the given scope.
func (i *Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity returns a context carrying the identity.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the identity attached by the gate, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok && identity != nil
}
