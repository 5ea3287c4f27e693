package jwt

import (
	"encoding/json"
	"time"
)

// Claims is the decoded JWT payload. The full claim set is preserved so that
// downstream consumers can read any field, not just the registered ones.
type Claims map[string]any

// Subject returns the "sub" claim.
func (c Claims) Subject() string {
	return c.GetString("sub")
}

// Issuer returns the "iss" claim.
func (c Claims) Issuer() string {
	return c.GetString("iss")
}

// GetString returns a claim value as a string, or "" if absent or not a string.
func (c Claims) GetString(name string) string {
	v, _ := c[name].(string)
	return v
}

// Audience returns the "aud" claim normalized to a slice. The claim may be
// encoded as a single string or an array of strings.
func (c Claims) Audience() []string {
	switch v := c["aud"].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// HasAudience reports whether the audience contains the given value.
func (c Claims) HasAudience(aud string) bool {
	for _, v := range c.Audience() {
		if v == aud {
			return true
		}
	}
	return false
}

// ExpiresAt returns the "exp" claim as a time, if present.
func (c Claims) ExpiresAt() (time.Time, bool) {
	return c.timeClaim("exp")
}

// NotBefore returns the "nbf" claim as a time, if present.
func (c Claims) NotBefore() (time.Time, bool) {
	return c.timeClaim("nbf")
}

// IssuedAt returns the "iat" claim as a time, if present.
func (c Claims) IssuedAt() (time.Time, bool) {
	return c.timeClaim("iat")
}

// timeClaim decodes a NumericDate claim.
func (c Claims) timeClaim(name string) (time.Time, bool) {
	switch v := c[name].(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0), true
		}
	}
	return time.Time{}, false
}
