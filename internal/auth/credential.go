package auth

import (
	"net/http"
	"strings"
)

// bearerPrefix is the required Authorization scheme prefix, matched literally.
const bearerPrefix = "Bearer "

// Session entries holding the signed-in user's token.
const (
	sessionUserKey    = "user"
	sessionIDTokenKey = "id_token"
)

// CredentialKind discriminates how a credential was presented.
type CredentialKind int

const (
	// CredentialAbsent means the request carries no credential at all.
	CredentialAbsent CredentialKind = iota

	// CredentialSession means the token came from the browser session.
	CredentialSession

	// CredentialBearer means the token came from the Authorization header.
	CredentialBearer

	// CredentialMalformed means an Authorization header is present but does
	// not use the Bearer scheme.
	CredentialMalformed
)

// String returns the kind name for logs and metrics.
func (k CredentialKind) String() string {
	switch k {
	case CredentialSession:
		return "session"
	case CredentialBearer:
		return "bearer"
	case CredentialMalformed:
		return "malformed"
	default:
		return "absent"
	}
}

// Credential is a token extracted from a request, tagged with its origin.
// Token is only set for the session and bearer kinds.
type Credential struct {
	Kind  CredentialKind
	Token string
}

// Session is read-only access to the request's session data. A nil map or a
// false second return means the entry is absent.
type Session interface {
	Get(name string) (map[string]any, bool)
}

// Extractor pulls a credential out of a request. The gate uses
// ExtractCredential unless overridden.
type Extractor func(r *http.Request, sess Session) Credential

// ExtractCredential returns the request's credential. A token stored in the
// session takes precedence over the Authorization header, so signed-in
// browser users are never affected by stray headers.
func ExtractCredential(r *http.Request, sess Session) Credential {
	if sess != nil {
		if user, ok := sess.Get(sessionUserKey); ok {
			if token, ok := user[sessionIDTokenKey].(string); ok && token != "" {
				return Credential{Kind: CredentialSession, Token: token}
			}
		}
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return Credential{Kind: CredentialAbsent}
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return Credential{Kind: CredentialMalformed}
	}

	return Credential{
		Kind:  CredentialBearer,
		Token: strings.TrimPrefix(header, bearerPrefix),
	}
}
