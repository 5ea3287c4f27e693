package jwt

import (
	"errors"
	"fmt"
	"strings"
)

// JWT signing algorithm constants.
const (
	AlgRS256 = "RS256"
	AlgRS384 = "RS384"
	AlgRS512 = "RS512"
	AlgPS256 = "PS256"
	AlgPS384 = "PS384"
	AlgPS512 = "PS512"
	AlgES256 = "ES256"
	AlgES384 = "ES384"
	AlgES512 = "ES512"
	AlgEdDSA = "EdDSA"
)

// Sentinel errors for token verification.
var (
	// ErrEmptyToken indicates that the token is empty.
	ErrEmptyToken = errors.New("token is empty")

	// ErrTokenMalformed indicates that the token cannot be parsed into its
	// structural parts.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrUnsupportedAlgorithm indicates that the signing algorithm is not allowed.
	ErrUnsupportedAlgorithm = errors.New("signing algorithm is not supported")

	// ErrUnknownSigningKey indicates that the key id was not found in the
	// provider's key set, even after a refresh.
	ErrUnknownSigningKey = errors.New("signing key not found in key set")

	// ErrInvalidSignature indicates that the token signature does not verify.
	ErrInvalidSignature = errors.New("token signature is invalid")

	// ErrTokenExpired indicates that the token has expired.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenNotYetValid indicates that the token is not yet valid.
	ErrTokenNotYetValid = errors.New("token is not yet valid")

	// ErrIssuerMismatch indicates that the token issuer does not match the
	// provider's configured issuer.
	ErrIssuerMismatch = errors.New("token issuer does not match")

	// ErrAudienceMismatch indicates that the token audience does not contain
	// the provider's configured audience.
	ErrAudienceMismatch = errors.New("token audience does not match")

	// ErrKeySourceUnavailable indicates that the provider's key set could not
	// be fetched. Verification fails closed.
	ErrKeySourceUnavailable = errors.New("key set source unavailable")

	// ErrUnknownProvider indicates that no provider with the given name is
	// configured.
	ErrUnknownProvider = errors.New("unknown provider")
)

// VerificationError reports why a token was rejected. Messages holds every
// validation problem found, in check order, so callers can report all of
// them at once rather than just the first.
type VerificationError struct {
	Provider string
	Messages []string
	causes   []error
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("token verification failed (provider %s): %s",
			e.Provider, strings.Join(e.Messages, "; "))
	}
	return "token verification failed: " + strings.Join(e.Messages, "; ")
}

// Unwrap returns the underlying sentinel errors.
func (e *VerificationError) Unwrap() []error {
	return e.causes
}

// Is reports whether the target matches this error or any of its causes.
func (e *VerificationError) Is(target error) bool {
	_, ok := target.(*VerificationError)
	return ok
}

// NewVerificationError creates a VerificationError with a single message.
func NewVerificationError(provider, message string, cause error) *VerificationError {
	return &VerificationError{
		Provider: provider,
		Messages: []string{message},
		causes:   []error{cause},
	}
}

// add appends a validation problem to the error.
func (e *VerificationError) add(message string, cause error) {
	e.Messages = append(e.Messages, message)
	e.causes = append(e.causes, cause)
}

// empty reports whether no problems have been recorded.
func (e *VerificationError) empty() bool {
	return len(e.Messages) == 0
}
