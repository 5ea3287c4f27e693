package auth

import "errors"

// Gate rejection errors. The messages are part of the API contract and are
// returned verbatim in the response body.
var (
	// ErrNoCredential is returned when a protected request carries neither a
	// session token nor an Authorization header.
	ErrNoCredential = errors.New(`The request does not contain an "authorization" header`)

	// ErrMalformedHeader is returned when the Authorization header does not
	// use the Bearer scheme.
	ErrMalformedHeader = errors.New(`The "authorization" header must start with "Bearer "`)
)
