// Package jwt implements bearer token verification against identity
// providers described by configuration.
//
// A Verifier checks a token against every configured provider in order:
// the JOSE header is parsed, the signing key is resolved from the
// provider's cached JWKS document, the signature is checked, and the
// registered claims (exp, nbf, iss, aud) are validated with a configurable
// clock skew. Claim problems are collected so a rejection reports all of
// them at once.
//
// Key sets are fetched lazily and cached per provider without an expiry
// timer. A token carrying an unknown kid invalidates the cached set and
// retries once, which is how key rotations are picked up. Concurrent
// cold-cache fetches are coalesced and repeated upstream failures trip a
// per-provider circuit breaker. When a key set cannot be fetched at all,
// verification fails closed.
package jwt
