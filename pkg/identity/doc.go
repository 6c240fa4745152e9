// Package identity is the auth-token issuer and verifier behind the
// authentication core. Modules depend only on the Provider interface; the
// built-in Service issues HMAC-signed JWT access tokens and opaque, rotated
// refresh tokens, and manages the synthetic machine accounts created for
// paired agents.
package identity
