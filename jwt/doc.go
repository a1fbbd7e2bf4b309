// Package jwt wraps github.com/golang-jwt/jwt/v5 behind the small signing
// surface the engine needs: create a signed, time-bounded token carrying a
// subject, a jti, and an opaque role list; and parse one back, enforcing
// signature, expiry, issuer, and audience.
//
// The claims shape is a fixed struct, never an open map, so the engine's
// "jti and subject must be present" check is a compile-time-enforced shape.
package jwt
