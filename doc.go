// Package authcore provides a credential and session lifecycle engine: JWT
// access/refresh token pairs with Redis-backed revocation, and one-time
// passcodes (OTPs) for email verification and password reset.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. The engine itself is stateless; all mutable state lives in
// Redis, which serializes individual key operations but provides no cross-key
// atomicity. The engine accepts that ceiling and fails closed: a token whose
// session record is missing is rejected, never accepted.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (SessionPair, TokenPayload, MetricsSnapshot, etc.). Token
// signing lives in the jwt subpackage; the Redis session registry lives in
// the session subpackage.
//
// # What this package must NOT do
//
//   - Hash passwords, store user records, or route HTTP requests. Those are
//     the caller's collaborators.
//   - Distinguish to callers why a token failed verification. Every
//     verification failure is [ErrInvalidCredential]; anything finer would
//     leak revocation timing.
//   - Retry collaborator calls, beyond the documented bounded OTP
//     code-collision loop.
//
// # Performance contract
//
// Verify is the hot path. It performs one JWT parse and one Redis EXISTS per
// call. Refresh, logout, and OTP operations are allowed a handful of Redis
// round-trips each.
package authcore
