// Package session implements the Redis-backed session registry: the mapping
// from token identifier (jti) to liveness, and from subject to the set of
// that subject's live jtis.
//
// Redis serializes individual key operations but gives no cross-key
// atomicity. The registry does not paper over that: a jti can briefly be
// registered but absent from its subject's index (verifiable yet invisible
// to bulk logout until the index add completes). The failure direction is
// always safe — a missing session record makes verification fail closed.
package session
