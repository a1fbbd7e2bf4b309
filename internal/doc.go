// Package internal holds crypto-random primitives shared by the engine:
// token identifier and numeric one-time passcode generation.
package internal
