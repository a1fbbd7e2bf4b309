package authcore

import "errors"

var (
	// ErrInvalidCredential is returned for every token verification failure:
	// bad signature, expired token, missing jti or subject, or a revoked
	// session. Callers must not be able to tell these apart.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrInvalidOTP is returned when an OTP record is absent or the supplied
	// code does not match the stored one.
	ErrInvalidOTP = errors.New("invalid otp code")
	// ErrExpiredOTP is returned when an OTP record's expiry has passed or its
	// status no longer permits verification.
	ErrExpiredOTP = errors.New("expired otp code")
	// ErrCodeAllocationExhausted is returned when the OTP issuer cannot claim
	// a globally unique code within its retry budget. It indicates code-space
	// saturation and should surface as a server error, not a user error.
	ErrCodeAllocationExhausted = errors.New("otp code allocation exhausted")
	// ErrSessionCreationFailed is returned when a session pair could not be
	// fully registered in the session registry.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionInvalidationFailed is returned when logout could not remove
	// the session state it targeted.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrStoreUnavailable is returned when the backing Redis store cannot be
	// reached. Collaborator failures propagate; the engine does not retry.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEngineNotReady is returned when an Engine method is called before
	// the engine was assembled through [Builder.Build].
	ErrEngineNotReady = errors.New("engine not initialized")
)
