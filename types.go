package authcore

import "context"

// TokenPayload is the fixed shape carried inside every issued token. The
// engine requires Subject and JTI to be present on verification; Roles is
// opaque pass-through for the caller's authorization layer.
//
// TokenPayload instances are immutable once issued; tokens are never mutated,
// only superseded or revoked.
type TokenPayload struct {
	// Subject is the stable identity id the token was issued for.
	Subject string
	// Roles is an optional caller-owned role list embedded in the token.
	Roles []string
	// JTI is the per-issuance unique token identifier, generated by the
	// engine. It is the unit of revocation.
	JTI string
	// ExpiresAt is the token expiry as a Unix timestamp, set by the signer.
	ExpiresAt int64
	// IssuedAt is the issuance time as a Unix timestamp, set by the signer.
	IssuedAt int64
}

// SessionPair is returned by [Engine.CreateSessionPair]. It carries two
// independently signed tokens, each backed by its own live session record.
type SessionPair struct {
	AccessToken  string
	RefreshToken string
	// AccessTTL and RefreshTTL are the token lifetimes in seconds.
	AccessTTL  int64
	RefreshTTL int64
}

// AccessGrant is returned by [Engine.Refresh]. Only a new access token is
// minted; the presented refresh token remains valid until it expires or is
// revoked.
type AccessGrant struct {
	AccessToken string
	// AccessTTL is the access token lifetime in seconds.
	AccessTTL int64
}

// OTPPurpose partitions the OTP key space by the flow a code was issued for.
type OTPPurpose string

const (
	// PurposeEmailVerification is the OTP purpose for verifying ownership of
	// an email address during registration.
	PurposeEmailVerification OTPPurpose = "email_verification"
	// PurposeForgotPassword is the OTP purpose for the password reset flow.
	PurposeForgotPassword OTPPurpose = "forgot_password"
)

func (p OTPPurpose) valid() bool {
	switch p {
	case PurposeEmailVerification, PurposeForgotPassword:
		return true
	}
	return false
}

// OTPStatus is the lifecycle state of an OTP record.
type OTPStatus uint8

const (
	// OTPStatusCreated is the initial status of a freshly issued code.
	OTPStatusCreated OTPStatus = iota
	// OTPStatusVerified marks a code the password-reset flow has confirmed
	// but not yet consumed.
	OTPStatusVerified
)

// Notifier delivers a freshly issued OTP code to its identity out-of-band
// (email, SMS, push). Dispatch is fire-and-forget: the engine never waits on
// delivery and a delivery failure never rolls back issuance.
type Notifier interface {
	Deliver(ctx context.Context, identity string, purpose OTPPurpose, code string) error
}

// NoOpNotifier is a [Notifier] that silently discards all codes.
type NoOpNotifier struct{}

// Deliver implements [Notifier].
func (NoOpNotifier) Deliver(context.Context, string, OTPPurpose, string) error { return nil }
