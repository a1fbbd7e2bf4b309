package authcore

import (
	"errors"
	"time"
)

// Config defines the engine configuration tree.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	JWT     JWTConfig
	Session SessionConfig
	OTP     OTPConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the token signer.
//
// JWTConfig instances are intended to be configured during initialization and
// then treated as immutable.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the Redis session registry.
//
// SessionConfig instances are intended to be configured during initialization
// and then treated as immutable.
type SessionConfig struct {
	// RedisPrefix namespaces every session key. Session records live at
	// "<prefix>:<jti>" and per-subject indexes at "<prefix>:u:<subject>".
	RedisPrefix string
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig configures one-time passcode issuance.
//
// OTPConfig instances are intended to be configured during initialization and
// then treated as immutable.
type OTPConfig struct {
	// Digits is the code length. Valid range is 6 to 10.
	Digits int
	// DefaultTTL is used when IssueOTP is called with a non-positive TTL.
	DefaultTTL time.Duration
	// MaxAllocationAttempts bounds the collision re-roll loop. When the loop
	// cannot claim a globally unique code within this many attempts,
	// issuance fails with ErrCodeAllocationExhausted.
	MaxAllocationAttempts int
	// RecordPrefix namespaces OTP records: "<prefix>:<purpose>:<identity>".
	RecordPrefix string
	// CodeIndexPrefix namespaces the global code index: "<prefix>:<code>".
	CodeIndexPrefix string
}

// AuditConfig configures the async audit dispatcher.
//
// AuditConfig instances are intended to be configured during initialization
// and then treated as immutable.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures in-process metrics collection.
//
// MetricsConfig instances are intended to be configured during initialization
// and then treated as immutable.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration the engine ships with: ed25519
// signing, 15 minute access tokens, 7 day refresh tokens, 6 digit OTPs with
// a 10 minute lifetime.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
		},
		Session: SessionConfig{
			RedisPrefix: "as",
		},
		OTP: OTPConfig{
			Digits:                6,
			DefaultTTL:            10 * time.Minute,
			MaxAllocationAttempts: 10,
			RecordPrefix:          "ao",
			CodeIndexPrefix:       "aoc",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Validate checks the configuration for internally inconsistent or unusable
// values. It is called by [Builder.Build]; direct callers only need it when
// assembling an Engine by hand.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT.AccessTTL must be positive")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT.RefreshTTL must be positive")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT.RefreshTTL must not be shorter than JWT.AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT.Leeway out of range")
	}

	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires JWT.PrivateKey")
		}
	case "ed25519", "":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires JWT.PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires JWT.PublicKey")
		}
	default:
		return errors.New("unsupported JWT.SigningMethod")
	}

	if c.Session.RedisPrefix == "" {
		return errors.New("Session.RedisPrefix must not be empty")
	}

	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP.Digits must be between 6 and 10")
	}
	if c.OTP.DefaultTTL <= 0 {
		return errors.New("OTP.DefaultTTL must be positive")
	}
	if c.OTP.MaxAllocationAttempts <= 0 {
		return errors.New("OTP.MaxAllocationAttempts must be positive")
	}
	if c.OTP.RecordPrefix == "" || c.OTP.CodeIndexPrefix == "" {
		return errors.New("OTP key prefixes must not be empty")
	}
	if c.OTP.RecordPrefix == c.OTP.CodeIndexPrefix {
		return errors.New("OTP.RecordPrefix and OTP.CodeIndexPrefix must differ")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be positive when audit is enabled")
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = append([]byte(nil), cfg.JWT.PrivateKey...)
	out.JWT.PublicKey = append([]byte(nil), cfg.JWT.PublicKey...)
	return out
}
