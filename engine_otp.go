package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"
)

// IssueOTP creates a one-time passcode for (identity, purpose) and returns
// it. Any existing record for the pair is discarded first, together with its
// global code index entry. The new code is claimed in the global code index
// before the record is written, so no two concurrently live records can
// carry the same code; on a collision the code is re-rolled, up to
// Config.OTP.MaxAllocationAttempts times.
//
// Delivery to the identity happens through the configured [Notifier],
// fire-and-forget: dispatch failures are audited and counted but never roll
// back issuance.
func (e *Engine) IssueOTP(ctx context.Context, identity string, purpose OTPPurpose, ttlSeconds int64) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	if identity == "" || !purpose.valid() {
		e.metricInc(MetricOTPIssueFailure)
		return "", ErrInvalidOTP
	}

	ttl := time.Duration(ttlSeconds) * time.Second
	if ttlSeconds <= 0 {
		ttl = e.config.OTP.DefaultTTL
	}

	if err := e.discardOTP(ctx, identity, purpose); err != nil {
		e.metricInc(MetricOTPIssueFailure)
		e.emitAudit(ctx, auditEventOTPIssueFailure, false, identity, "", err, nil)
		return "", err
	}

	code, err := e.allocateCode(ctx, identity, ttl)
	if err != nil {
		e.metricInc(MetricOTPIssueFailure)
		e.emitAudit(ctx, auditEventOTPIssueFailure, false, identity, "", err, func() map[string]string {
			return map[string]string{
				"purpose": string(purpose),
			}
		})
		return "", err
	}

	now := time.Now()
	record := &otpRecord{
		Code:      code,
		Status:    OTPStatusCreated,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}

	if err := e.otpStore.Save(ctx, identity, purpose, record, ttl); err != nil {
		_ = e.otpStore.ReleaseCode(ctx, code)
		e.metricInc(MetricOTPIssueFailure)
		e.emitAudit(ctx, auditEventOTPIssueFailure, false, identity, "", err, nil)
		return "", err
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventOTPIssued, true, identity, "", nil, func() map[string]string {
		return map[string]string{
			"purpose": string(purpose),
		}
	})

	e.dispatchOTP(identity, purpose, code)

	return code, nil
}

// VerifyOTP validates suppliedCode against the live record for (identity,
// purpose). An absent record or a code mismatch is [ErrInvalidOTP]; a passed
// expiry or a status other than CREATED is [ErrExpiredOTP] — a code already
// marked verified or consumed cannot be verified again through this path.
//
// Success has no side effect on the record. Callers follow up with
// [Engine.MarkOTPVerified] or [Engine.ConsumeOTP].
func (e *Engine) VerifyOTP(ctx context.Context, identity string, purpose OTPPurpose, suppliedCode string) error {
	return e.verifyOTPWithStatus(ctx, identity, purpose, suppliedCode, OTPStatusCreated)
}

// VerifyConfirmedOTP validates suppliedCode against a record that has
// already been transitioned by [Engine.MarkOTPVerified]. It is the second
// gate of the password-reset flow: the password-update step re-checks the
// code after the confirm step marked it, and only a VERIFIED record passes.
func (e *Engine) VerifyConfirmedOTP(ctx context.Context, identity string, purpose OTPPurpose, suppliedCode string) error {
	return e.verifyOTPWithStatus(ctx, identity, purpose, suppliedCode, OTPStatusVerified)
}

func (e *Engine) verifyOTPWithStatus(ctx context.Context, identity string, purpose OTPPurpose, suppliedCode string, wantStatus OTPStatus) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if identity == "" || !purpose.valid() {
		e.metricInc(MetricOTPVerifyFailure)
		return ErrInvalidOTP
	}

	record, err := e.otpStore.Get(ctx, identity, purpose)
	if err != nil {
		if errors.Is(err, errOTPNotFound) {
			e.metricInc(MetricOTPVerifyFailure)
			e.emitAudit(ctx, auditEventOTPVerify, false, identity, "", ErrInvalidOTP, nil)
			return ErrInvalidOTP
		}
		return err
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(suppliedCode)) != 1 {
		e.metricInc(MetricOTPVerifyFailure)
		e.emitAudit(ctx, auditEventOTPVerify, false, identity, "", ErrInvalidOTP, nil)
		return ErrInvalidOTP
	}

	if time.Now().Unix() > record.ExpiresAt || record.Status != wantStatus {
		e.metricInc(MetricOTPVerifyFailure)
		e.emitAudit(ctx, auditEventOTPVerify, false, identity, "", ErrExpiredOTP, nil)
		return ErrExpiredOTP
	}

	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, auditEventOTPVerify, true, identity, "", nil, func() map[string]string {
		return map[string]string{
			"purpose": string(purpose),
		}
	})
	return nil
}

// MarkOTPVerified transitions the record for (identity, purpose) from
// CREATED to VERIFIED, preserving its remaining TTL. Marking an absent
// record is a silent no-op; the flow fails on its next verification step.
func (e *Engine) MarkOTPVerified(ctx context.Context, identity string, purpose OTPPurpose) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if identity == "" || !purpose.valid() {
		return ErrInvalidOTP
	}

	if err := e.otpStore.MarkVerified(ctx, identity, purpose); err != nil {
		e.emitAudit(ctx, auditEventOTPMarkVerified, false, identity, "", err, nil)
		return err
	}

	e.emitAudit(ctx, auditEventOTPMarkVerified, true, identity, "", nil, nil)
	return nil
}

// ConsumeOTP deletes the record for (identity, purpose) and the global code
// index entry it holds. The record's stored code is authoritative for the
// index release; the supplied code never frees an entry owned by a different
// identity. It is idempotent: consuming an absent record is not an error.
func (e *Engine) ConsumeOTP(ctx context.Context, identity string, purpose OTPPurpose, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if identity == "" || !purpose.valid() {
		return ErrInvalidOTP
	}

	record, err := e.otpStore.Get(ctx, identity, purpose)
	if err != nil && !errors.Is(err, errOTPNotFound) {
		e.emitAudit(ctx, auditEventOTPConsumed, false, identity, "", err, nil)
		return err
	}

	releaseCode := code
	if record != nil {
		releaseCode = record.Code
		if err := e.otpStore.Delete(ctx, identity, purpose); err != nil {
			e.emitAudit(ctx, auditEventOTPConsumed, false, identity, "", err, nil)
			return err
		}
	}
	if releaseCode != "" {
		if err := e.otpStore.ReleaseCodeIfOwner(ctx, releaseCode, identity); err != nil {
			e.emitAudit(ctx, auditEventOTPConsumed, false, identity, "", err, nil)
			return err
		}
	}

	e.metricInc(MetricOTPConsumed)
	e.emitAudit(ctx, auditEventOTPConsumed, true, identity, "", nil, nil)
	return nil
}

// discardOTP supersedes any existing record for (identity, purpose). The
// record is deleted before its code is freed in the global index: an
// interruption between the two steps leaves only an orphaned index entry
// that expires on its own TTL, never a live record whose code another
// identity could claim.
func (e *Engine) discardOTP(ctx context.Context, identity string, purpose OTPPurpose) error {
	existing, err := e.otpStore.Get(ctx, identity, purpose)
	if err != nil {
		if errors.Is(err, errOTPNotFound) {
			return nil
		}
		return err
	}

	if err := e.otpStore.Delete(ctx, identity, purpose); err != nil {
		return err
	}
	return e.otpStore.ReleaseCode(ctx, existing.Code)
}

// allocateCode rolls candidate codes until one is claimed in the global code
// index, bounded by Config.OTP.MaxAllocationAttempts. The loop terminates
// probabilistically long before the bound in a healthy code space; hitting
// the bound means the space is saturated and the caller gets
// [ErrCodeAllocationExhausted].
func (e *Engine) allocateCode(ctx context.Context, identity string, ttl time.Duration) (string, error) {
	for i := 0; i < e.config.OTP.MaxAllocationAttempts; i++ {
		candidate, err := e.otpGen(e.config.OTP.Digits)
		if err != nil {
			return "", err
		}

		claimed, err := e.otpStore.ClaimCode(ctx, candidate, identity, ttl)
		if err != nil {
			return "", err
		}
		if claimed {
			return candidate, nil
		}

		e.metricInc(MetricOTPCollisionRetry)
	}

	e.metricInc(MetricOTPAllocationExhausted)
	return "", ErrCodeAllocationExhausted
}

// dispatchOTP hands the code to the notifier on its own goroutine. The
// engine never waits on delivery.
func (e *Engine) dispatchOTP(identity string, purpose OTPPurpose, code string) {
	if e.notifier == nil {
		return
	}

	go func() {
		ctx := context.Background()
		if err := e.notifier.Deliver(ctx, identity, purpose, code); err != nil {
			e.metricInc(MetricOTPDeliveryFailure)
			e.emitAudit(ctx, auditEventOTPDeliveryFailure, false, identity, "", err, func() map[string]string {
				return map[string]string{
					"purpose": string(purpose),
				}
			})
		}
	}()
}
