package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSessionPairCreated = "session_pair_created"
	auditEventSessionPairFailure = "session_pair_failure"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventLogoutSession      = "logout_session"
	auditEventLogoutAll          = "logout_all"
	auditEventOTPIssued          = "otp_issued"
	auditEventOTPIssueFailure    = "otp_issue_failure"
	auditEventOTPVerify          = "otp_verify"
	auditEventOTPMarkVerified    = "otp_mark_verified"
	auditEventOTPConsumed        = "otp_consumed"
	auditEventOTPDeliveryFailure = "otp_delivery_failure"
)

// AuditErrorCode is the stable error label carried in [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrInvalidCredential   AuditErrorCode = "invalid_credential"
	auditErrInvalidOTP          AuditErrorCode = "invalid_otp"
	auditErrExpiredOTP          AuditErrorCode = "expired_otp"
	auditErrCodeExhausted       AuditErrorCode = "code_allocation_exhausted"
	auditErrSessionCreation     AuditErrorCode = "session_creation_failed"
	auditErrSessionInvalidation AuditErrorCode = "session_invalidation_failed"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	jti string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Subject:   subject,
		JTI:       jti,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredential):
		return auditErrInvalidCredential
	case errors.Is(err, ErrInvalidOTP):
		return auditErrInvalidOTP
	case errors.Is(err, ErrExpiredOTP):
		return auditErrExpiredOTP
	case errors.Is(err, ErrCodeAllocationExhausted):
		return auditErrCodeExhausted
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreation
	case errors.Is(err, ErrSessionInvalidationFailed):
		return auditErrSessionInvalidation
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
