package authcore

import (
	"context"
	"time"
)

// Verify determines whether a presented token is currently usable and
// returns its payload. Three gates, in order: the signature and expiry must
// check out, the decoded payload must carry both a jti and a subject, and
// the jti must have a live session record. A missing record means the token
// was revoked or its session naturally expired; it is rejected even though
// the signature is still valid.
//
// Every rejection is [ErrInvalidCredential]. Distinguishing why a token
// failed would leak revocation timing to an attacker. Store unavailability
// is not a rejection; it surfaces as [ErrStoreUnavailable].
func (e *Engine) Verify(ctx context.Context, token string) (*TokenPayload, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()

	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		return nil, ErrInvalidCredential
	}

	if claims.ID == "" || claims.Subject == "" {
		e.metricInc(MetricVerifyFailure)
		return nil, ErrInvalidCredential
	}

	live, err := e.sessionStore.Live(ctx, claims.ID)
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		return nil, storeErr(err)
	}
	if !live {
		e.metricInc(MetricVerifyFailure)
		return nil, ErrInvalidCredential
	}

	payload := &TokenPayload{
		Subject: claims.Subject,
		Roles:   claims.Roles,
		JTI:     claims.ID,
	}
	if claims.ExpiresAt != nil {
		payload.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		payload.IssuedAt = claims.IssuedAt.Unix()
	}

	e.metricInc(MetricVerifySuccess)
	if e.metrics != nil {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}

	return payload, nil
}
