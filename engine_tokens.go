package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/authcore-io/authcore/internal"
)

// CreateSessionPair mints an access/refresh token pair for a verified
// identity and registers both in the session registry. Each token carries a
// freshly generated globally-unique jti; for each, the engine signs the
// token, registers the jti as a session record with TTL equal to the token
// lifetime, and adds the jti to the subject's session index, resetting the
// index TTL to the same lifetime.
//
// No error path is swallowed: signer or store failure propagates as issuance
// failure. A signed token whose jti never reached the registry fails closed
// on verification.
func (e *Engine) CreateSessionPair(ctx context.Context, payload TokenPayload) (*SessionPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if payload.Subject == "" {
		e.metricInc(MetricSessionCreationFailure)
		return nil, fmt.Errorf("%w: subject required", ErrSessionCreationFailed)
	}

	accessTTL := e.config.JWT.AccessTTL
	refreshTTL := e.config.JWT.RefreshTTL

	accessToken, accessJTI, err := e.issueToken(ctx, payload.Subject, payload.Roles, accessTTL)
	if err != nil {
		e.metricInc(MetricSessionCreationFailure)
		e.emitAudit(ctx, auditEventSessionPairFailure, false, payload.Subject, "", err, nil)
		return nil, err
	}

	refreshToken, refreshJTI, err := e.issueToken(ctx, payload.Subject, payload.Roles, refreshTTL)
	if err != nil {
		e.metricInc(MetricSessionCreationFailure)
		e.emitAudit(ctx, auditEventSessionPairFailure, false, payload.Subject, accessJTI, err, nil)
		return nil, err
	}

	e.metricInc(MetricSessionPairCreated)
	e.emitAudit(ctx, auditEventSessionPairCreated, true, payload.Subject, accessJTI, nil, func() map[string]string {
		return map[string]string{
			"refresh_jti": refreshJTI,
		}
	})

	return &SessionPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessTTL:    int64(accessTTL / time.Second),
		RefreshTTL:   int64(refreshTTL / time.Second),
	}, nil
}

// Refresh verifies the presented refresh token and, on success, mints only a
// new access token bound to the same subject. The refresh token itself is
// not rotated or re-registered: callers keep reusing it until it naturally
// expires or is revoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AccessGrant, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	payload, err := e.Verify(ctx, refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", err, nil)
		return nil, err
	}

	accessTTL := e.config.JWT.AccessTTL
	accessToken, accessJTI, err := e.issueToken(ctx, payload.Subject, payload.Roles, accessTTL)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, payload.Subject, payload.JTI, err, nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, payload.Subject, accessJTI, nil, func() map[string]string {
		return map[string]string{
			"refresh_jti": payload.JTI,
		}
	})

	return &AccessGrant{
		AccessToken: accessToken,
		AccessTTL:   int64(accessTTL / time.Second),
	}, nil
}

// issueToken signs one token and registers its session state. The three
// steps (sign, register record, add to index) are not atomic as a unit; a
// failure between them leaves only fail-closed or bulk-logout-invisible
// partial state, never an accepted revoked credential.
func (e *Engine) issueToken(ctx context.Context, subject string, roles []string, ttl time.Duration) (string, string, error) {
	jti := internal.NewTokenID()

	token, err := e.jwtManager.Create(subject, roles, jti, ttl)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	if err := e.sessionStore.Register(ctx, jti, subject, ttl); err != nil {
		return "", "", storeErr(err)
	}
	if err := e.sessionStore.AddUserSession(ctx, subject, jti, ttl); err != nil {
		return "", "", storeErr(err)
	}

	return token, jti, nil
}
