package authcore

import (
	"context"
	"fmt"
	"strconv"
)

// Logout revokes the single session behind token. The token is verified
// first: a request cannot revoke a session it cannot prove ownership of.
// The session record and its index membership are removed together.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	payload, err := e.Verify(ctx, token)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", "", err, nil)
		return err
	}

	if err := e.sessionStore.DeleteWithIndex(ctx, payload.JTI, payload.Subject); err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrSessionInvalidationFailed, storeErr(err))
		e.emitAudit(ctx, auditEventLogoutSession, false, payload.Subject, payload.JTI, wrapped, nil)
		return wrapped
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, payload.Subject, payload.JTI, nil, nil)
	return nil
}

// LogoutAll revokes every live session for subject: the session index is
// read once, every record it names is deleted, then the index itself is
// cleared. An empty or absent index is a successful no-op.
//
// Sessions created after the index read but before the loop finishes are
// not revoked; no isolation is provided against concurrent issuance for the
// same subject.
func (e *Engine) LogoutAll(ctx context.Context, subject string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	revoked, err := e.sessionStore.DeleteAllForUser(ctx, subject)
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrSessionInvalidationFailed, storeErr(err))
		e.emitAudit(ctx, auditEventLogoutAll, false, subject, "", wrapped, nil)
		return wrapped
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, subject, "", nil, func() map[string]string {
		return map[string]string{
			"revoked": strconv.Itoa(revoked),
		}
	})
	return nil
}
