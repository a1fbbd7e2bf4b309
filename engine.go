package authcore

import (
	"errors"
	"fmt"

	"github.com/authcore-io/authcore/jwt"
	"github.com/authcore-io/authcore/session"
)

// Engine is the credential and session lifecycle engine. It is stateless:
// all mutable state lives in the Redis collaborator, so an Engine is safe
// for use from many goroutines after [Builder.Build].
type Engine struct {
	config       Config
	jwtManager   *jwt.Manager
	sessionStore *session.Store
	otpStore     *otpStore
	notifier     Notifier
	audit        *auditDispatcher
	metrics      *Metrics

	// otpGen is swappable for deterministic collision tests.
	otpGen func(digits int) (string, error)
}

// Close drains the audit dispatcher. It does not close the Redis client,
// which the caller owns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.jwtManager != nil && e.sessionStore != nil && e.otpStore != nil
}

// storeErr normalizes a session-store outage to [ErrStoreUnavailable] so
// callers match one sentinel no matter which store failed.
func storeErr(err error) error {
	if errors.Is(err, session.ErrRedisUnavailable) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
