package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a specific counter or histogram bucket in the
// in-process metrics system.
type MetricID uint16

const (
	// MetricSessionPairCreated counts successful CreateSessionPair calls.
	MetricSessionPairCreated MetricID = iota
	// MetricSessionCreationFailure counts CreateSessionPair failures.
	MetricSessionCreationFailure
	// MetricRefreshSuccess counts successful Refresh calls.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected Refresh calls.
	MetricRefreshFailure
	// MetricVerifySuccess counts tokens accepted by Verify.
	MetricVerifySuccess
	// MetricVerifyFailure counts tokens rejected by Verify.
	MetricVerifyFailure
	// MetricLogout counts single-session logouts.
	MetricLogout
	// MetricLogoutAll counts bulk logouts.
	MetricLogoutAll
	// MetricOTPIssued counts successfully issued passcodes.
	MetricOTPIssued
	// MetricOTPIssueFailure counts failed issuance attempts.
	MetricOTPIssueFailure
	// MetricOTPCollisionRetry counts code re-rolls caused by a global code
	// index collision.
	MetricOTPCollisionRetry
	// MetricOTPAllocationExhausted counts issuances that ran out of re-roll
	// budget.
	MetricOTPAllocationExhausted
	// MetricOTPVerifySuccess counts accepted passcode verifications.
	MetricOTPVerifySuccess
	// MetricOTPVerifyFailure counts rejected passcode verifications.
	MetricOTPVerifyFailure
	// MetricOTPConsumed counts consumed passcodes.
	MetricOTPConsumed
	// MetricOTPDeliveryFailure counts notifier dispatch failures. Delivery
	// is fire-and-forget; failures never roll back issuance.
	MetricOTPDeliveryFailure
	// MetricVerifyLatency is the Verify latency histogram.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters and an optional latency histogram. The zero
// value is unusable; construct through [NewMetrics].
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] instance configured by cfg. When Enabled is
// false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether metrics collection is active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments the counter identified by id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample. Only MetricVerifyLatency carries a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricVerifyLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of the counter identified by id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot returns a deep copy of all counters and histograms.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyLatency].buckets[i])
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
