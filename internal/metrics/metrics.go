package metrics

import (
	"sync"
	"time"
)

// Collector collects and exports ledger metrics for Prometheus.
// This implementation uses manual metric tracking without external
// dependencies; the exposition format lives in prometheus.go.
type Collector struct {
	mu sync.RWMutex

	// Debit metrics
	debitsTotal         int64            // successful debits (excluding no-ops)
	noopDebits          int64            // idempotent replays and stale snapshots
	unitsCharged        map[string]int64 // units debited by resource type
	insufficientCredits int64            // rejected overdraft attempts
	busyRejections      int64            // lock-wait timeouts

	// Credit metrics
	grantsTotal    int64
	creditsGranted int64 // total units credited

	// Auditor metrics
	verifications int64
	driftDetected int64
	repairsTotal  int64

	// API metrics
	rateLimitHits   int64
	invalidRequests int64

	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		unitsCharged: make(map[string]int64),
		startTime:    time.Now(),
	}
}

// RecordDebit records a successful incremental debit.
func (c *Collector) RecordDebit(resourceType string, units int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.debitsTotal++
	c.unitsCharged[resourceType] += units
}

// RecordNoopDebit records a debit attempt that charged nothing because the
// cumulative snapshot was already billed.
func (c *Collector) RecordNoopDebit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.noopDebits++
}

// RecordInsufficientCredits records a rejected overdraft attempt.
func (c *Collector) RecordInsufficientCredits() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.insufficientCredits++
}

// RecordBusy records a debit that timed out waiting for its critical section.
func (c *Collector) RecordBusy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.busyRejections++
}

// RecordGrant records a credit grant of the given amount.
func (c *Collector) RecordGrant(amount int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.grantsTotal++
	c.creditsGranted += amount
}

// RecordVerification records an auditor comparison, with whether drift was found.
func (c *Collector) RecordVerification(drifted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.verifications++
	if drifted {
		c.driftDetected++
	}
}

// RecordRepair records a cache overwrite performed by the auditor.
func (c *Collector) RecordRepair() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.repairsTotal++
}

// RecordRateLimitHit records a rate limit rejection.
func (c *Collector) RecordRateLimitHit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rateLimitHits++
}

// RecordInvalidRequest records a structurally invalid request.
func (c *Collector) RecordInvalidRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidRequests++
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Uptime              int64
	DebitsTotal         int64
	NoopDebits          int64
	UnitsCharged        map[string]int64
	InsufficientCredits int64
	BusyRejections      int64
	GrantsTotal         int64
	CreditsGranted      int64
	Verifications       int64
	DriftDetected       int64
	RepairsTotal        int64
	RateLimitHits       int64
	InvalidRequests     int64
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Uptime:              int64(time.Since(c.startTime).Seconds()),
		DebitsTotal:         c.debitsTotal,
		NoopDebits:          c.noopDebits,
		UnitsCharged:        copyMap(c.unitsCharged),
		InsufficientCredits: c.insufficientCredits,
		BusyRejections:      c.busyRejections,
		GrantsTotal:         c.grantsTotal,
		CreditsGranted:      c.creditsGranted,
		Verifications:       c.verifications,
		DriftDetected:       c.driftDetected,
		RepairsTotal:        c.repairsTotal,
		RateLimitHits:       c.rateLimitHits,
		InvalidRequests:     c.invalidRequests,
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	result := make(map[string]int64, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
