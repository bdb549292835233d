package audit

import (
	"context"
	"log"
	"time"

	"github.com/Youngger9765/career-ios-backend-sub001/internal/credit"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/ledger"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/metrics"
)

// Report describes one cache-vs-ledger comparison.
type Report struct {
	CounselorID   int64 `json:"counselor_id"`
	Consistent    bool  `json:"consistent"`
	LedgerBalance int64 `json:"ledger_balance"`
	CacheBalance  int64 `json:"cache_balance"`
	Repaired      bool  `json:"repaired,omitempty"`
}

// Auditor recomputes cached balances from the ledger and corrects drift.
// The ledger is authoritative: an inconsistent cache is always overwritten
// with the ledger-derived value, never trusted.
type Auditor struct {
	store   ledger.Store
	locks   *credit.KeyedMutex
	logger  *log.Logger
	metrics *metrics.Collector
}

// Config configures the auditor.
type Config struct {
	Store ledger.Store
	// Locks must be the coordinator's lock domain so repairs cannot race an
	// in-flight debit on the same counselor.
	Locks   *credit.KeyedMutex
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// New creates an auditor over the given store.
func New(cfg Config) *Auditor {
	return &Auditor{
		store:   cfg.Store,
		locks:   cfg.Locks,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Verify compares the cached balance against the ledger-derived sum.
func (a *Auditor) Verify(ctx context.Context, counselorID int64) (Report, error) {
	ledgerBalance, err := a.store.BalanceOf(ctx, counselorID)
	if err != nil {
		return Report{}, err
	}
	cacheBalance, err := a.store.CachedBalance(ctx, counselorID)
	if err != nil {
		return Report{}, err
	}
	report := Report{
		CounselorID:   counselorID,
		Consistent:    ledgerBalance == cacheBalance,
		LedgerBalance: ledgerBalance,
		CacheBalance:  cacheBalance,
	}
	if a.metrics != nil {
		a.metrics.RecordVerification(!report.Consistent)
	}
	return report, nil
}

// Repair overwrites a drifted cache row with the ledger-derived balance.
// It takes the same per-counselor exclusion as the debit coordinator, so
// the read-then-overwrite cannot interleave with an in-flight debit. A
// pure overwrite has no net economic effect (the entry set is untouched),
// so it is logged and counted but produces no ledger entry; zero-delta
// entries are forbidden.
func (a *Auditor) Repair(ctx context.Context, counselorID int64) (Report, error) {
	release, err := a.locks.Acquire(ctx, counselorID)
	if err != nil {
		return Report{}, err
	}
	defer release()

	report, err := a.Verify(ctx, counselorID)
	if err != nil {
		return Report{}, err
	}
	if report.Consistent {
		return report, nil
	}

	if err := a.store.SetCachedBalance(ctx, counselorID, report.LedgerBalance); err != nil {
		return report, err
	}
	a.logf("cache repaired: counselor=%d ledger=%d stale_cache=%d",
		counselorID, report.LedgerBalance, report.CacheBalance)

	report.Repaired = true
	report.CacheBalance = report.LedgerBalance
	report.Consistent = true
	if a.metrics != nil {
		a.metrics.RecordRepair()
	}
	return report, nil
}

// Sweep verifies every known counselor and repairs the inconsistent ones.
func (a *Auditor) Sweep(ctx context.Context) ([]Report, error) {
	ids, err := a.store.CounselorIDs(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]Report, 0, len(ids))
	for _, id := range ids {
		report, err := a.Repair(ctx, id)
		if err != nil {
			// Keep sweeping; a single locked or failing counselor must not
			// starve the rest of the sweep.
			a.logf("sweep skipped counselor %d: %v", id, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Run sweeps on the given interval until ctx is cancelled. The cadence is
// an operational tuning knob: correctness comes from the transactional
// dual write, the sweep only mops up after crashes and manual edits.
func (a *Auditor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logf("auditor started, interval=%s", interval)
	for {
		select {
		case <-ticker.C:
			reports, err := a.Sweep(ctx)
			if err != nil {
				a.logf("sweep failed: %v", err)
				continue
			}
			repaired := 0
			for _, r := range reports {
				if r.Repaired {
					repaired++
				}
			}
			if repaired > 0 {
				a.logf("sweep complete: %d counselors checked, %d repaired", len(reports), repaired)
			}
		case <-ctx.Done():
			a.logf("auditor stopped")
			return
		}
	}
}

func (a *Auditor) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}
