package credit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Youngger9765/career-ios-backend-sub001/internal/ledger"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/metrics"
)

// Service coordinates incremental debits against the credit ledger. It is
// the only writer of debit entries: billable events arrive as cumulative
// elapsed time per resource, and the service charges exactly the units not
// yet billed for that resource.
type Service struct {
	store   ledger.Store
	locks   *KeyedMutex
	logger  *log.Logger
	metrics *metrics.Collector
}

// Config configures the coordinator.
type Config struct {
	Store ledger.Store
	// LockWait bounds how long a debit waits for its per-counselor critical
	// section before failing closed with ErrBusy. Default 5s.
	LockWait time.Duration
	Logger   *log.Logger
	Metrics  *metrics.Collector
}

// NewService creates a coordinator over the given store.
func NewService(cfg Config) *Service {
	return &Service{
		store:   cfg.Store,
		locks:   NewKeyedMutex(cfg.LockWait),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Locks exposes the per-counselor lock domain so the consistency auditor
// can take the same exclusion before overwriting a cache row.
func (s *Service) Locks() *KeyedMutex {
	return s.locks
}

// DebitResult reports the outcome of an incremental debit.
type DebitResult struct {
	UnitsCharged int64 `json:"units_charged"`
	UnitsTotal   int64 `json:"units_total_for_resource"`
	BalanceAfter int64 `json:"balance_after"`
}

// DebitIncremental charges the counselor for the minutes of the resource
// not yet billed. elapsedSeconds is the cumulative elapsed time for the
// resource since it began accruing cost, not a delta: replaying the same
// (or an earlier) snapshot is a safe no-op, and a late-arriving larger
// snapshot charges exactly the missing increment.
func (s *Service) DebitIncremental(ctx context.Context, counselorID int64, rt ledger.ResourceType, resourceID string, elapsedSeconds int64) (DebitResult, error) {
	if counselorID == 0 {
		return DebitResult{}, fmt.Errorf("%w: counselor id required", ledger.ErrInvalidEntry)
	}
	if !rt.Billable() {
		return DebitResult{}, fmt.Errorf("%w: resource type %q is not billable", ledger.ErrInvalidEntry, rt)
	}
	if resourceID == "" {
		return DebitResult{}, fmt.Errorf("%w: resource id required", ledger.ErrInvalidEntry)
	}
	if elapsedSeconds < 0 {
		return DebitResult{}, fmt.Errorf("%w: negative elapsed seconds", ledger.ErrInvalidEntry)
	}

	totalUnits := ledger.BillableUnits(elapsedSeconds)

	// The lock covers the read-compute-write span, not just the final
	// write: two concurrent debits carrying different cumulative snapshots
	// for one resource must not both compute their increment against the
	// same stale already-charged value.
	release, err := s.locks.Acquire(ctx, counselorID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordBusy()
		}
		return DebitResult{}, err
	}
	defer release()

	alreadyCharged, err := s.store.LatestUnitsForResource(ctx, rt, resourceID)
	if err != nil {
		return DebitResult{}, fmt.Errorf("latest units for %s/%s: %w", rt, resourceID, err)
	}

	newUnits := totalUnits - alreadyCharged
	if newUnits <= 0 {
		// Duplicate delivery or stale snapshot: nothing new is owed.
		balance, err := s.store.CachedBalance(ctx, counselorID)
		if err != nil {
			return DebitResult{}, fmt.Errorf("cached balance: %w", err)
		}
		if s.metrics != nil {
			s.metrics.RecordNoopDebit()
		}
		return DebitResult{UnitsCharged: 0, UnitsTotal: alreadyCharged, BalanceAfter: balance}, nil
	}

	_, balance, err := s.store.Apply(ctx, ledger.Entry{
		CounselorID:     counselorID,
		Delta:           -newUnits,
		ResourceType:    rt,
		ResourceID:      resourceID,
		CumulativeUnits: totalUnits,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			if s.metrics != nil {
				s.metrics.RecordInsufficientCredits()
			}
			s.logf("debit rejected: counselor=%d resource=%s/%s need=%d", counselorID, rt, resourceID, newUnits)
		}
		return DebitResult{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordDebit(string(rt), newUnits)
	}
	s.logf("debit applied: counselor=%d resource=%s/%s charged=%d total=%d balance=%d",
		counselorID, rt, resourceID, newUnits, totalUnits, balance)

	return DebitResult{UnitsCharged: newUnits, UnitsTotal: totalUnits, BalanceAfter: balance}, nil
}

// Credit grants credits to a counselor (purchase or manual grant).
func (s *Service) Credit(ctx context.Context, counselorID, amount int64, note string) (ledger.Entry, error) {
	if amount <= 0 {
		return ledger.Entry{}, fmt.Errorf("%w: credit amount must be positive", ledger.ErrInvalidEntry)
	}

	release, err := s.locks.Acquire(ctx, counselorID)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer release()

	entry, balance, err := s.store.Apply(ctx, ledger.Entry{
		CounselorID:  counselorID,
		Delta:        amount,
		ResourceType: ledger.ResourcePurchase,
		Note:         note,
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordGrant(amount)
	}
	s.logf("credit applied: counselor=%d amount=%d balance=%d", counselorID, amount, balance)
	return entry, nil
}

// Adjust records an administrative correction with no backing resource.
// Operators use this for recoveries that imply a real balance change.
func (s *Service) Adjust(ctx context.Context, counselorID, delta int64, note string) (ledger.Entry, error) {
	release, err := s.locks.Acquire(ctx, counselorID)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer release()

	entry, balance, err := s.store.Apply(ctx, ledger.Entry{
		CounselorID: counselorID,
		Delta:       delta,
		Note:        note,
	})
	if err != nil {
		return ledger.Entry{}, err
	}
	s.logf("adjustment applied: counselor=%d delta=%d balance=%d", counselorID, delta, balance)
	return entry, nil
}

// Balance returns the counselor's available credits from the cache.
func (s *Service) Balance(ctx context.Context, counselorID int64) (int64, error) {
	if counselorID == 0 {
		return 0, fmt.Errorf("%w: counselor id required", ledger.ErrInvalidEntry)
	}
	return s.store.CachedBalance(ctx, counselorID)
}

// History returns the counselor's latest ledger entries, newest first.
func (s *Service) History(ctx context.Context, counselorID int64, limit int) ([]ledger.Entry, error) {
	if counselorID == 0 {
		return nil, fmt.Errorf("%w: counselor id required", ledger.ErrInvalidEntry)
	}
	return s.store.ListRecent(ctx, counselorID, limit)
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
