package ledger

import (
	"context"
	"fmt"
	"time"
)

// ResourceType tags the kind of billable resource an entry is charged against.
type ResourceType string

const (
	ResourceSessionAnalysis ResourceType = "session_analysis"
	ResourcePurchase        ResourceType = "purchase"
	ResourceTranslation     ResourceType = "translation"
	ResourceOCR             ResourceType = "ocr"

	// ResourceNone marks administrative adjustments with no backing resource.
	ResourceNone ResourceType = ""
)

// Valid reports whether rt is one of the known resource types.
func (rt ResourceType) Valid() bool {
	switch rt {
	case ResourceSessionAnalysis, ResourcePurchase, ResourceTranslation, ResourceOCR, ResourceNone:
		return true
	default:
		return false
	}
}

// Billable reports whether rt accrues time-based debits.
func (rt ResourceType) Billable() bool {
	switch rt {
	case ResourceSessionAnalysis, ResourceTranslation, ResourceOCR:
		return true
	default:
		return false
	}
}

// Entry represents a single balance-affecting event in the credit ledger.
// Entries are append-only: they are never updated or deleted, and the
// ledger-derived balance for a counselor is the sum of Delta over all of
// that counselor's entries.
type Entry struct {
	ID           int64        `json:"id"`
	UUID         string       `json:"uuid"`
	CounselorID  int64        `json:"counselor_id"`
	Delta        int64        `json:"delta"`
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	// CumulativeUnits records, for debits tied to a resource, the total
	// billable units charged against that resource as of this entry. It is
	// monotonically non-decreasing per resource and makes "charge only the
	// increment" verifiable after the fact.
	CumulativeUnits int64     `json:"cumulative_units,omitempty"`
	Note            string    `json:"note,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Validate checks the structural invariants an entry must satisfy before
// it may be appended. Violations are reported as ErrInvalidEntry.
func (e Entry) Validate() error {
	if e.CounselorID == 0 {
		return fmt.Errorf("%w: counselor id required", ErrInvalidEntry)
	}
	if e.Delta == 0 {
		return fmt.Errorf("%w: zero delta", ErrInvalidEntry)
	}
	if !e.ResourceType.Valid() {
		return fmt.Errorf("%w: unknown resource type %q", ErrInvalidEntry, e.ResourceType)
	}
	if e.ResourceType == ResourceNone && e.ResourceID != "" {
		return fmt.Errorf("%w: resource id without resource type", ErrInvalidEntry)
	}
	if e.ResourceType.Billable() && e.ResourceID == "" {
		return fmt.Errorf("%w: resource id required for %s", ErrInvalidEntry, e.ResourceType)
	}
	if e.CumulativeUnits < 0 {
		return fmt.Errorf("%w: negative cumulative units", ErrInvalidEntry)
	}
	return nil
}

// Store defines persistence behaviour for the credit ledger. The entries
// table is the single source of truth; the balance cache is a denormalized
// aggregate adjusted in the same transaction as every append.
type Store interface {
	// Apply appends the entry and adjusts the counselor's cached balance as
	// a single atomic unit of work. It returns the stored entry and the
	// cached balance after the adjustment. An apply that would drive the
	// balance negative fails with ErrInsufficientCredits and writes nothing.
	Apply(ctx context.Context, entry Entry) (Entry, int64, error)

	// BalanceOf returns the ledger-derived balance: the sum of deltas over
	// all entries for the counselor. Unknown counselors have balance 0.
	BalanceOf(ctx context.Context, counselorID int64) (int64, error)

	// CachedBalance returns the denormalized balance, 0 when no cache row
	// exists yet.
	CachedBalance(ctx context.Context, counselorID int64) (int64, error)

	// SetCachedBalance overwrites the cached balance. Reserved for the
	// consistency auditor; regular writes go through Apply.
	SetCachedBalance(ctx context.Context, counselorID, value int64) error

	// LatestUnitsForResource returns the highest CumulativeUnits recorded
	// for the resource, or 0 if the resource has never been charged.
	LatestUnitsForResource(ctx context.Context, rt ResourceType, resourceID string) (int64, error)

	// ListRecent returns the latest entries for a counselor, newest first.
	ListRecent(ctx context.Context, counselorID int64, limit int) ([]Entry, error)

	// CounselorIDs returns every counselor known to the ledger or the
	// balance cache, for auditor sweeps.
	CounselorIDs(ctx context.Context) ([]int64, error)

	// Ping verifies the underlying database is reachable.
	Ping(ctx context.Context) error

	Close() error
}
