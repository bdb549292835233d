package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Youngger9765/career-ios-backend-sub001/internal/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "credits.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestApplyCreditThenDebit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, balance, err := s.Apply(ctx, ledger.Entry{
		CounselorID:  1,
		Delta:        10,
		ResourceType: ledger.ResourcePurchase,
		Note:         "topup",
	})
	if err != nil {
		t.Fatalf("apply credit: %v", err)
	}
	if balance != 10 {
		t.Fatalf("balance after credit = %d, want 10", balance)
	}
	if entry.ID == 0 || entry.UUID == "" {
		t.Fatalf("entry not fully populated: %+v", entry)
	}

	_, balance, err = s.Apply(ctx, ledger.Entry{
		CounselorID:     1,
		Delta:           -3,
		ResourceType:    ledger.ResourceSessionAnalysis,
		ResourceID:      "sess-1",
		CumulativeUnits: 3,
	})
	if err != nil {
		t.Fatalf("apply debit: %v", err)
	}
	if balance != 7 {
		t.Fatalf("balance after debit = %d, want 7", balance)
	}

	ledgerBalance, err := s.BalanceOf(ctx, 1)
	if err != nil {
		t.Fatalf("balance of: %v", err)
	}
	cached, err := s.CachedBalance(ctx, 1)
	if err != nil {
		t.Fatalf("cached balance: %v", err)
	}
	if ledgerBalance != cached || ledgerBalance != 7 {
		t.Fatalf("ledger=%d cache=%d, want both 7", ledgerBalance, cached)
	}
}

func TestApplyOverdraftWritesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Apply(ctx, ledger.Entry{CounselorID: 2, Delta: 1, ResourceType: ledger.ResourcePurchase}); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	_, _, err := s.Apply(ctx, ledger.Entry{
		CounselorID:     2,
		Delta:           -5,
		ResourceType:    ledger.ResourceSessionAnalysis,
		ResourceID:      "sess-2",
		CumulativeUnits: 5,
	})
	if !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Fatalf("got %v, want ErrInsufficientCredits", err)
	}

	// Neither the entry nor the balance change may have landed.
	balance, err := s.BalanceOf(ctx, 2)
	if err != nil {
		t.Fatalf("balance of: %v", err)
	}
	if balance != 1 {
		t.Fatalf("ledger balance = %d, want 1", balance)
	}
	cached, err := s.CachedBalance(ctx, 2)
	if err != nil {
		t.Fatalf("cached balance: %v", err)
	}
	if cached != 1 {
		t.Fatalf("cached balance = %d, want 1", cached)
	}
	entries, err := s.ListRecent(ctx, 2, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want only the seed credit", len(entries))
	}
}

func TestApplyDebitOnUnknownCounselor(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Apply(context.Background(), ledger.Entry{
		CounselorID:     99,
		Delta:           -1,
		ResourceType:    ledger.ResourceOCR,
		ResourceID:      "doc-9",
		CumulativeUnits: 1,
	})
	if !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Fatalf("got %v, want ErrInsufficientCredits", err)
	}
}

func TestApplyRejectsInvalidEntry(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Apply(context.Background(), ledger.Entry{CounselorID: 3})
	if !errors.Is(err, ledger.ErrInvalidEntry) {
		t.Fatalf("got %v, want ErrInvalidEntry", err)
	}
}

func TestLatestUnitsForResource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	units, err := s.LatestUnitsForResource(ctx, ledger.ResourceSessionAnalysis, "sess-3")
	if err != nil {
		t.Fatalf("latest units: %v", err)
	}
	if units != 0 {
		t.Fatalf("units for unseen resource = %d, want 0", units)
	}

	if _, _, err := s.Apply(ctx, ledger.Entry{CounselorID: 4, Delta: 100, ResourceType: ledger.ResourcePurchase}); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
	for _, cum := range []int64{1, 2, 4} {
		if _, _, err := s.Apply(ctx, ledger.Entry{
			CounselorID:     4,
			Delta:           -1,
			ResourceType:    ledger.ResourceSessionAnalysis,
			ResourceID:      "sess-3",
			CumulativeUnits: cum,
		}); err != nil {
			t.Fatalf("apply debit cum=%d: %v", cum, err)
		}
	}

	units, err = s.LatestUnitsForResource(ctx, ledger.ResourceSessionAnalysis, "sess-3")
	if err != nil {
		t.Fatalf("latest units: %v", err)
	}
	if units != 4 {
		t.Fatalf("latest units = %d, want 4", units)
	}

	// Other resources with the same id do not bleed over.
	units, err = s.LatestUnitsForResource(ctx, ledger.ResourceTranslation, "sess-3")
	if err != nil {
		t.Fatalf("latest units: %v", err)
	}
	if units != 0 {
		t.Fatalf("cross-type units = %d, want 0", units)
	}
}

func TestListRecentNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Apply(ctx, ledger.Entry{CounselorID: 5, Delta: 10, ResourceType: ledger.ResourcePurchase}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := s.Apply(ctx, ledger.Entry{
		CounselorID: 5, Delta: -2, ResourceType: ledger.ResourceTranslation, ResourceID: "doc-1", CumulativeUnits: 2,
	}); err != nil {
		t.Fatalf("debit: %v", err)
	}

	entries, err := s.ListRecent(ctx, 5, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Delta != -2 || entries[1].Delta != 10 {
		t.Fatalf("wrong order: %+v", entries)
	}

	entries, err = s.ListRecent(ctx, 5, 1)
	if err != nil {
		t.Fatalf("list recent limit: %v", err)
	}
	if len(entries) != 1 || entries[0].Delta != -2 {
		t.Fatalf("limit not honored: %+v", entries)
	}
}

func TestSetCachedBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetCachedBalance(ctx, 6, 42); err != nil {
		t.Fatalf("set cached balance: %v", err)
	}
	cached, err := s.CachedBalance(ctx, 6)
	if err != nil {
		t.Fatalf("cached balance: %v", err)
	}
	if cached != 42 {
		t.Fatalf("cached = %d, want 42", cached)
	}

	if err := s.SetCachedBalance(ctx, 6, 7); err != nil {
		t.Fatalf("overwrite cached balance: %v", err)
	}
	cached, _ = s.CachedBalance(ctx, 6)
	if cached != 7 {
		t.Fatalf("cached = %d, want 7", cached)
	}

	if err := s.SetCachedBalance(ctx, 6, -1); err == nil {
		t.Fatal("negative cached balance accepted")
	}
}

func TestCounselorIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Apply(ctx, ledger.Entry{CounselorID: 10, Delta: 1, ResourceType: ledger.ResourcePurchase}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// A cache-only row (for example left behind by a manual edit) still shows up.
	if err := s.SetCachedBalance(ctx, 11, 5); err != nil {
		t.Fatalf("set cached balance: %v", err)
	}

	ids, err := s.CounselorIDs(ctx)
	if err != nil {
		t.Fatalf("counselor ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 11 {
		t.Fatalf("ids = %v, want [10 11]", ids)
	}
}
