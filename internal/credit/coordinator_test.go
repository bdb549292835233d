package credit

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Youngger9765/career-ios-backend-sub001/internal/ledger"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/ledger/sqlite"
)

func newTestService(t *testing.T) (*Service, ledger.Store) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "credits.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(Config{Store: store, LockWait: time.Second}), store
}

func grant(t *testing.T, svc *Service, counselorID, amount int64) {
	t.Helper()
	if _, err := svc.Credit(context.Background(), counselorID, amount, "test grant"); err != nil {
		t.Fatalf("grant: %v", err)
	}
}

func TestDebitIncrementalMonotonicBilling(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	grant(t, svc, 1, 10)

	// A session reports cumulative elapsed time at 30s, 90s and 185s. The
	// minute totals are 1, 2 and 4, so the increments charged are 1, 1 and 2.
	steps := []struct {
		elapsed     int64
		wantCharged int64
		wantTotal   int64
	}{
		{30, 1, 1},
		{90, 1, 2},
		{185, 2, 4},
	}
	for _, step := range steps {
		res, err := svc.DebitIncremental(ctx, 1, ledger.ResourceSessionAnalysis, "sess-1", step.elapsed)
		if err != nil {
			t.Fatalf("debit at %ds: %v", step.elapsed, err)
		}
		if res.UnitsCharged != step.wantCharged {
			t.Fatalf("at %ds charged %d, want %d", step.elapsed, res.UnitsCharged, step.wantCharged)
		}
		if res.UnitsTotal != step.wantTotal {
			t.Fatalf("at %ds total %d, want %d", step.elapsed, res.UnitsTotal, step.wantTotal)
		}
	}

	balance, err := svc.Balance(ctx, 1)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 6 {
		t.Fatalf("balance = %d, want 6", balance)
	}
	ledgerBalance, err := store.BalanceOf(ctx, 1)
	if err != nil {
		t.Fatalf("balance of: %v", err)
	}
	if ledgerBalance != balance {
		t.Fatalf("ledger=%d cache=%d, want equal", ledgerBalance, balance)
	}
}

func TestDebitIncrementalIdempotentReplay(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	grant(t, svc, 2, 10)

	if _, err := svc.DebitIncremental(ctx, 2, ledger.ResourceSessionAnalysis, "sess-2", 185); err != nil {
		t.Fatalf("first debit: %v", err)
	}

	// Same cumulative snapshot delivered again charges nothing.
	res, err := svc.DebitIncremental(ctx, 2, ledger.ResourceSessionAnalysis, "sess-2", 185)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.UnitsCharged != 0 {
		t.Fatalf("replay charged %d, want 0", res.UnitsCharged)
	}
	if res.UnitsTotal != 4 {
		t.Fatalf("replay total %d, want 4", res.UnitsTotal)
	}

	// A stale smaller snapshot is also a no-op, never a refund.
	res, err = svc.DebitIncremental(ctx, 2, ledger.ResourceSessionAnalysis, "sess-2", 30)
	if err != nil {
		t.Fatalf("stale snapshot: %v", err)
	}
	if res.UnitsCharged != 0 {
		t.Fatalf("stale snapshot charged %d, want 0", res.UnitsCharged)
	}

	entries, err := store.ListRecent(ctx, 2, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(entries) != 2 { // grant + single debit
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if balance, _ := svc.Balance(ctx, 2); balance != 6 {
		t.Fatalf("balance = %d, want 6", balance)
	}
}

func TestDebitIncrementalInsufficientCredits(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	grant(t, svc, 3, 1)

	// 90s means 2 units owed but only 1 credit is available: fail closed,
	// never a partial charge.
	_, err := svc.DebitIncremental(ctx, 3, ledger.ResourceSessionAnalysis, "sess-3", 90)
	if !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Fatalf("got %v, want ErrInsufficientCredits", err)
	}

	if balance, _ := svc.Balance(ctx, 3); balance != 1 {
		t.Fatalf("balance = %d, want untouched 1", balance)
	}
	entries, err := store.ListRecent(ctx, 3, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want only the grant", len(entries))
	}

	// The affordable smaller snapshot still works afterwards.
	res, err := svc.DebitIncremental(ctx, 3, ledger.ResourceSessionAnalysis, "sess-3", 30)
	if err != nil {
		t.Fatalf("affordable debit: %v", err)
	}
	if res.UnitsCharged != 1 || res.BalanceAfter != 0 {
		t.Fatalf("got charged=%d balance=%d, want 1 and 0", res.UnitsCharged, res.BalanceAfter)
	}
}

func TestDebitIncrementalValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		run  func() error
	}{
		{"zero counselor", func() error {
			_, err := svc.DebitIncremental(ctx, 0, ledger.ResourceSessionAnalysis, "s", 30)
			return err
		}},
		{"non-billable type", func() error {
			_, err := svc.DebitIncremental(ctx, 1, ledger.ResourcePurchase, "s", 30)
			return err
		}},
		{"missing resource id", func() error {
			_, err := svc.DebitIncremental(ctx, 1, ledger.ResourceSessionAnalysis, "", 30)
			return err
		}},
		{"negative elapsed", func() error {
			_, err := svc.DebitIncremental(ctx, 1, ledger.ResourceSessionAnalysis, "s", -1)
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(); !errors.Is(err, ledger.ErrInvalidEntry) {
				t.Fatalf("got %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestDebitIncrementalZeroElapsedIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	grant(t, svc, 4, 5)

	res, err := svc.DebitIncremental(context.Background(), 4, ledger.ResourceSessionAnalysis, "sess-4", 0)
	if err != nil {
		t.Fatalf("zero elapsed: %v", err)
	}
	if res.UnitsCharged != 0 || res.BalanceAfter != 5 {
		t.Fatalf("got charged=%d balance=%d, want 0 and 5", res.UnitsCharged, res.BalanceAfter)
	}
}

func TestDebitIncrementalConcurrentSameResource(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	grant(t, svc, 5, 100)

	// Many goroutines replay overlapping cumulative snapshots for one
	// resource. Total charged must equal the largest snapshot's units.
	snapshots := []int64{30, 60, 90, 90, 120, 185, 185, 185, 240, 240}
	var wg sync.WaitGroup
	for _, elapsed := range snapshots {
		wg.Add(1)
		go func(e int64) {
			defer wg.Done()
			if _, err := svc.DebitIncremental(ctx, 5, ledger.ResourceSessionAnalysis, "sess-5", e); err != nil {
				t.Errorf("debit %ds: %v", e, err)
			}
		}(elapsed)
	}
	wg.Wait()

	balance, err := svc.Balance(ctx, 5)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 96 { // 240s rounds to 4 units
		t.Fatalf("balance = %d, want 96", balance)
	}
	ledgerBalance, _ := store.BalanceOf(ctx, 5)
	if ledgerBalance != balance {
		t.Fatalf("ledger=%d cache=%d, want equal", ledgerBalance, balance)
	}
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService(t)

	for _, amount := range []int64{0, -5} {
		if _, err := svc.Credit(context.Background(), 6, amount, ""); !errors.Is(err, ledger.ErrInvalidEntry) {
			t.Fatalf("amount %d: got %v, want ErrInvalidEntry", amount, err)
		}
	}
}

func TestAdjustRecordsEntry(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	grant(t, svc, 7, 10)

	entry, err := svc.Adjust(ctx, 7, -4, "refund clawback")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if entry.ResourceType != ledger.ResourceNone {
		t.Fatalf("adjustment resource type = %q, want empty", entry.ResourceType)
	}
	if balance, _ := store.CachedBalance(ctx, 7); balance != 6 {
		t.Fatalf("balance = %d, want 6", balance)
	}
}
