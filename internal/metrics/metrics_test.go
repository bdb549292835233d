package metrics

import (
	"strings"
	"testing"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()

	c.RecordDebit("session_analysis", 2)
	c.RecordDebit("session_analysis", 1)
	c.RecordDebit("translation", 3)
	c.RecordNoopDebit()
	c.RecordInsufficientCredits()
	c.RecordBusy()
	c.RecordGrant(100)
	c.RecordVerification(false)
	c.RecordVerification(true)
	c.RecordRepair()
	c.RecordRateLimitHit()
	c.RecordInvalidRequest()

	snap := c.GetSnapshot()
	if snap.DebitsTotal != 3 {
		t.Errorf("debits = %d, want 3", snap.DebitsTotal)
	}
	if snap.UnitsCharged["session_analysis"] != 3 {
		t.Errorf("session units = %d, want 3", snap.UnitsCharged["session_analysis"])
	}
	if snap.UnitsCharged["translation"] != 3 {
		t.Errorf("translation units = %d, want 3", snap.UnitsCharged["translation"])
	}
	if snap.NoopDebits != 1 || snap.InsufficientCredits != 1 || snap.BusyRejections != 1 {
		t.Errorf("rejection counters wrong: %+v", snap)
	}
	if snap.GrantsTotal != 1 || snap.CreditsGranted != 100 {
		t.Errorf("grant counters wrong: %+v", snap)
	}
	if snap.Verifications != 2 || snap.DriftDetected != 1 || snap.RepairsTotal != 1 {
		t.Errorf("audit counters wrong: %+v", snap)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := NewCollector()
	c.RecordDebit("ocr", 1)

	snap := c.GetSnapshot()
	snap.UnitsCharged["ocr"] = 999

	if c.GetSnapshot().UnitsCharged["ocr"] != 1 {
		t.Fatal("snapshot mutation leaked into collector")
	}
}

func TestFormatPrometheus(t *testing.T) {
	c := NewCollector()
	c.RecordDebit("session_analysis", 4)
	c.RecordGrant(10)

	out := FormatPrometheus(c.GetSnapshot())
	for _, want := range []string{
		"credits_uptime_seconds",
		"credits_debits_total 1",
		`credits_units_charged_total{resource_type="session_analysis"} 4`,
		"credits_grants_total 1",
		"credits_granted_units_total 10",
		"# TYPE credits_debits_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}
