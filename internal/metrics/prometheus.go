package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPrometheus formats metrics in Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	sb.WriteString("# HELP credits_uptime_seconds Time since the ledger service started\n")
	sb.WriteString("# TYPE credits_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("credits_uptime_seconds %d\n", snap.Uptime))
	sb.WriteString("\n")

	sb.WriteString("# HELP credits_debits_total Successful incremental debits\n")
	sb.WriteString("# TYPE credits_debits_total counter\n")
	sb.WriteString(fmt.Sprintf("credits_debits_total %d\n", snap.DebitsTotal))
	sb.WriteString("\n")

	sb.WriteString("# HELP credits_debits_noop_total Debit attempts that were idempotent no-ops\n")
	sb.WriteString("# TYPE credits_debits_noop_total counter\n")
	sb.WriteString(fmt.Sprintf("credits_debits_noop_total %d\n", snap.NoopDebits))
	sb.WriteString("\n")

	sb.WriteString("# HELP credits_units_charged_total Credit units debited by resource type\n")
	sb.WriteString("# TYPE credits_units_charged_total counter\n")
	for _, rt := range sortedKeys(snap.UnitsCharged) {
		sb.WriteString(fmt.Sprintf("credits_units_charged_total{resource_type=%q} %d\n", rt, snap.UnitsCharged[rt]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP credits_insufficient_total Debits rejected for insufficient balance\n")
	sb.WriteString("# TYPE credits_insufficient_total counter\n")
	sb.WriteString(fmt.Sprintf("credits_insufficient_total %d\n", snap.InsufficientCredits))
	sb.WriteString("\n")

	sb.WriteString("# HELP credits_busy_total Debits rejected on lock-wait timeout\n")
	sb.WriteString("# TYPE credits_busy_total counter\n")
	sb.WriteString(fmt.Sprintf("credits_busy_total %d\n", snap.BusyRejections))
	sb.WriteString("\n")

	sb.WriteString("# HELP credits_grants_total Credit grants applied\n")
	sb.WriteString("# TYPE credits_grants_total counter\n")
	sb.WriteString(fmt.Sprintf("credits_grants_total %d\n", snap.GrantsTotal))
	sb.WriteString("\n")

	sb.WriteString("# HELP credits_granted_units_total Credit units granted\n")
	sb.WriteString("# TYPE credits_granted_units_total counter\n")
	sb.WriteString(fmt.Sprintf("credits_granted_units_total %d\n", snap.CreditsGranted))
	sb.WriteString("\n")

	sb.WriteString("# HELP credits_audit_verifications_total Cache-vs-ledger comparisons performed\n")
	sb.WriteString("# TYPE credits_audit_verifications_total counter\n")
	sb.WriteString(fmt.Sprintf("credits_audit_verifications_total %d\n", snap.Verifications))
	sb.WriteString("\n")

	sb.WriteString("# HELP credits_audit_drift_total Comparisons where cache and ledger disagreed\n")
	sb.WriteString("# TYPE credits_audit_drift_total counter\n")
	sb.WriteString(fmt.Sprintf("credits_audit_drift_total %d\n", snap.DriftDetected))
	sb.WriteString("\n")

	sb.WriteString("# HELP credits_audit_repairs_total Cache overwrites performed by the auditor\n")
	sb.WriteString("# TYPE credits_audit_repairs_total counter\n")
	sb.WriteString(fmt.Sprintf("credits_audit_repairs_total %d\n", snap.RepairsTotal))
	sb.WriteString("\n")

	sb.WriteString("# HELP credits_rate_limit_hits_total Requests rejected by the rate limiter\n")
	sb.WriteString("# TYPE credits_rate_limit_hits_total counter\n")
	sb.WriteString(fmt.Sprintf("credits_rate_limit_hits_total %d\n", snap.RateLimitHits))
	sb.WriteString("\n")

	sb.WriteString("# HELP credits_invalid_requests_total Structurally invalid requests\n")
	sb.WriteString("# TYPE credits_invalid_requests_total counter\n")
	sb.WriteString(fmt.Sprintf("credits_invalid_requests_total %d\n", snap.InvalidRequests))

	return sb.String()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
