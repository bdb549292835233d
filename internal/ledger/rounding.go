package ledger

// BillableUnits converts cumulative elapsed seconds into whole billable
// minute units, rounding up. Zero (or negative) input bills nothing.
//
// This is the only implementation of the rounding policy; the coordinator,
// the stores and all reconciliation tooling go through it. Duplicating the
// formula elsewhere risks the ledger and its verifiers disagreeing about
// what is owed.
func BillableUnits(elapsedSeconds int64) int64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	return (elapsedSeconds + 59) / 60
}
