package ledger

import "testing"

func TestBillableUnits(t *testing.T) {
	cases := []struct {
		elapsed int64
		want    int64
	}{
		{0, 0},
		{-5, 0},
		{1, 1},
		{30, 1},
		{59, 1},
		{60, 1},
		{61, 2},
		{90, 2},
		{120, 2},
		{121, 3},
		{185, 4},
		{3600, 60},
		{3601, 61},
	}
	for _, tc := range cases {
		if got := BillableUnits(tc.elapsed); got != tc.want {
			t.Errorf("BillableUnits(%d) = %d, want %d", tc.elapsed, got, tc.want)
		}
	}
}

func TestBillableUnitsNeverDecreasesWithElapsed(t *testing.T) {
	prev := int64(0)
	for s := int64(0); s <= 600; s++ {
		got := BillableUnits(s)
		if got < prev {
			t.Fatalf("BillableUnits(%d) = %d dropped below %d", s, got, prev)
		}
		prev = got
	}
}
