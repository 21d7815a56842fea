package funding_test

import (
	"testing"

	"github.com/xraph/patron/funding"
	"github.com/xraph/patron/id"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name      string
		budget    int64
		allocated int64
		want      float64
	}{
		{"no allocations", 1000, 0, 1.0},
		{"under budget", 1000, 600, 1.0},
		{"exact budget", 1000, 1000, 1.0},
		{"overspent half", 1000, 2000, 0.5},
		{"overspent quarter", 1000, 4000, 0.25},
		{"zero budget", 0, 500, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := funding.Ratio(tt.budget, tt.allocated)
			if got != tt.want {
				t.Errorf("Ratio(%d, %d) = %v, want %v", tt.budget, tt.allocated, got, tt.want)
			}
		})
	}
}

func TestFundedAmount(t *testing.T) {
	tests := []struct {
		name       string
		allocation int64
		ratio      float64
		want       int64
	}{
		{"full ratio", 600, 1.0, 600},
		{"half ratio", 1000, 0.5, 500},
		{"floors down", 333, 0.5, 166},
		{"zero ratio", 1000, 0, 0},
		{"ratio above one clamps", 600, 1.5, 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := funding.FundedAmount(tt.allocation, tt.ratio)
			if got != tt.want {
				t.Errorf("FundedAmount(%d, %v) = %d, want %d", tt.allocation, tt.ratio, got, tt.want)
			}
		})
	}
}

func TestApportionFullyFunded(t *testing.T) {
	// Budget 1000, single allocation of 600: funded at face value, the
	// remaining 400 is left for the sweep.
	lines := []funding.Line{
		{AllocationID: id.NewAllocationID(), RecipientID: "creator-x", AmountCents: 600},
	}

	out := funding.Apportion(1000, lines)
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0].AmountCents != 600 {
		t.Errorf("funded = %d, want 600", out[0].AmountCents)
	}
}

func TestApportionOverspentEvenSplit(t *testing.T) {
	// Budget 1000, two allocations of 1000 each: both funded at 500.
	lines := []funding.Line{
		{AllocationID: id.NewAllocationID(), RecipientID: "creator-x", AmountCents: 1000},
		{AllocationID: id.NewAllocationID(), RecipientID: "creator-y", AmountCents: 1000},
	}

	out := funding.Apportion(1000, lines)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}

	var total int64
	for _, f := range out {
		if f.AmountCents != 500 {
			t.Errorf("funded = %d, want 500", f.AmountCents)
		}
		total += f.AmountCents
	}
	if total != 1000 {
		t.Errorf("total funded = %d, want 1000", total)
	}
}

func TestApportionResidualGoesToLowestID(t *testing.T) {
	// Three allocations of 100 against a budget of 100: each floors to 33
	// and the lone residual cent lands on the lowest allocation ID.
	a := id.NewAllocationID()
	b := id.NewAllocationID()
	c := id.NewAllocationID()

	lines := []funding.Line{
		{AllocationID: c, AmountCents: 100},
		{AllocationID: a, AmountCents: 100},
		{AllocationID: b, AmountCents: 100},
	}

	out := funding.Apportion(100, lines)

	lowest := a.String()
	for _, l := range lines {
		if l.AllocationID.String() < lowest {
			lowest = l.AllocationID.String()
		}
	}

	var total int64
	for _, f := range out {
		total += f.AmountCents
		want := int64(33)
		if f.AllocationID.String() == lowest {
			want = 34
		}
		if f.AmountCents != want {
			t.Errorf("allocation %s funded = %d, want %d", f.AllocationID, f.AmountCents, want)
		}
	}
	if total != 100 {
		t.Errorf("total funded = %d, want 100", total)
	}
}

func TestApportionDeterministic(t *testing.T) {
	// Same lines in a different order produce the same per-allocation
	// amounts.
	a := id.NewAllocationID()
	b := id.NewAllocationID()

	forward := funding.Apportion(999, []funding.Line{
		{AllocationID: a, AmountCents: 700},
		{AllocationID: b, AmountCents: 700},
	})
	reversed := funding.Apportion(999, []funding.Line{
		{AllocationID: b, AmountCents: 700},
		{AllocationID: a, AmountCents: 700},
	})

	byID := func(out []funding.Funded) map[string]int64 {
		m := make(map[string]int64, len(out))
		for _, f := range out {
			m[f.AllocationID.String()] = f.AmountCents
		}
		return m
	}

	fw, rv := byID(forward), byID(reversed)
	for k, v := range fw {
		if rv[k] != v {
			t.Errorf("allocation %s: %d (forward) != %d (reversed)", k, v, rv[k])
		}
	}
}

func TestApportionNeverExceedsBudget(t *testing.T) {
	tests := []struct {
		name    string
		budget  int64
		amounts []int64
	}{
		{"heavily overspent", 1000, []int64{999, 998, 997, 996}},
		{"single cent budget", 1, []int64{100, 100}},
		{"uneven amounts", 2500, []int64{1700, 1300, 900}},
		{"zero budget", 0, []int64{500, 500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := make([]funding.Line, len(tt.amounts))
			for i, amt := range tt.amounts {
				lines[i] = funding.Line{AllocationID: id.NewAllocationID(), AmountCents: amt}
			}

			var total, allocated int64
			for _, f := range funding.Apportion(tt.budget, lines) {
				total += f.AmountCents
			}
			for _, amt := range tt.amounts {
				allocated += amt
			}

			if total > tt.budget {
				t.Errorf("total funded %d exceeds budget %d", total, tt.budget)
			}

			// When overspent with a positive budget the funded total must
			// equal the budget exactly; no cents silently vanish.
			if tt.budget > 0 && allocated > tt.budget && total != tt.budget {
				t.Errorf("total funded %d != budget %d", total, tt.budget)
			}
		})
	}
}

func TestApportionEmpty(t *testing.T) {
	if out := funding.Apportion(1000, nil); out != nil {
		t.Errorf("expected nil for no lines, got %v", out)
	}
}
