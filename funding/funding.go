// Package funding computes how much of each allocation a subscriber's budget
// actually funds.
//
// When a subscriber's active allocations total more than their budget, each
// allocation is funded pro rata. All persisted amounts come from integer
// apportionment in Apportion; the float Ratio exists for display only and is
// never used to derive a stored amount.
package funding

import (
	"math"

	"github.com/xraph/patron/id"
)

// Line is one active allocation entering apportionment.
type Line struct {
	AllocationID id.AllocationID
	RecipientID  string
	AmountCents  int64
}

// Funded is the outcome for one allocation after apportionment.
type Funded struct {
	AllocationID id.AllocationID
	RecipientID  string
	AmountCents  int64
}

// Ratio returns the funded fraction: min(1, budget/allocated). With no
// allocations the ratio is 1. Display only.
func Ratio(budgetCents, allocatedCents int64) float64 {
	if allocatedCents <= 0 {
		return 1.0
	}
	if budgetCents >= allocatedCents {
		return 1.0
	}
	if budgetCents <= 0 {
		return 0
	}

	return float64(budgetCents) / float64(allocatedCents)
}

// FundedAmount floors allocationCents scaled by ratio. Display only; the
// authoritative per-allocation amounts come from Apportion, which also
// accounts for cents lost to flooring.
func FundedAmount(allocationCents int64, ratio float64) int64 {
	if ratio >= 1 {
		return allocationCents
	}
	if ratio <= 0 {
		return 0
	}

	return int64(math.Floor(float64(allocationCents) * ratio))
}

// Apportion distributes the budget across the lines in integer cents.
//
// When the budget covers the allocation total, every line is funded at face
// value. When it does not, each line gets floor(amount * budget / allocated)
// and the residual cents lost to flooring are assigned to the line with the
// lowest allocation ID, so the funded total always equals
// min(budget, allocated) exactly. The invariant Σ funded ≤ budget holds for
// every input.
func Apportion(budgetCents int64, lines []Line) []Funded {
	if len(lines) == 0 {
		return nil
	}

	var allocated int64
	for _, l := range lines {
		allocated += l.AmountCents
	}

	out := make([]Funded, len(lines))

	if budgetCents <= 0 {
		for i, l := range lines {
			out[i] = Funded{AllocationID: l.AllocationID, RecipientID: l.RecipientID, AmountCents: 0}
		}

		return out
	}

	if allocated <= budgetCents {
		for i, l := range lines {
			out[i] = Funded{AllocationID: l.AllocationID, RecipientID: l.RecipientID, AmountCents: l.AmountCents}
		}

		return out
	}

	var sum int64
	lowest := 0
	for i, l := range lines {
		funded := l.AmountCents * budgetCents / allocated
		out[i] = Funded{AllocationID: l.AllocationID, RecipientID: l.RecipientID, AmountCents: funded}
		sum += funded

		if l.AllocationID.String() < lines[lowest].AllocationID.String() {
			lowest = i
		}
	}

	if residual := budgetCents - sum; residual > 0 {
		out[lowest].AmountCents += residual
	}

	return out
}
