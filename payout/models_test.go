package payout_test

import (
	"testing"

	"github.com/xraph/patron/payout"
)

func TestStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from payout.Status
		to   payout.Status
		want bool
	}{
		{"pending to processing", payout.StatusPending, payout.StatusProcessing, true},
		{"processing to completed", payout.StatusProcessing, payout.StatusCompleted, true},
		{"processing to failed", payout.StatusProcessing, payout.StatusFailed, true},
		{"failed back to processing", payout.StatusFailed, payout.StatusProcessing, true},
		{"pending cannot skip to completed", payout.StatusPending, payout.StatusCompleted, false},
		{"pending cannot skip to failed", payout.StatusPending, payout.StatusFailed, false},
		{"failed cannot skip to completed", payout.StatusFailed, payout.StatusCompleted, false},
		{"completed is terminal", payout.StatusCompleted, payout.StatusProcessing, false},
		{"completed cannot fail", payout.StatusCompleted, payout.StatusFailed, false},
		{"no self loop", payout.StatusProcessing, payout.StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStatusSettled(t *testing.T) {
	if !payout.StatusCompleted.Settled() {
		t.Error("completed should be settled")
	}
	for _, s := range []payout.Status{payout.StatusPending, payout.StatusProcessing, payout.StatusFailed} {
		if s.Settled() {
			t.Errorf("%s should not be settled", s)
		}
	}
}
