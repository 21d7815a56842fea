package cycle

import (
	"context"

	"github.com/xraph/patron/period"
)

type Store interface {
	Create(ctx context.Context, s *State) error
	// Get returns the cycle state for the period, of which at most one exists.
	Get(ctx context.Context, p period.Period) (*State, error)
	// Advance moves the cycle from one phase to the next atomically. It
	// fails if the stored phase no longer matches from, which signals a
	// concurrent close of the same period.
	Advance(ctx context.Context, p period.Period, from, to Phase) error
	Update(ctx context.Context, s *State) error
	List(ctx context.Context, opts ListOpts) ([]*State, error)
}

type ListOpts struct {
	Phase  Phase
	Limit  int
	Offset int
}
