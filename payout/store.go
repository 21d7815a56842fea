package payout

import (
	"context"

	"github.com/xraph/patron/id"
	"github.com/xraph/patron/period"
)

type Store interface {
	Create(ctx context.Context, p *Payout) error
	Get(ctx context.Context, payoutID id.PayoutID) (*Payout, error)
	// GetByRecipientPeriod returns the payout for the (recipient, period)
	// pair, of which at most one exists.
	GetByRecipientPeriod(ctx context.Context, recipientID string, pd period.Period) (*Payout, error)
	Update(ctx context.Context, p *Payout) error
	// ListUnsettled returns payouts not yet completed, oldest first. Used by
	// the startup recovery scan.
	ListUnsettled(ctx context.Context) ([]*Payout, error)
	List(ctx context.Context, pd period.Period, opts ListOpts) ([]*Payout, error)
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
