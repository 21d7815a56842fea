package balance

import (
	"context"

	"github.com/xraph/patron/id"
	"github.com/xraph/patron/period"
)

type Store interface {
	Create(ctx context.Context, b *SubscriberBalance) error
	Get(ctx context.Context, balID id.BalanceID) (*SubscriberBalance, error)
	// GetBySubscriber returns the balance for the (subscriber, period) pair,
	// of which at most one exists.
	GetBySubscriber(ctx context.Context, subscriberID string, p period.Period) (*SubscriberBalance, error)
	Update(ctx context.Context, b *SubscriberBalance) error
	List(ctx context.Context, p period.Period, opts ListOpts) ([]*SubscriberBalance, error)
}

type ListOpts struct {
	IncludeRetired bool
	Limit          int
	Offset         int
}
