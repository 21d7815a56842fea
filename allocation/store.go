package allocation

import (
	"context"

	"github.com/xraph/patron/id"
	"github.com/xraph/patron/period"
)

type Store interface {
	// Upsert inserts or replaces the allocation keyed by
	// (subscriber, recipient, resource, period). The stored row keeps its
	// original ID when replaced.
	Upsert(ctx context.Context, a *Allocation) error
	Get(ctx context.Context, allocID id.AllocationID) (*Allocation, error)
	GetByKey(ctx context.Context, subscriberID, recipientID, resourceID string, p period.Period) (*Allocation, error)
	ListBySubscriber(ctx context.Context, subscriberID string, p period.Period, opts ListOpts) ([]*Allocation, error)
	ListByRecipient(ctx context.Context, recipientID string, p period.Period, opts ListOpts) ([]*Allocation, error)
	// ListSubscribers returns the distinct subscriber IDs holding at least
	// one active allocation in the period.
	ListSubscribers(ctx context.Context, p period.Period) ([]string, error)
	Update(ctx context.Context, a *Allocation) error
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
