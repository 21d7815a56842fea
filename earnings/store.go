package earnings

import (
	"context"
	"time"

	"github.com/xraph/patron/id"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/types"
)

type Store interface {
	// Upsert inserts or replaces the pending record keyed by
	// (recipient, period, allocation). Records past pending are never
	// replaced; Upsert returns an error if a locked row exists for the key.
	Upsert(ctx context.Context, r *Record) error
	Get(ctx context.Context, earnID id.EarningID) (*Record, error)
	// DeletePending removes the pending record for an allocation, if any.
	// Locked records are left untouched.
	DeletePending(ctx context.Context, allocID id.AllocationID, p period.Period) error
	ListByRecipient(ctx context.Context, recipientID string, p period.Period, opts ListOpts) ([]*Record, error)
	// ListRecipients returns the distinct recipient IDs holding at least one
	// record with the given status in the period.
	ListRecipients(ctx context.Context, p period.Period, status Status) ([]string, error)
	// Lock moves all pending records for the recipient and period to
	// available, stamping lockedAt. Returns the number of records moved;
	// zero means the recipient was already locked. Idempotent.
	Lock(ctx context.Context, recipientID string, p period.Period, lockedAt time.Time) (int, error)
	// MarkPaidOut moves all available records for the recipient and period
	// to paid_out and attaches the payout ID. Idempotent.
	MarkPaidOut(ctx context.Context, recipientID string, p period.Period, payoutID id.PayoutID, paidAt time.Time) (int, error)
	// SumByStatus totals record amounts for a recipient in one period.
	SumByStatus(ctx context.Context, recipientID string, p period.Period, status Status) (types.Money, error)
	// SumOutstanding totals all available, not yet paid out amounts across
	// every recipient and period. The escrow monitor compares this figure
	// against the funds actually held.
	SumOutstanding(ctx context.Context) (types.Money, error)
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
