package store

import (
	"context"
	"time"

	"github.com/xraph/patron/allocation"
	"github.com/xraph/patron/balance"
	"github.com/xraph/patron/cycle"
	"github.com/xraph/patron/earnings"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/payout"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/types"
)

// Store is the unified storage interface for all Patron entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Balance methods
	CreateBalance(ctx context.Context, b *balance.SubscriberBalance) error
	GetBalance(ctx context.Context, balID id.BalanceID) (*balance.SubscriberBalance, error)
	GetBalanceBySubscriber(ctx context.Context, subscriberID string, p period.Period) (*balance.SubscriberBalance, error)
	UpdateBalance(ctx context.Context, b *balance.SubscriberBalance) error
	ListBalances(ctx context.Context, p period.Period, opts balance.ListOpts) ([]*balance.SubscriberBalance, error)

	// Allocation methods
	UpsertAllocation(ctx context.Context, a *allocation.Allocation) error
	GetAllocation(ctx context.Context, allocID id.AllocationID) (*allocation.Allocation, error)
	GetAllocationByKey(ctx context.Context, subscriberID, recipientID, resourceID string, p period.Period) (*allocation.Allocation, error)
	ListAllocationsBySubscriber(ctx context.Context, subscriberID string, p period.Period, opts allocation.ListOpts) ([]*allocation.Allocation, error)
	ListAllocationsByRecipient(ctx context.Context, recipientID string, p period.Period, opts allocation.ListOpts) ([]*allocation.Allocation, error)
	ListAllocationSubscribers(ctx context.Context, p period.Period) ([]string, error)
	UpdateAllocation(ctx context.Context, a *allocation.Allocation) error

	// Earnings methods
	UpsertEarning(ctx context.Context, r *earnings.Record) error
	GetEarning(ctx context.Context, earnID id.EarningID) (*earnings.Record, error)
	DeletePendingEarning(ctx context.Context, allocID id.AllocationID, p period.Period) error
	ListEarningsByRecipient(ctx context.Context, recipientID string, p period.Period, opts earnings.ListOpts) ([]*earnings.Record, error)
	ListEarningRecipients(ctx context.Context, p period.Period, status earnings.Status) ([]string, error)
	LockEarnings(ctx context.Context, recipientID string, p period.Period, lockedAt time.Time) (int, error)
	MarkEarningsPaidOut(ctx context.Context, recipientID string, p period.Period, payoutID id.PayoutID, paidAt time.Time) (int, error)
	SumEarningsByStatus(ctx context.Context, recipientID string, p period.Period, status earnings.Status) (types.Money, error)
	SumEarningsBySubscriber(ctx context.Context, subscriberID string, p period.Period) (types.Money, error)
	SumOutstandingEarnings(ctx context.Context) (types.Money, error)

	// Cycle methods
	CreateCycle(ctx context.Context, s *cycle.State) error
	GetCycle(ctx context.Context, p period.Period) (*cycle.State, error)
	AdvanceCycle(ctx context.Context, p period.Period, from, to cycle.Phase) error
	UpdateCycle(ctx context.Context, s *cycle.State) error
	ListCycles(ctx context.Context, opts cycle.ListOpts) ([]*cycle.State, error)

	// Payout methods
	CreatePayout(ctx context.Context, p *payout.Payout) error
	GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error)
	GetPayoutByRecipientPeriod(ctx context.Context, recipientID string, pd period.Period) (*payout.Payout, error)
	UpdatePayout(ctx context.Context, p *payout.Payout) error
	ListUnsettledPayouts(ctx context.Context) ([]*payout.Payout, error)
	ListPayouts(ctx context.Context, pd period.Period, opts payout.ListOpts) ([]*payout.Payout, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
