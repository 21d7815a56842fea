package patron

import (
	"context"
	"errors"

	"github.com/xraph/patron/allocation"
	"github.com/xraph/patron/balance"
	"github.com/xraph/patron/cycle"
	"github.com/xraph/patron/earnings"
	"github.com/xraph/patron/funding"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/types"
)

// ──────────────────────────────────────────────────
// Budgets
// ──────────────────────────────────────────────────

// SetBudget sets a subscriber's total budget for a period, creating the
// balance record on first use. Lowering the budget below the standing
// allocation total is allowed; earnings are re-apportioned pro rata.
func (l *Ledger) SetBudget(ctx context.Context, subscriberID string, p period.Period, budget types.Money) (*balance.SubscriberBalance, error) {
	if subscriberID == "" {
		return nil, ValidationError{Field: "subscriberID", Message: "must not be empty"}
	}
	if err := p.Validate(); err != nil {
		return nil, ValidationError{Field: "period", Message: err.Error()}
	}
	if budget.IsNegative() {
		return nil, ValidationError{Field: "budget", Message: "must not be negative"}
	}

	mu := l.subLocks.get(subscriberKey(subscriberID, p))
	mu.Lock()
	defer mu.Unlock()

	// Checked under the scoped lock: the close holds the same lock while
	// finalizing this subscriber, so no write can land after its final
	// recompute.
	if err := l.ensureWritable(ctx, p); err != nil {
		return nil, err
	}

	bal, err := l.store.GetBalanceBySubscriber(ctx, subscriberID, p)
	switch {
	case errors.Is(err, ErrBalanceNotFound):
		bal = &balance.SubscriberBalance{
			Entity:       types.NewEntity(),
			ID:           id.NewBalanceID(),
			SubscriberID: subscriberID,
			Period:       p,
			Currency:     budget.Currency,
			TotalBudget:  budget,
			Allocated:    types.Zero(budget.Currency),
			Swept:        types.Zero(budget.Currency),
			AppID:        l.appID,
		}
		if err := l.store.CreateBalance(ctx, bal); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if bal.Retired {
			return nil, ErrBalanceRetired
		}
		bal.TotalBudget = budget
		if err := l.store.UpdateBalance(ctx, bal); err != nil {
			return nil, err
		}
	}

	if _, err := l.recomputeLocked(ctx, bal, p); err != nil {
		return nil, err
	}

	return bal, nil
}

// Balance returns a subscriber's balance for a period.
func (l *Ledger) Balance(ctx context.Context, subscriberID string, p period.Period) (*balance.SubscriberBalance, error) {
	return l.store.GetBalanceBySubscriber(ctx, subscriberID, p)
}

// ──────────────────────────────────────────────────
// Allocations
// ──────────────────────────────────────────────────

// Allocate creates or replaces a subscriber's allocation to a recipient's
// resource for a period. The subscriber's allocated total is recomputed as a
// fresh sum and every affected recipient's earnings are re-apportioned,
// since the funding ratio is shared across the subscriber's allocation set.
func (l *Ledger) Allocate(ctx context.Context, subscriberID, recipientID, resourceID string, amount types.Money, p period.Period) (*allocation.Allocation, error) {
	if subscriberID == "" {
		return nil, ValidationError{Field: "subscriberID", Message: "must not be empty"}
	}
	if recipientID == "" {
		return nil, ValidationError{Field: "recipientID", Message: "must not be empty"}
	}
	if resourceID == "" {
		return nil, ValidationError{Field: "resourceID", Message: "must not be empty"}
	}
	if err := p.Validate(); err != nil {
		return nil, ValidationError{Field: "period", Message: err.Error()}
	}
	if !amount.IsPositive() {
		return nil, ValidationError{Field: "amount", Message: "must be positive"}
	}

	mu := l.subLocks.get(subscriberKey(subscriberID, p))
	mu.Lock()
	defer mu.Unlock()

	// Checked under the scoped lock so the write cannot race the close's
	// final recompute for this subscriber.
	if err := l.ensureWritable(ctx, p); err != nil {
		return nil, err
	}

	bal, err := l.ensureBalance(ctx, subscriberID, p, amount.Currency)
	if err != nil {
		return nil, err
	}

	a := &allocation.Allocation{
		Entity:       types.NewEntity(),
		SubscriberID: subscriberID,
		RecipientID:  recipientID,
		ResourceID:   resourceID,
		Period:       p,
		Amount:       amount,
		Status:       allocation.StatusActive,
		AppID:        l.appID,
	}
	if err := l.store.UpsertAllocation(ctx, a); err != nil {
		return nil, err
	}

	if _, err := l.recomputeLocked(ctx, bal, p); err != nil {
		return nil, err
	}

	l.plugins.EmitAllocationUpserted(ctx, a)
	return a, nil
}

// RemoveAllocation deactivates an allocation and runs the same recompute
// cascade as Allocate. The row is kept for audit; only its status changes.
func (l *Ledger) RemoveAllocation(ctx context.Context, allocID id.AllocationID) error {
	a, err := l.store.GetAllocation(ctx, allocID)
	if err != nil {
		return err
	}

	mu := l.subLocks.get(subscriberKey(a.SubscriberID, a.Period))
	mu.Lock()
	defer mu.Unlock()

	if err := l.ensureWritable(ctx, a.Period); err != nil {
		return err
	}

	if a.Status == allocation.StatusInactive {
		return nil
	}
	a.Status = allocation.StatusInactive
	if err := l.store.UpdateAllocation(ctx, a); err != nil {
		return err
	}
	if err := l.store.DeletePendingEarning(ctx, a.ID, a.Period); err != nil {
		return err
	}

	bal, err := l.store.GetBalanceBySubscriber(ctx, a.SubscriberID, a.Period)
	if err != nil {
		return err
	}
	if _, err := l.recomputeLocked(ctx, bal, a.Period); err != nil {
		return err
	}

	l.plugins.EmitAllocationRemoved(ctx, a)
	return nil
}

// CancelSubscription deactivates all of a subscriber's active allocations
// for the period. Already-computed funded earnings are final and are not
// clawed back; only the allocated total is recomputed.
func (l *Ledger) CancelSubscription(ctx context.Context, subscriberID string, p period.Period) error {
	mu := l.subLocks.get(subscriberKey(subscriberID, p))
	mu.Lock()
	defer mu.Unlock()

	if err := l.ensureWritable(ctx, p); err != nil {
		return err
	}

	active, err := l.store.ListAllocationsBySubscriber(ctx, subscriberID, p, allocation.ListOpts{Status: allocation.StatusActive})
	if err != nil {
		return err
	}
	for _, a := range active {
		a.Status = allocation.StatusInactive
		if err := l.store.UpdateAllocation(ctx, a); err != nil {
			return err
		}
	}

	bal, err := l.store.GetBalanceBySubscriber(ctx, subscriberID, p)
	if errors.Is(err, ErrBalanceNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	bal.Allocated = types.Zero(bal.Currency)
	if err := l.store.UpdateBalance(ctx, bal); err != nil {
		return err
	}

	l.logger.Info("subscription canceled",
		"subscriber", subscriberID,
		"period", p.String(),
		"deactivated", len(active),
	)
	return nil
}

// Allocations lists a subscriber's allocations for a period.
func (l *Ledger) Allocations(ctx context.Context, subscriberID string, p period.Period, opts allocation.ListOpts) ([]*allocation.Allocation, error) {
	return l.store.ListAllocationsBySubscriber(ctx, subscriberID, p, opts)
}

// ──────────────────────────────────────────────────
// Earnings reads
// ──────────────────────────────────────────────────

// PendingEarnings returns a recipient's pending balance for a period,
// always summed fresh over current records.
func (l *Ledger) PendingEarnings(ctx context.Context, recipientID string, p period.Period) (types.Money, error) {
	return l.store.SumEarningsByStatus(ctx, recipientID, p, earnings.StatusPending)
}

// AvailableEarnings returns a recipient's locked, payable balance for a
// period.
func (l *Ledger) AvailableEarnings(ctx context.Context, recipientID string, p period.Period) (types.Money, error) {
	return l.store.SumEarningsByStatus(ctx, recipientID, p, earnings.StatusAvailable)
}

// Earnings lists a recipient's earnings records for a period.
func (l *Ledger) Earnings(ctx context.Context, recipientID string, p period.Period, opts earnings.ListOpts) ([]*earnings.Record, error) {
	return l.store.ListEarningsByRecipient(ctx, recipientID, p, opts)
}

// ──────────────────────────────────────────────────
// Internal
// ──────────────────────────────────────────────────

// ensureWritable rejects writes into any period whose cycle has left the
// open phase.
func (l *Ledger) ensureWritable(ctx context.Context, p period.Period) error {
	st, err := l.store.GetCycle(ctx, p)
	if errors.Is(err, ErrCycleNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if st.Phase != cycle.PhaseOpen {
		return ErrPeriodLocked
	}
	return nil
}

func (l *Ledger) ensureBalance(ctx context.Context, subscriberID string, p period.Period, currency string) (*balance.SubscriberBalance, error) {
	bal, err := l.store.GetBalanceBySubscriber(ctx, subscriberID, p)
	if err == nil {
		if bal.Retired {
			return nil, ErrBalanceRetired
		}
		return bal, nil
	}
	if !errors.Is(err, ErrBalanceNotFound) {
		return nil, err
	}

	// First allocation creates the balance with a zero budget; nothing is
	// funded until SetBudget runs.
	bal = &balance.SubscriberBalance{
		Entity:       types.NewEntity(),
		ID:           id.NewBalanceID(),
		SubscriberID: subscriberID,
		Period:       p,
		Currency:     currency,
		TotalBudget:  types.Zero(currency),
		Allocated:    types.Zero(currency),
		Swept:        types.Zero(currency),
		AppID:        l.appID,
	}
	if err := l.store.CreateBalance(ctx, bal); err != nil {
		return nil, err
	}
	return bal, nil
}

// recomputeLocked refreshes the subscriber's allocated total and
// re-apportions funded amounts across every pending earnings record the
// subscriber contributes to. Funded amounts are always replaced from a
// fresh read, never incremented, so concurrent triggers converge. Caller
// holds the (subscriber, period) lock.
func (l *Ledger) recomputeLocked(ctx context.Context, bal *balance.SubscriberBalance, p period.Period) (int64, error) {
	active, err := l.store.ListAllocationsBySubscriber(ctx, bal.SubscriberID, p, allocation.ListOpts{Status: allocation.StatusActive})
	if err != nil {
		return 0, err
	}

	allocated := types.Zero(bal.Currency)
	lines := make([]funding.Line, 0, len(active))
	for _, a := range active {
		allocated = allocated.Add(a.Amount)
		lines = append(lines, funding.Line{
			AllocationID: a.ID,
			RecipientID:  a.RecipientID,
			AmountCents:  a.Amount.Amount,
		})
	}

	bal.Allocated = allocated
	if err := l.store.UpdateBalance(ctx, bal); err != nil {
		return 0, err
	}

	ratio := funding.Ratio(bal.TotalBudget.Amount, allocated.Amount)
	funded := funding.Apportion(bal.TotalBudget.Amount, lines)

	byAlloc := make(map[string]*allocation.Allocation, len(active))
	for _, a := range active {
		byAlloc[a.ID.String()] = a
	}

	var fundedTotal int64
	for _, f := range funded {
		a := byAlloc[f.AllocationID.String()]
		rec := &earnings.Record{
			Entity:       types.NewEntity(),
			RecipientID:  a.RecipientID,
			SubscriberID: bal.SubscriberID,
			AllocationID: a.ID,
			Period:       p,
			Allocated:    a.Amount,
			Amount:       types.Money{Amount: f.AmountCents, Currency: bal.Currency},
			Ratio:        ratio,
			Status:       earnings.StatusPending,
			AppID:        l.appID,
		}
		if err := l.store.UpsertEarning(ctx, rec); err != nil {
			// A record locked by an earlier pass of the close keeps its
			// final amount; resume only recomputes still-pending recipients.
			if errors.Is(err, ErrEarningLocked) {
				continue
			}
			return 0, err
		}
		fundedTotal += f.AmountCents
	}

	l.plugins.EmitEarningsRecomputed(ctx, bal.SubscriberID, p.String(), fundedTotal)
	l.logger.Debug("earnings recomputed",
		"subscriber", bal.SubscriberID,
		"period", p.String(),
		"allocated", allocated.Amount,
		"funded", fundedTotal,
		"ratio", ratio,
	)

	return fundedTotal, nil
}
