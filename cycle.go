package patron

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/patron/balance"
	"github.com/xraph/patron/cycle"
	"github.com/xraph/patron/earnings"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/types"
)

// RunCycle drives the period's close through its phases:
// Open -> Locking -> Calculating -> Sweeping -> PayoutTriggered -> Closed.
// Each phase is checkpointed; a crashed or failed run resumes at the last
// completed phase on the next invocation and never restarts or skips. A
// second call while the same period is already running returns
// ErrCycleRunning without touching state.
func (l *Ledger) RunCycle(ctx context.Context, p period.Period) (*cycle.State, error) {
	if err := p.Validate(); err != nil {
		return nil, ValidationError{Field: "period", Message: err.Error()}
	}

	l.cycleMu.Lock()
	if l.runningCycles[p] {
		l.cycleMu.Unlock()
		return nil, ErrCycleRunning
	}
	l.runningCycles[p] = true
	l.cycleMu.Unlock()
	defer func() {
		l.cycleMu.Lock()
		delete(l.runningCycles, p)
		l.cycleMu.Unlock()
	}()

	st, err := l.store.GetCycle(ctx, p)
	switch {
	case errors.Is(err, ErrCycleNotFound):
		now := time.Now().UTC()
		st = &cycle.State{
			Entity:     types.NewEntity(),
			ID:         id.NewCycleID(),
			Period:     p,
			Phase:      cycle.PhaseOpen,
			SweptTotal: types.Zero("usd"),
			StartedAt:  &now,
			AppID:      l.appID,
		}
		if err := l.store.CreateCycle(ctx, st); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	for !st.Phase.Terminal() {
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		default:
		}

		var stepErr error
		switch st.Phase {
		case cycle.PhaseOpen:
			// Allocation writes into this period are rejected from here on.
			stepErr = l.advanceCycle(ctx, st, cycle.PhaseLocking)
		case cycle.PhaseLocking:
			stepErr = l.lockPeriod(ctx, st)
		case cycle.PhaseCalculating:
			stepErr = l.sweepPeriod(ctx, st)
		case cycle.PhaseSweeping:
			stepErr = l.dispatchPayouts(ctx, st)
		case cycle.PhasePayoutTriggered:
			// Closed means the payout batch was dispatched; completion is
			// tracked on the payout records themselves.
			now := time.Now().UTC()
			st.ClosedAt = &now
			if err := l.store.UpdateCycle(ctx, st); err != nil {
				stepErr = err
				break
			}
			stepErr = l.advanceCycle(ctx, st, cycle.PhaseClosed)
		}

		if stepErr != nil {
			// Pause at the checkpoint; re-invocation resumes here.
			st.LastError = stepErr.Error()
			_ = l.store.UpdateCycle(ctx, st) //nolint:errcheck // best-effort checkpoint annotation
			return st, stepErr
		}
	}

	return st, nil
}

// Cycle returns the persisted cycle state for a period.
func (l *Ledger) Cycle(ctx context.Context, p period.Period) (*cycle.State, error) {
	return l.store.GetCycle(ctx, p)
}

func (l *Ledger) advanceCycle(ctx context.Context, st *cycle.State, to cycle.Phase) error {
	if err := l.store.AdvanceCycle(ctx, st.Period, st.Phase, to); err != nil {
		return err
	}
	st.Phase = to
	st.LastError = ""

	l.plugins.EmitCycleAdvanced(ctx, st.Period.String(), string(to))
	l.logger.Info("cycle advanced",
		"period", st.Period.String(),
		"phase", string(to),
	)
	return nil
}

// lockPeriod computes each subscriber's final funding ratio, pushes final
// funded amounts, then locks earnings recipient by recipient. A recipient
// whose lock fails stays pending and is retried on resume; the others are
// unaffected.
func (l *Ledger) lockPeriod(ctx context.Context, st *cycle.State) error {
	p := st.Period

	subs, err := l.store.ListAllocationSubscribers(ctx, p)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		mu := l.subLocks.get(subscriberKey(sub, p))
		mu.Lock()
		bal, err := l.store.GetBalanceBySubscriber(ctx, sub, p)
		if errors.Is(err, ErrBalanceNotFound) {
			mu.Unlock()
			continue
		}
		if err == nil {
			_, err = l.recomputeLocked(ctx, bal, p)
		}
		mu.Unlock()
		if err != nil {
			return err
		}
	}

	recipients, err := l.store.ListEarningRecipients(ctx, p, earnings.StatusPending)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	locked := 0
	for _, r := range recipients {
		n, err := l.store.LockEarnings(ctx, r, p, now)
		if err != nil {
			return err
		}
		if n > 0 {
			locked++
		}
	}

	st.LockedRecipients += locked
	if err := l.store.UpdateCycle(ctx, st); err != nil {
		return err
	}

	l.plugins.EmitPeriodLocked(ctx, p.String(), locked)
	return l.advanceCycle(ctx, st, cycle.PhaseCalculating)
}

// sweepPeriod recognizes each subscriber's unallocated budget as platform
// revenue and retires the balance. Already-retired balances are skipped, so
// a resumed sweep never double-counts.
func (l *Ledger) sweepPeriod(ctx context.Context, st *cycle.State) error {
	p := st.Period

	bals, err := l.store.ListBalances(ctx, p, balance.ListOpts{})
	if err != nil {
		return err
	}

	swept := types.Zero(st.SweptTotal.Currency)
	count := 0
	now := time.Now().UTC()
	for _, bal := range bals {
		// Sweep what the budget did not actually fund, read from the
		// earnings records themselves. The allocated total cannot stand in
		// for it: a cancellation zeroes Allocated while the computed
		// earnings stay payable.
		funded, err := l.store.SumEarningsBySubscriber(ctx, bal.SubscriberID, p)
		if err != nil {
			return err
		}
		unallocated := types.Money{Amount: bal.TotalBudget.Amount - funded.Amount, Currency: bal.Currency}
		if unallocated.IsNegative() {
			unallocated = types.Zero(bal.Currency)
		}

		at := now
		bal.Swept = unallocated
		bal.Retired = true
		bal.RetiredAt = &at
		if err := l.store.UpdateBalance(ctx, bal); err != nil {
			return err
		}

		if swept.IsZero() && swept.Currency != unallocated.Currency {
			swept = types.Zero(unallocated.Currency)
		}
		swept = swept.Add(unallocated)
		count++
	}

	st.SweptSubscribers += count
	if st.SweptTotal.IsZero() && st.SweptTotal.Currency != swept.Currency {
		st.SweptTotal = types.Zero(swept.Currency)
	}
	st.SweptTotal = st.SweptTotal.Add(swept)
	if err := l.store.UpdateCycle(ctx, st); err != nil {
		return err
	}

	l.plugins.EmitSweepCompleted(ctx, p.String(), count, swept.Amount)
	l.logger.Info("sweep completed",
		"period", p.String(),
		"subscribers", count,
		"swept_cents", swept.Amount,
	)
	return l.advanceCycle(ctx, st, cycle.PhaseSweeping)
}

// dispatchPayouts requests a payout for every recipient whose available
// balance meets the minimum. Transfer failures are recorded on the payout
// records; the cycle still closes once the batch is dispatched.
func (l *Ledger) dispatchPayouts(ctx context.Context, st *cycle.State) error {
	p := st.Period

	recipients, err := l.store.ListEarningRecipients(ctx, p, earnings.StatusAvailable)
	if err != nil {
		return err
	}

	requested := 0
	for _, r := range recipients {
		_, err := l.RequestPayout(ctx, r, p)
		switch {
		case err == nil:
			requested++
		case errors.Is(err, ErrBelowThreshold), errors.Is(err, ErrPayoutInFlight), errors.Is(err, ErrPayoutTerminal):
			continue
		default:
			// The failure lives on the payout record; it is not counted
			// as a settled dispatch.
			l.logger.Error("payout dispatch failed",
				"recipient", r,
				"period", p.String(),
				"error", err,
			)
		}
	}

	// Recounted from a fresh pass over the batch, not incremented, so a
	// resumed dispatch never double-counts.
	st.PayoutsRequested = requested
	if err := l.store.UpdateCycle(ctx, st); err != nil {
		return err
	}

	return l.advanceCycle(ctx, st, cycle.PhasePayoutTriggered)
}
