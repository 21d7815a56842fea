package patron_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/patron"
	"github.com/xraph/patron/cycle"
	"github.com/xraph/patron/earnings"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/payout"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/store/memory"
	"github.com/xraph/patron/transfer"
	"github.com/xraph/patron/types"
)

func TestRunCycle(t *testing.T) {
	ctx := context.Background()
	pd := period.MustParse("2026-03")

	t.Run("FullClose", func(t *testing.T) {
		client := newFakeTransferClient()
		l := patron.New(memory.New(), patron.WithTransferClient(client), fastRetry())

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(10000)); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(6000), pd); err != nil {
			t.Fatal(err)
		}

		st, err := l.RunCycle(ctx, pd)
		if err != nil {
			t.Fatal(err)
		}
		if st.Phase != cycle.PhaseClosed {
			t.Fatalf("phase = %s, want closed", st.Phase)
		}
		if st.LockedRecipients != 1 {
			t.Fatalf("locked recipients = %d, want 1", st.LockedRecipients)
		}
		if st.SweptTotal.Amount != 4000 {
			t.Fatalf("swept = %d, want 4000", st.SweptTotal.Amount)
		}
		if st.PayoutsRequested != 1 {
			t.Fatalf("payouts requested = %d, want 1", st.PayoutsRequested)
		}
		if st.ClosedAt == nil {
			t.Fatal("ClosedAt not set")
		}

		// 10% platform fee on the 6000 gross.
		pos, err := l.Payouts(ctx, pd, payout.ListOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if len(pos) != 1 {
			t.Fatalf("payouts = %d, want 1", len(pos))
		}
		po := pos[0]
		if po.Status != payout.StatusCompleted {
			t.Fatalf("payout status = %s, want completed", po.Status)
		}
		if po.Amount.Amount != 6000 || po.Fee.Amount != 600 || po.Net.Amount != 5400 {
			t.Fatalf("gross/fee/net = %d/%d/%d, want 6000/600/5400",
				po.Amount.Amount, po.Fee.Amount, po.Net.Amount)
		}
		if po.Reference == "" {
			t.Fatal("provider reference not recorded")
		}

		// All earnings moved to paid_out.
		recs, err := l.Earnings(ctx, "creator_a", pd, earnings.ListOpts{})
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range recs {
			if r.Status != earnings.StatusPaidOut {
				t.Fatalf("earning %s status = %s, want paid_out", r.ID, r.Status)
			}
			if r.PayoutID != po.ID {
				t.Fatalf("earning %s payout = %s, want %s", r.ID, r.PayoutID, po.ID)
			}
		}

		// The subscriber balance is retired with the unallocated remainder swept.
		bal, err := l.Balance(ctx, "sub_1", pd)
		if err != nil {
			t.Fatal(err)
		}
		if !bal.Retired {
			t.Fatal("balance not retired")
		}
		if bal.Swept.Amount != 4000 {
			t.Fatalf("balance swept = %d, want 4000", bal.Swept.Amount)
		}
	})

	t.Run("LocksPeriodAgainstWrites", func(t *testing.T) {
		client := newFakeTransferClient()
		l := patron.New(memory.New(), patron.WithTransferClient(client), fastRetry())

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(10000)); err != nil {
			t.Fatal(err)
		}
		if _, err := l.RunCycle(ctx, pd); err != nil {
			t.Fatal(err)
		}

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(5000)); !errors.Is(err, patron.ErrPeriodLocked) {
			t.Fatalf("SetBudget after close: got %v, want ErrPeriodLocked", err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(100), pd); !errors.Is(err, patron.ErrPeriodLocked) {
			t.Fatalf("Allocate after close: got %v, want ErrPeriodLocked", err)
		}

		// The next period is unaffected.
		next := period.MustParse("2026-04")
		if _, err := l.SetBudget(ctx, "sub_1", next, types.USD(5000)); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("BelowThresholdSkipsPayout", func(t *testing.T) {
		client := newFakeTransferClient()
		l := patron.New(memory.New(), patron.WithTransferClient(client), fastRetry())

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(2499)); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(2499), pd); err != nil {
			t.Fatal(err)
		}

		st, err := l.RunCycle(ctx, pd)
		if err != nil {
			t.Fatal(err)
		}
		if st.Phase != cycle.PhaseClosed {
			t.Fatalf("phase = %s, want closed", st.Phase)
		}
		if st.PayoutsRequested != 0 {
			t.Fatalf("payouts requested = %d, want 0", st.PayoutsRequested)
		}
		if client.callCount() != 0 {
			t.Fatalf("transfer calls = %d, want 0", client.callCount())
		}

		// Earnings stay available for a future threshold or policy change.
		avail, err := l.AvailableEarnings(ctx, "creator_a", pd)
		if err != nil {
			t.Fatal(err)
		}
		if avail.Amount != 2499 {
			t.Fatalf("available = %d, want 2499", avail.Amount)
		}
	})

	t.Run("RerunAfterCloseIsIdempotent", func(t *testing.T) {
		client := newFakeTransferClient()
		l := patron.New(memory.New(), patron.WithTransferClient(client), fastRetry())

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(10000)); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(6000), pd); err != nil {
			t.Fatal(err)
		}
		first, err := l.RunCycle(ctx, pd)
		if err != nil {
			t.Fatal(err)
		}

		calls := client.callCount()
		second, err := l.RunCycle(ctx, pd)
		if err != nil {
			t.Fatal(err)
		}
		if second.Phase != cycle.PhaseClosed {
			t.Fatalf("phase = %s, want closed", second.Phase)
		}
		if second.PayoutsRequested != first.PayoutsRequested {
			t.Fatalf("rerun changed payout count: %d != %d", second.PayoutsRequested, first.PayoutsRequested)
		}
		if client.callCount() != calls {
			t.Fatalf("rerun issued %d extra transfers", client.callCount()-calls)
		}
	})

	t.Run("ResumesPartiallyLockedPeriod", func(t *testing.T) {
		client := newFakeTransferClient()
		s := memory.New()
		l := patron.New(s, patron.WithTransferClient(client), fastRetry())

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(10000)); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(6000), pd); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_b", "video_2", types.USD(4000), pd); err != nil {
			t.Fatal(err)
		}

		// A previous run crashed mid-lock: one recipient is already
		// available, the other still pending.
		now := time.Now().UTC()
		st := &cycle.State{
			Entity:     types.NewEntity(),
			ID:         id.NewCycleID(),
			Period:     pd,
			Phase:      cycle.PhaseLocking,
			SweptTotal: types.Zero("usd"),
			StartedAt:  &now,
		}
		if err := s.CreateCycle(ctx, st); err != nil {
			t.Fatal(err)
		}
		if _, err := s.LockEarnings(ctx, "creator_a", pd, now); err != nil {
			t.Fatal(err)
		}

		resumed, err := l.RunCycle(ctx, pd)
		if err != nil {
			t.Fatal(err)
		}
		if resumed.Phase != cycle.PhaseClosed {
			t.Fatalf("phase = %s, want closed", resumed.Phase)
		}

		pos, err := l.Payouts(ctx, pd, payout.ListOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if len(pos) != 2 {
			t.Fatalf("payouts = %d, want 2", len(pos))
		}
		for _, po := range pos {
			if po.Status != payout.StatusCompleted {
				t.Fatalf("payout %s status = %s, want completed", po.RecipientID, po.Status)
			}
		}
		if resumed.SweptTotal.Amount != 0 {
			t.Fatalf("swept = %d, want 0", resumed.SweptTotal.Amount)
		}
	})

	t.Run("SweepAfterCancelKeepsFundedEarnings", func(t *testing.T) {
		client := newFakeTransferClient()
		l := patron.New(memory.New(), patron.WithTransferClient(client), fastRetry())

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(1000)); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(600), pd); err != nil {
			t.Fatal(err)
		}
		if err := l.CancelSubscription(ctx, "sub_1", pd); err != nil {
			t.Fatal(err)
		}

		st, err := l.RunCycle(ctx, pd)
		if err != nil {
			t.Fatal(err)
		}
		if st.Phase != cycle.PhaseClosed {
			t.Fatalf("phase = %s, want closed", st.Phase)
		}

		// The 600 stays payable to the creator; only the genuinely unfunded
		// 400 is swept. Budget minus the zeroed allocated total would sweep
		// the full 1000 and pay out 1600 from a 1000 budget.
		if st.SweptTotal.Amount != 400 {
			t.Fatalf("swept = %d, want 400", st.SweptTotal.Amount)
		}
		avail, err := l.AvailableEarnings(ctx, "creator_a", pd)
		if err != nil {
			t.Fatal(err)
		}
		if avail.Amount != 600 {
			t.Fatalf("available = %d, want 600", avail.Amount)
		}
		bal, err := l.Balance(ctx, "sub_1", pd)
		if err != nil {
			t.Fatal(err)
		}
		if !bal.Retired || bal.Swept.Amount != 400 {
			t.Fatalf("balance retired=%v swept=%d, want true/400", bal.Retired, bal.Swept.Amount)
		}
	})

	t.Run("SweepCarriesBudgetCurrency", func(t *testing.T) {
		client := newFakeTransferClient()
		l := patron.New(memory.New(), patron.WithTransferClient(client), fastRetry())

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.EUR(10000)); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.EUR(6000), pd); err != nil {
			t.Fatal(err)
		}

		st, err := l.RunCycle(ctx, pd)
		if err != nil {
			t.Fatal(err)
		}
		if !st.SweptTotal.Equal(types.EUR(4000)) {
			t.Fatalf("swept = %s, want €40.00", st.SweptTotal)
		}
	})

	t.Run("ResumesFromPersistedPhase", func(t *testing.T) {
		client := newFakeTransferClient()
		s := memory.New()
		l := patron.New(s, patron.WithTransferClient(client), fastRetry())

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(10000)); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(6000), pd); err != nil {
			t.Fatal(err)
		}

		// A previous run checkpointed after locking; earnings are already
		// available.
		now := time.Now().UTC()
		st := &cycle.State{
			Entity:     types.NewEntity(),
			ID:         id.NewCycleID(),
			Period:     pd,
			Phase:      cycle.PhaseCalculating,
			SweptTotal: types.Zero("usd"),
			StartedAt:  &now,
		}
		if err := s.CreateCycle(ctx, st); err != nil {
			t.Fatal(err)
		}
		if _, err := s.LockEarnings(ctx, "creator_a", pd, now); err != nil {
			t.Fatal(err)
		}

		resumed, err := l.RunCycle(ctx, pd)
		if err != nil {
			t.Fatal(err)
		}
		if resumed.Phase != cycle.PhaseClosed {
			t.Fatalf("phase = %s, want closed", resumed.Phase)
		}
		if resumed.PayoutsRequested != 1 {
			t.Fatalf("payouts requested = %d, want 1", resumed.PayoutsRequested)
		}
	})

	t.Run("RejectsInvalidPeriod", func(t *testing.T) {
		l := patron.New(memory.New())

		var verr patron.ValidationError
		if _, err := l.RunCycle(ctx, period.Period("2026-3")); !errors.As(err, &verr) {
			t.Fatalf("got %v, want ValidationError", err)
		}
	})
}

func TestCycleTerminalFailureStillCloses(t *testing.T) {
	ctx := context.Background()
	pd := period.MustParse("2026-03")

	client := newFakeTransferClient()
	client.failures = []error{
		transfer.Terminal(transfer.CodeAccountClosed, "destination account closed", nil),
	}
	l := patron.New(memory.New(), patron.WithTransferClient(client), fastRetry())

	if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(10000)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(6000), pd); err != nil {
		t.Fatal(err)
	}

	st, err := l.RunCycle(ctx, pd)
	if err != nil {
		t.Fatal(err)
	}
	if st.Phase != cycle.PhaseClosed {
		t.Fatalf("phase = %s, want closed", st.Phase)
	}

	// The failure lives on the payout record, not the cycle.
	pos, err := l.Payouts(ctx, pd, payout.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(pos) != 1 {
		t.Fatalf("payouts = %d, want 1", len(pos))
	}
	if pos[0].Status != payout.StatusFailed || pos[0].FailureKind != payout.FailureTerminal {
		t.Fatalf("payout = %s/%s, want failed/terminal", pos[0].Status, pos[0].FailureKind)
	}

	// A failed dispatch is visible on its record, not in the settled count.
	if st.PayoutsRequested != 0 {
		t.Fatalf("payouts requested = %d, want 0", st.PayoutsRequested)
	}
}
