package patron_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/patron"
	"github.com/xraph/patron/allocation"
	"github.com/xraph/patron/cycle"
	"github.com/xraph/patron/earnings"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/store/memory"
	"github.com/xraph/patron/transfer"
	"github.com/xraph/patron/types"
)

// fakeTransferClient deduplicates on idempotency key like a real provider.
// Queued failures are consumed one per transfer attempt before success.
type fakeTransferClient struct {
	mu       sync.Mutex
	calls    []transfer.Request
	results  map[string]*transfer.Result
	failures []error
	escrow   types.Money
}

func newFakeTransferClient() *fakeTransferClient {
	return &fakeTransferClient{
		results: make(map[string]*transfer.Result),
		escrow:  types.USD(1_000_000),
	}
}

func (c *fakeTransferClient) Transfer(_ context.Context, req transfer.Request) (*transfer.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, req)

	if res, ok := c.results[req.IdempotencyKey]; ok {
		return res, nil
	}
	if len(c.failures) > 0 {
		err := c.failures[0]
		c.failures = c.failures[1:]
		return nil, err
	}

	res := &transfer.Result{Reference: fmt.Sprintf("tr_%03d", len(c.results)+1)}
	c.results[req.IdempotencyKey] = res
	return res, nil
}

func (c *fakeTransferClient) EscrowBalance(_ context.Context) (types.Money, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.escrow, nil
}

func (c *fakeTransferClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func fastRetry() patron.Option {
	return patron.WithPayoutRetry(3, time.Millisecond, 5*time.Millisecond)
}

func TestSetBudget(t *testing.T) {
	ctx := context.Background()
	pd := period.MustParse("2026-03")

	t.Run("CreatesBalanceOnFirstUse", func(t *testing.T) {
		l := patron.New(memory.New())

		bal, err := l.SetBudget(ctx, "sub_1", pd, types.USD(1000))
		if err != nil {
			t.Fatal(err)
		}
		if !bal.TotalBudget.Equal(types.USD(1000)) {
			t.Fatalf("budget = %v, want 1000", bal.TotalBudget.Amount)
		}
		if !bal.Allocated.IsZero() {
			t.Fatalf("allocated = %v, want 0", bal.Allocated.Amount)
		}
	})

	t.Run("UpdatesExistingBalance", func(t *testing.T) {
		l := patron.New(memory.New())

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(1000)); err != nil {
			t.Fatal(err)
		}
		bal, err := l.SetBudget(ctx, "sub_1", pd, types.USD(2500))
		if err != nil {
			t.Fatal(err)
		}
		if bal.TotalBudget.Amount != 2500 {
			t.Fatalf("budget = %d, want 2500", bal.TotalBudget.Amount)
		}
	})

	t.Run("RejectsInvalidInput", func(t *testing.T) {
		l := patron.New(memory.New())

		var verr patron.ValidationError
		if _, err := l.SetBudget(ctx, "", pd, types.USD(1000)); !errors.As(err, &verr) {
			t.Fatalf("empty subscriber: got %v, want ValidationError", err)
		}
		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(-5)); !errors.As(err, &verr) {
			t.Fatalf("negative budget: got %v, want ValidationError", err)
		}
		if _, err := l.SetBudget(ctx, "sub_1", period.Period("march"), types.USD(1000)); !errors.As(err, &verr) {
			t.Fatalf("bad period: got %v, want ValidationError", err)
		}
	})
}

func TestAllocate(t *testing.T) {
	ctx := context.Background()
	pd := period.MustParse("2026-03")

	t.Run("FullyFundedAllocation", func(t *testing.T) {
		l := patron.New(memory.New())

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(1000)); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(600), pd); err != nil {
			t.Fatal(err)
		}

		pending, err := l.PendingEarnings(ctx, "creator_a", pd)
		if err != nil {
			t.Fatal(err)
		}
		if pending.Amount != 600 {
			t.Fatalf("pending = %d, want 600", pending.Amount)
		}

		bal, err := l.Balance(ctx, "sub_1", pd)
		if err != nil {
			t.Fatal(err)
		}
		if bal.Allocated.Amount != 600 {
			t.Fatalf("allocated = %d, want 600", bal.Allocated.Amount)
		}
	})

	t.Run("OverallocationScalesProRata", func(t *testing.T) {
		l := patron.New(memory.New())

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(1000)); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(1000), pd); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_b", "video_2", types.USD(1000), pd); err != nil {
			t.Fatal(err)
		}

		a, err := l.PendingEarnings(ctx, "creator_a", pd)
		if err != nil {
			t.Fatal(err)
		}
		b, err := l.PendingEarnings(ctx, "creator_b", pd)
		if err != nil {
			t.Fatal(err)
		}
		if a.Amount != 500 || b.Amount != 500 {
			t.Fatalf("pending = %d/%d, want 500/500", a.Amount, b.Amount)
		}
	})

	t.Run("ResidualCentsNeverExceedBudget", func(t *testing.T) {
		l := patron.New(memory.New())

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(100)); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(150), pd); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Allocate(ctx, "sub_1", "creator_b", "video_2", types.USD(151), pd); err != nil {
			t.Fatal(err)
		}

		a, err := l.PendingEarnings(ctx, "creator_a", pd)
		if err != nil {
			t.Fatal(err)
		}
		b, err := l.PendingEarnings(ctx, "creator_b", pd)
		if err != nil {
			t.Fatal(err)
		}
		// Flooring residue is reassigned, so the funded total lands exactly
		// on the budget.
		if a.Amount+b.Amount != 100 {
			t.Fatalf("funded total = %d, want 100", a.Amount+b.Amount)
		}
	})

	t.Run("ReplacesExistingAllocation", func(t *testing.T) {
		l := patron.New(memory.New())

		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(1000)); err != nil {
			t.Fatal(err)
		}
		first, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(600), pd)
		if err != nil {
			t.Fatal(err)
		}
		second, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(300), pd)
		if err != nil {
			t.Fatal(err)
		}
		if first.ID != second.ID {
			t.Fatalf("replacement changed allocation ID: %s != %s", first.ID, second.ID)
		}

		pending, err := l.PendingEarnings(ctx, "creator_a", pd)
		if err != nil {
			t.Fatal(err)
		}
		if pending.Amount != 300 {
			t.Fatalf("pending = %d, want 300", pending.Amount)
		}
	})

	t.Run("ZeroBudgetFundsNothing", func(t *testing.T) {
		l := patron.New(memory.New())

		// First allocation creates the balance with a zero budget.
		if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(500), pd); err != nil {
			t.Fatal(err)
		}

		pending, err := l.PendingEarnings(ctx, "creator_a", pd)
		if err != nil {
			t.Fatal(err)
		}
		if pending.Amount != 0 {
			t.Fatalf("pending = %d, want 0", pending.Amount)
		}

		// Funding arrives once the budget is set.
		if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(1000)); err != nil {
			t.Fatal(err)
		}
		pending, err = l.PendingEarnings(ctx, "creator_a", pd)
		if err != nil {
			t.Fatal(err)
		}
		if pending.Amount != 500 {
			t.Fatalf("pending = %d, want 500", pending.Amount)
		}
	})
}

func TestRemoveAllocation(t *testing.T) {
	ctx := context.Background()
	pd := period.MustParse("2026-03")
	l := patron.New(memory.New())

	if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(1000)); err != nil {
		t.Fatal(err)
	}
	a, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(600), pd)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Allocate(ctx, "sub_1", "creator_b", "video_2", types.USD(600), pd); err != nil {
		t.Fatal(err)
	}

	if err := l.RemoveAllocation(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	// The removed recipient loses the pending record entirely.
	pending, err := l.PendingEarnings(ctx, "creator_a", pd)
	if err != nil {
		t.Fatal(err)
	}
	if pending.Amount != 0 {
		t.Fatalf("removed recipient pending = %d, want 0", pending.Amount)
	}

	// The survivor is re-apportioned against the freed budget.
	pending, err = l.PendingEarnings(ctx, "creator_b", pd)
	if err != nil {
		t.Fatal(err)
	}
	if pending.Amount != 600 {
		t.Fatalf("remaining recipient pending = %d, want 600", pending.Amount)
	}

	bal, err := l.Balance(ctx, "sub_1", pd)
	if err != nil {
		t.Fatal(err)
	}
	if bal.Allocated.Amount != 600 {
		t.Fatalf("allocated = %d, want 600", bal.Allocated.Amount)
	}

	// Removing twice is a no-op.
	if err := l.RemoveAllocation(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
}

func TestCancelSubscription(t *testing.T) {
	ctx := context.Background()
	pd := period.MustParse("2026-03")
	l := patron.New(memory.New())

	if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(1000)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(400), pd); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Allocate(ctx, "sub_1", "creator_b", "video_2", types.USD(300), pd); err != nil {
		t.Fatal(err)
	}

	if err := l.CancelSubscription(ctx, "sub_1", pd); err != nil {
		t.Fatal(err)
	}

	active, err := l.Allocations(ctx, "sub_1", pd, allocation.ListOpts{Status: allocation.StatusActive})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Fatalf("active allocations = %d, want 0", len(active))
	}

	bal, err := l.Balance(ctx, "sub_1", pd)
	if err != nil {
		t.Fatal(err)
	}
	if bal.Allocated.Amount != 0 {
		t.Fatalf("allocated = %d, want 0", bal.Allocated.Amount)
	}
}

func TestEarningsListing(t *testing.T) {
	ctx := context.Background()
	pd := period.MustParse("2026-03")
	l := patron.New(memory.New())

	if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(1000)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(600), pd); err != nil {
		t.Fatal(err)
	}

	recs, err := l.Earnings(ctx, "creator_a", pd, earnings.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].Status != earnings.StatusPending {
		t.Fatalf("status = %s, want pending", recs[0].Status)
	}
	if recs[0].Amount.Amount != 600 {
		t.Fatalf("funded = %d, want 600", recs[0].Amount.Amount)
	}
	if recs[0].Ratio != 1.0 {
		t.Fatalf("ratio = %v, want 1.0", recs[0].Ratio)
	}
}

func TestConcurrentAllocations(t *testing.T) {
	ctx := context.Background()
	pd := period.MustParse("2026-03")
	s := memory.New()
	l := patron.New(s)

	subs := []string{"sub_1", "sub_2"}
	for _, sub := range subs {
		if _, err := l.SetBudget(ctx, sub, pd, types.USD(10000)); err != nil {
			t.Fatal(err)
		}
	}

	const workers = 4
	const rounds = 25
	var wg sync.WaitGroup
	for _, sub := range subs {
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(sub string, w int) {
				defer wg.Done()
				recipient := fmt.Sprintf("creator_%d", w)
				for i := 0; i < rounds; i++ {
					alloc, err := l.Allocate(ctx, sub, recipient, fmt.Sprintf("video_%d", i%3), types.USD(700), pd)
					if err != nil {
						t.Error(err)
						return
					}
					if i%5 == 4 {
						if err := l.RemoveAllocation(ctx, alloc.ID); err != nil {
							t.Error(err)
							return
						}
					}
				}
			}(sub, w)
		}
	}
	wg.Wait()

	for _, sub := range subs {
		bal, err := l.Balance(ctx, sub, pd)
		if err != nil {
			t.Fatal(err)
		}
		allocs, err := l.Allocations(ctx, sub, pd, allocation.ListOpts{Status: allocation.StatusActive})
		if err != nil {
			t.Fatal(err)
		}
		var active int64
		for _, a := range allocs {
			active += a.Amount.Amount
		}
		if bal.Allocated.Amount != active {
			t.Fatalf("%s: allocated = %d, want %d (sum of active allocations)", sub, bal.Allocated.Amount, active)
		}

		funded, err := s.SumEarningsBySubscriber(ctx, sub, pd)
		if err != nil {
			t.Fatal(err)
		}
		want := active
		if want > bal.TotalBudget.Amount {
			want = bal.TotalBudget.Amount
		}
		if funded.Amount != want {
			t.Fatalf("%s: funded = %d, want %d", sub, funded.Amount, want)
		}
		if funded.Amount > bal.TotalBudget.Amount {
			t.Fatalf("%s: funded %d exceeds budget %d", sub, funded.Amount, bal.TotalBudget.Amount)
		}
	}
}

func TestCloseRacingWritersLeavesNoPendingEarnings(t *testing.T) {
	ctx := context.Background()
	pd := period.MustParse("2026-03")
	client := newFakeTransferClient()
	l := patron.New(memory.New(), patron.WithTransferClient(client), fastRetry())

	if _, err := l.SetBudget(ctx, "sub_1", pd, types.USD(10000)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Allocate(ctx, "sub_1", "creator_a", "video_1", types.USD(3000), pd); err != nil {
		t.Fatal(err)
	}

	const writers = 4
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			recipient := fmt.Sprintf("creator_%d", w)
			for {
				_, err := l.Allocate(ctx, "sub_1", recipient, "video_1", types.USD(500), pd)
				if errors.Is(err, patron.ErrPeriodLocked) || errors.Is(err, patron.ErrBalanceRetired) {
					return
				}
				if err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}

	st, err := l.RunCycle(ctx, pd)
	if err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	if st.Phase != cycle.PhaseClosed {
		t.Fatalf("phase = %s, want closed", st.Phase)
	}

	// A write that landed before the lock was carried through the close with
	// everything else; one that arrived after was rejected. Either way no
	// computed earnings row for the period is left behind in pending.
	recipients := []string{"creator_a"}
	for w := 0; w < writers; w++ {
		recipients = append(recipients, fmt.Sprintf("creator_%d", w))
	}
	for _, r := range recipients {
		recs, err := l.Earnings(ctx, r, pd, earnings.ListOpts{Status: earnings.StatusPending})
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 0 {
			t.Fatalf("%s: %d pending earnings after close, want 0", r, len(recs))
		}
	}
}
