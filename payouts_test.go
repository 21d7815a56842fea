package patron_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/patron"
	"github.com/xraph/patron/earnings"
	"github.com/xraph/patron/payout"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/store/memory"
	"github.com/xraph/patron/transfer"
	"github.com/xraph/patron/types"
)

// lockedEarnings seeds a recipient with available earnings without driving a
// full cycle.
func lockedEarnings(t *testing.T, l *patron.Ledger, s *memory.Store, subscriberID, recipientID string, pd period.Period, cents int64) {
	t.Helper()
	ctx := context.Background()

	if _, err := l.SetBudget(ctx, subscriberID, pd, types.USD(cents)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Allocate(ctx, subscriberID, recipientID, "video_1", types.USD(cents), pd); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LockEarnings(ctx, recipientID, pd, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
}

func TestRequestPayout(t *testing.T) {
	ctx := context.Background()
	pd := period.MustParse("2026-03")

	t.Run("RetriesTimeoutUnderSameIdempotencyKey", func(t *testing.T) {
		client := newFakeTransferClient()
		client.failures = []error{
			transfer.Transient(transfer.CodeTimeout, "provider timeout", nil),
		}
		s := memory.New()
		l := patron.New(s, patron.WithTransferClient(client), fastRetry())
		lockedEarnings(t, l, s, "sub_1", "creator_a", pd, 10000)

		po, err := l.RequestPayout(ctx, "creator_a", pd)
		if err != nil {
			t.Fatal(err)
		}
		if po.Status != payout.StatusCompleted {
			t.Fatalf("status = %s, want completed", po.Status)
		}
		if po.Attempts != 2 {
			t.Fatalf("attempts = %d, want 2", po.Attempts)
		}
		if client.callCount() != 2 {
			t.Fatalf("transfer calls = %d, want 2", client.callCount())
		}
		// Both attempts presented the same key; the provider saw one payout.
		c := client.calls
		if c[0].IdempotencyKey != c[1].IdempotencyKey {
			t.Fatalf("idempotency key changed across retries: %s != %s",
				c[0].IdempotencyKey, c[1].IdempotencyKey)
		}
	})

	t.Run("TerminalFailureStopsImmediately", func(t *testing.T) {
		client := newFakeTransferClient()
		client.failures = []error{
			transfer.Terminal(transfer.CodeAccountClosed, "destination account closed", nil),
		}
		s := memory.New()
		l := patron.New(s, patron.WithTransferClient(client), fastRetry())
		lockedEarnings(t, l, s, "sub_1", "creator_a", pd, 10000)

		po, err := l.RequestPayout(ctx, "creator_a", pd)
		if err == nil {
			t.Fatal("expected transfer error")
		}
		if po == nil {
			t.Fatal("payout record not returned")
		}
		if po.Status != payout.StatusFailed || po.FailureKind != payout.FailureTerminal {
			t.Fatalf("payout = %s/%s, want failed/terminal", po.Status, po.FailureKind)
		}
		if po.Attempts != 1 {
			t.Fatalf("attempts = %d, want 1", po.Attempts)
		}

		// A terminally failed payout is never re-driven.
		if _, err := l.RequestPayout(ctx, "creator_a", pd); !errors.Is(err, patron.ErrPayoutTerminal) {
			t.Fatalf("got %v, want ErrPayoutTerminal", err)
		}
		if client.callCount() != 1 {
			t.Fatalf("transfer calls = %d, want 1", client.callCount())
		}
	})

	t.Run("CompletedPayoutReturnedUnchanged", func(t *testing.T) {
		client := newFakeTransferClient()
		s := memory.New()
		l := patron.New(s, patron.WithTransferClient(client), fastRetry())
		lockedEarnings(t, l, s, "sub_1", "creator_a", pd, 10000)

		first, err := l.RequestPayout(ctx, "creator_a", pd)
		if err != nil {
			t.Fatal(err)
		}
		calls := client.callCount()

		second, err := l.RequestPayout(ctx, "creator_a", pd)
		if err != nil {
			t.Fatal(err)
		}
		if second.ID != first.ID {
			t.Fatalf("second request produced new payout: %s != %s", second.ID, first.ID)
		}
		if client.callCount() != calls {
			t.Fatal("completed payout re-issued a transfer")
		}
	})

	t.Run("BelowThreshold", func(t *testing.T) {
		client := newFakeTransferClient()
		s := memory.New()
		l := patron.New(s, patron.WithTransferClient(client), fastRetry())
		lockedEarnings(t, l, s, "sub_1", "creator_a", pd, 2499)

		if _, err := l.RequestPayout(ctx, "creator_a", pd); !errors.Is(err, patron.ErrBelowThreshold) {
			t.Fatalf("got %v, want ErrBelowThreshold", err)
		}
	})

	t.Run("CustomThresholdAndFee", func(t *testing.T) {
		client := newFakeTransferClient()
		s := memory.New()
		l := patron.New(s,
			patron.WithTransferClient(client),
			patron.WithMinimumPayout(types.USD(100)),
			patron.WithPlatformFee(250), // 2.5%
			fastRetry(),
		)
		lockedEarnings(t, l, s, "sub_1", "creator_a", pd, 1000)

		po, err := l.RequestPayout(ctx, "creator_a", pd)
		if err != nil {
			t.Fatal(err)
		}
		if po.Fee.Amount != 25 || po.Net.Amount != 975 {
			t.Fatalf("fee/net = %d/%d, want 25/975", po.Fee.Amount, po.Net.Amount)
		}
	})

	t.Run("NoTransferClient", func(t *testing.T) {
		l := patron.New(memory.New())
		if _, err := l.RequestPayout(ctx, "creator_a", pd); !errors.Is(err, patron.ErrNoTransferClient) {
			t.Fatalf("got %v, want ErrNoTransferClient", err)
		}
	})
}

func TestStartRecoversUnsettledPayouts(t *testing.T) {
	ctx := context.Background()
	pd := period.MustParse("2026-03")

	// First run exhausts its single attempt on a transient failure, leaving
	// an unsettled payout behind.
	failing := newFakeTransferClient()
	failing.failures = []error{
		transfer.Transient(transfer.CodeUnavailable, "provider down", nil),
	}
	s := memory.New()
	l := patron.New(s,
		patron.WithTransferClient(failing),
		patron.WithPayoutRetry(1, time.Millisecond, 5*time.Millisecond),
	)
	lockedEarnings(t, l, s, "sub_1", "creator_a", pd, 10000)

	po, err := l.RequestPayout(ctx, "creator_a", pd)
	if err == nil {
		t.Fatal("expected transient failure")
	}
	if po.Status != payout.StatusFailed || po.FailureKind != payout.FailureRetryable {
		t.Fatalf("payout = %s/%s, want failed/retryable", po.Status, po.FailureKind)
	}

	// A new engine over the same store re-drives the payout on Start.
	recovering := newFakeTransferClient()
	l2 := patron.New(s, patron.WithTransferClient(recovering), fastRetry())
	if err := l2.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer l2.Stop()

	got, err := l2.Payout(ctx, po.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != payout.StatusCompleted {
		t.Fatalf("recovered payout status = %s, want completed", got.Status)
	}
	if got.ID != po.ID {
		t.Fatalf("recovery created a new payout: %s != %s", got.ID, po.ID)
	}

	sum, err := s.SumEarningsByStatus(ctx, "creator_a", pd, earnings.StatusPaidOut)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Amount != 10000 {
		t.Fatalf("paid out = %d, want 10000", sum.Amount)
	}
}

func TestCheckEscrow(t *testing.T) {
	ctx := context.Background()
	pd := period.MustParse("2026-03")

	setup := func(t *testing.T, escrowCents int64) *patron.Ledger {
		t.Helper()
		client := newFakeTransferClient()
		client.escrow = types.USD(escrowCents)
		s := memory.New()
		l := patron.New(s, patron.WithTransferClient(client), fastRetry())
		// 6000 cents of locked obligations.
		lockedEarnings(t, l, s, "sub_1", "creator_a", pd, 6000)
		return l
	}

	t.Run("FullyFunded", func(t *testing.T) {
		l := setup(t, 6000)
		report, err := l.CheckEscrow(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if report.Warning || report.Critical {
			t.Fatalf("report = %+v, want no alerts", report)
		}
		if report.GapCents != 0 {
			t.Fatalf("gap = %d, want 0", report.GapCents)
		}
	})

	t.Run("WarningShortfall", func(t *testing.T) {
		l := setup(t, 5500)
		report, err := l.CheckEscrow(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !report.Warning || report.Critical {
			t.Fatalf("report = %+v, want warning only", report)
		}
		if report.GapCents != 500 {
			t.Fatalf("gap = %d, want 500", report.GapCents)
		}
	})

	t.Run("CriticalShortfall", func(t *testing.T) {
		client := newFakeTransferClient()
		client.escrow = types.USD(0)
		s := memory.New()
		l := patron.New(s,
			patron.WithTransferClient(client),
			patron.WithMonitorConfig(time.Minute, types.USD(100), types.USD(5000)),
			fastRetry(),
		)
		lockedEarnings(t, l, s, "sub_1", "creator_a", pd, 6000)

		report, err := l.CheckEscrow(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !report.Critical {
			t.Fatalf("report = %+v, want critical", report)
		}
	})

	t.Run("NoTransferClient", func(t *testing.T) {
		l := patron.New(memory.New())
		if _, err := l.CheckEscrow(ctx); !errors.Is(err, patron.ErrNoTransferClient) {
			t.Fatalf("got %v, want ErrNoTransferClient", err)
		}
	})
}
