package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/patron"
	"github.com/xraph/patron/allocation"
	"github.com/xraph/patron/cycle"
	"github.com/xraph/patron/earnings"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/payout"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/store/memory"
	"github.com/xraph/patron/types"
)

var pd = period.MustParse("2026-03")

func TestUpsertAllocationKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	a := &allocation.Allocation{
		Entity:       types.NewEntity(),
		SubscriberID: "sub_1",
		RecipientID:  "creator_a",
		ResourceID:   "video_1",
		Period:       pd,
		Amount:       types.USD(500),
		Status:       allocation.StatusActive,
	}
	if err := s.UpsertAllocation(ctx, a); err != nil {
		t.Fatal(err)
	}
	if a.ID.IsNil() {
		t.Fatal("insert did not assign an ID")
	}

	replacement := &allocation.Allocation{
		Entity:       types.NewEntity(),
		SubscriberID: "sub_1",
		RecipientID:  "creator_a",
		ResourceID:   "video_1",
		Period:       pd,
		Amount:       types.USD(900),
		Status:       allocation.StatusActive,
	}
	if err := s.UpsertAllocation(ctx, replacement); err != nil {
		t.Fatal(err)
	}
	if replacement.ID != a.ID {
		t.Fatalf("replacement got new ID: %s != %s", replacement.ID, a.ID)
	}

	got, err := s.GetAllocation(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Amount.Amount != 900 {
		t.Fatalf("amount = %d, want 900", got.Amount.Amount)
	}

	// A different resource is a separate allocation.
	other := &allocation.Allocation{
		Entity:       types.NewEntity(),
		SubscriberID: "sub_1",
		RecipientID:  "creator_a",
		ResourceID:   "video_2",
		Period:       pd,
		Amount:       types.USD(100),
		Status:       allocation.StatusActive,
	}
	if err := s.UpsertAllocation(ctx, other); err != nil {
		t.Fatal(err)
	}
	if other.ID == a.ID {
		t.Fatal("distinct resource collapsed into the same allocation")
	}
}

func TestUpsertEarningRejectsLockedRecords(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	allocID := id.NewAllocationID()

	rec := &earnings.Record{
		Entity:       types.NewEntity(),
		RecipientID:  "creator_a",
		SubscriberID: "sub_1",
		AllocationID: allocID,
		Period:       pd,
		Allocated:    types.USD(500),
		Amount:       types.USD(500),
		Status:       earnings.StatusPending,
	}
	if err := s.UpsertEarning(ctx, rec); err != nil {
		t.Fatal(err)
	}

	if _, err := s.LockEarnings(ctx, "creator_a", pd, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	update := &earnings.Record{
		Entity:       types.NewEntity(),
		RecipientID:  "creator_a",
		SubscriberID: "sub_1",
		AllocationID: allocID,
		Period:       pd,
		Allocated:    types.USD(400),
		Amount:       types.USD(400),
		Status:       earnings.StatusPending,
	}
	if err := s.UpsertEarning(ctx, update); !errors.Is(err, patron.ErrEarningLocked) {
		t.Fatalf("got %v, want ErrEarningLocked", err)
	}
}

func TestEarningsStatusFlow(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for _, allocID := range []id.AllocationID{id.NewAllocationID(), id.NewAllocationID()} {
		rec := &earnings.Record{
			Entity:       types.NewEntity(),
			RecipientID:  "creator_a",
			SubscriberID: "sub_1",
			AllocationID: allocID,
			Period:       pd,
			Allocated:    types.USD(300),
			Amount:       types.USD(300),
			Status:       earnings.StatusPending,
		}
		if err := s.UpsertEarning(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.LockEarnings(ctx, "creator_a", pd, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("locked = %d, want 2", n)
	}

	// Locking again moves nothing.
	n, err = s.LockEarnings(ctx, "creator_a", pd, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("relock moved %d records", n)
	}

	sum, err := s.SumEarningsByStatus(ctx, "creator_a", pd, earnings.StatusAvailable)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Amount != 600 {
		t.Fatalf("available = %d, want 600", sum.Amount)
	}

	payoutID := id.NewPayoutID()
	n, err = s.MarkEarningsPaidOut(ctx, "creator_a", pd, payoutID, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("paid out = %d, want 2", n)
	}

	outstanding, err := s.SumOutstandingEarnings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if outstanding.Amount != 0 {
		t.Fatalf("outstanding = %d, want 0", outstanding.Amount)
	}
}

func TestCyclePhaseAdvance(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	st := &cycle.State{
		Entity:     types.NewEntity(),
		Period:     pd,
		Phase:      cycle.PhaseOpen,
		SweptTotal: types.Zero("usd"),
	}
	if err := s.CreateCycle(ctx, st); err != nil {
		t.Fatal(err)
	}

	// One cycle per period.
	dup := &cycle.State{Entity: types.NewEntity(), Period: pd, Phase: cycle.PhaseOpen}
	if err := s.CreateCycle(ctx, dup); !errors.Is(err, patron.ErrCycleRunning) {
		t.Fatalf("got %v, want ErrCycleRunning", err)
	}

	if err := s.AdvanceCycle(ctx, pd, cycle.PhaseOpen, cycle.PhaseLocking); err != nil {
		t.Fatal(err)
	}

	// Stale CAS loses.
	if err := s.AdvanceCycle(ctx, pd, cycle.PhaseOpen, cycle.PhaseLocking); !errors.Is(err, patron.ErrInvalidAdvance) {
		t.Fatalf("stale advance: got %v, want ErrInvalidAdvance", err)
	}

	// Phase skips are rejected.
	if err := s.AdvanceCycle(ctx, pd, cycle.PhaseLocking, cycle.PhaseClosed); !errors.Is(err, patron.ErrInvalidAdvance) {
		t.Fatalf("skip advance: got %v, want ErrInvalidAdvance", err)
	}

	if err := s.AdvanceCycle(ctx, period.MustParse("2026-04"), cycle.PhaseOpen, cycle.PhaseLocking); !errors.Is(err, patron.ErrCycleNotFound) {
		t.Fatalf("missing cycle: got %v, want ErrCycleNotFound", err)
	}
}

func TestCreatePayoutGuardsRecipientPeriod(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	po := &payout.Payout{
		Entity:      types.NewEntity(),
		RecipientID: "creator_a",
		Period:      pd,
		Amount:      types.USD(6000),
		Status:      payout.StatusPending,
	}
	if err := s.CreatePayout(ctx, po); err != nil {
		t.Fatal(err)
	}

	dup := &payout.Payout{
		Entity:      types.NewEntity(),
		RecipientID: "creator_a",
		Period:      pd,
		Amount:      types.USD(6000),
		Status:      payout.StatusPending,
	}
	if err := s.CreatePayout(ctx, dup); !errors.Is(err, patron.ErrPayoutInFlight) {
		t.Fatalf("got %v, want ErrPayoutInFlight", err)
	}

	// Another period is fine.
	next := &payout.Payout{
		Entity:      types.NewEntity(),
		RecipientID: "creator_a",
		Period:      period.MustParse("2026-04"),
		Amount:      types.USD(6000),
		Status:      payout.StatusPending,
	}
	if err := s.CreatePayout(ctx, next); err != nil {
		t.Fatal(err)
	}
}

func TestListUnsettledPayouts(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	mk := func(recipient string, status payout.Status, kind payout.FailureKind) *payout.Payout {
		po := &payout.Payout{
			Entity:      types.NewEntity(),
			RecipientID: recipient,
			Period:      pd,
			Amount:      types.USD(6000),
			Status:      status,
			FailureKind: kind,
		}
		if err := s.CreatePayout(ctx, po); err != nil {
			t.Fatal(err)
		}
		return po
	}

	mk("creator_a", payout.StatusPending, "")
	mk("creator_b", payout.StatusCompleted, "")
	mk("creator_c", payout.StatusFailed, payout.FailureRetryable)
	mk("creator_d", payout.StatusFailed, payout.FailureTerminal)

	unsettled, err := s.ListUnsettledPayouts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unsettled) != 2 {
		t.Fatalf("unsettled = %d, want 2", len(unsettled))
	}
	for _, po := range unsettled {
		if po.RecipientID != "creator_a" && po.RecipientID != "creator_c" {
			t.Fatalf("unexpected unsettled payout for %s", po.RecipientID)
		}
	}
}
