package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/patron"
	"github.com/xraph/patron/allocation"
	"github.com/xraph/patron/balance"
	"github.com/xraph/patron/cycle"
	"github.com/xraph/patron/earnings"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/payout"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/types"
)

type Store struct {
	mu sync.RWMutex

	// Balance storage
	balances map[string]*balance.SubscriberBalance

	// Allocation storage
	allocations map[string]*allocation.Allocation

	// Earnings storage
	earnings map[string]*earnings.Record

	// Cycle storage, keyed by period
	cycles map[string]*cycle.State

	// Payout storage
	payouts map[string]*payout.Payout
}

func New() *Store {
	return &Store{
		balances:    make(map[string]*balance.SubscriberBalance),
		allocations: make(map[string]*allocation.Allocation),
		earnings:    make(map[string]*earnings.Record),
		cycles:      make(map[string]*cycle.State),
		payouts:     make(map[string]*payout.Payout),
	}
}

// Balance Store implementation

func (s *Store) CreateBalance(_ context.Context, b *balance.SubscriberBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID.IsNil() {
		b.ID = id.NewBalanceID()
	}
	s.balances[b.ID.String()] = b
	return nil
}

func (s *Store) GetBalance(_ context.Context, balID id.BalanceID) (*balance.SubscriberBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.balances[balID.String()]; ok {
		return b, nil
	}
	return nil, patron.ErrBalanceNotFound
}

func (s *Store) GetBalanceBySubscriber(_ context.Context, subscriberID string, p period.Period) (*balance.SubscriberBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.balances {
		if b.SubscriberID == subscriberID && b.Period == p {
			return b, nil
		}
	}
	return nil, patron.ErrBalanceNotFound
}

func (s *Store) UpdateBalance(_ context.Context, b *balance.SubscriberBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.balances[b.ID.String()]; !exists {
		return patron.ErrBalanceNotFound
	}
	b.Touch()
	s.balances[b.ID.String()] = b
	return nil
}

func (s *Store) ListBalances(_ context.Context, p period.Period, opts balance.ListOpts) ([]*balance.SubscriberBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*balance.SubscriberBalance, 0)
	for _, b := range s.balances {
		if b.Period != p {
			continue
		}
		if b.Retired && !opts.IncludeRetired {
			continue
		}
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Allocation Store implementation

func (s *Store) UpsertAllocation(_ context.Context, a *allocation.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.allocations {
		if existing.SubscriberID == a.SubscriberID &&
			existing.RecipientID == a.RecipientID &&
			existing.ResourceID == a.ResourceID &&
			existing.Period == a.Period {
			// Replace in place, keeping the original ID.
			a.ID = existing.ID
			a.CreatedAt = existing.CreatedAt
			a.Touch()
			s.allocations[a.ID.String()] = a
			return nil
		}
	}

	if a.ID.IsNil() {
		a.ID = id.NewAllocationID()
	}
	s.allocations[a.ID.String()] = a
	return nil
}

func (s *Store) GetAllocation(_ context.Context, allocID id.AllocationID) (*allocation.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.allocations[allocID.String()]; ok {
		return a, nil
	}
	return nil, patron.ErrAllocationNotFound
}

func (s *Store) GetAllocationByKey(_ context.Context, subscriberID, recipientID, resourceID string, p period.Period) (*allocation.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.allocations {
		if a.SubscriberID == subscriberID && a.RecipientID == recipientID &&
			a.ResourceID == resourceID && a.Period == p {
			return a, nil
		}
	}
	return nil, patron.ErrAllocationNotFound
}

func (s *Store) ListAllocationsBySubscriber(_ context.Context, subscriberID string, p period.Period, opts allocation.ListOpts) ([]*allocation.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*allocation.Allocation, 0)
	for _, a := range s.allocations {
		if a.SubscriberID == subscriberID && a.Period == p {
			if opts.Status == "" || a.Status == opts.Status {
				result = append(result, a)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListAllocationsByRecipient(_ context.Context, recipientID string, p period.Period, opts allocation.ListOpts) ([]*allocation.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*allocation.Allocation, 0)
	for _, a := range s.allocations {
		if a.RecipientID == recipientID && a.Period == p {
			if opts.Status == "" || a.Status == opts.Status {
				result = append(result, a)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListAllocationSubscribers(_ context.Context, p period.Period) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, a := range s.allocations {
		if a.Period == p && a.Status == allocation.StatusActive {
			seen[a.SubscriberID] = struct{}{}
		}
	}

	result := make([]string, 0, len(seen))
	for sub := range seen {
		result = append(result, sub)
	}
	sort.Strings(result)
	return result, nil
}

func (s *Store) UpdateAllocation(_ context.Context, a *allocation.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.allocations[a.ID.String()]; !exists {
		return patron.ErrAllocationNotFound
	}
	a.Touch()
	s.allocations[a.ID.String()] = a
	return nil
}

// Earnings Store implementation

func (s *Store) UpsertEarning(_ context.Context, r *earnings.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.earnings {
		if existing.RecipientID == r.RecipientID &&
			existing.Period == r.Period &&
			existing.AllocationID.String() == r.AllocationID.String() {
			if existing.Status != earnings.StatusPending {
				return patron.ErrEarningLocked
			}
			r.ID = existing.ID
			r.CreatedAt = existing.CreatedAt
			r.Status = earnings.StatusPending
			r.Touch()
			s.earnings[r.ID.String()] = r
			return nil
		}
	}

	if r.ID.IsNil() {
		r.ID = id.NewEarningID()
	}
	r.Status = earnings.StatusPending
	s.earnings[r.ID.String()] = r
	return nil
}

func (s *Store) GetEarning(_ context.Context, earnID id.EarningID) (*earnings.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.earnings[earnID.String()]; ok {
		return r, nil
	}
	return nil, patron.ErrEarningNotFound
}

func (s *Store) DeletePendingEarning(_ context.Context, allocID id.AllocationID, p period.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, r := range s.earnings {
		if r.AllocationID.String() == allocID.String() && r.Period == p && r.Status == earnings.StatusPending {
			delete(s.earnings, key)
			return nil
		}
	}
	return nil
}

func (s *Store) ListEarningsByRecipient(_ context.Context, recipientID string, p period.Period, opts earnings.ListOpts) ([]*earnings.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*earnings.Record, 0)
	for _, r := range s.earnings {
		if r.RecipientID == recipientID && r.Period == p {
			if opts.Status == "" || r.Status == opts.Status {
				result = append(result, r)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListEarningRecipients(_ context.Context, p period.Period, status earnings.Status) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, r := range s.earnings {
		if r.Period == p && (status == "" || r.Status == status) {
			seen[r.RecipientID] = struct{}{}
		}
	}

	result := make([]string, 0, len(seen))
	for rec := range seen {
		result = append(result, rec)
	}
	sort.Strings(result)
	return result, nil
}

func (s *Store) LockEarnings(_ context.Context, recipientID string, p period.Period, lockedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := 0
	for _, r := range s.earnings {
		if r.RecipientID == recipientID && r.Period == p && r.Status.CanTransitionTo(earnings.StatusAvailable) {
			at := lockedAt
			r.Status = earnings.StatusAvailable
			r.LockedAt = &at
			r.Touch()
			moved++
		}
	}
	return moved, nil
}

func (s *Store) MarkEarningsPaidOut(_ context.Context, recipientID string, p period.Period, payoutID id.PayoutID, paidAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := 0
	for _, r := range s.earnings {
		if r.RecipientID == recipientID && r.Period == p && r.Status.CanTransitionTo(earnings.StatusPaidOut) {
			at := paidAt
			r.Status = earnings.StatusPaidOut
			r.PayoutID = payoutID
			r.PaidOutAt = &at
			r.Touch()
			moved++
		}
	}
	return moved, nil
}

func (s *Store) SumEarningsByStatus(_ context.Context, recipientID string, p period.Period, status earnings.Status) (types.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := types.Zero("usd")
	for _, r := range s.earnings {
		if r.RecipientID == recipientID && r.Period == p && r.Status == status {
			if total.IsZero() && total.Currency != r.Amount.Currency {
				total = types.Zero(r.Amount.Currency)
			}
			total = total.Add(r.Amount)
		}
	}
	return total, nil
}

func (s *Store) SumEarningsBySubscriber(_ context.Context, subscriberID string, p period.Period) (types.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := types.Zero("usd")
	for _, r := range s.earnings {
		if r.SubscriberID == subscriberID && r.Period == p {
			if total.IsZero() && total.Currency != r.Amount.Currency {
				total = types.Zero(r.Amount.Currency)
			}
			total = total.Add(r.Amount)
		}
	}
	return total, nil
}

func (s *Store) SumOutstandingEarnings(_ context.Context) (types.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := types.Zero("usd")
	for _, r := range s.earnings {
		if r.Status == earnings.StatusAvailable {
			if total.IsZero() && total.Currency != r.Amount.Currency {
				total = types.Zero(r.Amount.Currency)
			}
			total = total.Add(r.Amount)
		}
	}
	return total, nil
}

// Cycle Store implementation

func (s *Store) CreateCycle(_ context.Context, st *cycle.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cycles[st.Period.String()]; exists {
		return patron.ErrCycleRunning
	}
	if st.ID.IsNil() {
		st.ID = id.NewCycleID()
	}
	s.cycles[st.Period.String()] = st
	return nil
}

func (s *Store) GetCycle(_ context.Context, p period.Period) (*cycle.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.cycles[p.String()]; ok {
		return st, nil
	}
	return nil, patron.ErrCycleNotFound
}

func (s *Store) AdvanceCycle(_ context.Context, p period.Period, from, to cycle.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.cycles[p.String()]
	if !ok {
		return patron.ErrCycleNotFound
	}
	if st.Phase != from || !from.CanAdvanceTo(to) {
		return patron.ErrInvalidAdvance
	}
	st.Phase = to
	st.Touch()
	return nil
}

func (s *Store) UpdateCycle(_ context.Context, st *cycle.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cycles[st.Period.String()]; !exists {
		return patron.ErrCycleNotFound
	}
	st.Touch()
	s.cycles[st.Period.String()] = st
	return nil
}

func (s *Store) ListCycles(_ context.Context, opts cycle.ListOpts) ([]*cycle.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*cycle.State, 0)
	for _, st := range s.cycles {
		if opts.Phase == "" || st.Phase == opts.Phase {
			result = append(result, st)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Period < result[j].Period })

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Payout Store implementation

func (s *Store) CreatePayout(_ context.Context, p *payout.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.payouts {
		if existing.RecipientID == p.RecipientID && existing.Period == p.Period {
			return patron.ErrPayoutInFlight
		}
	}
	if p.ID.IsNil() {
		p.ID = id.NewPayoutID()
	}
	s.payouts[p.ID.String()] = p
	return nil
}

func (s *Store) GetPayout(_ context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.payouts[payoutID.String()]; ok {
		return p, nil
	}
	return nil, patron.ErrPayoutNotFound
}

func (s *Store) GetPayoutByRecipientPeriod(_ context.Context, recipientID string, pd period.Period) (*payout.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payouts {
		if p.RecipientID == recipientID && p.Period == pd {
			return p, nil
		}
	}
	return nil, patron.ErrPayoutNotFound
}

func (s *Store) UpdatePayout(_ context.Context, p *payout.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payouts[p.ID.String()]; !exists {
		return patron.ErrPayoutNotFound
	}
	p.Touch()
	s.payouts[p.ID.String()] = p
	return nil
}

func (s *Store) ListUnsettledPayouts(_ context.Context) ([]*payout.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payout.Payout, 0)
	for _, p := range s.payouts {
		if p.Status.Settled() {
			continue
		}
		if p.Status == payout.StatusFailed && p.FailureKind == payout.FailureTerminal {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListPayouts(_ context.Context, pd period.Period, opts payout.ListOpts) ([]*payout.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payout.Payout, 0)
	for _, p := range s.payouts {
		if p.Period == pd {
			if opts.Status == "" || p.Status == opts.Status {
				result = append(result, p)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
