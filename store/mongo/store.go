package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	patron "github.com/xraph/patron"
	"github.com/xraph/patron/allocation"
	"github.com/xraph/patron/balance"
	"github.com/xraph/patron/cycle"
	"github.com/xraph/patron/earnings"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/payout"
	"github.com/xraph/patron/period"
	patronstore "github.com/xraph/patron/store"
	"github.com/xraph/patron/types"
)

// Collection name constants.
const (
	colBalances    = "patron_balances"
	colAllocations = "patron_allocations"
	colEarnings    = "patron_earnings"
	colCycles      = "patron_cycles"
	colPayouts     = "patron_payouts"
)

// compile-time interface check
var _ patronstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all patron collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("patron/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Balance Store ====================

func (s *Store) CreateBalance(ctx context.Context, b *balance.SubscriberBalance) error {
	if b.ID.IsNil() {
		b.ID = id.NewBalanceID()
	}
	m := toBalanceModel(b)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
		m.UpdatedAt = m.CreatedAt
	}
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("patron/mongo: create balance: %w", err)
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, balID id.BalanceID) (*balance.SubscriberBalance, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": balID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, patron.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("patron/mongo: get balance: %w", err)
	}
	return fromBalanceModel(&m)
}

func (s *Store) GetBalanceBySubscriber(ctx context.Context, subscriberID string, p period.Period) (*balance.SubscriberBalance, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"subscriber_id": subscriberID, "period": p.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, patron.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("patron/mongo: get balance by subscriber: %w", err)
	}
	return fromBalanceModel(&m)
}

func (s *Store) UpdateBalance(ctx context.Context, b *balance.SubscriberBalance) error {
	m := toBalanceModel(b)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("patron/mongo: update balance: %w", err)
	}
	if res.MatchedCount() == 0 {
		return patron.ErrBalanceNotFound
	}
	return nil
}

func (s *Store) ListBalances(ctx context.Context, p period.Period, opts balance.ListOpts) ([]*balance.SubscriberBalance, error) {
	var models []balanceModel

	filter := bson.M{"period": p.String()}
	if !opts.IncludeRetired {
		filter["retired"] = false
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("patron/mongo: list balances: %w", err)
	}

	result := make([]*balance.SubscriberBalance, len(models))
	for i := range models {
		b, err := fromBalanceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = b
	}
	return result, nil
}

// ==================== Allocation Store ====================

func (s *Store) UpsertAllocation(ctx context.Context, a *allocation.Allocation) error {
	var existing allocationModel
	err := s.mdb.NewFind(&existing).
		Filter(bson.M{
			"subscriber_id": a.SubscriberID,
			"recipient_id":  a.RecipientID,
			"resource_id":   a.ResourceID,
			"period":        a.Period.String(),
		}).
		Scan(ctx)
	switch {
	case err == nil:
		// Replace in place, keeping the original ID.
		allocID, parseErr := id.ParseAllocationID(existing.ID)
		if parseErr != nil {
			return parseErr
		}
		a.ID = allocID
		a.CreatedAt = existing.CreatedAt
		m := toAllocationModel(a)
		m.UpdatedAt = now()
		if _, err = s.mdb.NewUpdate(m).Filter(bson.M{"_id": m.ID}).Exec(ctx); err != nil {
			return fmt.Errorf("patron/mongo: upsert allocation: %w", err)
		}
		return nil
	case isNoDocuments(err):
		if a.ID.IsNil() {
			a.ID = id.NewAllocationID()
		}
		m := toAllocationModel(a)
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now()
			m.UpdatedAt = m.CreatedAt
		}
		if _, err = s.mdb.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("patron/mongo: upsert allocation: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("patron/mongo: upsert allocation: %w", err)
	}
}

func (s *Store) GetAllocation(ctx context.Context, allocID id.AllocationID) (*allocation.Allocation, error) {
	var m allocationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": allocID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, patron.ErrAllocationNotFound
		}
		return nil, fmt.Errorf("patron/mongo: get allocation: %w", err)
	}
	return fromAllocationModel(&m)
}

func (s *Store) GetAllocationByKey(ctx context.Context, subscriberID, recipientID, resourceID string, p period.Period) (*allocation.Allocation, error) {
	var m allocationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"subscriber_id": subscriberID,
			"recipient_id":  recipientID,
			"resource_id":   resourceID,
			"period":        p.String(),
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, patron.ErrAllocationNotFound
		}
		return nil, fmt.Errorf("patron/mongo: get allocation by key: %w", err)
	}
	return fromAllocationModel(&m)
}

func (s *Store) ListAllocationsBySubscriber(ctx context.Context, subscriberID string, p period.Period, opts allocation.ListOpts) ([]*allocation.Allocation, error) {
	filter := bson.M{"subscriber_id": subscriberID, "period": p.String()}
	return s.listAllocations(ctx, filter, opts)
}

func (s *Store) ListAllocationsByRecipient(ctx context.Context, recipientID string, p period.Period, opts allocation.ListOpts) ([]*allocation.Allocation, error) {
	filter := bson.M{"recipient_id": recipientID, "period": p.String()}
	return s.listAllocations(ctx, filter, opts)
}

func (s *Store) listAllocations(ctx context.Context, filter bson.M, opts allocation.ListOpts) ([]*allocation.Allocation, error) {
	var models []allocationModel

	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("patron/mongo: list allocations: %w", err)
	}

	result := make([]*allocation.Allocation, len(models))
	for i := range models {
		a, err := fromAllocationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

func (s *Store) ListAllocationSubscribers(ctx context.Context, p period.Period) ([]string, error) {
	filter := bson.M{"period": p.String(), "status": string(allocation.StatusActive)}
	subscribers, err := s.distinct(ctx, colAllocations, "$subscriber_id", filter)
	if err != nil {
		return nil, fmt.Errorf("patron/mongo: list allocation subscribers: %w", err)
	}
	return subscribers, nil
}

func (s *Store) UpdateAllocation(ctx context.Context, a *allocation.Allocation) error {
	m := toAllocationModel(a)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("patron/mongo: update allocation: %w", err)
	}
	if res.MatchedCount() == 0 {
		return patron.ErrAllocationNotFound
	}
	return nil
}

// ==================== Earnings Store ====================

func (s *Store) UpsertEarning(ctx context.Context, r *earnings.Record) error {
	var existing earningModel
	err := s.mdb.NewFind(&existing).
		Filter(bson.M{
			"recipient_id":  r.RecipientID,
			"period":        r.Period.String(),
			"allocation_id": r.AllocationID.String(),
		}).
		Scan(ctx)
	switch {
	case err == nil:
		if earnings.Status(existing.Status) != earnings.StatusPending {
			return patron.ErrEarningLocked
		}
		earnID, parseErr := id.ParseEarningID(existing.ID)
		if parseErr != nil {
			return parseErr
		}
		r.ID = earnID
		r.CreatedAt = existing.CreatedAt
		r.Status = earnings.StatusPending
		m := toEarningModel(r)
		m.UpdatedAt = now()
		if _, err = s.mdb.NewUpdate(m).Filter(bson.M{"_id": m.ID}).Exec(ctx); err != nil {
			return fmt.Errorf("patron/mongo: upsert earning: %w", err)
		}
		return nil
	case isNoDocuments(err):
		if r.ID.IsNil() {
			r.ID = id.NewEarningID()
		}
		r.Status = earnings.StatusPending
		m := toEarningModel(r)
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now()
			m.UpdatedAt = m.CreatedAt
		}
		if _, err = s.mdb.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("patron/mongo: upsert earning: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("patron/mongo: upsert earning: %w", err)
	}
}

func (s *Store) GetEarning(ctx context.Context, earnID id.EarningID) (*earnings.Record, error) {
	var m earningModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": earnID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, patron.ErrEarningNotFound
		}
		return nil, fmt.Errorf("patron/mongo: get earning: %w", err)
	}
	return fromEarningModel(&m)
}

func (s *Store) DeletePendingEarning(ctx context.Context, allocID id.AllocationID, p period.Period) error {
	_, err := s.mdb.NewDelete((*earningModel)(nil)).
		Filter(bson.M{
			"allocation_id": allocID.String(),
			"period":        p.String(),
			"status":        string(earnings.StatusPending),
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("patron/mongo: delete pending earning: %w", err)
	}
	return nil
}

func (s *Store) ListEarningsByRecipient(ctx context.Context, recipientID string, p period.Period, opts earnings.ListOpts) ([]*earnings.Record, error) {
	var models []earningModel

	filter := bson.M{"recipient_id": recipientID, "period": p.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("patron/mongo: list earnings: %w", err)
	}

	result := make([]*earnings.Record, len(models))
	for i := range models {
		r, err := fromEarningModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) ListEarningRecipients(ctx context.Context, p period.Period, status earnings.Status) ([]string, error) {
	filter := bson.M{"period": p.String()}
	if status != "" {
		filter["status"] = string(status)
	}
	recipients, err := s.distinct(ctx, colEarnings, "$recipient_id", filter)
	if err != nil {
		return nil, fmt.Errorf("patron/mongo: list earning recipients: %w", err)
	}
	return recipients, nil
}

func (s *Store) LockEarnings(ctx context.Context, recipientID string, p period.Period, lockedAt time.Time) (int, error) {
	res, err := s.mdb.NewUpdate((*earningModel)(nil)).
		Filter(bson.M{
			"recipient_id": recipientID,
			"period":       p.String(),
			"status":       string(earnings.StatusPending),
		}).
		Set("status", string(earnings.StatusAvailable)).
		Set("locked_at", lockedAt).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("patron/mongo: lock earnings: %w", err)
	}
	return int(res.MatchedCount()), nil
}

func (s *Store) MarkEarningsPaidOut(ctx context.Context, recipientID string, p period.Period, payoutID id.PayoutID, paidAt time.Time) (int, error) {
	res, err := s.mdb.NewUpdate((*earningModel)(nil)).
		Filter(bson.M{
			"recipient_id": recipientID,
			"period":       p.String(),
			"status":       string(earnings.StatusAvailable),
		}).
		Set("status", string(earnings.StatusPaidOut)).
		Set("payout_id", payoutID.String()).
		Set("paid_out_at", paidAt).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("patron/mongo: mark earnings paid out: %w", err)
	}
	return int(res.MatchedCount()), nil
}

func (s *Store) SumEarningsByStatus(ctx context.Context, recipientID string, p period.Period, status earnings.Status) (types.Money, error) {
	filter := bson.M{
		"recipient_id": recipientID,
		"period":       p.String(),
		"status":       string(status),
	}
	total, err := s.sumEarnings(ctx, filter)
	if err != nil {
		return types.Money{}, fmt.Errorf("patron/mongo: sum earnings by status: %w", err)
	}
	return total, nil
}

func (s *Store) SumEarningsBySubscriber(ctx context.Context, subscriberID string, p period.Period) (types.Money, error) {
	filter := bson.M{
		"subscriber_id": subscriberID,
		"period":        p.String(),
	}
	total, err := s.sumEarnings(ctx, filter)
	if err != nil {
		return types.Money{}, fmt.Errorf("patron/mongo: sum earnings by subscriber: %w", err)
	}
	return total, nil
}

func (s *Store) SumOutstandingEarnings(ctx context.Context) (types.Money, error) {
	filter := bson.M{"status": string(earnings.StatusAvailable)}
	total, err := s.sumEarnings(ctx, filter)
	if err != nil {
		return types.Money{}, fmt.Errorf("patron/mongo: sum outstanding earnings: %w", err)
	}
	return total, nil
}

func (s *Store) sumEarnings(ctx context.Context, filter bson.M) (types.Money, error) {
	pipeline := bson.A{
		bson.M{"$match": filter},
		bson.M{
			"$group": bson.M{
				"_id":      nil,
				"total":    bson.M{"$sum": "$amount_cents"},
				"currency": bson.M{"$max": "$amount_currency"},
			},
		},
	}

	cursor, err := s.mdb.Collection(colEarnings).Aggregate(ctx, pipeline)
	if err != nil {
		return types.Money{}, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total    int64  `bson:"total"`
		Currency string `bson:"currency"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return types.Money{}, err
	}

	if len(results) == 0 {
		return types.USD(0), nil
	}
	return types.Money{Amount: results[0].Total, Currency: results[0].Currency}, nil
}

// ==================== Cycle Store ====================

func (s *Store) CreateCycle(ctx context.Context, st *cycle.State) error {
	var existing cycleModel
	err := s.mdb.NewFind(&existing).
		Filter(bson.M{"period": st.Period.String()}).
		Scan(ctx)
	if err == nil {
		return patron.ErrCycleRunning
	}
	if !isNoDocuments(err) {
		return fmt.Errorf("patron/mongo: create cycle: %w", err)
	}

	if st.ID.IsNil() {
		st.ID = id.NewCycleID()
	}
	m := toCycleModel(st)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
		m.UpdatedAt = m.CreatedAt
	}
	if _, err = s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return patron.ErrCycleRunning
		}
		return fmt.Errorf("patron/mongo: create cycle: %w", err)
	}
	return nil
}

func (s *Store) GetCycle(ctx context.Context, p period.Period) (*cycle.State, error) {
	var m cycleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"period": p.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, patron.ErrCycleNotFound
		}
		return nil, fmt.Errorf("patron/mongo: get cycle: %w", err)
	}
	return fromCycleModel(&m)
}

func (s *Store) AdvanceCycle(ctx context.Context, p period.Period, from, to cycle.Phase) error {
	if !from.CanAdvanceTo(to) {
		return patron.ErrInvalidAdvance
	}

	res, err := s.mdb.NewUpdate((*cycleModel)(nil)).
		Filter(bson.M{"period": p.String(), "phase": string(from)}).
		Set("phase", string(to)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("patron/mongo: advance cycle: %w", err)
	}
	if res.MatchedCount() == 0 {
		// Distinguish a missing cycle from a concurrent phase change.
		if _, getErr := s.GetCycle(ctx, p); getErr != nil {
			return getErr
		}
		return patron.ErrInvalidAdvance
	}
	return nil
}

func (s *Store) UpdateCycle(ctx context.Context, st *cycle.State) error {
	m := toCycleModel(st)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("patron/mongo: update cycle: %w", err)
	}
	if res.MatchedCount() == 0 {
		return patron.ErrCycleNotFound
	}
	return nil
}

func (s *Store) ListCycles(ctx context.Context, opts cycle.ListOpts) ([]*cycle.State, error) {
	var models []cycleModel

	filter := bson.M{}
	if opts.Phase != "" {
		filter["phase"] = string(opts.Phase)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "period", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("patron/mongo: list cycles: %w", err)
	}

	result := make([]*cycle.State, len(models))
	for i := range models {
		st, err := fromCycleModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = st
	}
	return result, nil
}

// ==================== Payout Store ====================

func (s *Store) CreatePayout(ctx context.Context, p *payout.Payout) error {
	var existing payoutModel
	err := s.mdb.NewFind(&existing).
		Filter(bson.M{"recipient_id": p.RecipientID, "period": p.Period.String()}).
		Scan(ctx)
	if err == nil {
		return patron.ErrPayoutInFlight
	}
	if !isNoDocuments(err) {
		return fmt.Errorf("patron/mongo: create payout: %w", err)
	}

	if p.ID.IsNil() {
		p.ID = id.NewPayoutID()
	}
	m := toPayoutModel(p)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
		m.UpdatedAt = m.CreatedAt
	}
	if _, err = s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return patron.ErrPayoutInFlight
		}
		return fmt.Errorf("patron/mongo: create payout: %w", err)
	}
	return nil
}

func (s *Store) GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	var m payoutModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": payoutID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, patron.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("patron/mongo: get payout: %w", err)
	}
	return fromPayoutModel(&m)
}

func (s *Store) GetPayoutByRecipientPeriod(ctx context.Context, recipientID string, pd period.Period) (*payout.Payout, error) {
	var m payoutModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"recipient_id": recipientID, "period": pd.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, patron.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("patron/mongo: get payout by recipient period: %w", err)
	}
	return fromPayoutModel(&m)
}

func (s *Store) UpdatePayout(ctx context.Context, p *payout.Payout) error {
	m := toPayoutModel(p)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("patron/mongo: update payout: %w", err)
	}
	if res.MatchedCount() == 0 {
		return patron.ErrPayoutNotFound
	}
	return nil
}

func (s *Store) ListUnsettledPayouts(ctx context.Context) ([]*payout.Payout, error) {
	var models []payoutModel

	filter := bson.M{
		"status": bson.M{"$ne": string(payout.StatusCompleted)},
		"$nor": bson.A{
			bson.M{
				"status":       string(payout.StatusFailed),
				"failure_kind": string(payout.FailureTerminal),
			},
		},
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("patron/mongo: list unsettled payouts: %w", err)
	}

	result := make([]*payout.Payout, len(models))
	for i := range models {
		p, err := fromPayoutModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) ListPayouts(ctx context.Context, pd period.Period, opts payout.ListOpts) ([]*payout.Payout, error) {
	var models []payoutModel

	filter := bson.M{"period": pd.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("patron/mongo: list payouts: %w", err)
	}

	result := make([]*payout.Payout, len(models))
	for i := range models {
		p, err := fromPayoutModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Helpers ====================

// distinct returns the sorted distinct values of a field across documents
// matching the filter.
func (s *Store) distinct(ctx context.Context, col, field string, filter bson.M) ([]string, error) {
	pipeline := bson.A{
		bson.M{"$match": filter},
		bson.M{"$group": bson.M{"_id": field}},
		bson.M{"$sort": bson.M{"_id": 1}},
	}

	cursor, err := s.mdb.Collection(col).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Value string `bson:"_id"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}

	values := make([]string, len(results))
	for i := range results {
		values[i] = results[i].Value
	}
	return values, nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all patron collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colBalances: {
			{
				Keys:    bson.D{{Key: "subscriber_id", Value: 1}, {Key: "period", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "period", Value: 1}, {Key: "retired", Value: 1}}},
		},
		colAllocations: {
			{
				Keys:    bson.D{{Key: "subscriber_id", Value: 1}, {Key: "recipient_id", Value: 1}, {Key: "resource_id", Value: 1}, {Key: "period", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "subscriber_id", Value: 1}, {Key: "period", Value: 1}}},
			{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "period", Value: 1}}},
		},
		colEarnings: {
			{
				Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "period", Value: 1}, {Key: "allocation_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "period", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "allocation_id", Value: 1}, {Key: "period", Value: 1}}},
		},
		colCycles: {
			{
				Keys:    bson.D{{Key: "period", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colPayouts: {
			{
				Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "period", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}
