package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

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

// compile-time interface check
var _ patronstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("patron/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("patron/sqlite: migration failed: %w", err)
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
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetBalance(ctx context.Context, balID id.BalanceID) (*balance.SubscriberBalance, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", balID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, patron.ErrBalanceNotFound
		}
		return nil, err
	}
	return fromBalanceModel(m)
}

func (s *Store) GetBalanceBySubscriber(ctx context.Context, subscriberID string, p period.Period) (*balance.SubscriberBalance, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("subscriber_id = ?", subscriberID).
		Where("period = ?", p.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, patron.ErrBalanceNotFound
		}
		return nil, err
	}
	return fromBalanceModel(m)
}

func (s *Store) UpdateBalance(ctx context.Context, b *balance.SubscriberBalance) error {
	m := toBalanceModel(b)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return patron.ErrBalanceNotFound
	}
	return nil
}

func (s *Store) ListBalances(ctx context.Context, p period.Period, opts balance.ListOpts) ([]*balance.SubscriberBalance, error) {
	var models []balanceModel
	q := s.sdb.NewSelect(&models).Where("period = ?", p.String())

	if !opts.IncludeRetired {
		q = q.Where("retired = 0")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	existing := new(allocationModel)
	err := s.sdb.NewSelect(existing).
		Where("subscriber_id = ?", a.SubscriberID).
		Where("recipient_id = ?", a.RecipientID).
		Where("resource_id = ?", a.ResourceID).
		Where("period = ?", a.Period.String()).
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
		_, err = s.sdb.NewUpdate(m).WherePK().Exec(ctx)
		return err
	case isNoRows(err):
		if a.ID.IsNil() {
			a.ID = id.NewAllocationID()
		}
		m := toAllocationModel(a)
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now()
			m.UpdatedAt = m.CreatedAt
		}
		_, err = s.sdb.NewInsert(m).Exec(ctx)
		return err
	default:
		return err
	}
}

func (s *Store) GetAllocation(ctx context.Context, allocID id.AllocationID) (*allocation.Allocation, error) {
	m := new(allocationModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", allocID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, patron.ErrAllocationNotFound
		}
		return nil, err
	}
	return fromAllocationModel(m)
}

func (s *Store) GetAllocationByKey(ctx context.Context, subscriberID, recipientID, resourceID string, p period.Period) (*allocation.Allocation, error) {
	m := new(allocationModel)
	err := s.sdb.NewSelect(m).
		Where("subscriber_id = ?", subscriberID).
		Where("recipient_id = ?", recipientID).
		Where("resource_id = ?", resourceID).
		Where("period = ?", p.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, patron.ErrAllocationNotFound
		}
		return nil, err
	}
	return fromAllocationModel(m)
}

func (s *Store) ListAllocationsBySubscriber(ctx context.Context, subscriberID string, p period.Period, opts allocation.ListOpts) ([]*allocation.Allocation, error) {
	var models []allocationModel
	q := s.sdb.NewSelect(&models).
		Where("subscriber_id = ?", subscriberID).
		Where("period = ?", p.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return allocationsFromModels(models)
}

func (s *Store) ListAllocationsByRecipient(ctx context.Context, recipientID string, p period.Period, opts allocation.ListOpts) ([]*allocation.Allocation, error) {
	var models []allocationModel
	q := s.sdb.NewSelect(&models).
		Where("recipient_id = ?", recipientID).
		Where("period = ?", p.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return allocationsFromModels(models)
}

func (s *Store) ListAllocationSubscribers(ctx context.Context, p period.Period) ([]string, error) {
	var subscribers []string
	err := s.sdb.NewRaw(`
		SELECT DISTINCT subscriber_id FROM patron_allocations
		WHERE period = ? AND status = ?
		ORDER BY subscriber_id ASC
	`, p.String(), string(allocation.StatusActive)).Scan(ctx, &subscribers)
	if err != nil {
		return nil, err
	}
	return subscribers, nil
}

func (s *Store) UpdateAllocation(ctx context.Context, a *allocation.Allocation) error {
	m := toAllocationModel(a)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return patron.ErrAllocationNotFound
	}
	return nil
}

// ==================== Earnings Store ====================

func (s *Store) UpsertEarning(ctx context.Context, r *earnings.Record) error {
	existing := new(earningModel)
	err := s.sdb.NewSelect(existing).
		Where("recipient_id = ?", r.RecipientID).
		Where("period = ?", r.Period.String()).
		Where("allocation_id = ?", r.AllocationID.String()).
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
		_, err = s.sdb.NewUpdate(m).WherePK().Exec(ctx)
		return err
	case isNoRows(err):
		if r.ID.IsNil() {
			r.ID = id.NewEarningID()
		}
		r.Status = earnings.StatusPending
		m := toEarningModel(r)
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now()
			m.UpdatedAt = m.CreatedAt
		}
		_, err = s.sdb.NewInsert(m).Exec(ctx)
		return err
	default:
		return err
	}
}

func (s *Store) GetEarning(ctx context.Context, earnID id.EarningID) (*earnings.Record, error) {
	m := new(earningModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", earnID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, patron.ErrEarningNotFound
		}
		return nil, err
	}
	return fromEarningModel(m)
}

func (s *Store) DeletePendingEarning(ctx context.Context, allocID id.AllocationID, p period.Period) error {
	_, err := s.sdb.NewDelete((*earningModel)(nil)).
		Where("allocation_id = ?", allocID.String()).
		Where("period = ?", p.String()).
		Where("status = ?", string(earnings.StatusPending)).
		Exec(ctx)
	return err
}

func (s *Store) ListEarningsByRecipient(ctx context.Context, recipientID string, p period.Period, opts earnings.ListOpts) ([]*earnings.Record, error) {
	var models []earningModel
	q := s.sdb.NewSelect(&models).
		Where("recipient_id = ?", recipientID).
		Where("period = ?", p.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	var recipients []string
	var err error
	if status == "" {
		err = s.sdb.NewRaw(`
			SELECT DISTINCT recipient_id FROM patron_earnings
			WHERE period = ?
			ORDER BY recipient_id ASC
		`, p.String()).Scan(ctx, &recipients)
	} else {
		err = s.sdb.NewRaw(`
			SELECT DISTINCT recipient_id FROM patron_earnings
			WHERE period = ? AND status = ?
			ORDER BY recipient_id ASC
		`, p.String(), string(status)).Scan(ctx, &recipients)
	}
	if err != nil {
		return nil, err
	}
	return recipients, nil
}

func (s *Store) LockEarnings(ctx context.Context, recipientID string, p period.Period, lockedAt time.Time) (int, error) {
	res, err := s.sdb.NewUpdate((*earningModel)(nil)).
		Set("status = ?", string(earnings.StatusAvailable)).
		Set("locked_at = ?", lockedAt).
		Set("updated_at = ?", now()).
		Where("recipient_id = ?", recipientID).
		Where("period = ?", p.String()).
		Where("status = ?", string(earnings.StatusPending)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func (s *Store) MarkEarningsPaidOut(ctx context.Context, recipientID string, p period.Period, payoutID id.PayoutID, paidAt time.Time) (int, error) {
	res, err := s.sdb.NewUpdate((*earningModel)(nil)).
		Set("status = ?", string(earnings.StatusPaidOut)).
		Set("payout_id = ?", payoutID.String()).
		Set("paid_out_at = ?", paidAt).
		Set("updated_at = ?", now()).
		Where("recipient_id = ?", recipientID).
		Where("period = ?", p.String()).
		Where("status = ?", string(earnings.StatusAvailable)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func (s *Store) SumEarningsByStatus(ctx context.Context, recipientID string, p period.Period, status earnings.Status) (types.Money, error) {
	var cents int64
	var currency string
	err := s.sdb.NewRaw(`
		SELECT COALESCE(SUM(amount_cents), 0), COALESCE(MAX(amount_currency), 'usd')
		FROM patron_earnings
		WHERE recipient_id = ? AND period = ? AND status = ?
	`, recipientID, p.String(), string(status)).Scan(ctx, &cents, &currency)
	if err != nil {
		return types.Money{}, err
	}
	return types.Money{Amount: cents, Currency: currency}, nil
}

func (s *Store) SumEarningsBySubscriber(ctx context.Context, subscriberID string, p period.Period) (types.Money, error) {
	var cents int64
	var currency string
	err := s.sdb.NewRaw(`
		SELECT COALESCE(SUM(amount_cents), 0), COALESCE(MAX(amount_currency), 'usd')
		FROM patron_earnings
		WHERE subscriber_id = ? AND period = ?
	`, subscriberID, p.String()).Scan(ctx, &cents, &currency)
	if err != nil {
		return types.Money{}, err
	}
	return types.Money{Amount: cents, Currency: currency}, nil
}

func (s *Store) SumOutstandingEarnings(ctx context.Context) (types.Money, error) {
	var cents int64
	var currency string
	err := s.sdb.NewRaw(`
		SELECT COALESCE(SUM(amount_cents), 0), COALESCE(MAX(amount_currency), 'usd')
		FROM patron_earnings
		WHERE status = ?
	`, string(earnings.StatusAvailable)).Scan(ctx, &cents, &currency)
	if err != nil {
		return types.Money{}, err
	}
	return types.Money{Amount: cents, Currency: currency}, nil
}

// ==================== Cycle Store ====================

func (s *Store) CreateCycle(ctx context.Context, st *cycle.State) error {
	existing := new(cycleModel)
	err := s.sdb.NewSelect(existing).
		Where("period = ?", st.Period.String()).
		Scan(ctx)
	if err == nil {
		return patron.ErrCycleRunning
	}
	if !isNoRows(err) {
		return err
	}

	if st.ID.IsNil() {
		st.ID = id.NewCycleID()
	}
	m := toCycleModel(st)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
		m.UpdatedAt = m.CreatedAt
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetCycle(ctx context.Context, p period.Period) (*cycle.State, error) {
	m := new(cycleModel)
	err := s.sdb.NewSelect(m).
		Where("period = ?", p.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, patron.ErrCycleNotFound
		}
		return nil, err
	}
	return fromCycleModel(m)
}

func (s *Store) AdvanceCycle(ctx context.Context, p period.Period, from, to cycle.Phase) error {
	if !from.CanAdvanceTo(to) {
		return patron.ErrInvalidAdvance
	}

	res, err := s.sdb.NewUpdate((*cycleModel)(nil)).
		Set("phase = ?", string(to)).
		Set("updated_at = ?", now()).
		Where("period = ?", p.String()).
		Where("phase = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
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
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return patron.ErrCycleNotFound
	}
	return nil
}

func (s *Store) ListCycles(ctx context.Context, opts cycle.ListOpts) ([]*cycle.State, error) {
	var models []cycleModel
	q := s.sdb.NewSelect(&models)

	if opts.Phase != "" {
		q = q.Where("phase = ?", string(opts.Phase))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("period ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	existing := new(payoutModel)
	err := s.sdb.NewSelect(existing).
		Where("recipient_id = ?", p.RecipientID).
		Where("period = ?", p.Period.String()).
		Scan(ctx)
	if err == nil {
		return patron.ErrPayoutInFlight
	}
	if !isNoRows(err) {
		return err
	}

	if p.ID.IsNil() {
		p.ID = id.NewPayoutID()
	}
	m := toPayoutModel(p)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
		m.UpdatedAt = m.CreatedAt
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	m := new(payoutModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", payoutID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, patron.ErrPayoutNotFound
		}
		return nil, err
	}
	return fromPayoutModel(m)
}

func (s *Store) GetPayoutByRecipientPeriod(ctx context.Context, recipientID string, pd period.Period) (*payout.Payout, error) {
	m := new(payoutModel)
	err := s.sdb.NewSelect(m).
		Where("recipient_id = ?", recipientID).
		Where("period = ?", pd.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, patron.ErrPayoutNotFound
		}
		return nil, err
	}
	return fromPayoutModel(m)
}

func (s *Store) UpdatePayout(ctx context.Context, p *payout.Payout) error {
	m := toPayoutModel(p)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return patron.ErrPayoutNotFound
	}
	return nil
}

func (s *Store) ListUnsettledPayouts(ctx context.Context) ([]*payout.Payout, error) {
	var models []payoutModel
	err := s.sdb.NewSelect(&models).
		Where("status != ?", string(payout.StatusCompleted)).
		Where("NOT (status = ? AND failure_kind = ?)",
			string(payout.StatusFailed), string(payout.FailureTerminal)).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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
	q := s.sdb.NewSelect(&models).Where("period = ?", pd.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

func allocationsFromModels(models []allocationModel) ([]*allocation.Allocation, error) {
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

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
