package patron

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/xraph/patron/earnings"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/payout"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/transfer"
	"github.com/xraph/patron/types"
)

// RequestPayout converts a recipient's available earnings for a period into
// an external transfer. The payout record is written before the provider is
// called, with the record's ID as the idempotency key, so a crash between
// the write and the transfer is recovered by re-driving the same key.
// Requesting an already-completed payout returns it unchanged.
func (l *Ledger) RequestPayout(ctx context.Context, recipientID string, p period.Period) (*payout.Payout, error) {
	if l.transfers == nil {
		return nil, ErrNoTransferClient
	}
	if recipientID == "" {
		return nil, ValidationError{Field: "recipientID", Message: "must not be empty"}
	}
	if err := p.Validate(); err != nil {
		return nil, ValidationError{Field: "period", Message: err.Error()}
	}

	// One processor per (recipient, period) at a time.
	key := recipientKey(recipientID, p)
	l.payoutMu.Lock()
	if l.inflightPayouts[key] {
		l.payoutMu.Unlock()
		return nil, ErrPayoutInFlight
	}
	l.inflightPayouts[key] = true
	l.payoutMu.Unlock()
	defer func() {
		l.payoutMu.Lock()
		delete(l.inflightPayouts, key)
		l.payoutMu.Unlock()
	}()

	po, err := l.store.GetPayoutByRecipientPeriod(ctx, recipientID, p)
	switch {
	case err == nil:
		switch {
		case po.Status == payout.StatusCompleted:
			return po, nil
		case po.Status == payout.StatusFailed && po.FailureKind == payout.FailureTerminal:
			return po, ErrPayoutTerminal
		}
		// Unsettled record from an earlier attempt; re-drive it under the
		// original idempotency key.
		return po, l.processPayout(ctx, po)
	case !errors.Is(err, ErrPayoutNotFound):
		return nil, err
	}

	gross, err := l.store.SumEarningsByStatus(ctx, recipientID, p, earnings.StatusAvailable)
	if err != nil {
		return nil, err
	}
	if gross.Amount < l.minimumPayout.Amount {
		return nil, ErrBelowThreshold
	}

	fee := gross.BasisPoints(l.platformFeeBps)
	net := gross.Subtract(fee)

	po = &payout.Payout{
		Entity:      types.NewEntity(),
		ID:          id.NewPayoutID(),
		RecipientID: recipientID,
		Period:      p,
		Amount:      gross,
		Fee:         fee,
		Net:         net,
		Status:      payout.StatusPending,
		AppID:       l.appID,
	}
	if err := l.store.CreatePayout(ctx, po); err != nil {
		return nil, err
	}

	l.plugins.EmitPayoutRequested(ctx, po)
	l.logger.Info("payout requested",
		"payout", po.ID.String(),
		"recipient", recipientID,
		"period", p.String(),
		"gross", gross.Amount,
		"net", net.Amount,
	)

	return po, l.processPayout(ctx, po)
}

// Payout returns a payout by ID.
func (l *Ledger) Payout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	return l.store.GetPayout(ctx, payoutID)
}

// Payouts lists payouts for a period.
func (l *Ledger) Payouts(ctx context.Context, p period.Period, opts payout.ListOpts) ([]*payout.Payout, error) {
	return l.store.ListPayouts(ctx, p, opts)
}

// processPayout drives one payout through the provider with bounded
// exponential backoff. Retryable failures keep the same idempotency key; a
// timed-out call is an unknown outcome and retries under that key rather
// than issuing a fresh transfer. Non-retryable failures stop immediately.
func (l *Ledger) processPayout(ctx context.Context, po *payout.Payout) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = l.payoutInitialBackoff
	expo.MaxInterval = l.payoutMaxBackoff
	expo.MaxElapsedTime = 0

	retries := uint64(0)
	if l.payoutMaxAttempts > 1 {
		retries = uint64(l.payoutMaxAttempts - 1)
	}
	policy := backoff.WithMaxRetries(backoff.WithContext(expo, ctx), retries)

	var result *transfer.Result
	attempt := func() error {
		po.FailureKind = ""
		po.Attempts++
		if err := l.markPayout(ctx, po, payout.StatusProcessing); err != nil {
			return backoff.Permanent(err)
		}

		cctx, cancel := context.WithTimeout(ctx, l.transferTimeout)
		res, err := l.transfers.Transfer(cctx, transfer.Request{
			IdempotencyKey: po.IdempotencyKey(),
			RecipientID:    po.RecipientID,
			Period:         po.Period,
			Amount:         po.Net,
		})
		cancel()

		if err != nil {
			po.LastError = err.Error()
			if transfer.IsRetryable(err) {
				po.FailureKind = payout.FailureRetryable
				_ = l.markPayout(ctx, po, payout.StatusFailed) //nolint:errcheck // attempt state is advisory between retries
				return err
			}
			po.FailureKind = payout.FailureTerminal
			_ = l.markPayout(ctx, po, payout.StatusFailed) //nolint:errcheck // terminal state re-recorded below on retry exhaustion
			return backoff.Permanent(err)
		}

		result = res
		return nil
	}

	if err := backoff.Retry(attempt, policy); err != nil {
		terminal := po.FailureKind == payout.FailureTerminal || po.Attempts >= l.payoutMaxAttempts
		l.plugins.EmitPayoutFailed(ctx, po, terminal, err)
		l.logger.Error("payout failed",
			"payout", po.ID.String(),
			"recipient", po.RecipientID,
			"period", po.Period.String(),
			"attempts", po.Attempts,
			"terminal", terminal,
			"error", err,
		)
		return err
	}

	now := time.Now().UTC()
	if _, err := l.store.MarkEarningsPaidOut(ctx, po.RecipientID, po.Period, po.ID, now); err != nil {
		return err
	}

	po.Reference = result.Reference
	po.CompletedAt = &now
	if err := l.markPayout(ctx, po, payout.StatusCompleted); err != nil {
		return err
	}

	l.plugins.EmitPayoutCompleted(ctx, po)
	l.logger.Info("payout completed",
		"payout", po.ID.String(),
		"recipient", po.RecipientID,
		"period", po.Period.String(),
		"reference", po.Reference,
		"attempts", po.Attempts,
	)
	return nil
}

// markPayout moves the payout to next and persists it, enforcing the status
// state machine. A re-driven payout may re-enter its current state.
func (l *Ledger) markPayout(ctx context.Context, po *payout.Payout, next payout.Status) error {
	if po.Status != next && !po.Status.CanTransitionTo(next) {
		return fmt.Errorf("patron: payout %s: invalid status change %s -> %s", po.ID, po.Status, next)
	}
	po.Status = next
	return l.store.UpdatePayout(ctx, po)
}

// recoverUnsettledPayouts re-drives payouts left pending, processing, or
// retryably failed by a previous run. Each keeps its original idempotency
// key; the provider deduplicates, so at most one real transfer occurs per
// record.
func (l *Ledger) recoverUnsettledPayouts(ctx context.Context) {
	unsettled, err := l.store.ListUnsettledPayouts(ctx)
	if err != nil {
		l.logger.Error("payout recovery scan failed", "error", err)
		return
	}
	if len(unsettled) == 0 {
		return
	}

	l.logger.Info("recovering unsettled payouts", "count", len(unsettled))

	for _, po := range unsettled {
		key := recipientKey(po.RecipientID, po.Period)
		l.payoutMu.Lock()
		if l.inflightPayouts[key] {
			l.payoutMu.Unlock()
			continue
		}
		l.inflightPayouts[key] = true
		l.payoutMu.Unlock()

		if err := l.processPayout(ctx, po); err != nil {
			l.logger.Warn("payout recovery failed",
				"payout", po.ID.String(),
				"recipient", po.RecipientID,
				"error", err,
			)
		}

		l.payoutMu.Lock()
		delete(l.inflightPayouts, key)
		l.payoutMu.Unlock()
	}
}
