// Package observability provides a metrics extension for Patron that records
// lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/patron/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnAllocationUpserted = (*MetricsExtension)(nil)
	_ plugin.OnAllocationRemoved  = (*MetricsExtension)(nil)
	_ plugin.OnEarningsRecomputed = (*MetricsExtension)(nil)
	_ plugin.OnCycleAdvanced      = (*MetricsExtension)(nil)
	_ plugin.OnPeriodLocked       = (*MetricsExtension)(nil)
	_ plugin.OnSweepCompleted     = (*MetricsExtension)(nil)
	_ plugin.OnPayoutRequested    = (*MetricsExtension)(nil)
	_ plugin.OnPayoutCompleted    = (*MetricsExtension)(nil)
	_ plugin.OnPayoutFailed       = (*MetricsExtension)(nil)
	_ plugin.OnEscrowMismatch     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Patron plugin to automatically track ledger metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Allocation metrics
	AllocationUpserted Counter
	AllocationRemoved  Counter
	EarningsRecomputed Counter
	FundedAmount       Histogram

	// Cycle metrics
	CycleAdvanced    Counter
	PeriodsLocked    Counter
	RecipientsLocked Histogram
	SweepTotal       Histogram

	// Payout metrics
	PayoutRequested Counter
	PayoutCompleted Counter
	PayoutRetryable Counter
	PayoutTerminal  Counter

	// Monitor metrics
	EscrowMismatch Counter
	EscrowGap      Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Allocation metrics
		AllocationUpserted: factory.Counter("patron.allocation.upserted"),
		AllocationRemoved:  factory.Counter("patron.allocation.removed"),
		EarningsRecomputed: factory.Counter("patron.earnings.recomputed"),
		FundedAmount:       factory.Histogram("patron.earnings.funded_cents"),

		// Cycle metrics
		CycleAdvanced:    factory.Counter("patron.cycle.advanced"),
		PeriodsLocked:    factory.Counter("patron.cycle.periods.locked"),
		RecipientsLocked: factory.Histogram("patron.cycle.recipients.locked"),
		SweepTotal:       factory.Histogram("patron.cycle.swept_cents"),

		// Payout metrics
		PayoutRequested: factory.Counter("patron.payout.requested"),
		PayoutCompleted: factory.Counter("patron.payout.completed"),
		PayoutRetryable: factory.Counter("patron.payout.failed.retryable"),
		PayoutTerminal:  factory.Counter("patron.payout.failed.terminal"),

		// Monitor metrics
		EscrowMismatch: factory.Counter("patron.escrow.mismatch"),
		EscrowGap:      factory.Histogram("patron.escrow.gap_cents"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Allocation lifecycle hooks
// ──────────────────────────────────────────────────

// OnAllocationUpserted implements plugin.OnAllocationUpserted.
func (m *MetricsExtension) OnAllocationUpserted(_ context.Context, _ interface{}) error {
	m.AllocationUpserted.Inc()
	return nil
}

// OnAllocationRemoved implements plugin.OnAllocationRemoved.
func (m *MetricsExtension) OnAllocationRemoved(_ context.Context, _ interface{}) error {
	m.AllocationRemoved.Inc()
	return nil
}

// OnEarningsRecomputed implements plugin.OnEarningsRecomputed.
func (m *MetricsExtension) OnEarningsRecomputed(_ context.Context, _, _ string, fundedCents int64) error {
	m.EarningsRecomputed.Inc()
	m.FundedAmount.Observe(float64(fundedCents))
	return nil
}

// ──────────────────────────────────────────────────
// Cycle lifecycle hooks
// ──────────────────────────────────────────────────

// OnCycleAdvanced implements plugin.OnCycleAdvanced.
func (m *MetricsExtension) OnCycleAdvanced(_ context.Context, _, _ string) error {
	m.CycleAdvanced.Inc()
	return nil
}

// OnPeriodLocked implements plugin.OnPeriodLocked.
func (m *MetricsExtension) OnPeriodLocked(_ context.Context, _ string, recipients int) error {
	m.PeriodsLocked.Inc()
	m.RecipientsLocked.Observe(float64(recipients))
	return nil
}

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(_ context.Context, _ string, _ int, sweptCents int64) error {
	m.SweepTotal.Observe(float64(sweptCents))
	return nil
}

// ──────────────────────────────────────────────────
// Payout lifecycle hooks
// ──────────────────────────────────────────────────

// OnPayoutRequested implements plugin.OnPayoutRequested.
func (m *MetricsExtension) OnPayoutRequested(_ context.Context, _ interface{}) error {
	m.PayoutRequested.Inc()
	return nil
}

// OnPayoutCompleted implements plugin.OnPayoutCompleted.
func (m *MetricsExtension) OnPayoutCompleted(_ context.Context, _ interface{}) error {
	m.PayoutCompleted.Inc()
	return nil
}

// OnPayoutFailed implements plugin.OnPayoutFailed.
func (m *MetricsExtension) OnPayoutFailed(_ context.Context, _ interface{}, terminal bool, _ error) error {
	if terminal {
		m.PayoutTerminal.Inc()
	} else {
		m.PayoutRetryable.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Monitor hooks
// ──────────────────────────────────────────────────

// OnEscrowMismatch implements plugin.OnEscrowMismatch.
func (m *MetricsExtension) OnEscrowMismatch(_ context.Context, obligationsCents, escrowCents int64, _ bool) error {
	m.EscrowMismatch.Inc()
	m.EscrowGap.Observe(float64(obligationsCents - escrowCents))
	return nil
}
