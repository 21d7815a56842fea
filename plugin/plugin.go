// Package plugin provides an extensible plugin system for Patron.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Allocation hooks
// ──────────────────────────────────────────────────

// OnAllocationUpserted is called after an allocation is created or replaced.
type OnAllocationUpserted interface {
	Plugin
	OnAllocationUpserted(ctx context.Context, alloc interface{}) error
}

// OnAllocationRemoved is called after an allocation is deactivated.
type OnAllocationRemoved interface {
	Plugin
	OnAllocationRemoved(ctx context.Context, alloc interface{}) error
}

// OnEarningsRecomputed is called after a subscriber's funded amounts are
// re-apportioned across their recipients.
type OnEarningsRecomputed interface {
	Plugin
	OnEarningsRecomputed(ctx context.Context, subscriberID string, period string, fundedCents int64) error
}

// ──────────────────────────────────────────────────
// Cycle hooks
// ──────────────────────────────────────────────────

// OnCycleAdvanced is called after the monthly cycle moves to a new phase.
type OnCycleAdvanced interface {
	Plugin
	OnCycleAdvanced(ctx context.Context, period string, phase string) error
}

// OnPeriodLocked is called once a period's earnings are fully locked.
type OnPeriodLocked interface {
	Plugin
	OnPeriodLocked(ctx context.Context, period string, recipients int) error
}

// OnSweepCompleted is called after unallocated budget is swept to platform
// revenue for a period.
type OnSweepCompleted interface {
	Plugin
	OnSweepCompleted(ctx context.Context, period string, subscribers int, sweptCents int64) error
}

// ──────────────────────────────────────────────────
// Payout hooks
// ──────────────────────────────────────────────────

// OnPayoutRequested is called after a payout record is written, before the
// external transfer is attempted.
type OnPayoutRequested interface {
	Plugin
	OnPayoutRequested(ctx context.Context, p interface{}) error
}

// OnPayoutCompleted is called after the external transfer succeeds.
type OnPayoutCompleted interface {
	Plugin
	OnPayoutCompleted(ctx context.Context, p interface{}) error
}

// OnPayoutFailed is called after a transfer attempt fails. Terminal reports
// whether retries are exhausted or the failure is non-retryable.
type OnPayoutFailed interface {
	Plugin
	OnPayoutFailed(ctx context.Context, p interface{}, terminal bool, err error) error
}

// ──────────────────────────────────────────────────
// Monitor hooks
// ──────────────────────────────────────────────────

// OnEscrowMismatch is called when the escrow monitor observes held funds
// below outstanding obligations past a configured threshold.
type OnEscrowMismatch interface {
	Plugin
	OnEscrowMismatch(ctx context.Context, obligationsCents, escrowCents int64, critical bool) error
}
