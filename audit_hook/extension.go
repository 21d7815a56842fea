// Package audithook bridges Ledger lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/patron/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnAllocationUpserted = (*Extension)(nil)
	_ plugin.OnAllocationRemoved  = (*Extension)(nil)
	_ plugin.OnEarningsRecomputed = (*Extension)(nil)
	_ plugin.OnCycleAdvanced      = (*Extension)(nil)
	_ plugin.OnPeriodLocked       = (*Extension)(nil)
	_ plugin.OnSweepCompleted     = (*Extension)(nil)
	_ plugin.OnPayoutRequested    = (*Extension)(nil)
	_ plugin.OnPayoutCompleted    = (*Extension)(nil)
	_ plugin.OnPayoutFailed       = (*Extension)(nil)
	_ plugin.OnEscrowMismatch     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Allocation lifecycle hooks
// ──────────────────────────────────────────────────

// OnAllocationUpserted implements plugin.OnAllocationUpserted.
func (e *Extension) OnAllocationUpserted(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionAllocationUpserted, SeverityInfo, OutcomeSuccess,
		ResourceAllocation, "", CategoryAllocation, nil,
		"event", "allocation_upserted",
	)
}

// OnAllocationRemoved implements plugin.OnAllocationRemoved.
func (e *Extension) OnAllocationRemoved(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionAllocationRemoved, SeverityInfo, OutcomeSuccess,
		ResourceAllocation, "", CategoryAllocation, nil,
		"event", "allocation_removed",
	)
}

// OnEarningsRecomputed implements plugin.OnEarningsRecomputed.
func (e *Extension) OnEarningsRecomputed(ctx context.Context, subscriberID, p string, fundedCents int64) error {
	return e.record(ctx, ActionEarningsRecomputed, SeverityInfo, OutcomeSuccess,
		ResourceEarnings, subscriberID, CategoryAllocation, nil,
		"subscriber_id", subscriberID,
		"period", p,
		"funded_cents", fundedCents,
	)
}

// ──────────────────────────────────────────────────
// Cycle lifecycle hooks
// ──────────────────────────────────────────────────

// OnCycleAdvanced implements plugin.OnCycleAdvanced.
func (e *Extension) OnCycleAdvanced(ctx context.Context, p, phase string) error {
	return e.record(ctx, ActionCycleAdvanced, SeverityInfo, OutcomeSuccess,
		ResourceCycle, p, CategorySettlement, nil,
		"period", p,
		"phase", phase,
	)
}

// OnPeriodLocked implements plugin.OnPeriodLocked.
func (e *Extension) OnPeriodLocked(ctx context.Context, p string, recipients int) error {
	return e.record(ctx, ActionPeriodLocked, SeverityInfo, OutcomeSuccess,
		ResourceCycle, p, CategorySettlement, nil,
		"period", p,
		"recipients", recipients,
	)
}

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (e *Extension) OnSweepCompleted(ctx context.Context, p string, subscribers int, sweptCents int64) error {
	return e.record(ctx, ActionSweepCompleted, SeverityInfo, OutcomeSuccess,
		ResourceCycle, p, CategorySettlement, nil,
		"period", p,
		"subscribers", subscribers,
		"swept_cents", sweptCents,
	)
}

// ──────────────────────────────────────────────────
// Payout lifecycle hooks
// ──────────────────────────────────────────────────

// OnPayoutRequested implements plugin.OnPayoutRequested.
func (e *Extension) OnPayoutRequested(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionPayoutRequested, SeverityInfo, OutcomeSuccess,
		ResourcePayout, "", CategoryPayment, nil,
		"event", "payout_requested",
	)
}

// OnPayoutCompleted implements plugin.OnPayoutCompleted.
func (e *Extension) OnPayoutCompleted(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionPayoutCompleted, SeverityInfo, OutcomeSuccess,
		ResourcePayout, "", CategoryPayment, nil,
		"event", "payout_completed",
	)
}

// OnPayoutFailed implements plugin.OnPayoutFailed.
func (e *Extension) OnPayoutFailed(ctx context.Context, _ interface{}, terminal bool, err error) error {
	severity := SeverityWarning
	if terminal {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionPayoutFailed, severity, OutcomeFailure,
		ResourcePayout, "", CategoryPayment, err,
		"event", "payout_failed",
		"terminal", terminal,
	)
}

// ──────────────────────────────────────────────────
// Monitor hooks
// ──────────────────────────────────────────────────

// OnEscrowMismatch implements plugin.OnEscrowMismatch.
func (e *Extension) OnEscrowMismatch(ctx context.Context, obligationsCents, escrowCents int64, critical bool) error {
	severity := SeverityWarning
	if critical {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionEscrowMismatch, severity, OutcomeFailure,
		ResourceEscrow, "", CategoryMonitoring, nil,
		"obligations_cents", obligationsCents,
		"escrow_cents", escrowCents,
		"gap_cents", obligationsCents-escrowCents,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
