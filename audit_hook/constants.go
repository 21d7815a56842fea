package audithook

// Action constants for audit events.
const (
	// Allocation actions
	ActionAllocationUpserted = "allocation.upserted"
	ActionAllocationRemoved  = "allocation.removed"
	ActionEarningsRecomputed = "earnings.recomputed"

	// Cycle actions
	ActionCycleAdvanced  = "cycle.advanced"
	ActionPeriodLocked   = "period.locked"
	ActionSweepCompleted = "sweep.completed"

	// Payout actions
	ActionPayoutRequested = "payout.requested"
	ActionPayoutCompleted = "payout.completed"
	ActionPayoutFailed    = "payout.failed"

	// Monitor actions
	ActionEscrowMismatch = "escrow.mismatch"
)

// Resource constants for audit events.
const (
	ResourceAllocation = "allocation"
	ResourceEarnings   = "earnings"
	ResourceCycle      = "cycle"
	ResourcePayout     = "payout"
	ResourceEscrow     = "escrow"
)

// Category constants for audit events.
const (
	CategoryAllocation = "allocation"
	CategorySettlement = "settlement"
	CategoryPayment    = "payment"
	CategoryMonitoring = "monitoring"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
