package cycle

import (
	"time"

	"github.com/xraph/patron/id"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/types"
)

// Phase is one step of the monthly close. Phases only move forward; a crashed
// close resumes from the persisted phase rather than starting over.
type Phase string

const (
	PhaseOpen            Phase = "open"
	PhaseLocking         Phase = "locking"
	PhaseCalculating     Phase = "calculating"
	PhaseSweeping        Phase = "sweeping"
	PhasePayoutTriggered Phase = "payout_triggered"
	PhaseClosed          Phase = "closed"
)

var phaseRank = map[Phase]int{
	PhaseOpen:            0,
	PhaseLocking:         1,
	PhaseCalculating:     2,
	PhaseSweeping:        3,
	PhasePayoutTriggered: 4,
	PhaseClosed:          5,
}

// Next returns the phase that follows p, or p itself for closed.
func (p Phase) Next() Phase {
	switch p {
	case PhaseOpen:
		return PhaseLocking
	case PhaseLocking:
		return PhaseCalculating
	case PhaseCalculating:
		return PhaseSweeping
	case PhaseSweeping:
		return PhasePayoutTriggered
	case PhasePayoutTriggered:
		return PhaseClosed
	default:
		return p
	}
}

// CanAdvanceTo reports whether the phase may move to next. Only single
// forward steps are allowed.
func (p Phase) CanAdvanceTo(next Phase) bool {
	pr, ok := phaseRank[p]
	if !ok {
		return false
	}
	nr, ok := phaseRank[next]
	if !ok {
		return false
	}

	return nr == pr+1
}

// Terminal reports whether the phase ends the cycle.
func (p Phase) Terminal() bool { return p == PhaseClosed }

// State is the persisted checkpoint of one period's close. Counters record
// progress for observability; resumability comes from record statuses, not
// from the counters. PayoutsRequested counts dispatches whose transfer
// settled; failed dispatches stay visible on their payout records.
type State struct {
	types.Entity
	ID               id.CycleID    `json:"id"`
	Period           period.Period `json:"period"`
	Phase            Phase         `json:"phase"`
	LockedRecipients int           `json:"locked_recipients"`
	SweptSubscribers int           `json:"swept_subscribers"`
	SweptTotal       types.Money   `json:"swept_total"`
	PayoutsRequested int           `json:"payouts_requested"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	ClosedAt         *time.Time    `json:"closed_at,omitempty"`
	LastError        string        `json:"last_error,omitempty"`
	AppID            string        `json:"app_id"`
}
