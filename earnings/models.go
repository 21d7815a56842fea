package earnings

import (
	"time"

	"github.com/xraph/patron/id"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/types"
)

type Status string

const (
	// StatusPending earnings track live allocations and are recomputed
	// whenever the subscriber's allocations or budget change.
	StatusPending Status = "pending"
	// StatusAvailable earnings are locked at period close and no longer move.
	StatusAvailable Status = "available"
	// StatusPaidOut earnings have been attached to a payout.
	StatusPaidOut Status = "paid_out"
)

// CanTransitionTo reports whether the status may move to next. Earnings only
// move forward: pending -> available -> paid_out.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusAvailable
	case StatusAvailable:
		return next == StatusPaidOut
	default:
		return false
	}
}

// Record is one recipient's funded earning from one allocation in one
// period. Allocated is the face value of the allocation; Amount is what the
// subscriber's budget actually funds after pro-rata scaling. Amount never
// exceeds Allocated.
type Record struct {
	types.Entity
	ID           id.EarningID      `json:"id"`
	RecipientID  string            `json:"recipient_id"`
	SubscriberID string            `json:"subscriber_id"`
	AllocationID id.AllocationID   `json:"allocation_id"`
	Period       period.Period     `json:"period"`
	Allocated    types.Money       `json:"allocated"`
	Amount       types.Money       `json:"amount"`
	Ratio        float64           `json:"ratio"`
	Status       Status            `json:"status"`
	PayoutID     id.PayoutID       `json:"payout_id,omitempty"`
	LockedAt     *time.Time        `json:"locked_at,omitempty"`
	PaidOutAt    *time.Time        `json:"paid_out_at,omitempty"`
	AppID        string            `json:"app_id"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}
