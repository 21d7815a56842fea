package balance

import (
	"time"

	"github.com/xraph/patron/id"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/types"
)

// SubscriberBalance is one subscriber's budget record for one period.
// Allocated is always a fresh sum over active allocations, never an
// increment, so a recompute after any failure converges to the truth.
type SubscriberBalance struct {
	types.Entity
	ID           id.BalanceID      `json:"id"`
	SubscriberID string            `json:"subscriber_id"`
	Period       period.Period     `json:"period"`
	Currency     string            `json:"currency"`
	TotalBudget  types.Money       `json:"total_budget"`
	Allocated    types.Money       `json:"allocated"`
	Swept        types.Money       `json:"swept"`
	Retired      bool              `json:"retired"`
	RetiredAt    *time.Time        `json:"retired_at,omitempty"`
	AppID        string            `json:"app_id"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Available is the unallocated remainder of the budget. It can be negative
// when the budget was lowered below the standing allocation total.
func (b *SubscriberBalance) Available() types.Money {
	return b.TotalBudget.Subtract(b.Allocated)
}

// Overspent reports whether standing allocations exceed the budget.
// Overspent balances fund earnings pro rata instead of at face value.
func (b *SubscriberBalance) Overspent() bool {
	return b.Allocated.GreaterThan(b.TotalBudget)
}
