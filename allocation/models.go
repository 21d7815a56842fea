package allocation

import (
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Allocation is a subscriber's standing pledge to one recipient's resource
// for one period. At most one allocation exists per
// (subscriber, recipient, resource, period); re-pledging replaces the amount
// rather than stacking a second row.
type Allocation struct {
	types.Entity
	ID           id.AllocationID   `json:"id"`
	SubscriberID string            `json:"subscriber_id"`
	RecipientID  string            `json:"recipient_id"`
	ResourceID   string            `json:"resource_id"`
	Period       period.Period     `json:"period"`
	Amount       types.Money       `json:"amount"`
	Status       Status            `json:"status"`
	AppID        string            `json:"app_id"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (a *Allocation) IsActive() bool {
	return a.Status == StatusActive
}
