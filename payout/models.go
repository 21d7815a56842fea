package payout

import (
	"time"

	"github.com/xraph/patron/id"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/types"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CanTransitionTo reports whether the status may move to next. Failed
// retryable payouts go back through processing; completed is terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusProcessing
	default:
		return false
	}
}

// Settled reports whether the payout reached a resting state that the
// startup recovery scan can skip.
func (s Status) Settled() bool {
	return s == StatusCompleted
}

type FailureKind string

const (
	// FailureRetryable covers transient provider failures and timeouts.
	// The same idempotency key is reused on retry.
	FailureRetryable FailureKind = "retryable"
	// FailureTerminal covers rejections that retrying cannot fix, such as
	// a closed destination account.
	FailureTerminal FailureKind = "terminal"
)

// Payout is the write-ahead record for one external transfer. Its ID doubles
// as the idempotency key sent to the provider, so a payout interrupted
// mid-flight can be retried without double-paying.
type Payout struct {
	types.Entity
	ID          id.PayoutID       `json:"id"`
	RecipientID string            `json:"recipient_id"`
	Period      period.Period     `json:"period"`
	Amount      types.Money       `json:"amount"`
	Fee         types.Money       `json:"fee"`
	Net         types.Money       `json:"net"`
	Status      Status            `json:"status"`
	FailureKind FailureKind       `json:"failure_kind,omitempty"`
	Attempts    int               `json:"attempts"`
	LastError   string            `json:"last_error,omitempty"`
	Reference   string            `json:"reference,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	AppID       string            `json:"app_id"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// IdempotencyKey is the key presented to the transfer provider. Stable
// across retries of the same payout.
func (p *Payout) IdempotencyKey() string {
	return p.ID.String()
}
