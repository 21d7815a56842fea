// Package transfer defines the boundary to the external payment and escrow
// provider.
//
// The engine never talks to a provider directly; it goes through Client,
// which applications implement against their payment processor. Every
// transfer carries an idempotency key the provider is expected to
// deduplicate on, so retries after crashes or timeouts cannot double-pay.
package transfer

import (
	"context"
	"errors"

	"github.com/xraph/patron/period"
	"github.com/xraph/patron/types"
)

// Request is one escrow-to-recipient transfer.
type Request struct {
	// IdempotencyKey deduplicates retries at the provider. Stable across
	// every attempt of the same payout.
	IdempotencyKey string
	RecipientID    string
	Period         period.Period
	Amount         types.Money
	Metadata       map[string]string
}

// Result is the provider's acknowledgement of a transfer.
type Result struct {
	// Reference is the provider-side identifier of the transfer.
	Reference string
}

// Client is the outbound payment boundary.
type Client interface {
	// Transfer moves funds from escrow to the recipient. Implementations
	// must deduplicate on Request.IdempotencyKey; presenting the same key
	// twice returns the original outcome without moving funds again.
	Transfer(ctx context.Context, req Request) (*Result, error)

	// EscrowBalance returns the funds currently held in escrow.
	EscrowBalance(ctx context.Context) (types.Money, error)
}

// Error is a provider failure. Retryable distinguishes transient faults,
// which the payout processor retries with backoff, from terminal rejections
// such as a closed destination account.
type Error struct {
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return "transfer: " + e.Code + ": " + e.Message
	}

	return "transfer: " + e.Code
}

func (e *Error) Unwrap() error { return e.Cause }

// Common provider error codes.
const (
	CodeTimeout        = "timeout"
	CodeUnavailable    = "unavailable"
	CodeRateLimited    = "rate_limited"
	CodeAccountClosed  = "account_closed"
	CodeAccountMissing = "account_missing"
	CodeRejected       = "rejected"
)

// Transient wraps a retryable provider failure.
func Transient(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Retryable: true, Cause: cause}
}

// Terminal wraps a non-retryable provider failure.
func Terminal(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Retryable: false, Cause: cause}
}

// IsRetryable reports whether err is a provider failure worth retrying.
// Timeouts and context deadline expiry count as retryable because the
// outcome is unknown; the idempotency key makes the retry safe.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *Error
	if errors.As(err, &te) {
		return te.Retryable
	}

	return errors.Is(err, context.DeadlineExceeded)
}
