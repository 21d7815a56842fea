package patron

import (
	"errors"
	"fmt"

	"github.com/xraph/patron/transfer"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("patron: not found")
	ErrInvalidInput = errors.New("patron: invalid input")

	// Balance errors
	ErrBalanceNotFound = errors.New("patron: balance not found")
	ErrBalanceRetired  = errors.New("patron: balance is retired")

	// Allocation errors
	ErrAllocationNotFound = errors.New("patron: allocation not found")
	ErrAllocationInactive = errors.New("patron: allocation is inactive")
	ErrPeriodLocked       = errors.New("patron: period is locked")

	// Earnings errors
	ErrEarningNotFound = errors.New("patron: earnings record not found")
	ErrEarningLocked   = errors.New("patron: earnings record is locked")

	// Cycle errors
	ErrCycleNotFound  = errors.New("patron: cycle not found")
	ErrCycleRunning   = errors.New("patron: cycle already running for period")
	ErrCycleClosed    = errors.New("patron: cycle is closed")
	ErrInvalidAdvance = errors.New("patron: invalid cycle phase advance")

	// Payout errors
	ErrPayoutNotFound   = errors.New("patron: payout not found")
	ErrBelowThreshold   = errors.New("patron: available balance below payout threshold")
	ErrPayoutInFlight   = errors.New("patron: payout already in flight for recipient and period")
	ErrPayoutTerminal   = errors.New("patron: payout failed terminally")
	ErrNoTransferClient = errors.New("patron: no transfer client configured")

	// Monitor errors
	ErrEscrowMismatch = errors.New("patron: escrow balance below outstanding obligations")

	// Store errors
	ErrStoreNotReady     = errors.New("patron: store not ready")
	ErrStoreClosed       = errors.New("patron: store is closed")
	ErrTransactionFailed = errors.New("patron: transaction failed")
	ErrMigrationFailed   = errors.New("patron: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("patron: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "patron: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("patron: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBalanceNotFound) ||
		errors.Is(err, ErrAllocationNotFound) ||
		errors.Is(err, ErrEarningNotFound) ||
		errors.Is(err, ErrCycleNotFound) ||
		errors.Is(err, ErrPayoutNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
// Provider failures defer to the transfer package's classification.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrCycleRunning) ||
		transfer.IsRetryable(err)
}
