/*
errors.go - Centralized error types for the commission engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on sentinels with errors.Is and recover structured
  context with errors.As.

ERROR CATEGORIES:
  1. Validation errors - Malformed purchases, rejected before any side effect
  2. Graph errors - Corrupt sponsor data (cycles), fatal for that member
  3. Ledger errors - Idempotency and persistence outcomes
  4. Config errors - Invalid commission structures, rejected at load time

RETRY SEMANTICS:
  A replay is NOT a failure - it is reported as success through
  Receipt.AlreadyApplied, never as an error. ErrStorageFailure is transient
  and the whole batch may be retried; every write is idempotent by
  construction so replays are safe.
*/
package engine

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed purchase events (negative
	// amount, unknown buyer, missing idempotency key). Never retried.
	ErrValidation = errors.New("invalid purchase event")

	// ErrCycleDetected is returned when the sponsor graph contains a cycle.
	// This indicates data corruption and requires manual repair.
	ErrCycleDetected = errors.New("cycle detected in sponsor graph")

	// ErrStorageFailure is returned for transient persistence failures.
	// The whole purchase batch is retried as a unit.
	ErrStorageFailure = errors.New("storage failure")

	// ErrConfigInvalid is returned when a commission structure fails
	// validation. Rejected at load time, before any purchase references it.
	ErrConfigInvalid = errors.New("invalid commission structure")

	// ErrMemberNotFound is returned when a referenced member doesn't exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrSponsorNotFound is returned when a new member names a sponsor that
	// doesn't exist. The sponsor graph must stay a forest.
	ErrSponsorNotFound = errors.New("sponsor not found")

	// ErrDistributionInProgress is returned when a passive pool distribution
	// is requested while another one is running.
	ErrDistributionInProgress = errors.New("pool distribution already in progress")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError details why a purchase event was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid purchase event: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// CycleError identifies where a sponsor cycle was found so the data can be
// repaired manually.
type CycleError struct {
	MemberID  MemberID
	RepeatsAt MemberID
	Walked    []MemberID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected in sponsor graph: walking upline of %s revisits %s after %d hops",
		e.MemberID, e.RepeatsAt, len(e.Walked))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// StructureError details which field of a commission structure is invalid.
type StructureError struct {
	Version int
	Reason  string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("invalid commission structure v%d: %s", e.Version, e.Reason)
}

func (e *StructureError) Unwrap() error { return ErrConfigInvalid }

// BatchError reports a purchase batch that could not be applied. The whole
// batch was rolled back - no entry of the purchase is half-applied.
type BatchError struct {
	PurchaseEventID string
	Entry           *LedgerEntry // The entry that failed, if known
	Err             error
}

func (e *BatchError) Error() string {
	if e.Entry != nil {
		return fmt.Sprintf("purchase %s rolled back: entry %s/%s: %v",
			e.PurchaseEventID, e.Entry.RecipientID, e.Entry.Kind, e.Err)
	}
	return fmt.Sprintf("purchase %s rolled back: %v", e.PurchaseEventID, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConfigInvalid) ||
		errors.Is(err, ErrSponsorNotFound)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound)
}

// =============================================================================
// RETRY - Transient storage failures
// =============================================================================

// Retry runs fn up to attempts times with exponential backoff, retrying only
// errors for which IsRetryable is true. Safe for ledger writes because every
// write is idempotent.
func Retry(attempts int, initial time.Duration, fn func() error) error {
	var err error
	delay := initial
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
