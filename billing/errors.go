/*
errors.go - Error taxonomy of the billing engine

ERROR CATEGORIES:
  1. ConfigError       - bad tariff, fix it at the group configuration
  2. OrderingError     - null or unparseable timestamp in input data
  3. InvalidInputError - negative fee, negative threshold, duplicate mark...
  4. NotFoundError     - referenced group or student absent from inputs

None of them is retryable: the engine is deterministic, the same inputs
produce the same error. Callers must report "status unknown".

USAGE:
  status, err := billing.ComputeBillingStatus(...)
  switch {
  case billing.IsNotFound(err):   // 404
  case billing.IsClientError(err): // 400
  case billing.IsDataError(err):   // 422, upstream data must be fixed
  }
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfig is returned when a tariff cannot produce a positive price.
	ErrConfig = errors.New("invalid billing configuration")

	// ErrOrdering is returned when a record carries a null or unparseable date.
	ErrOrdering = errors.New("invalid record timestamp")

	// ErrInvalidInput is returned for negative amounts, thresholds and
	// malformed enum values.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a referenced group or student is missing.
	ErrNotFound = errors.New("not found")

	// ErrDuplicatePayment is returned by stores when a ledger entry ID exists.
	ErrDuplicatePayment = errors.New("duplicate payment id")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

type ConfigError struct {
	GroupID GroupID
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("billing config for group %q: %s", e.GroupID, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// OrderingError names the record whose date could not be ordered.
type OrderingError struct {
	Record string // "session", "payment", "group"
	ID     string
	Field  string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("%s %q: missing or unparseable %s", e.Record, e.ID, e.Field)
}

func (e *OrderingError) Unwrap() error { return ErrOrdering }

type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

type NotFoundError struct {
	Kind string // "group", "student"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable always returns false for engine errors.
func IsRetryable(_ error) bool {
	return false
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrDuplicatePayment)
}

// IsDataError returns true if the stored data itself is unusable
// (tariff or timestamps) and must be corrected at the source.
func IsDataError(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrOrdering)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
