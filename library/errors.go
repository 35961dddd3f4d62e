/*
errors.go - Centralized error types for the library engine

PURPOSE:
  All error kinds the engine surfaces, in one place. Callers match on the
  sentinels with errors.Is; the structured errors carry context and unwrap
  to their sentinel.

ERROR CATEGORIES:
  1. Lookup:      ErrNotFound (NotFoundError)
  2. Uniqueness:  ErrConflict (ConflictError)
  3. Input:       ErrValidation (ValidationError)
  4. Issuance rules: ErrUnavailable, ErrBlocked, ErrDuplicateIssuance,
                  ErrAlreadyReturned, ErrInsufficientInventory
  5. Integrity:   ErrOutstandingIssuances, ErrConcurrentModification
  6. Auth:        ErrInvalidCredentials

  Anything else (a store failure) is fatal to the request. Nothing here is
  retried by the engine except a lost stock swap, see inventory.go.

SEE ALSO:
  - api/respond.go: Maps these errors to HTTP status codes
*/
package library

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable is returned when issuing a book with no copies left.
	ErrUnavailable = errors.New("book is not available for issuing")

	// ErrBlocked is returned when issuing to a blocked reader.
	ErrBlocked = errors.New("reader is blocked")

	// ErrDuplicateIssuance is returned when the same book is already
	// outstanding with the same reader.
	ErrDuplicateIssuance = errors.New("book already issued to this reader")

	// ErrAlreadyReturned is returned when returning a closed issuance.
	ErrAlreadyReturned = errors.New("book has already been returned")

	// ErrInsufficientInventory is returned by the ledger when decrementing
	// a book whose quantity is already zero.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrConcurrentModification is returned when a stock swap keeps losing
	// to concurrent writers.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrOutstandingIssuances is returned when deleting a book or reader
	// that outstanding issuances still reference.
	ErrOutstandingIssuances = errors.New("outstanding issuances reference this record")

	// ErrInvalidCredentials is returned when a password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "book", "reader", "issued book", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError names the violated unique field.
type ConflictError struct {
	Kind  string
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s with this %s already exists", e.Kind, e.Field)
	}
	return fmt.Sprintf("%s with %s %q already exists", e.Kind, e.Field, e.Value)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ValidationError collects field-level problems.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// OutstandingIssuancesError reports how many open issuances block a delete.
type OutstandingIssuancesError struct {
	Kind  string
	ID    string
	Count int
}

func (e *OutstandingIssuancesError) Error() string {
	return fmt.Sprintf("%s %q has %d outstanding issued book(s)", e.Kind, e.ID, e.Count)
}

func (e *OutstandingIssuancesError) Unwrap() error { return ErrOutstandingIssuances }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for uniqueness and integrity conflicts.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrOutstandingIssuances) ||
		errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsRuleViolation returns true for issuance rule violations.
func IsRuleViolation(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrBlocked) ||
		errors.Is(err, ErrDuplicateIssuance) ||
		errors.Is(err, ErrAlreadyReturned)
}
