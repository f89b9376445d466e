package domain

import (
	"errors"
	"fmt"
)

// Caller input errors. Surfaced immediately, no mutation attempted.
var (
	ErrInvalidStatus          = errors.New("invalid rule status: must be 'active' or 'inactive'")
	ErrInvalidTransactionType = errors.New("invalid transaction type: must be 'Debit' or 'Credit'")
	ErrInvalidIdentifierType  = errors.New("invalid identifier type: must be 'merchant_name_cleaned' or 'description_cleaned'")
	ErrInvalidConfidence      = errors.New("invalid confidence score: must be between 0 and 1")
	ErrInvalidCategory        = errors.New("invalid category")
)

// WarehouseError wraps a BigQuery communication or query failure. The
// operation that hit it is aborted; whatever the store's own statement
// already committed stays committed.
type WarehouseError struct {
	Op  string
	Err error
}

func (e *WarehouseError) Error() string {
	return fmt.Sprintf("warehouse error in %s: %v", e.Op, e.Err)
}

func (e *WarehouseError) Unwrap() error { return e.Err }

// LabelingServiceError wraps a failed model call. Stage 2 is aborted;
// stage 1 results are preserved.
type LabelingServiceError struct {
	Err error
}

func (e *LabelingServiceError) Error() string {
	return fmt.Sprintf("labeling service error: %v", e.Err)
}

func (e *LabelingServiceError) Unwrap() error { return e.Err }

// ValidationError means the labeling response was unusable as a whole.
// RawResponse carries the payload for diagnosis; no row was mutated.
type ValidationError struct {
	RawResponse string
	Err         error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("labeling response validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RuleConflictError reports an existing rule with the same match key but a
// different category assignment.
type RuleConflictError struct {
	Existing Rule
}

func (e *RuleConflictError) Error() string {
	return fmt.Sprintf("rule conflict: rule %s already maps (%s, %s, %s) to %s/%s",
		e.Existing.RuleID, e.Existing.Identifier, e.Existing.IdentifierType,
		e.Existing.TransactionType, e.Existing.PrimaryCategory, e.Existing.SecondaryCategory)
}
