package checkout

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// FieldIssue is one field-level validation problem.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports a malformed or business-rule-violating
// submission. It is always surfaced to the caller and never retried.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid order submission"
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = fmt.Sprintf("%s: %s", issue.Field, issue.Message)
	}
	return "invalid order submission: " + strings.Join(parts, "; ")
}

// InsufficientStockError identifies the product an order could not be
// filled for. It triggers order rollback and is never retried.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

// ProcessingError wraps a storage failure during order creation.
type ProcessingError struct {
	Step string
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("order processing failed at %s: %v", e.Step, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
