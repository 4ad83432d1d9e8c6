package reconcile

import (
	"context"
	"errors"

	"matchBack/internal/models"
)

// OutcomeKind tags the result of a user initiated purchase request.
type OutcomeKind string

const (
	OutcomeSuccess     OutcomeKind = "success"
	OutcomeCancelled   OutcomeKind = "cancelled"
	OutcomeRecoverable OutcomeKind = "recoverable"
	OutcomeFatal       OutcomeKind = "fatal"
)

// Outcome is the decision layer's answer for a buy request.
type Outcome struct {
	Kind      OutcomeKind
	SKU       string
	Category  models.ProductCategory
	SKUSource SKUSource
	Err       error
}

// Decide classifies an error returned by the purchase path.
func Decide(err error) OutcomeKind {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, models.ErrUserCancelled):
		return OutcomeCancelled
	case errors.Is(err, models.ErrNetwork),
		errors.Is(err, models.ErrConnection),
		errors.Is(err, context.DeadlineExceeded):
		return OutcomeRecoverable
	default:
		return OutcomeFatal
	}
}
