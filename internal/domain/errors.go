package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Queue errors
	ErrDuplicateEntry      = errors.New("business already has a pending or active boost in this category")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrEntryNotFound       = errors.New("queue entry not found")
	ErrAlreadyTerminal     = errors.New("boost is already expired or canceled")
	ErrConcurrencyConflict = errors.New("category queue was modified concurrently")
	ErrInvalidTransition   = errors.New("invalid boost status transition")
	ErrInvariantViolation  = errors.New("category queue invariant violated")

	// Payment errors
	ErrPaymentGateway      = errors.New("payment gateway error")
	ErrPaymentNotCompleted = errors.New("payment has not succeeded")
	ErrRefundNeedsReview   = errors.New("refund cannot be settled automatically")

	// Record errors
	ErrBusinessNotFound     = errors.New("business not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNotOwner             = errors.New("business does not belong to this owner")

	// Validation errors
	ErrInvalidBusinessID = errors.New("invalid business id")
	ErrInvalidOwnerID    = errors.New("invalid owner id")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
)

// PaymentGatewayError wraps a failure from the payment collaborator
type PaymentGatewayError struct {
	Op  string
	Err error
}

func (e *PaymentGatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *PaymentGatewayError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPaymentGateway) match any gateway failure
func (e *PaymentGatewayError) Is(target error) bool {
	return target == ErrPaymentGateway
}

// NewPaymentGatewayError wraps err; nil stays nil
func NewPaymentGatewayError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PaymentGatewayError{Op: op, Err: err}
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrBusinessNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidBusinessID) ||
		errors.Is(err, ErrInvalidOwnerID) ||
		errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDuplicateEntry) ||
		errors.Is(err, ErrAlreadyTerminal) ||
		errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrInvalidTransition)
}
