package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed schedule input or a failed creation-time stock check.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced schedule, animal or food item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a consumption larger than the stock on hand.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPersistence wraps storage failures.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError describes why a field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InsufficientStockError carries the amounts involved in a rejected consumption.
type InsufficientStockError struct {
	FoodRef   string
	Requested float64
	Available float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %.3f, available %.3f", e.FoodRef, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Shortfall is the amount missing to satisfy the request.
func (e *InsufficientStockError) Shortfall() float64 {
	if e.Requested <= e.Available {
		return 0
	}
	return e.Requested - e.Available
}
