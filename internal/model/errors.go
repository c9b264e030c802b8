package model

import (
	"errors"
	"fmt"
)

// ValidationError is returned for malformed input (non-positive quantity,
// zero delta, missing fields). It is raised before any transaction starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientStockError is returned when a deduction asks for more than is
// available. It names the product and how much is actually there.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// InvariantViolationError is returned when an adjustment would drive stock
// negative. The transaction is rolled back entirely.
type InvariantViolationError struct {
	ProductID int64
	Current   int
	Delta     int
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("adjustment would result in negative stock: %d + %d = %d",
		e.Current, e.Delta, e.Current+e.Delta)
}

// InvalidTransitionError is returned for a state-machine transition not
// permitted from the current status.
type InvalidTransitionError struct {
	Entity string
	Status string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s in %s status", e.Action, e.Entity, e.Status)
}

// ForbiddenError is returned when the actor's role is insufficient for the
// requested operation.
type ForbiddenError struct {
	Action string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("not permitted to %s", e.Action)
}

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInsufficientStock reports whether err is an InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var ise *InsufficientStockError
	return errors.As(err, &ise)
}

// IsInvariantViolation reports whether err is an InvariantViolationError.
func IsInvariantViolation(err error) bool {
	var ive *InvariantViolationError
	return errors.As(err, &ive)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}

// IsForbidden reports whether err is a ForbiddenError.
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}
