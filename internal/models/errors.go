package models

import (
	"errors"
	"fmt"
)

// Error taxonomy. Reservation and order endpoints always map one of these to
// a specific status code; anything else is a transient storage failure.
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrStoreNotFound     = errors.New("store not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrStoreInactive     = errors.New("store is inactive or locked")
	ErrInvalidAction     = errors.New("action must be reserve or release")
	ErrOrderNotEditable  = errors.New("order is not in an editable state")
	ErrInvalidTransition = errors.New("order state does not allow this transition")
	ErrValidation        = errors.New("invalid request")
)

// InsufficientStockError is returned when a guarded update would drive
// availability negative. It carries the quantities observed at decision time
// so callers can render a useful message.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
	Reserved  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available=%d, requested=%d, reserved=%d",
		e.ProductID, e.Available, e.Requested, e.Reserved)
}

// IsInsufficientStock reports whether err is an insufficient stock failure
// and returns the typed error when it is.
func IsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		return ise, true
	}
	return nil, false
}

// ValidationError wraps ErrValidation with a field-level message.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
