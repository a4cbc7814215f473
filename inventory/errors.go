package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrInvalidTypeConversion = errors.New("invalid type conversion")
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("validation error")
	ErrDatabase              = errors.New("database error")
)

// Quantity is a bag count paired with its weight in quintals.
type Quantity struct {
	Bags     int64           `json:"bags"`
	Quintals decimal.Decimal `json:"quintals"`
}

func (q Quantity) IsZero() bool {
	return q.Bags == 0 && q.Quintals.IsZero()
}

// shortfallOf returns max(0, requested-available) per dimension.
func shortfallOf(requested, available Quantity) Quantity {
	var s Quantity
	if requested.Bags > available.Bags {
		s.Bags = requested.Bags - available.Bags
	}
	if requested.Quintals.GreaterThan(available.Quintals) {
		s.Quintals = requested.Quintals.Sub(available.Quintals)
	}
	return s
}

type InsufficientStockError struct {
	GroupingKey string
	Available   Quantity
	Requested   Quantity
	Shortfall   Quantity
	Suggestions []string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d bags / %s qtls, requested %d bags / %s qtls, short by %d bags / %s qtls",
		e.GroupingKey,
		e.Available.Bags, e.Available.Quintals.String(),
		e.Requested.Bags, e.Requested.Quintals.String(),
		e.Shortfall.Bags, e.Shortfall.Quintals.String())
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type InvalidTypeConversionError struct {
	From         string
	To           string
	FromCategory ProductCategory
	ToCategory   ProductCategory
}

func (e *InvalidTypeConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s (%s) to %s (%s): palti must stay within one product category",
		e.From, e.FromCategory, e.To, e.ToCategory)
}

func (e *InvalidTypeConversionError) Is(target error) bool { return target == ErrInvalidTypeConversion }

type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type ValidationError struct {
	Missing []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required fields: " + strings.Join(e.Missing, ", ")
	}
	return e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DatabaseError wraps an infrastructure failure; callers may retry with backoff.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error        { return e.Err }
func (e *DatabaseError) Is(target error) bool { return target == ErrDatabase }
func (e *DatabaseError) Retryable() bool      { return true }

// wrapStoreError leaves typed errors alone and wraps anything else as a DatabaseError.
func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrDatabase) {
		return err
	}
	return &DatabaseError{Op: op, Err: err}
}
