package utils

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// returns slice removing duplicate elements
func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

// safely dereference pointer of type T, nil pointer return zero value or optional default
func DereferencePtr[T any](ptr *T, defaults ...T) T {
	var defaultValue T
	if len(defaults) > 0 {
		defaultValue = defaults[0]
	}
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}

func NilIfEmpty[T comparable](ptr T) *T {
	var defaultZero T
	if ptr == defaultZero {
		return nil
	}
	return &ptr
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}
	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}
	return dec, nil
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns the UTC calendar day.
// An empty value means today.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		t, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, errors.New("invalid date " + value + ", expected YYYY-MM-DD")
		}
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
