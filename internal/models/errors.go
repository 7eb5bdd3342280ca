package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrInvalidTimeframe = errors.New("invalid timeframe")
	ErrInvalidDate      = errors.New("invalid date")
	ErrUnknownSignalKey = errors.New("unknown signal key")
	ErrMixedSeries      = errors.New("bars belong to more than one symbol or timeframe")
	ErrDuplicateBar     = errors.New("duplicate bar for symbol, timeframe and date")
	ErrSymbolNotFound   = errors.New("symbol not found")
)

// StoreError reports a failed call to the external signal store.
// A page request that hits one fails as a whole.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store query %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err as a StoreError for op. A nil err yields nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err is, or wraps, a StoreError
func IsStoreError(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr)
}
