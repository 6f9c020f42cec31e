package models

import (
	"errors"
	"fmt"
)

var (
	// ErrLimitExceeded is returned when a candle count exceeds the fetch maximum.
	ErrLimitExceeded = errors.New("candle limit exceeded")
	// ErrResolutionTimeout is returned when no price arrives in time for a symbol.
	ErrResolutionTimeout = errors.New("price resolution timeout")
	// ErrDeliveryUnknown marks a send whose outcome could not be determined.
	ErrDeliveryUnknown = errors.New("delivery outcome unknown")
	// ErrAlertNotFound is returned when removing an unknown alert.
	ErrAlertNotFound = errors.New("alert not found")
)

// ResolutionError is returned when the tradable symbol set cannot be obtained.
type ResolutionError struct {
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve symbol universe: %v", e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
