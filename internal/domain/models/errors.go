package models

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientData is returned when a price or return history is shorter than the required window.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidParameter is returned for non-positive spot/strike/expiry, negative volatility or a zero market price.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrExternalFetch wraps failures of a data-acquisition collaborator.
	ErrExternalFetch = errors.New("external fetch failed")
	// ErrAllocationUndefined is returned when no capital split exists for the opportunity set.
	ErrAllocationUndefined = errors.New("allocation undefined")
	// ErrNonConvergence marks a recoverable volatility-fit failure.
	ErrNonConvergence = errors.New("volatility fit did not converge")
)

// Error kinds used in reports, metric labels and API error codes.
const (
	KindInsufficientData    = "insufficient_data"
	KindInvalidParameter    = "invalid_parameter"
	KindExternalFetch       = "external_fetch"
	KindTimeout             = "timeout"
	KindNonConvergence      = "non_convergence"
	KindAllocationUndefined = "allocation_undefined"
	KindInternal            = "internal"
)

// ErrorKind classifies err into one of the Kind* constants.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrInsufficientData):
		return KindInsufficientData
	case errors.Is(err, ErrInvalidParameter):
		return KindInvalidParameter
	case errors.Is(err, ErrExternalFetch):
		return KindExternalFetch
	case errors.Is(err, ErrNonConvergence):
		return KindNonConvergence
	case errors.Is(err, ErrAllocationUndefined):
		return KindAllocationUndefined
	default:
		return KindInternal
	}
}
