package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Rejection reasons the caller can fix.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrSelfBidForbidden = errors.New("self bid forbidden")
	ErrAuctionClosed    = errors.New("auction closed")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrBidTooLow        = errors.New("bid too low")
	ErrInvalidSpec      = errors.New("invalid auction spec")
)

var ErrAuctionNotFound = errors.New("auction not found")

// ValidationError is a client-fixable rejection. It is never retried.
type ValidationError struct {
	Err     error
	Message string
	// MinAmount is set for ErrBidTooLow: the lowest amount that would be accepted.
	MinAmount decimal.Decimal
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Reason is the wire name of the rejection.
func (e *ValidationError) Reason() string {
	return ReasonOf(e.Err)
}

func Reject(err error, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Err: err, Message: fmt.Sprintf(format, args...)}
}

// SystemError is a persistence or infrastructure failure.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsSystem(err error) bool {
	var s *SystemError
	return errors.As(err, &s)
}

// ReasonOf maps an error to its wire reason code.
func ReasonOf(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrSelfBidForbidden):
		return "self_bid_forbidden"
	case errors.Is(err, ErrAuctionClosed):
		return "auction_closed"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, ErrInvalidSpec):
		return "invalid_spec"
	case errors.Is(err, ErrAuctionNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}
