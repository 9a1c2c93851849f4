// Package api holds what the REST and WebSocket surfaces share: the error
// body and its HTTP status.
package api

import (
	"errors"
	"live-auction/internal/domain"
	"net/http"

	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error     string           `json:"error"`
	Reason    string           `json:"reason"`
	MinAmount *decimal.Decimal `json:"min_amount,omitempty"`
}

// StatusCode maps a ledger error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrSelfBidForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAuctionClosed), errors.Is(err, domain.ErrBidTooLow):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidSpec):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuctionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// NewErrorResponse never leaks system error details to the client.
func NewErrorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Reason: domain.ReasonOf(err)}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		resp.Error = verr.Error()
		if errors.Is(err, domain.ErrBidTooLow) {
			floor := verr.MinAmount
			resp.MinAmount = &floor
		}
	case errors.Is(err, domain.ErrAuctionNotFound):
		resp.Error = "auction not found"
	default:
		resp.Error = "temporarily unavailable, try again"
	}
	return resp
}
