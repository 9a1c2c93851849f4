package api

import (
	"errors"
	"fmt"
	"live-auction/internal/domain"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.Reject(domain.ErrUnauthorized, "who"), http.StatusUnauthorized},
		{domain.Reject(domain.ErrSelfBidForbidden, "own"), http.StatusForbidden},
		{domain.Reject(domain.ErrAuctionClosed, "ended"), http.StatusConflict},
		{domain.Reject(domain.ErrBidTooLow, "low"), http.StatusConflict},
		{domain.Reject(domain.ErrInvalidAmount, "neg"), http.StatusBadRequest},
		{domain.Reject(domain.ErrInvalidSpec, "title"), http.StatusBadRequest},
		{fmt.Errorf("get: %w", domain.ErrAuctionNotFound), http.StatusNotFound},
		{&domain.SystemError{Op: "place bid", Err: errors.New("conn reset")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(domain.ReasonOf(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestNewErrorResponse(t *testing.T) {
	low := &domain.ValidationError{Err: domain.ErrBidTooLow, Message: "bid must be higher than 110.00 (minimum 110.01)", MinAmount: decimal.RequireFromString("110.01")}
	resp := NewErrorResponse(low)
	assert.Equal(t, "bid_too_low", resp.Reason)
	require.NotNil(t, resp.MinAmount)
	assert.Equal(t, "110.01", resp.MinAmount.String())

	sys := NewErrorResponse(&domain.SystemError{Op: "place bid", Err: errors.New("dial tcp 10.0.0.5:3306")})
	assert.Equal(t, "internal_error", sys.Reason)
	assert.NotContains(t, sys.Error, "10.0.0.5")
	assert.Nil(t, sys.MinAmount)
}
