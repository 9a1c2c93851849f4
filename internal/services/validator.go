package services

import (
	"live-auction/internal/domain"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits a money value may carry.
const MoneyPlaces = 2

var DefaultMinIncrement = decimal.New(1, -MoneyPlaces)

// MaxAmount is the largest value the DECIMAL(12,2) money columns hold.
var MaxAmount = decimal.New(1, 10).Sub(decimal.New(1, -MoneyPlaces))

// BidValidator is the fast-reject filter applied before the atomic store step.
// The same checks run again against the locked auction row.
type BidValidator struct {
	minIncrement decimal.Decimal
}

func NewBidValidator(minIncrement decimal.Decimal) *BidValidator {
	if !minIncrement.IsPositive() {
		minIncrement = DefaultMinIncrement
	}
	return &BidValidator{minIncrement: minIncrement}
}

// MinimumBid is the lowest amount that beats currentPrice.
func (v *BidValidator) MinimumBid(currentPrice decimal.Decimal) decimal.Decimal {
	return currentPrice.Add(v.minIncrement)
}

// Validate checks req against snapshot at now. First failure wins.
func (v *BidValidator) Validate(req domain.BidRequest, snapshot *domain.Auction, now time.Time) error {
	if req.BidderID == "" {
		return domain.Reject(domain.ErrUnauthorized, "bidder identity required")
	}
	if snapshot == nil {
		return domain.ErrAuctionNotFound
	}
	if req.BidderID == snapshot.OwnerID {
		return domain.Reject(domain.ErrSelfBidForbidden, "owner cannot bid on auction %s", snapshot.ID)
	}
	// ended is terminal; a stored ended flag is never stale.
	if snapshot.Status == domain.AuctionEnded || StatusOf(snapshot, now) != domain.AuctionActive {
		return domain.Reject(domain.ErrAuctionClosed, "auction ended at %s", snapshot.EndTime.Format(time.RFC3339))
	}
	if err := ValidateMoney(req.Amount); err != nil {
		return domain.Reject(domain.ErrInvalidAmount, "%v", err)
	}

	min := v.MinimumBid(snapshot.CurrentPrice)
	if req.Amount.LessThan(min) {
		return &domain.ValidationError{
			Err: domain.ErrBidTooLow,
			Message: "bid must be higher than " + snapshot.CurrentPrice.StringFixed(MoneyPlaces) +
				" (minimum " + min.StringFixed(MoneyPlaces) + ")",
			MinAmount: min,
		}
	}
	return nil
}

// Check adapts Validate to the store's locked re-validation hook.
func (v *BidValidator) Check(req domain.BidRequest, now time.Time) domain.BidCheck {
	return func(current *domain.Auction) error {
		return v.Validate(req, current, now)
	}
}

// ValidateMoney reports whether d is a positive amount at cent precision
// that the stores can hold.
func ValidateMoney(d decimal.Decimal) error {
	if !d.IsPositive() {
		return errNotPositive
	}
	if d.GreaterThan(MaxAmount) {
		return errTooLarge
	}
	if !d.Equal(d.Truncate(MoneyPlaces)) {
		return errSubCent
	}
	return nil
}

type moneyError string

func (e moneyError) Error() string { return string(e) }

const (
	errNotPositive moneyError = "amount must be positive"
	errSubCent     moneyError = "amount must have at most two decimal places"
	errTooLarge    moneyError = "amount must not exceed 9999999999.99"
)
