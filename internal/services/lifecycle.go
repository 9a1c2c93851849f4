package services

import (
	"live-auction/internal/domain"
	"time"
)

// StatusOf derives the lifecycle status from end time. The stored Status
// field is never consulted.
func StatusOf(a *domain.Auction, now time.Time) domain.AuctionStatus {
	if !now.Before(a.EndTime) {
		return domain.AuctionEnded
	}
	return domain.AuctionActive
}

// resolve returns a copy of a with Status set from the clock and reports
// whether the stored column is behind. A stored ended status is terminal and
// survives a reader whose clock is behind EndTime.
func resolve(a *domain.Auction, now time.Time) (*domain.Auction, bool) {
	out := a.Clone()
	if out.Status == domain.AuctionEnded {
		return out, false
	}
	out.Status = StatusOf(a, now)
	return out, out.Status == domain.AuctionEnded
}
