package services

import (
	"context"
	"live-auction/internal/domain"
	"live-auction/internal/feed"
	"live-auction/pkg/logger"
)

// FeedService pairs snapshots from the Ledger with live events from the
// Hub. It always subscribes before reading, so no commit can fall between
// the snapshot and the first live event.
type FeedService struct {
	ledger *Ledger
	hub    *feed.Hub
	log    logger.Logger
}

func NewFeedService(ledger *Ledger, hub *feed.Hub, log logger.Logger) *FeedService {
	return &FeedService{ledger: ledger, hub: hub, log: log}
}

type AuctionWatch struct {
	Auction *domain.Auction
	Bids    []*domain.Bid
	// Sub is already closed when the auction had ended at snapshot time.
	Sub *feed.Subscription
}

type UserWatch struct {
	Scope feed.Scope
	Owned []*domain.Auction
	BidOn []*domain.BidOnSummary
	Sub   *feed.Subscription
}

func (s *FeedService) WatchAuction(ctx context.Context, auctionID string) (*AuctionWatch, error) {
	sub, err := s.hub.Subscribe(ctx, feed.ForAuction(auctionID))
	if err != nil {
		return nil, &domain.SystemError{Op: "subscribe", Err: err}
	}

	auction, err := s.ledger.GetAuction(ctx, auctionID)
	if err != nil {
		sub.Close()
		return nil, err
	}
	bids, err := s.ledger.ListBids(ctx, auctionID)
	if err != nil {
		sub.Close()
		return nil, err
	}

	s.hub.Prime(auctionID, auction.Version)
	if auction.Status == domain.AuctionEnded {
		sub.Close()
	}
	return &AuctionWatch{Auction: auction, Bids: bids, Sub: sub}, nil
}

func (s *FeedService) WatchUser(ctx context.Context, userID string, scope feed.Scope) (*UserWatch, error) {
	if userID == "" {
		return nil, domain.Reject(domain.ErrUnauthorized, "user identity required")
	}
	if _, err := feed.ParseScope(string(scope)); err != nil {
		return nil, domain.Reject(domain.ErrInvalidSpec, "%v", err)
	}

	sub, err := s.hub.Subscribe(ctx, feed.ForUser(userID, scope))
	if err != nil {
		return nil, &domain.SystemError{Op: "subscribe", Err: err}
	}

	w := &UserWatch{Scope: scope, Sub: sub}
	switch scope {
	case feed.ScopeOwned:
		w.Owned, err = s.ledger.ListAuctionsByOwner(ctx, userID)
	case feed.ScopeBidOn:
		w.BidOn, err = s.ledger.ListAuctionsBidOn(ctx, userID)
		if err == nil {
			ids := make([]string, len(w.BidOn))
			for i, row := range w.BidOn {
				ids[i] = row.Auction.ID
			}
			sub.Watch(ids...)
		}
	}
	if err != nil {
		sub.Close()
		return nil, err
	}

	s.log.Debug("User watch opened", "user_id", userID, "scope", string(scope), "owned", len(w.Owned), "bid_on", len(w.BidOn))
	return w, nil
}
