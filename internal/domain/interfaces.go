package domain

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_interfaces.go -package=mocks live-auction/internal/domain AuctionStore,EventPublisher,PriceCache

// AuctionStore is the durable record of auctions and bids. Implementations
// must provide at least read-committed isolation.
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	// ListBids returns bids ordered by amount desc, earlier first on ties.
	ListBids(ctx context.Context, auctionID string) ([]*Bid, error)
	// PlaceBid locks the auction, calls check with the locked state and, if
	// check passes, inserts bid and sets current_price, bid_count+1 and
	// version+1 in one transaction. Errors from check are returned unchanged
	// and nothing is written.
	PlaceBid(ctx context.Context, bid *Bid, check BidCheck) (*Auction, error)
	// MarkEnded flips the stored status from active to ended when
	// end_time <= now. changed is false if another caller already did it.
	MarkEnded(ctx context.Context, auctionID string, now time.Time) (auction *Auction, changed bool, err error)
	// ListExpired returns auctions still stored as active whose end_time <= now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Auction, error)
	ListAuctionsByOwner(ctx context.Context, ownerID string) ([]*Auction, error)
	ListAuctionsBidOn(ctx context.Context, bidderID string) ([]*BidOnSummary, error)
}

// BidCheck validates a bid against the locked, current auction state.
type BidCheck func(current *Auction) error

// EventPublisher receives committed events. Publish must not block on slow
// consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type EventSubscriber interface {
	Subscribe(ctx context.Context, handler EventHandler) error
}

type EventHandler func(ctx context.Context, event Event) error

// PriceCache holds recent auction snapshots for the fast-reject path. It is
// never authoritative. Get returns nil, nil on a miss.
type PriceCache interface {
	Get(ctx context.Context, auctionID string) (*Auction, error)
	Put(ctx context.Context, auction *Auction) error
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}
