package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Auction struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	ImageURL      string          `json:"image_url,omitempty"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	EndTime       time.Time       `json:"end_time"`
	OwnerID       string          `json:"owner_id"`
	// Status as last written by the store. Read paths overwrite it with the
	// value derived from EndTime; see services.StatusOf.
	Status    AuctionStatus `json:"status"`
	BidCount  int           `json:"bid_count"`
	Version   int64         `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with a.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

type AuctionStatus int

const (
	AuctionActive AuctionStatus = iota + 1
	AuctionEnded
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionActive:
		return "active"
	case AuctionEnded:
		return "ended"
	default:
		return "unknown"
	}
}

func ParseAuctionStatus(s string) (AuctionStatus, error) {
	switch s {
	case "active":
		return AuctionActive, nil
	case "ended":
		return AuctionEnded, nil
	default:
		return 0, fmt.Errorf("unknown auction status %q", s)
	}
}

func (s AuctionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AuctionStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseAuctionStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type Bid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuctionSpec is the input to CreateAuction.
type AuctionSpec struct {
	Title         string
	Description   string
	ImageURL      string
	StartingPrice decimal.Decimal
	DurationDays  int
	OwnerID       string
}

// AllowedDurationDays lists the auction lengths a seller can pick.
var AllowedDurationDays = []int{1, 3, 5, 7, 14}

// BidRequest is a candidate bid before acceptance.
type BidRequest struct {
	AuctionID string
	BidderID  string
	Amount    decimal.Decimal
}

// Event is a committed state change. Version is the auction version the
// mutation produced; each version has exactly one event.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	AuctionID  string    `json:"auction_id"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
	Auction    *Auction  `json:"auction"`
	Bid        *Bid      `json:"bid,omitempty"`
}

type EventType string

const (
	// AuctionUpdated is emitted on creation and on closure.
	AuctionUpdated EventType = "auction_updated"
	// BidAccepted carries the bid and the auction state after it.
	BidAccepted EventType = "bid_accepted"
)

// BidOnSummary is a dashboard row: an auction together with the user's
// highest bid on it.
type BidOnSummary struct {
	Auction   *Auction        `json:"auction"`
	MyTopBid  decimal.Decimal `json:"my_top_bid"`
	LastBidAt time.Time       `json:"last_bid_at"`
}
